package shibauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campuskit/shibgate/internal/logger"
	"github.com/campuskit/shibgate/pkg/shibauth/models"
	"github.com/campuskit/shibgate/pkg/shibauth/store"
)

// Backend resolves a trusted username and its normalized attributes to a
// local user record. It is the only component that writes user rows.
type Backend struct {
	store   store.Store
	config  *Config
	metrics Metrics
}

// NewBackend creates a Backend. metrics may be nil.
func NewBackend(st store.Store, cfg *Config, metrics Metrics) *Backend {
	cfg.applyDefaults()
	return &Backend{store: st, config: cfg, metrics: metrics}
}

// Authenticate resolves remoteUser to a local user.
//
// The username is considered trusted; no credential is verified here. attrs
// is the normalized attribute map from ParseAttributes. Required attributes
// become creation-time values, optional ones are reconciled onto the stored
// record on every login.
//
// Expected failures are returned as models.ErrNoCredential,
// models.ErrUnknownUser, or models.ErrUserDisabled; callers treat all three
// as "request proceeds unauthenticated". Any other error is a store fault.
func (b *Backend) Authenticate(ctx context.Context, remoteUser string, attrs map[string]string) (*models.User, error) {
	if remoteUser == "" {
		b.observe("no_credential")
		return nil, models.ErrNoCredential
	}
	username := b.config.CleanUsername(remoteUser)

	required := make(map[string]string)
	optional := make(map[string]string)
	for field, value := range attrs {
		if b.config.attributeRequired(field) {
			required[field] = value
		} else {
			optional[field] = value
		}
	}

	user, err := b.resolve(ctx, username, required)
	if err != nil {
		return nil, err
	}

	if err := b.reconcile(ctx, user, optional); err != nil {
		return nil, err
	}

	if !user.Enabled {
		b.observe("disabled")
		return nil, models.ErrUserDisabled
	}

	b.observe("success")
	return user, nil
}

// resolve finds or creates the user row for username. Creation is keyed on
// the username unique constraint so concurrent first logins for the same
// identity yield exactly one row.
func (b *Backend) resolve(ctx context.Context, username string, required map[string]string) (*models.User, error) {
	if !b.config.CreateUnknownUser {
		user, err := b.store.GetUser(ctx, username)
		if err != nil {
			if errors.Is(err, models.ErrUserNotFound) {
				b.observe("unknown_user")
				return nil, models.ErrUnknownUser
			}
			return nil, fmt.Errorf("user lookup failed: %w", err)
		}
		return user, nil
	}

	candidate := &models.User{Username: username, Enabled: true}
	for field, value := range required {
		candidate.SetField(field, value)
	}
	// The placeholder password is fixed before the user ever reaches a
	// session login, and only on creation: session auth hashes derived from
	// it must stay stable across logins.
	hash, err := models.UnusablePassword()
	if err != nil {
		return nil, err
	}
	candidate.PasswordHash = hash

	user, created, err := b.store.GetOrCreateUser(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("user find-or-create failed: %w", err)
	}
	if created {
		logger.Info("created user from trusted header", "username", username)
		if b.metrics != nil {
			b.metrics.ObserveUserCreated()
		}
	}
	return user, nil
}

// reconcile overwrites the user's optional mapped fields when the provider
// asserts anything different. The overwrite is all-or-nothing: one drifted
// field rewrites every optional field to the incoming value, including fields
// another actor may have edited out-of-band. The provider is the system of
// record for mapped fields.
func (b *Backend) reconcile(ctx context.Context, user *models.User, optional map[string]string) error {
	if len(optional) == 0 {
		return nil
	}
	drift := false
	for field, value := range optional {
		if user.Field(field) != value {
			drift = true
			break
		}
	}
	if !drift {
		return nil
	}
	if err := b.store.UpdateUserFields(ctx, user, optional); err != nil {
		return fmt.Errorf("user reconciliation failed: %w", err)
	}
	logger.Debug("reconciled user attributes", "username", user.Username, "fields", len(optional))
	return nil
}

// TouchLastLogin records a successful authentication time. Best effort.
func (b *Backend) TouchLastLogin(ctx context.Context, username string) {
	if err := b.store.TouchLastLogin(ctx, username, time.Now()); err != nil {
		logger.Warn("failed to record last login", "username", username, "error", err)
	}
}

func (b *Backend) observe(outcome string) {
	if b.metrics != nil {
		b.metrics.ObserveAuthentication(outcome)
	}
}

// IsAuthFailure reports whether err is one of the expected authentication
// failures rather than a store fault.
func IsAuthFailure(err error) bool {
	return errors.Is(err, models.ErrNoCredential) ||
		errors.Is(err, models.ErrUnknownUser) ||
		errors.Is(err, models.ErrUserDisabled)
}
