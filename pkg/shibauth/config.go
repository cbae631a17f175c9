package shibauth

import (
	"context"
	"strings"

	"github.com/campuskit/shibgate/pkg/shibauth/models"
)

// Config carries everything the authentication middleware and backend need.
// It is passed explicitly at construction; nothing in this package reads
// ambient global state. Start from DefaultConfig and override.
type Config struct {
	// Header is the trusted identity header injected by the fronting proxy.
	Header string

	// Attributes is the provider-attribute translation table.
	Attributes AttributeMap

	// GroupAttributes lists multi-valued headers whose ";"-separated values
	// drive group membership. When empty, group synchronization never runs
	// and existing memberships are left alone. When non-empty, the derived
	// set is the sole source of truth: manually assigned groups outside it
	// are removed on the user's next request.
	GroupAttributes []string

	// CreateUnknownUser makes the backend create a local user on first
	// login. When false, unknown usernames fail with ErrUnknownUser.
	CreateUnknownUser bool

	// ForceLogoutIfNoHeader de-authenticates an authenticated session when
	// the trusted header disappears mid-session.
	ForceLogoutIfNoHeader bool

	// LowercaseUsernames folds asserted usernames to lower case before
	// lookup and storage.
	LowercaseUsernames bool

	// ForceReauthKey is the session key of the flag set by logout to make
	// the middleware skip authentication until the next login.
	ForceReauthKey string

	// MakeProfile runs after a successful authentication with the resolved
	// user and the normalized attributes. Intended for application profile
	// bootstrapping. Default: no-op.
	MakeProfile func(ctx context.Context, user *models.User, attrs map[string]string) error

	// SetupSession runs after a successful authentication with the session.
	// Default: no-op.
	SetupSession func(ctx context.Context, sess Session) error

	// OnParseError runs when a required attribute is missing. Returning an
	// error aborts the request with a server error; the default swallows
	// the failure and the request proceeds unauthenticated.
	OnParseError func(ctx context.Context, attrs map[string]string) error
}

// DefaultConfig returns the configuration matching a stock Shibboleth
// deployment: REMOTE_USER identity, standard attribute map, auto-creation
// and forced logout on header disappearance enabled.
func DefaultConfig() Config {
	return Config{
		Header:                "Remote-User",
		Attributes:            DefaultAttributeMap(),
		CreateUnknownUser:     true,
		ForceLogoutIfNoHeader: true,
		ForceReauthKey:        DefaultForceReauthKey,
	}
}

// applyDefaults fills zero values that have a single sensible default.
// Boolean policy fields are taken as configured.
func (c *Config) applyDefaults() {
	if c.Header == "" {
		c.Header = "Remote-User"
	}
	if c.ForceReauthKey == "" {
		c.ForceReauthKey = DefaultForceReauthKey
	}
}

// CleanUsername normalizes an asserted username for lookup and storage.
// Applied consistently everywhere a username is compared or persisted.
func (c *Config) CleanUsername(username string) string {
	username = strings.TrimSpace(username)
	if c.LowercaseUsernames {
		username = strings.ToLower(username)
	}
	return username
}

// attributeRequired reports whether the local field is populated by a
// required rule. Fields unknown to the map count as optional.
func (c *Config) attributeRequired(field string) bool {
	required := false
	for _, rule := range c.Attributes {
		if rule.Field == field {
			required = rule.Required
		}
	}
	return required
}

// Metrics receives authentication outcomes. Implementations must be safe for
// concurrent use; a nil Metrics disables recording.
type Metrics interface {
	// ObserveAuthentication records one authentication attempt by outcome:
	// "success", "no_credential", "unknown_user", "disabled", "parse_error".
	ObserveAuthentication(outcome string)

	// ObserveUserCreated records a first-login user creation.
	ObserveUserCreated()

	// ObserveGroupSync records one synchronization pass and how many
	// memberships it changed.
	ObserveGroupSync(added, removed int)
}
