package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/campuskit/shibgate/internal/logger"
)

// Validate checks the assembled configuration. Structural checks come from
// `validate` struct tags; cross-field policy checks follow.
//
// A missing login URL is fatal: without it the login endpoint has nowhere to
// send the browser and every protected page dead-ends. This is the one piece
// of configuration with no usable default.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) {
			return err
		}
		msgs := make([]string, 0, len(errs))
		for _, fe := range errs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q validation", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}

	if err := cfg.Database.Validate(); err != nil {
		return err
	}

	if lvl := strings.ToUpper(cfg.Logging.Level); lvl != "DEBUG" && lvl != "INFO" && lvl != "WARN" && lvl != "ERROR" {
		return fmt.Errorf("logging.level must be one of DEBUG, INFO, WARN, ERROR; got %q", cfg.Logging.Level)
	}
	if f := strings.ToLower(cfg.Logging.Format); f != "text" && f != "json" {
		return fmt.Errorf("logging.format must be text or json; got %q", cfg.Logging.Format)
	}

	for _, rule := range cfg.Auth.Attributes {
		if rule.Header == "" || rule.Field == "" {
			return fmt.Errorf("auth.attributes entries need both header and field (got header=%q field=%q)", rule.Header, rule.Field)
		}
	}

	// Two headers feeding one field is last-write-wins at parse time.
	// Legal, but almost always an editing mistake, so say so loudly.
	if dups := cfg.Auth.Attributes.DuplicateFields(); len(dups) > 0 {
		logger.Warn("attribute map has multiple headers mapping to the same field; the last rule wins",
			"fields", strings.Join(dups, ","))
	}

	if len(cfg.Auth.MockHeaders) > 0 {
		logger.Warn("mock headers are enabled; every request will carry them. Do not run this in production")
	}

	return nil
}
