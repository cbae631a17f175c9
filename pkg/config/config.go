// Package config loads and validates gateway configuration from file,
// environment, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/campuskit/shibgate/internal/logger"
	"github.com/campuskit/shibgate/internal/sessions"
	"github.com/campuskit/shibgate/pkg/shibauth"
	"github.com/campuskit/shibgate/pkg/shibauth/store"
)

// Config is the root configuration for the gateway.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Database configures user/group persistence.
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Sessions configures the browser session store.
	Sessions sessions.Config `mapstructure:"sessions" yaml:"sessions"`

	// Auth configures trusted-header authentication.
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Logging configures the process logger.
	Logging logger.Config `mapstructure:"logging" yaml:"logging"`

	// Metrics enables the Prometheus /metrics endpoint.
	Metrics bool `mapstructure:"metrics" yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Port is the HTTP listen port. Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading a request. Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response. Default: 10s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit. Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default: 15s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// AuthConfig configures the trusted-header authentication core plus the
// login/logout redirect wiring around it.
type AuthConfig struct {
	// Header is the trusted identity header. Default: "Remote-User".
	Header string `mapstructure:"header" yaml:"header"`

	// Attributes maps provider attribute headers to local user fields.
	Attributes shibauth.AttributeMap `mapstructure:"attributes" yaml:"attributes"`

	// GroupAttributes lists ";"-separated multi-valued headers that drive
	// group membership. Leave empty to keep group management manual.
	GroupAttributes []string `mapstructure:"group_attributes" yaml:"group_attributes"`

	// CreateUnknownUser creates local users on first login. Default: true.
	CreateUnknownUser *bool `mapstructure:"create_unknown_user" yaml:"create_unknown_user"`

	// ForceLogoutIfNoHeader de-authenticates sessions whose trusted header
	// disappears. Default: true.
	ForceLogoutIfNoHeader *bool `mapstructure:"force_logout_if_no_header" yaml:"force_logout_if_no_header"`

	// LowercaseUsernames folds asserted usernames to lower case.
	LowercaseUsernames bool `mapstructure:"lowercase_usernames" yaml:"lowercase_usernames"`

	// ForceReauthKey overrides the session key for the logout flag.
	ForceReauthKey string `mapstructure:"force_reauth_key" yaml:"force_reauth_key"`

	// LoginURL is the identity provider's session initiator, typically
	// https://<site>/Shibboleth.sso/Login. Required.
	LoginURL string `mapstructure:"login_url" validate:"required,url" yaml:"login_url"`

	// LogoutRedirectURL is where the logout endpoint sends the browser
	// after clearing the session, typically the IdP's logout page.
	LogoutRedirectURL string `mapstructure:"logout_redirect_url" validate:"omitempty,url" yaml:"logout_redirect_url"`

	// RedirectField is the query parameter carrying the post-login return
	// target. Default: "target".
	RedirectField string `mapstructure:"redirect_field" yaml:"redirect_field"`

	// LoginRedirectURL is the default post-login target when the login
	// request carries no redirect field. Default: "/".
	LoginRedirectURL string `mapstructure:"login_redirect_url" yaml:"login_redirect_url"`

	// MockHeaders, when non-empty, are injected into every request before
	// authentication. Development aid for running without a fronting
	// proxy; never set in production.
	MockHeaders map[string]string `mapstructure:"mock_headers" yaml:"mock_headers"`
}

// AuthSettings converts the file-level auth section into the core package's
// configuration struct.
func (c *AuthConfig) AuthSettings() shibauth.Config {
	cfg := shibauth.Config{
		Header:                c.Header,
		Attributes:            c.Attributes,
		GroupAttributes:       c.GroupAttributes,
		CreateUnknownUser:     c.CreateUnknownUser == nil || *c.CreateUnknownUser,
		ForceLogoutIfNoHeader: c.ForceLogoutIfNoHeader == nil || *c.ForceLogoutIfNoHeader,
		LowercaseUsernames:    c.LowercaseUsernames,
		ForceReauthKey:        c.ForceReauthKey,
	}
	if len(cfg.Attributes) == 0 {
		cfg.Attributes = shibauth.DefaultAttributeMap()
	}
	return cfg
}

// GetDefaultConfig returns the configuration used when no file exists. The
// login URL stays empty on purpose: it has no usable default and validation
// rejects it until the operator sets one.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in missing values.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	cfg.Database.ApplyDefaults()
	cfg.Sessions.ApplyDefaults()

	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "Remote-User"
	}
	if len(cfg.Auth.Attributes) == 0 {
		cfg.Auth.Attributes = shibauth.DefaultAttributeMap()
	}
	if cfg.Auth.RedirectField == "" {
		cfg.Auth.RedirectField = "target"
	}
	if cfg.Auth.LoginRedirectURL == "" {
		cfg.Auth.LoginRedirectURL = "/"
	}
	if cfg.Auth.ForceReauthKey == "" {
		cfg.Auth.ForceReauthKey = shibauth.DefaultForceReauthKey
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SHIBGATE_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig writes the configuration to path in YAML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the database section may carry credentials.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPath returns the default config file location.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// setupViper configures environment variables and config file search.
func setupViper(v *viper.Viper, configPath string) {
	// SHIBGATE_AUTH_HEADER=X-Remote-User etc.
	v.SetEnvPrefix("SHIBGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is acceptable; the defaults take over.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// configDecodeHooks returns the combined decode hook for custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts config strings like "30s" or "12h" to
// time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path, honoring
// XDG_CONFIG_HOME with a ~/.config fallback.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "shibgate")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".config", "shibgate")
}
