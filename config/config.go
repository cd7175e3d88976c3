// Package config loads the demogate configuration.
//
// Values are resolved in order: built-in defaults, an optional TOML file,
// then environment variables. Secrets are read once at startup and are
// redacted whenever the configuration is logged.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/layer-3/demogate/core"
)

// Environment variable names.
const (
	EnvLoginPassword  = "LOGIN_PASSWORD"
	EnvSigningSecret  = "JWT_SECRET"
	EnvDemoPrefix     = "DEMO_PASSWORD_"
	EnvAppEnv         = "APP_ENV"
	EnvNodeEnv        = "NODE_ENV"
	EnvListen         = "DEMOGATE_LISTEN"
	EnvRedisURL       = "REDIS_URL"
	EnvironmentProd   = "production"
	EnvironmentDev    = "development"
	defaultListenAddr = ":3000"
)

// Config is the complete demogate configuration.
type Config struct {
	Listen      string `toml:"listen"`
	Environment string `toml:"environment"`

	LoginPath            string `toml:"login_path"`
	InternalPrefix       string `toml:"internal_prefix"`
	StaticAssetHeuristic bool   `toml:"static_asset_heuristic"`

	Secrets   SecretsConfig     `toml:"secrets"`
	Resources map[string]string `toml:"resources"`

	Redis  RedisConfig  `toml:"redis"`
	Events EventsConfig `toml:"events"`
}

// SecretsConfig holds the site-wide secrets.
type SecretsConfig struct {
	// Session is the master login password.
	Session string `toml:"session"`
	// Signing is the HMAC key for session tokens.
	Signing string `toml:"signing"`
}

// RedisConfig configures the optional Redis secret source and event stream.
type RedisConfig struct {
	URL        string `toml:"url"`
	SecretsKey string `toml:"secrets_key"`
}

// EventsConfig configures session issuance events.
type EventsConfig struct {
	Enabled bool   `toml:"enabled"`
	Topic   string `toml:"topic"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:               defaultListenAddr,
		Environment:          EnvironmentDev,
		LoginPath:            "/login",
		InternalPrefix:       "/_gate",
		StaticAssetHeuristic: true,
		Resources:            map[string]string{},
		Redis: RedisConfig{
			SecretsKey: "demogate:secrets",
		},
		Events: EventsConfig{
			Topic: "demogate.session.issued",
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path (if
// path is non-empty) and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnv(os.Environ())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML decodes the TOML file at path over cfg.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown config keys in %s: %v", path, undecoded)
	}
	return nil
}

// ApplyEnv overrides cfg from KEY=VALUE pairs. Empty values are ignored.
func (c *Config) ApplyEnv(environ []string) {
	if c.Resources == nil {
		c.Resources = map[string]string{}
	}

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" {
			continue
		}

		switch {
		case key == EnvLoginPassword:
			c.Secrets.Session = value
		case key == EnvSigningSecret:
			c.Secrets.Signing = value
		case key == EnvListen:
			c.Listen = value
		case key == EnvRedisURL:
			c.Redis.URL = value
		case key == EnvAppEnv:
			c.Environment = value
		case key == EnvNodeEnv:
			// APP_ENV wins when both are set.
			if !hasKey(environ, EnvAppEnv) {
				c.Environment = value
			}
		case strings.HasPrefix(key, EnvDemoPrefix):
			if scope := ScopeFromEnv(strings.TrimPrefix(key, EnvDemoPrefix)); scope != "" {
				c.Resources[scope] = value
			}
		}
	}
}

// ScopeFromEnv maps an environment suffix like THETA_ASSISTANT to the
// scope id theta-assistant.
func ScopeFromEnv(suffix string) string {
	return strings.ReplaceAll(strings.ToLower(strings.Trim(suffix, "_")), "_", "-")
}

func hasKey(environ []string, key string) bool {
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key && v != "" {
			return true
		}
	}
	return false
}

// Production reports whether the service runs in production mode.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, EnvironmentProd)
}

// CredentialSecrets returns every scope secret, including the reserved
// session and signing scopes. Empty values are omitted. Reserved scopes are
// only ever filled from the site secrets, never from resources.
func (c *Config) CredentialSecrets(sessionScope, signingScope string) map[string]string {
	out := make(map[string]string, len(c.Resources)+2)
	for scope, value := range c.Resources {
		if value != "" && !core.IsReservedScope(scope) {
			out[scope] = value
		}
	}
	if c.Secrets.Session != "" {
		out[sessionScope] = c.Secrets.Session
	}
	if c.Secrets.Signing != "" {
		out[signingScope] = c.Secrets.Signing
	}
	return out
}

// MergeResources adds secrets that are not already configured. Empty and
// reserved scope ids are skipped and reported.
func (c *Config) MergeResources(secrets map[string]string) (skipped []string) {
	if c.Resources == nil {
		c.Resources = map[string]string{}
	}
	for scope, value := range secrets {
		if scope == "" || core.IsReservedScope(scope) {
			skipped = append(skipped, scope)
			continue
		}
		if _, ok := c.Resources[scope]; !ok && value != "" {
			c.Resources[scope] = value
		}
	}
	sort.Strings(skipped)
	return skipped
}

// ResourceScopes lists the configured resource scopes in sorted order.
func (c *Config) ResourceScopes() []string {
	scopes := make([]string, 0, len(c.Resources))
	for scope, value := range c.Resources {
		if value != "" {
			scopes = append(scopes, scope)
		}
	}
	sort.Strings(scopes)
	return scopes
}

// ValidationError describes one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks settings that would make the gate unsafe or unusable.
// Missing secrets are not an error here: login reports them at request time.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, ValidationError{"listen", "must not be empty"})
	}
	if !strings.HasPrefix(c.LoginPath, "/") || c.LoginPath == "/" {
		errs = append(errs, ValidationError{"login_path", "must be an absolute path other than /"})
	}
	if !strings.HasPrefix(c.InternalPrefix, "/") || c.InternalPrefix == "/" {
		errs = append(errs, ValidationError{"internal_prefix", "must be an absolute path other than /"})
	}
	switch strings.ToLower(c.Environment) {
	case EnvironmentProd, EnvironmentDev, "test":
	default:
		errs = append(errs, ValidationError{"environment", fmt.Sprintf("unknown environment %q", c.Environment)})
	}
	for scope := range c.Resources {
		if scope == "" || core.IsReservedScope(scope) {
			errs = append(errs, ValidationError{"resources", fmt.Sprintf("invalid scope id %q", scope)})
		}
	}

	return errors.Join(errs...)
}

// LogValue implements slog.LogValuer. Secret values are never included.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("listen", c.Listen),
		slog.String("environment", c.Environment),
		slog.String("login_path", c.LoginPath),
		slog.Bool("session_secret_set", c.Secrets.Session != ""),
		slog.Bool("signing_secret_set", c.Secrets.Signing != ""),
		slog.Any("resource_scopes", c.ResourceScopes()),
		slog.Bool("redis", c.Redis.URL != ""),
		slog.Bool("events", c.Events.Enabled),
	)
}
