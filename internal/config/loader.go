package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HOOKY_"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// legacyEnv maps unprefixed variable names still honoured for compatibility
// with older deployments onto their prefixed equivalents.
var legacyEnv = map[string]string{
	"MAX_REQUEST_BODY_SIZE_MB":      "HOOKY_CAPTURE_MAX_BODY_MB",
	"ANONYMOUS_SESSION_EXPIRY_DAYS": "HOOKY_SESSION_EXPIRY_DAYS",
	"ANONYMOUS_RETENTION_DAYS":      "HOOKY_RETENTION_DAYS",
	"CLEANUP_SCHEDULE":              "HOOKY_RETENTION_SCHEDULE",
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty and exists), then environment overrides. The result is
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			expanded := interpolateEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func parseEnv(cfg *Config) error {
	environment := env.ToMap(os.Environ())
	for legacy, current := range legacyEnv {
		v, ok := environment[legacy]
		if !ok {
			continue
		}
		if _, set := environment[current]; !set {
			environment[current] = v
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: environment,
	}); err != nil {
		return fmt.Errorf("parse environment variables: %w", err)
	}
	return nil
}

// interpolateEnv replaces ${VAR} with the value of VAR; unknown variables
// are left in place.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func validate(cfg *Config) error {
	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if cfg.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be one of: sqlite, postgres (got %q)", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if cfg.Capture.MaxBodyMB <= 0 {
		return fmt.Errorf("capture.max_body_mb must be positive")
	}
	for i, p := range cfg.Capture.BinaryPrefixes {
		cfg.Capture.BinaryPrefixes[i] = strings.ToLower(strings.TrimSpace(p))
	}
	for i, p := range cfg.Capture.ExcludedHeaderPrefixes {
		cfg.Capture.ExcludedHeaderPrefixes[i] = strings.ToLower(strings.TrimSpace(p))
	}

	if cfg.Session.ExpiryDays <= 0 {
		return fmt.Errorf("session.expiry_days must be positive")
	}
	if cfg.Retention.Days <= 0 {
		return fmt.Errorf("retention.days must be positive")
	}
	if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
		return fmt.Errorf("retention.schedule: %w", err)
	}
	if cfg.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error (got %q)", cfg.Log.Level)
	}

	for _, secret := range []string{cfg.Session.Secret, cfg.Auth.JWTSecret} {
		if envVarPattern.MatchString(secret) {
			name := envVarPattern.FindStringSubmatch(secret)[1]
			return fmt.Errorf("environment variable %s referenced in config is not set", name)
		}
	}
	return nil
}

// RequireSecrets reports an error when the secrets needed to serve traffic
// are missing. Offline commands such as sweep do not need them.
func (c *Config) RequireSecrets() error {
	if c.Session.Secret == "" {
		return fmt.Errorf("session.secret is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	return nil
}
