package config

import "time"

// Config represents the complete hooky configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DATABASE_"`
	Capture   CaptureConfig   `yaml:"capture" envPrefix:"CAPTURE_"`
	Session   SessionConfig   `yaml:"session" envPrefix:"SESSION_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	Retention RetentionConfig `yaml:"retention" envPrefix:"RETENTION_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
}

// ServerConfig defines HTTP listener settings.
type ServerConfig struct {
	Listen          string        `yaml:"listen" env:"LISTEN"`
	BaseURL         string        `yaml:"base_url" env:"BASE_URL"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"CORS_ORIGINS"`
	LockPath        string        `yaml:"lock_path" env:"LOCK_PATH"`
}

// DatabaseConfig selects the storage driver.
type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"` // sqlite | postgres
	DSN    string `yaml:"dsn" env:"DSN"`
}

// CaptureConfig bounds what the public capture endpoint accepts.
type CaptureConfig struct {
	MaxBodyMB              int      `yaml:"max_body_mb" env:"MAX_BODY_MB"`
	BinaryPrefixes         []string `yaml:"binary_prefixes" env:"BINARY_PREFIXES"`
	ExcludedHeaderPrefixes []string `yaml:"excluded_header_prefixes" env:"EXCLUDED_HEADER_PREFIXES"`
}

// MaxBodyBytes returns the body limit in bytes.
func (c CaptureConfig) MaxBodyBytes() int64 {
	return int64(c.MaxBodyMB) * 1024 * 1024
}

// SessionConfig configures the anonymous session cookie.
type SessionConfig struct {
	ExpiryDays    int    `yaml:"expiry_days" env:"EXPIRY_DAYS"`
	Secret        string `yaml:"secret" env:"SECRET"`
	SecureCookies bool   `yaml:"secure_cookies" env:"SECURE_COOKIES"`
}

// AuthConfig configures authenticated user sessions.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

// RetentionConfig configures the anonymous data sweep.
type RetentionConfig struct {
	Days     int    `yaml:"days" env:"DAYS"`
	Schedule string `yaml:"schedule" env:"SCHEDULE"`
}

// Window returns the retention window as a duration.
func (r RetentionConfig) Window() time.Duration {
	return time.Duration(r.Days) * 24 * time.Hour
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// Defaults returns a Config populated with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":3000",
			BaseURL:         "http://localhost:3000",
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			LockPath:        "hooky.lock",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "hooky.db",
		},
		Capture: CaptureConfig{
			MaxBodyMB:              50,
			BinaryPrefixes:         []string{"image/", "video/", "audio/", "application/octet-stream"},
			ExcludedHeaderPrefixes: []string{"x-hooky-"},
		},
		Session: SessionConfig{
			ExpiryDays: 6,
		},
		Auth: AuthConfig{
			TokenTTL: 7 * 24 * time.Hour,
		},
		Retention: RetentionConfig{
			Days:     7,
			Schedule: "0 0 * * *",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
