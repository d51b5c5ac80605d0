package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthIssuer   string `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL  string `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience string `mapstructure:"AUTH_AUDIENCE"`
	DevActorID   string `mapstructure:"DEV_ACTOR_ID"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
	MaxBodySize    string  `mapstructure:"MAX_BODY_SIZE"`
	RequestTimeout int     `mapstructure:"REQUEST_TIMEOUT_SECONDS"`

	// Consent lifecycle knobs. Durations are expressed in days to match how
	// consent policies are written.
	RestoreWindowDays   int `mapstructure:"RESTORE_WINDOW_DAYS"`
	ExpiredGraceDays    int `mapstructure:"EXPIRED_GRACE_DAYS"`
	RevokedCleanupDays  int `mapstructure:"REVOKED_CLEANUP_DAYS"`
	InactiveCleanupDays int `mapstructure:"INACTIVE_CLEANUP_DAYS"`
	SweepBatchSize      int `mapstructure:"SWEEP_BATCH_SIZE"`
	SweepTimeoutSeconds int `mapstructure:"SWEEP_TIMEOUT_SECONDS"`
	SweepNotify         bool `mapstructure:"SWEEP_NOTIFY"`

	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("MAX_BODY_SIZE", "1M")
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)
	v.SetDefault("RESTORE_WINDOW_DAYS", 30)
	v.SetDefault("EXPIRED_GRACE_DAYS", 7)
	v.SetDefault("REVOKED_CLEANUP_DAYS", 90)
	v.SetDefault("INACTIVE_CLEANUP_DAYS", 180)
	v.SetDefault("SWEEP_BATCH_SIZE", 50)
	v.SetDefault("SWEEP_TIMEOUT_SECONDS", 600)
	v.SetDefault("SWEEP_NOTIFY", true)
	v.SetDefault("MIGRATIONS_DIR", "migrations")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"CORS_ORIGINS", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE",
		"DEV_ACTOR_ID", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "MAX_BODY_SIZE",
		"REQUEST_TIMEOUT_SECONDS", "RESTORE_WINDOW_DAYS", "EXPIRED_GRACE_DAYS",
		"REVOKED_CLEANUP_DAYS", "INACTIVE_CLEANUP_DAYS", "SWEEP_BATCH_SIZE",
		"SWEEP_TIMEOUT_SECONDS", "SWEEP_NOTIFY", "MIGRATIONS_DIR",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, requests are not authenticated.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_ISSUER for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SweepTimeout returns the lifecycle sweep ceiling as a duration.
func (c *Config) SweepTimeout() time.Duration {
	return time.Duration(c.SweepTimeoutSeconds) * time.Second
}

// Validate checks that the configuration is safe to run. Production requires
// a real JWT issuer; consent retention windows must stay positive so the
// lifecycle job cannot archive or expire records early.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AuthIssuer == "" && c.AuthJWKSURL == "" {
		return fmt.Errorf("AUTH_ISSUER or AUTH_JWKS_URL must be set in production; " +
			"refusing to start without authentication configuration")
	}

	if c.RestoreWindowDays <= 0 {
		return fmt.Errorf("RESTORE_WINDOW_DAYS must be positive, got %d", c.RestoreWindowDays)
	}
	if c.ExpiredGraceDays < 0 {
		return fmt.Errorf("EXPIRED_GRACE_DAYS must not be negative, got %d", c.ExpiredGraceDays)
	}
	if c.RevokedCleanupDays <= 0 {
		return fmt.Errorf("REVOKED_CLEANUP_DAYS must be positive, got %d", c.RevokedCleanupDays)
	}
	if c.SweepBatchSize <= 0 {
		return fmt.Errorf("SWEEP_BATCH_SIZE must be positive, got %d", c.SweepBatchSize)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive, got %d", c.RequestTimeout)
	}

	return nil
}
