package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	DBMaxConnIdle     time.Duration `mapstructure:"DB_MAX_CONN_IDLE_TIME"`
	DBHealthCheck     time.Duration `mapstructure:"DB_HEALTH_CHECK_PERIOD"`
	AuthJWTSecret     string        `mapstructure:"AUTH_JWT_SECRET"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience      string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	RemoteCallTimeout time.Duration `mapstructure:"REMOTE_CALL_TIMEOUT"`
	RefreshDelay      time.Duration `mapstructure:"REFRESH_DELAY"`
	ListMaxAge        time.Duration `mapstructure:"LIST_MAX_AGE"`
	AuditQueueSize    int           `mapstructure:"AUDIT_QUEUE_SIZE"`
	AuditTimeout      time.Duration `mapstructure:"AUDIT_TIMEOUT"`
	SweepSchedule     string        `mapstructure:"SWEEP_SCHEDULE"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DB_MAX_CONN_IDLE_TIME", "DB_HEALTH_CHECK_PERIOD",
	"AUTH_JWT_SECRET", "AUTH_ISSUER", "AUTH_AUDIENCE", "CORS_ORIGINS",
	"REMOTE_CALL_TIMEOUT", "REFRESH_DELAY", "LIST_MAX_AGE", "AUDIT_QUEUE_SIZE", "AUDIT_TIMEOUT",
	"SWEEP_SCHEDULE", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_MAX_CONN_IDLE_TIME", "5m")
	v.SetDefault("DB_HEALTH_CHECK_PERIOD", "30s")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REMOTE_CALL_TIMEOUT", "3s")
	v.SetDefault("REFRESH_DELAY", "1s")
	v.SetDefault("LIST_MAX_AGE", "1s")
	v.SetDefault("AUDIT_QUEUE_SIZE", 256)
	v.SetDefault("AUDIT_TIMEOUT", "5s")
	v.SetDefault("SWEEP_SCHEDULE", "@every 5m")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// every admin request must carry a token signed with AUTH_JWT_SECRET.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.IsProduction() && len(c.AuthJWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 bytes in production, got %d", len(c.AuthJWTSecret))
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.DBMaxConnIdle < 0 || c.DBHealthCheck < 0 {
		return fmt.Errorf("DB_MAX_CONN_IDLE_TIME and DB_HEALTH_CHECK_PERIOD must not be negative")
	}
	if c.RemoteCallTimeout <= 0 {
		return fmt.Errorf("REMOTE_CALL_TIMEOUT must be positive, got %s", c.RemoteCallTimeout)
	}
	if c.RefreshDelay < 0 {
		return fmt.Errorf("REFRESH_DELAY must not be negative, got %s", c.RefreshDelay)
	}
	if c.ListMaxAge < 0 {
		return fmt.Errorf("LIST_MAX_AGE must not be negative, got %s", c.ListMaxAge)
	}
	if c.AuditQueueSize <= 0 {
		return fmt.Errorf("AUDIT_QUEUE_SIZE must be positive, got %d", c.AuditQueueSize)
	}
	if _, err := cron.ParseStandard(c.SweepSchedule); err != nil {
		return fmt.Errorf("SWEEP_SCHEDULE %q: %w", c.SweepSchedule, err)
	}
	return nil
}
