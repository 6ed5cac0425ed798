package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the core runtime configuration for the service.
// Values are sourced from environment variables (optionally via a .env file
// loaded by main), with defaults where appropriate.
type Config struct {
	ListenAddr  string
	DatabaseURL string

	// AuthServiceURL is the base URL of the identity service; every bearer
	// token is verified with GET {AuthServiceURL}/auth/me.
	AuthServiceURL string
	AuthTimeout    time.Duration
	// AdminRole is the role value that grants elevated scope.
	AdminRole string

	// Retention horizons in days, per domain.
	RetentionAIDays          int
	RetentionEngagementDays  int
	RetentionSalesDays       int
	RetentionPerformanceDays int
	RetentionSweepInterval   time.Duration

	LogLevel        string
	LogFile         string
	LogMaxSizeMB    int
	LogMaxBackups   int
	LogMaxAgeDays   int
	OTELEndpoint    string
	OTELInsecure    bool
	OTELServiceName string

	// Env is "development" or "production". Production hides error detail.
	Env            string
	ServiceName    string
	ServiceVersion string
}

// Production reports whether error detail must be withheld from callers.
func (c *Config) Production() bool {
	return c.Env == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_LISTEN_ADDR", ":8080")
	v.SetDefault("APP_DATABASE_URL", "")
	v.SetDefault("AUTH_SERVICE_URL", "")
	v.SetDefault("AUTH_TIMEOUT", 5*time.Second)
	v.SetDefault("ADMIN_ROLE", "admin")
	v.SetDefault("RETENTION_ENGAGEMENT_DAYS", 90)
	v.SetDefault("RETENTION_SALES_DAYS", 365)
	v.SetDefault("RETENTION_PERFORMANCE_DAYS", 30)
	v.SetDefault("RETENTION_AI_DAYS", 0)
	v.SetDefault("RETENTION_SWEEP_INTERVAL", time.Hour)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 10)
	v.SetDefault("LOG_MAX_AGE_DAYS", 30)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "pulsemetrics")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SERVICE_NAME", "pulsemetrics")
	v.SetDefault("SERVICE_VERSION", "1.0.0")
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ListenAddr:               v.GetString("APP_LISTEN_ADDR"),
		DatabaseURL:              strings.TrimSpace(v.GetString("APP_DATABASE_URL")),
		AuthServiceURL:           strings.TrimRight(strings.TrimSpace(v.GetString("AUTH_SERVICE_URL")), "/"),
		AuthTimeout:              v.GetDuration("AUTH_TIMEOUT"),
		AdminRole:                v.GetString("ADMIN_ROLE"),
		RetentionAIDays:          v.GetInt("RETENTION_AI_DAYS"),
		RetentionEngagementDays:  v.GetInt("RETENTION_ENGAGEMENT_DAYS"),
		RetentionSalesDays:       v.GetInt("RETENTION_SALES_DAYS"),
		RetentionPerformanceDays: v.GetInt("RETENTION_PERFORMANCE_DAYS"),
		RetentionSweepInterval:   v.GetDuration("RETENTION_SWEEP_INTERVAL"),
		LogLevel:                 v.GetString("LOG_LEVEL"),
		LogFile:                  v.GetString("LOG_FILE"),
		LogMaxSizeMB:             v.GetInt("LOG_MAX_SIZE_MB"),
		LogMaxBackups:            v.GetInt("LOG_MAX_BACKUPS"),
		LogMaxAgeDays:            v.GetInt("LOG_MAX_AGE_DAYS"),
		OTELEndpoint:             v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTELInsecure:             v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
		OTELServiceName:          v.GetString("OTEL_SERVICE_NAME"),
		Env:                      v.GetString("APP_ENV"),
		ServiceName:              v.GetString("SERVICE_NAME"),
		ServiceVersion:           v.GetString("SERVICE_VERSION"),
	}

	// AI requests share the engagement horizon unless set explicitly.
	if cfg.RetentionAIDays <= 0 {
		cfg.RetentionAIDays = cfg.RetentionEngagementDays
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("APP_DATABASE_URL is required"))
	}
	if c.AuthServiceURL == "" {
		errs = append(errs, errors.New("AUTH_SERVICE_URL is required"))
	} else if u, err := url.Parse(c.AuthServiceURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("AUTH_SERVICE_URL=%q is not an absolute URL", c.AuthServiceURL))
	}
	if c.AuthTimeout <= 0 {
		errs = append(errs, errors.New("AUTH_TIMEOUT must be positive"))
	}
	if c.AdminRole == "" {
		errs = append(errs, errors.New("ADMIN_ROLE must not be empty"))
	}
	for name, days := range map[string]int{
		"RETENTION_AI_DAYS":          c.RetentionAIDays,
		"RETENTION_ENGAGEMENT_DAYS":  c.RetentionEngagementDays,
		"RETENTION_SALES_DAYS":       c.RetentionSalesDays,
		"RETENTION_PERFORMANCE_DAYS": c.RetentionPerformanceDays,
	} {
		if days <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Env != "development" && c.Env != "production" {
		errs = append(errs, fmt.Errorf("APP_ENV=%q must be development or production", c.Env))
	}
	return errors.Join(errs...)
}
