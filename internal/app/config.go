package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the console.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development" validate:"oneof=development staging production test"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080" validate:"required"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s" validate:"gt=0"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s" validate:"gt=0"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s" validate:"gt=0"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty" validate:"oneof=pretty json"`

	// PGDSN enables the key issuance log when set.
	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379" validate:"required,hostname_port"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h" validate:"gt=0"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	UpstreamBaseURL          string        `envconfig:"UPSTREAM_BASE_URL" default:"http://127.0.0.1:5000" validate:"required,url"`
	UpstreamProductsURL      string        `envconfig:"UPSTREAM_PRODUCTS_URL" default:"/admin/_products/"`
	UpstreamProductsParam    string        `envconfig:"UPSTREAM_PRODUCTS_PARAM" default:"company_id"`
	UpstreamStaffURL         string        `envconfig:"UPSTREAM_STAFF_URL" default:"/admin/_staffs/"`
	UpstreamStaffParam       string        `envconfig:"UPSTREAM_STAFF_PARAM" default:"staff_id"`
	UpstreamSubscriptionsURL string        `envconfig:"UPSTREAM_SUBSCRIPTIONS_URL" default:"/admin/_get_subscriptions" validate:"required"`
	UpstreamKeyURL           string        `envconfig:"UPSTREAM_KEY_URL" default:"/admin/_get_key" validate:"required"`
	UpstreamCompaniesURL     string        `envconfig:"UPSTREAM_COMPANIES_URL"`
	UpstreamTimeout          time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"10s" validate:"gt=0"`

	Currency       string        `envconfig:"CURRENCY" default:"USD" validate:"len=3"`
	CurrencyLocale string        `envconfig:"CURRENCY_LOCALE" default:"en-US"`
	DirectoryTTL   time.Duration `envconfig:"DIRECTORY_TTL" default:"5m" validate:"gte=0"`
	WorkspaceTTL   time.Duration `envconfig:"WORKSPACE_TTL" default:"2h" validate:"gt=0"`
	WorkspaceMax   int           `envconfig:"WORKSPACE_MAX" default:"1024" validate:"gt=0"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("session secret must be provided")
	}
	if cfg.CSRFSecret == "" {
		return nil, errors.New("csrf secret must be provided")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints after defaults are applied.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("config: %s failed %q", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// ActivityLogEnabled reports whether a Postgres DSN was configured.
func (c *Config) ActivityLogEnabled() bool {
	return c != nil && c.PGDSN != ""
}
