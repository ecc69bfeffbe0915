package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App struct {
		Name     string     `envconfig:"APP_NAME" default:"stkpush"`
		Port     int        `envconfig:"PORT" default:"8080"`
		LogLevel slog.Level `envconfig:"LOG_LEVEL" default:"info"`
	}

	Server struct {
		Timeout time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
	}

	Store struct {
		Driver string `envconfig:"STORE_DRIVER" default:"postgres"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"stkpush"`
		SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	}

	Mongo struct {
		URI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
		Database string `envconfig:"MONGO_DATABASE" default:"stkpush"`
	}

	Mpesa Mpesa

	Redis struct {
		Addr     string `envconfig:"REDIS_ADDR"`
		Password string `envconfig:"REDIS_PASSWORD"`
		DB       int    `envconfig:"REDIS_DB" default:"0"`
	}

	Auth struct {
		JWTSecret string `envconfig:"AUTH_JWT_SECRET"`
	}

	CORS struct {
		AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	}
}

// Mpesa holds the Daraja API settings. Secrets have no defaults.
type Mpesa struct {
	BaseURL          string          `envconfig:"MPESA_BASE_URL" default:"https://sandbox.safaricom.co.ke"`
	ConsumerKey      string          `envconfig:"MPESA_CONSUMER_KEY"`
	ConsumerSecret   string          `envconfig:"MPESA_CONSUMER_SECRET"`
	ShortCode        string          `envconfig:"MPESA_SHORT_CODE"`
	Passkey          string          `envconfig:"MPESA_PASSKEY"`
	CallbackURL      string          `envconfig:"MPESA_CALLBACK_URL"`
	TransactionType  string          `envconfig:"MPESA_TRANSACTION_TYPE" default:"CustomerPayBillOnline"`
	AccountReference string          `envconfig:"MPESA_ACCOUNT_REFERENCE" default:"M-Pesa Simplicity"`
	TransactionDesc  string          `envconfig:"MPESA_TRANSACTION_DESC" default:"Payment for services"`
	CountryCode      string          `envconfig:"MPESA_COUNTRY_CODE" default:"254"`
	MaxAmount        decimal.Decimal `envconfig:"MPESA_MAX_AMOUNT" default:"250000"`
	HTTPTimeout      time.Duration   `envconfig:"MPESA_HTTP_TIMEOUT" default:"30s"`
}

var ErrMissingSetting = errors.New("missing required setting")

// Validate reports every unset secret in a single error.
func (m Mpesa) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"MPESA_CONSUMER_KEY", m.ConsumerKey},
		{"MPESA_CONSUMER_SECRET", m.ConsumerSecret},
		{"MPESA_SHORT_CODE", m.ShortCode},
		{"MPESA_PASSKEY", m.Passkey},
		{"MPESA_CALLBACK_URL", m.CallbackURL},
	}

	var missing []string

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
	}

	return nil
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
