package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config is the whole environment surface of the service.
type Config struct {
	Env  string `env:"APP_ENV" envDefault:"dev"`
	Port string `env:"PORT" envDefault:"8080"`

	DatabaseDSN string `env:"DATABASE_DSN,required"`

	JWTSecret string `env:"JWT_SECRET,required"`

	StripeSecretKey     string        `env:"STRIPE_SECRET_KEY,required"`
	StripeWebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET,required"`
	StripeTimeout       time.Duration `env:"STRIPE_TIMEOUT" envDefault:"15s"`
	SuccessURL          string        `env:"PAYMENT_SUCCESS_URL,required"`
	CancelURL           string        `env:"PAYMENT_CANCEL_URL,required"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env when present, then parses the environment.
func Load() (Config, error) {
	// .env is a developer convenience; absence is fine.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
