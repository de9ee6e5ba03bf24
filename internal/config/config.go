// Package config содержит логику чтения конфигурации клиента и dev-сервера PalmAstro.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации dev-сервера.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	TokenSecret string `env:"TOKEN_SECRET"`
}

// Parse считывает конфигурацию dev-сервера из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envTokenSecret := cfg.TokenSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8000", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.TokenSecret, "s", "", "secret used to sign access tokens")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envTokenSecret != "" {
		cfg.TokenSecret = envTokenSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8000"
	}

	return cfg, nil
}

// ClientConfig содержит параметры API-клиента и оркестратора чтений.
type ClientConfig struct {
	BaseURL             string        `env:"PALMASTRO_API_BASE_URL" envDefault:"http://localhost:8000/api/v1"`
	UseMockAPI          bool          `env:"PALMASTRO_USE_MOCK_API" envDefault:"true"`
	HTTPTimeout         time.Duration `env:"PALMASTRO_HTTP_TIMEOUT" envDefault:"30s"`
	RetryAttempts       int           `env:"PALMASTRO_RETRY_ATTEMPTS" envDefault:"3"`
	PollInterval        time.Duration `env:"PALMASTRO_POLL_INTERVAL" envDefault:"1500ms"`
	PollAttempts        int           `env:"PALMASTRO_POLL_ATTEMPTS" envDefault:"30"`
	PollExhaustedPolicy string        `env:"PALMASTRO_POLL_EXHAUSTED_POLICY" envDefault:"fetch"`
	ProgressTick        time.Duration `env:"PALMASTRO_PROGRESS_TICK" envDefault:"500ms"`
	MockDelayMin        time.Duration `env:"PALMASTRO_MOCK_DELAY_MIN" envDefault:"500ms"`
	MockDelayMax        time.Duration `env:"PALMASTRO_MOCK_DELAY_MAX" envDefault:"1500ms"`
	StoragePath         string        `env:"PALMASTRO_STORAGE_PATH"`
	DeriveSeed          int64         `env:"PALMASTRO_DERIVE_SEED" envDefault:"0"`
	Debug               bool          `env:"PALMASTRO_DEBUG"`
}

// LoadClient читает конфигурацию клиента из переменных окружения и проверяет её.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность параметров клиента.
func (c *ClientConfig) Validate() error {
	var errs []error
	if !c.UseMockAPI && c.BaseURL == "" {
		errs = append(errs, errors.New("base url is required when mock api is disabled"))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry attempts must be >= 1, got %d", c.RetryAttempts))
	}
	if c.PollAttempts < 1 {
		errs = append(errs, fmt.Errorf("poll attempts must be >= 1, got %d", c.PollAttempts))
	}
	if c.PollInterval < 0 || c.ProgressTick <= 0 {
		errs = append(errs, errors.New("poll interval and progress tick must be positive"))
	}
	if c.MockDelayMin < 0 || c.MockDelayMax < c.MockDelayMin {
		errs = append(errs, fmt.Errorf("invalid mock delay bounds %s..%s", c.MockDelayMin, c.MockDelayMax))
	}
	switch c.PollExhaustedPolicy {
	case PollExhaustedFetch, PollExhaustedFail:
	default:
		errs = append(errs, fmt.Errorf("unknown poll exhausted policy %q", c.PollExhaustedPolicy))
	}
	return errors.Join(errs...)
}
