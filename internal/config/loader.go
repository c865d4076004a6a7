package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError reports which stage of loading failed so a bad deploy is
// diagnosable from the first log line.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig populates and validates Config from the environment, reading a
// .env file first when one exists. Real environment variables always win
// over .env entries. Every job and billing timestamp in the system is UTC,
// so the process timezone is pinned before anything reads the clock.
func LoadConfig() (*Config, error) {
	time.Local = time.UTC

	// Absent .env is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	// Empty prefix: envconfig tags name the exact variable, SERVER_PORT not
	// APP_SERVER_PORT.
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	return &cfg, nil
}

// MustLoad panics on a load failure. Lambda entry points use it so a bad
// configuration kills the cold start outright instead of limping along.
func MustLoad() *Config {
	cfg, err := LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}
