package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

/* Config holds process-wide settings. Per-input settings live in the inputs file */

type Config struct {
	Port              string        `mapstructure:"PORT" validate:"required"`
	InputsFile        string        `mapstructure:"INPUTS_FILE" validate:"required"`
	CheckpointBackend string        `mapstructure:"CHECKPOINT_BACKEND" validate:"oneof=file redis postgres"`
	CheckpointDir     string        `mapstructure:"CHECKPOINT_DIR" validate:"required_if=CheckpointBackend file"`
	RedisAddr         string        `mapstructure:"REDIS_ADDR"`
	RedisPassword     string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB           int           `mapstructure:"REDIS_DB" validate:"gte=0"`
	PostgresURL       string        `mapstructure:"POSTGRES_URL" validate:"required_if=CheckpointBackend postgres"`
	Sink              string        `mapstructure:"SINK" validate:"oneof=stdout redis"`
	SinkStreamMaxLen  int64         `mapstructure:"SINK_STREAM_MAXLEN" validate:"gte=0"`
	LogLevel          string        `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	ShutdownGrace     time.Duration `mapstructure:"SHUTDOWN_GRACE" validate:"gt=0"`
	CommitTimeout     time.Duration `mapstructure:"COMMIT_TIMEOUT" validate:"gt=0"`
}

var defaults = map[string]any{
	"PORT":               "8080",
	"INPUTS_FILE":        "inputs.yaml",
	"CHECKPOINT_BACKEND": "file",
	"CHECKPOINT_DIR":     "./checkpoints",
	"REDIS_ADDR":         "localhost:6379",
	"REDIS_PASSWORD":     "",
	"REDIS_DB":           0,
	"POSTGRES_URL":       "",
	"SINK":               "stdout",
	"SINK_STREAM_MAXLEN": 0,
	"LOG_LEVEL":          "info",
	"SHUTDOWN_GRACE":     "10s",
	"COMMIT_TIMEOUT":     "5s",
}

// GetConfig reads .env from the working directory and the environment
func GetConfig() (*Config, error) {
	return Load(".")
}

// Load reads .env (TOML) from dir, overlaid by environment variables.
// A missing file is fine: every key has a default.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &config, nil
}
