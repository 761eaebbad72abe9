// Package config loads server configuration: defaults, then an optional YAML
// file, then LARDER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/mmynk/larder/internal/storage"
)

// Config is the server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port" validate:"gt=0,lte=65535"`
}

type StorageConfig struct {
	Driver       string `yaml:"driver" validate:"oneof=sqlite memory"`
	Path         string `yaml:"path" validate:"required_if=Driver sqlite"`
	MaxBatchSize int    `yaml:"max_batch_size" validate:"gt=0"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" validate:"required,min=16"`
	TokenTTL  time.Duration `yaml:"token_ttl" validate:"gt=0"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server:  ServerConfig{Port: 8080},
		Storage: StorageConfig{Driver: "sqlite", Path: "./data/larder.db", MaxBatchSize: storage.DefaultMaxBatchSize},
		Auth:    AuthConfig{TokenTTL: 24 * time.Hour},
		Log:     LogConfig{Level: "info"},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read the config file %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return cfg, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	if v, ok := lookup("LARDER_PORT"); ok {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr("LARDER_PORT", err))
		cfg.Server.Port = n
	}
	if v, ok := lookup("LARDER_STORAGE_DRIVER"); ok {
		cfg.Storage.Driver = v
	}
	if v, ok := lookup("LARDER_DB_PATH"); ok {
		cfg.Storage.Path = v
	}
	if v, ok := lookup("LARDER_MAX_BATCH_SIZE"); ok {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr("LARDER_MAX_BATCH_SIZE", err))
		cfg.Storage.MaxBatchSize = n
	}
	if v, ok := lookup("LARDER_JWT_SECRET"); ok {
		cfg.Auth.JWTSecret = v
	}
	if v, ok := lookup("LARDER_TOKEN_TTL"); ok {
		d, err := time.ParseDuration(v)
		errs = append(errs, envErr("LARDER_TOKEN_TTL", err))
		cfg.Auth.TokenTTL = d
	}
	if v, ok := lookup("LARDER_LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	return errors.Join(errs...)
}

func envErr(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", key, err)
}
