package config

// loader.go - configuration loading from the environment.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Process environment
//   3. .env file  (godotenv never overrides variables already set)
//   4. Defaults   (struct tags, defaults.go)

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	sserr "sshmcp/internal/errors"
)

// Load reads envFile (when non-empty) or ./.env (when present) into the
// process environment and then decodes every variable into a Config.
// A missing ./.env is not an error; a missing explicit envFile is.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, &sserr.ConfigError{
				Field: "env-file", Value: envFile,
				Message: err.Error(),
			}
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &sserr.ConfigError{Field: "env-file", Value: ".env", Message: err.Error()}
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, &sserr.ConfigError{Field: "env", Message: err.Error()}
	}
	if cfg.KnownHostsPath == "" {
		cfg.KnownHostsPath = DefaultKnownHostsPath()
	} else {
		cfg.KnownHostsPath = ExpandHome(cfg.KnownHostsPath)
	}
	return cfg, nil
}
