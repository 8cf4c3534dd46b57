package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables overriding the model section.
const (
	EnvAPIKey    = "API_KEY"
	EnvAPIBase   = "API_BASE"
	EnvModelName = "MODEL_NAME"
)

// LoadEnv loads .env files into the process environment. Without paths it
// looks for .env in the working directory. Missing files are skipped and
// variables that are already set are not overwritten.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}

	return nil
}

// ApplyEnv overrides the model section with API_KEY, API_BASE and
// MODEL_NAME when they are set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Model.APIKey = v
	}
	if v := os.Getenv(EnvAPIBase); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv(EnvModelName); v != "" {
		c.Model.Name = v
	}
}
