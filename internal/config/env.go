package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig    = "ORDERDESK_CONFIG"
	EnvAPIURL    = "ORDERDESK_API_URL"
	EnvTokenPath = "ORDERDESK_TOKEN_PATH"
)

// DotEnvFile is read from the working directory before the environment.
const DotEnvFile = ".env"

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // ORDERDESK_CONFIG: config file path
	APIURL     string // ORDERDESK_API_URL: service base URL
	TokenPath  string // ORDERDESK_TOKEN_PATH: token file path
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("loading %s: %w", path, err)
	}

	return nil
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides(logger *slog.Logger) EnvOverrides {
	o := EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		APIURL:     os.Getenv(EnvAPIURL),
		TokenPath:  os.Getenv(EnvTokenPath),
	}

	if logger != nil {
		logger.Debug("environment overrides",
			slog.String("config", o.ConfigPath),
			slog.String("api_url", o.APIURL),
			slog.String("token_path", o.TokenPath),
		)
	}

	return o
}
