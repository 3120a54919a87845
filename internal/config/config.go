package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	API     APIConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "console" or "json"
}

type APIConfig struct {
	Token       string
	CatalogPath string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		API: APIConfig{
			CatalogPath: "curator.yaml",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".curator"
	}
	return filepath.Join(home, ".curator")
}

// Load reads configuration from environment variables over built-in defaults.
//
// Recognized variables: CURATOR_PORT, CURATOR_DATA_DIR, CURATOR_LOG_LEVEL,
// CURATOR_LOG_FORMAT, CURATOR_API_TOKEN, CURATOR_CONFIG.
func Load() (Config, error) {
	cfg := defaults()

	if v := os.Getenv("CURATOR_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parsing CURATOR_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("CURATOR_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("CURATOR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CURATOR_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("CURATOR_API_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("CURATOR_CONFIG"); v != "" {
		cfg.API.CatalogPath = v
	}

	return cfg, nil
}
