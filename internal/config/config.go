package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TokenStoreDriver selects where the access token is persisted.
type TokenStoreDriver string

const (
	TokenStoreSQLite TokenStoreDriver = "sqlite"
	TokenStoreFile   TokenStoreDriver = "file"
	TokenStoreMemory TokenStoreDriver = "memory"
)

// Config holds the client configuration
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	TokenStore TokenStoreConfig `mapstructure:"token_store"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// APIConfig points at the orchestrator
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TokenStoreConfig holds the durable token storage settings
type TokenStoreConfig struct {
	Driver TokenStoreDriver `mapstructure:"driver"`
	Path   string           `mapstructure:"path"`
}

// UploadConfig holds the document upload policy
type UploadConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig enables the optional scrape endpoint
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

const envPrefix = "LOANCHAT"

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	v.SetDefault("api.base_url", "http://localhost:8000/api/v1")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("token_store.driver", string(TokenStoreSQLite))
	v.SetDefault("token_store.path", filepath.Join(home, ".loanchat", "token.db"))
	v.SetDefault("upload.max_bytes", int64(5<<20))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.listen", "")
}

// Load loads the configuration from config.yaml (or $CONFIG_PATH), with
// LOANCHAT_* environment overrides. A missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".loanchat"))
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	config.API.BaseURL = strings.TrimRight(config.API.BaseURL, "/")

	return &config, nil
}
