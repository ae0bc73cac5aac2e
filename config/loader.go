package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by the loader
const EnvPrefix = "VIZGATE_"

// LoadConfig loads configuration from multiple sources with strict priority:
// 1. Environment variables (highest priority)
// 2. Config file (config.yaml, config.yml or config.json)
// 3. Defaults (lowest priority)
func LoadConfig() (AppConfig, error) {
	return LoadConfigFromFile("")
}

// LoadConfigFromFile loads configuration with a specific config file taking the
// place of the default file lookup.
func LoadConfigFromFile(configFilePath string) (AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultAppConfig(), "koanf"), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load default config: %w", err)
	}

	if configFilePath != "" {
		if _, err := os.Stat(configFilePath); err != nil {
			return AppConfig{}, fmt.Errorf("specified config file %s not found: %w", configFilePath, err)
		}
		if err := k.Load(file.Provider(configFilePath), parserFor(configFilePath)); err != nil {
			return AppConfig{}, fmt.Errorf("failed to load config file %s: %w", configFilePath, err)
		}
	} else {
		for _, configFile := range []string{"config.yaml", "config.yml", "config.json"} {
			if _, err := os.Stat(configFile); err == nil {
				if err := k.Load(file.Provider(configFile), parserFor(configFile)); err != nil {
					return AppConfig{}, fmt.Errorf("failed to load config file %s: %w", configFile, err)
				}
				break
			}
		}
	}

	// VIZGATE_SERVER_LISTEN_ADDR maps to server.listen_addr
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func parserFor(path string) koanf.Parser {
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return yaml.Parser()
	default:
		return json.Parser()
	}
}

// validateConfig validates that required configuration fields are set
func validateConfig(cfg *AppConfig) error {
	if cfg.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	if (cfg.Server.CertFile == "") != (cfg.Server.KeyFile == "") {
		return fmt.Errorf("server.cert_file and server.key_file must be set together")
	}

	if cfg.Auth.TokenSecret == "" || cfg.Auth.TokenSecret == "change-me-token-secret" {
		return fmt.Errorf("auth.token_secret must be set and not use default value")
	}

	switch cfg.Store.Type {
	case "sqlite":
		if cfg.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite store")
		}
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres store")
		}
	case "redis":
		if cfg.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr is required for the redis store")
		}
	default:
		return fmt.Errorf("store.type must be sqlite, postgres or redis, got %q", cfg.Store.Type)
	}

	if cfg.Files.BaseDir == "" {
		return fmt.Errorf("files.base_dir is required")
	}

	if cfg.Files.CompressQuality < 1 || cfg.Files.CompressQuality > 100 {
		return fmt.Errorf("files.compress_quality must be between 1 and 100")
	}

	if cfg.Limiter.RequestsPerSecond <= 0 || cfg.Limiter.Burst <= 0 {
		return fmt.Errorf("limiter.requests_per_second and limiter.burst must be positive")
	}

	return nil
}
