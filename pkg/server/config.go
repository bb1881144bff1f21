package server

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds server configuration. Values come from defaults, then an
// optional YAML file, then TEXTMOOR_* environment variables, last one wins.
type Config struct {
	WorldName string `yaml:"world_name" envconfig:"WORLD_NAME"`
	Port      int    `yaml:"port" envconfig:"PORT"`
	WebPort   int    `yaml:"web_port" envconfig:"WEB_PORT"`

	// StoreBackend selects the persistence engine: "bolt" or "redis".
	StoreBackend  string `yaml:"store_backend" envconfig:"STORE_BACKEND"`
	BoltPath      string `yaml:"bolt_path" envconfig:"BOLT_PATH"`
	RedisAddr     string `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" envconfig:"REDIS_DB"`
	RedisPoolSize int    `yaml:"redis_pool_size" envconfig:"REDIS_POOL_SIZE"`

	StoreTimeoutSeconds int `yaml:"store_timeout_seconds" envconfig:"STORE_TIMEOUT_SECONDS"`
	CASRetries          int `yaml:"cas_retries" envconfig:"CAS_RETRIES"`
	IdleTimeoutSeconds  int `yaml:"idle_timeout_seconds" envconfig:"IDLE_TIMEOUT_SECONDS"`

	// JWTSecret signs websocket session tokens. Empty means a random key
	// is generated at boot, invalidating tokens across restarts.
	JWTSecret        string `yaml:"jwt_secret" envconfig:"JWT_SECRET"`
	JWTExpirySeconds int    `yaml:"jwt_expiry_seconds" envconfig:"JWT_EXPIRY_SECONDS"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WorldName:           "textmoor",
		Port:                4000,
		WebPort:             4080,
		StoreBackend:        "bolt",
		BoltPath:            "textmoor.db",
		RedisAddr:           "localhost:6379",
		RedisPoolSize:       10,
		StoreTimeoutSeconds: 5,
		CASRetries:          3,
		IdleTimeoutSeconds:  3600,
		JWTExpirySeconds:    86400,
	}
}

// LoadConfig builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty), then TEXTMOOR_* environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := envconfig.Process("textmoor", &cfg); err != nil {
		return cfg, fmt.Errorf("config: environment: %w", err)
	}

	switch cfg.StoreBackend {
	case "bolt", "redis":
	default:
		return cfg, fmt.Errorf("config: unknown store backend %q (want bolt or redis)", cfg.StoreBackend)
	}
	return cfg, nil
}
