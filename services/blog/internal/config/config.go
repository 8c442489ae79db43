package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// Store drivers.
const (
	DriverDynamoDB = "dynamodb"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	StoreDriver        string `yaml:"storeDriver"`
	DatabaseURL        string `yaml:"databaseURL"`
	DynamoEndpoint     string `yaml:"dynamoEndpoint"`
	DynamoRegion       string `yaml:"dynamoRegion"`
	DynamoTable        string `yaml:"dynamoTable"`
	AWSAccessKeyID     string `yaml:"awsAccessKeyId"`
	AWSSecretAccessKey string `yaml:"awsSecretAccessKey"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	CacheTTL     time.Duration `yaml:"cacheTTL"`
	StoreTimeout time.Duration `yaml:"storeTimeout"`
	CacheTimeout time.Duration `yaml:"cacheTimeout"`

	JWTSecret  string        `yaml:"jwtSecret"`
	JWTIssuer  string        `yaml:"jwtIssuer"`
	SessionTTL time.Duration `yaml:"sessionTTL"`

	TrustedProxies           []string `yaml:"trustedProxies"`
	SignupRateLimitPerMinute int      `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute  int      `yaml:"loginRateLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml), applies
// environment overrides and defaults, then validates.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	overrides := []struct {
		env string
		dst *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"DYNAMODB_ENDPOINT", &cfg.DynamoEndpoint},
		{"AWS_REGION", &cfg.DynamoRegion},
		{"AWS_ACCESS_KEY_ID", &cfg.AWSAccessKeyID},
		{"AWS_SECRET_ACCESS_KEY", &cfg.AWSSecretAccessKey},
		{"REDIS_ADDR", &cfg.RedisAddr},
		{"REDIS_PASSWORD", &cfg.RedisPassword},
		{"JWT_SECRET", &cfg.JWTSecret},
		{"BLOG_STORE_DRIVER", &cfg.StoreDriver},
		{"LOG_LEVEL", &cfg.LogLevel},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}
	if v := os.Getenv("BLOG_CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: BLOG_CACHE_TTL: %w", err)
		}
		cfg.CacheTTL = ttl
	}
	return nil
}

func applyDefaults(cfg *FileConfig) {
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = DriverDynamoDB
	}
	if cfg.DynamoEndpoint == "" {
		cfg.DynamoEndpoint = "http://localhost:8000"
	}
	if cfg.DynamoRegion == "" {
		cfg.DynamoRegion = "us-west-2"
	}
	if cfg.DynamoTable == "" {
		cfg.DynamoTable = "BlogApp"
	}
	if cfg.AWSAccessKeyID == "" && cfg.AWSSecretAccessKey == "" {
		cfg.AWSAccessKeyID = "fake"
		cfg.AWSSecretAccessKey = "fake"
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.CacheTimeout == 0 {
		cfg.CacheTimeout = time.Second
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = time.Hour
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.StoreDriver {
	case DriverDynamoDB:
		if cfg.DynamoTable == "" {
			return errors.New("config: dynamoTable is required for the dynamodb driver")
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres driver (set in config.yaml or DATABASE_URL)")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown storeDriver %q (want dynamodb, postgres or memory)", cfg.StoreDriver)
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or JWT_SECRET)")
	}
	if cfg.CacheTTL < 0 || cfg.StoreTimeout < 0 || cfg.CacheTimeout < 0 || cfg.SessionTTL < 0 {
		return errors.New("config: durations must not be negative")
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must not be negative")
	}
	return nil
}
