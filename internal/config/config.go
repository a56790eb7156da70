package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultModel        = "gemini-2.0-flash"
	DefaultServerAddr   = "127.0.0.1:8787"
	DefaultLogPath      = "logs/study-companion.log"
	DefaultMaxFileBytes = 20 * 1024 * 1024

	APIKeyEnv = "GEMINI_API_KEY"
)

type Config struct {
	Oracle struct {
		Model       string  `yaml:"model" validate:"required"`
		APIKey      string  `yaml:"-"`
		Timeout     string  `yaml:"timeout"`
		MaxRetries  int     `yaml:"max_retries" validate:"min=0,max=10"`
		Temperature float32 `yaml:"temperature" validate:"min=0,max=2"`
	} `yaml:"oracle"`
	Cache struct {
		Backend string `yaml:"backend" validate:"oneof=none memory redis"`
		TTL     string `yaml:"ttl"`
	} `yaml:"cache"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Log struct {
		Path    string `yaml:"path"`
		Level   string `yaml:"level" validate:"oneof=debug info warn error"`
		Console bool   `yaml:"console"`
	} `yaml:"log"`
	Ingest struct {
		MaxFileBytes int64 `yaml:"max_file_bytes"`
	} `yaml:"ingest"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadEnv loads a dotenv file into the process environment. A missing file is
// not an error; variables already set win over the file.
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Load reads YAML config from path. A missing file yields defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}
	cfg.Oracle.APIKey = strings.TrimSpace(os.Getenv(APIKeyEnv))
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Oracle.Model == "" {
		c.Oracle.Model = DefaultModel
	}
	if c.Oracle.MaxRetries < 0 {
		c.Oracle.MaxRetries = 0
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.Backend == "redis" && c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Log.Path == "" {
		c.Log.Path = DefaultLogPath
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Ingest.MaxFileBytes <= 0 {
		c.Ingest.MaxFileBytes = DefaultMaxFileBytes
	}
}

// Validate checks enumerated and bounded settings.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// OracleTimeout is the per-attempt deadline for oracle calls.
func (c Config) OracleTimeout() time.Duration {
	return TTLDuration(c.Oracle.Timeout, 90*time.Second)
}

// CacheTTL is how long generated responses stay cached.
func (c Config) CacheTTL() time.Duration {
	return TTLDuration(c.Cache.TTL, 30*time.Minute)
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
