// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	Provider     string        `yaml:"provider"` // backend | openai | gemini | noop
	BackendURL   string        `yaml:"backend_url"`
	BackendKey   string        `yaml:"backend_key"`
	OpenAIKey    string        `yaml:"openai_key"`
	GeminiKey    string        `yaml:"gemini_key"`
	GeminiURL    string        `yaml:"gemini_url"`
	DefaultModel string        `yaml:"default_model"`
	MaxOutTokens int           `yaml:"max_out_tokens"`
	TurnTimeout  time.Duration `yaml:"turn_timeout"`
}

type ChatConfig struct {
	RateLimitPerMin int `yaml:"rate_limit_per_min"`
	RetentionDays   int `yaml:"retention_days"`
	HistoryLimit    int `yaml:"history_limit"`
}

type StorageConfig struct {
	UploadDir      string `yaml:"upload_dir"`
	MaxUploadMB    int64  `yaml:"max_upload_mb"`
	ExtractWorkers int    `yaml:"extract_workers"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	AdminKey   string        `yaml:"admin_key"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	Secure     bool          `yaml:"secure"`
	Domain     string        `yaml:"domain"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Chat     ChatConfig     `yaml:"chat"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`
	Security SecurityConfig `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file, applies defaults and env overrides, and
// validates the handful of required fields.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Secrets come from the deployment's vault; env overrides mirror the
	// provisioned entry names.
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.AI.OpenAIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.AI.GeminiKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("STORAGE_CONNECTION_STRING"); v != "" {
		cfg.Storage.UploadDir = v
	}

	// defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "backend"
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.MaxOutTokens <= 0 {
		cfg.AI.MaxOutTokens = 2048
	}
	if cfg.AI.TurnTimeout <= 0 {
		cfg.AI.TurnTimeout = 2 * time.Minute
	}
	if cfg.Chat.RateLimitPerMin <= 0 {
		cfg.Chat.RateLimitPerMin = 20
	}
	if cfg.Chat.RetentionDays <= 0 {
		cfg.Chat.RetentionDays = 90
	}
	if cfg.Chat.HistoryLimit <= 0 {
		cfg.Chat.HistoryLimit = 200
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "./uploads"
	}
	if cfg.Storage.MaxUploadMB <= 0 {
		cfg.Storage.MaxUploadMB = 25
	}
	if cfg.Storage.ExtractWorkers <= 0 {
		cfg.Storage.ExtractWorkers = 4
	}
	if cfg.Auth.SessionTTL <= 0 {
		cfg.Auth.SessionTTL = 12 * time.Hour
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Auth.JWTSecret == "" && !dev {
		return nil, errors.New("auth.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
