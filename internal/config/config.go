package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "MEMODRAFT"

// Config represents runtime configuration for the service.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	AI           AIConfig           `mapstructure:"ai"`
	Workers      WorkerConfig       `mapstructure:"workers"`
	Session      SessionConfig      `mapstructure:"session"`
	ContextGuide ContextGuideConfig `mapstructure:"context_guide"`
	Upload       UploadConfig       `mapstructure:"upload"`
	Log          LogConfig          `mapstructure:"log"`
}

type ServerConfig struct {
	Address      string `mapstructure:"address"`
	SecureCookie bool   `mapstructure:"secure_cookie"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	Params   string `mapstructure:"params"`
}

// RedisConfig is optional; an empty Host disables the token cache.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AIConfig struct {
	Provider       string        `mapstructure:"provider"`
	Model          string        `mapstructure:"model"`
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	WebSearch      bool          `mapstructure:"web_search"`
	GoogleAPIKey   string        `mapstructure:"google_api_key"`
	GoogleEngineID string        `mapstructure:"google_search_engine_id"`
}

type WorkerConfig struct {
	MinWorkers  int           `mapstructure:"min_workers"`
	MaxWorkers  int           `mapstructure:"max_workers"`
	QueueSize   int           `mapstructure:"queue_size"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

type SessionConfig struct {
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
}

type ContextGuideConfig struct {
	Source  string        `mapstructure:"source"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type UploadConfig struct {
	MaxFileBytes int64 `mapstructure:"max_file_bytes"`
	MaxFiles     int   `mapstructure:"max_files"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	Production bool   `mapstructure:"production"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8090")
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "file:memodraft?mode=memory&cache=shared")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", "gemini-2.5-flash")
	v.SetDefault("ai.max_tokens", 4096)
	v.SetDefault("ai.request_timeout", 2*time.Minute)
	v.SetDefault("workers.min_workers", 2)
	v.SetDefault("workers.max_workers", 8)
	v.SetDefault("workers.queue_size", 64)
	v.SetDefault("workers.idle_timeout", 30*time.Second)
	v.SetDefault("session.idle_ttl", time.Hour)
	v.SetDefault("session.cleanup_interval", 10*time.Minute)
	v.SetDefault("session.token_ttl", 24*time.Hour)
	v.SetDefault("context_guide.source", "assets/context.md")
	v.SetDefault("context_guide.timeout", 10*time.Second)
	v.SetDefault("upload.max_file_bytes", 10<<20)
	v.SetDefault("upload.max_files", 20)
	v.SetDefault("log.level", "info")

	// keys without a real default are registered so env overrides reach Unmarshal
	for _, key := range []string{
		"server.secure_cookie",
		"database.host", "database.port", "database.username", "database.password", "database.db_name", "database.params",
		"redis.host", "redis.username", "redis.password", "redis.db",
		"ai.api_key", "ai.base_url", "ai.web_search", "ai.google_api_key", "ai.google_search_engine_id",
		"log.file", "log.production",
	} {
		v.SetDefault(key, "")
	}
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing file is not an error: defaults and MEMODRAFT_* variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if path == "" {
		path = "config.json"
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	v.SetConfigFile(absPath)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return nil, fmt.Errorf("read config %s: %w", absPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// relative guide paths resolve against the config file
	src := cfg.ContextGuide.Source
	if src != "" && !isURL(src) && !filepath.IsAbs(src) && explicit {
		cfg.ContextGuide.Source = filepath.Join(filepath.Dir(absPath), src)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3":
		if c.Database.DSN == "" {
			return errors.New("database.dsn must be configured for sqlite")
		}
	case "mysql":
		if c.Database.Host == "" && c.Database.DSN == "" {
			return errors.New("database.host or database.dsn must be configured for mysql")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.AI.Provider == "" {
		return errors.New("ai.provider must be configured")
	}
	if c.Workers.MaxWorkers < c.Workers.MinWorkers {
		c.Workers.MaxWorkers = c.Workers.MinWorkers
	}
	if c.Workers.MaxWorkers <= 0 {
		return errors.New("workers.max_workers must be positive")
	}
	return nil
}

func isURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
