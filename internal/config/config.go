package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		// TTL bounds how long a question pool is cached.
		TTL string `yaml:"ttl"`
		// SessionTTL is how long an idle session survives before the janitor drops it.
		SessionTTL   string `yaml:"session_ttl"`
		MaxQuestions int    `yaml:"max_questions"`
	} `yaml:"quiz"`
	Trivia struct {
		BaseURL  string `yaml:"base_url"`
		PoolSize int    `yaml:"pool_size"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"trivia"`
	Retry struct {
		MaxAttempts     int    `yaml:"max_attempts"`
		InitialInterval string `yaml:"initial_interval"`
		MaxInterval     string `yaml:"max_interval"`
	} `yaml:"retry"`
	Catalog struct {
		Path string `yaml:"path"`
	} `yaml:"catalog"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads YAML config from path, then applies environment overrides. A .env file in
// the working directory is loaded first when present.
func Load(path string) (Config, error) {
	cfg := Config{}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("TRIVIA_BASE_URL"); v != "" {
		c.Trivia.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		c.Redis.DB = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Trivia.BaseURL == "" {
		c.Trivia.BaseURL = "https://opentdb.com"
	}
	if c.Trivia.PoolSize == 0 {
		c.Trivia.PoolSize = 15
	}
	if c.Quiz.MaxQuestions == 0 {
		c.Quiz.MaxQuestions = 50
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Trivia.PoolSize < 1 || c.Trivia.PoolSize > 50 {
		errs = append(errs, fmt.Errorf("trivia.pool_size must be between 1 and 50, got %d", c.Trivia.PoolSize))
	}
	if c.Quiz.MaxQuestions < 1 {
		errs = append(errs, fmt.Errorf("quiz.max_questions must be positive, got %d", c.Quiz.MaxQuestions))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts))
	}
	for name, raw := range map[string]string{
		"redis.ttl":              c.Redis.TTL,
		"quiz.ttl":               c.Quiz.TTL,
		"quiz.session_ttl":       c.Quiz.SessionTTL,
		"trivia.timeout":         c.Trivia.Timeout,
		"retry.initial_interval": c.Retry.InitialInterval,
		"retry.max_interval":     c.Retry.MaxInterval,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
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
