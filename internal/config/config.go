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

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"` // empty disables the bearer guard
	// RatePerMinute caps message submissions per client; 0 disables.
	RatePerMinute int `yaml:"rate_per_minute"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // terminal job cache TTL
}

type AIConfig struct {
	OpenAIKey     string `yaml:"openai_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"` // any OpenAI-compatible gateway
	GeminiKey     string `yaml:"gemini_key"`
	GeminiURL     string `yaml:"gemini_url"`
	DefaultModel  string `yaml:"default_model"`
	MaxOutTokens  int    `yaml:"max_out_tokens"`
	// ConcurrentLimit bounds in-flight AI calls across all workers.
	ConcurrentLimit int `yaml:"concurrent_limit"`
}

type WorkerConfig struct {
	Count        int           `yaml:"count"`
	PollInterval time.Duration `yaml:"poll_interval"`
	// JobTimeout is how long a job may stay running before the reaper
	// intervenes: one requeue, then failure.
	JobTimeout   time.Duration `yaml:"job_timeout"`
	ReapInterval time.Duration `yaml:"reap_interval"`
}

type InterviewConfig struct {
	// OpeningQuestion seeds interviews created without an explicit one.
	OpeningQuestion string `yaml:"opening_question"`
}

type Config struct {
	Runtime   RuntimeConfig   `yaml:"-"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	AI        AIConfig        `yaml:"ai"`
	Worker    WorkerConfig    `yaml:"worker"`
	Interview InterviewConfig `yaml:"interview"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = time.Hour
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o-mini"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.Worker.Count <= 0 {
		cfg.Worker.Count = 4
	}
	if cfg.Worker.PollInterval <= 0 {
		cfg.Worker.PollInterval = 500 * time.Millisecond
	}
	if cfg.Worker.JobTimeout <= 0 {
		cfg.Worker.JobTimeout = 2 * time.Minute
	}
	if cfg.Worker.ReapInterval <= 0 {
		cfg.Worker.ReapInterval = 30 * time.Second
	}
	if cfg.Interview.OpeningQuestion == "" {
		cfg.Interview.OpeningQuestion = "Tell me about yourself and your background."
	}

	// Minimal validation; dev mode runs on the in-memory store without
	// Postgres/Redis, so only enforce infra URLs outside it.
	if !dev {
		if cfg.Database.URL == "" {
			return nil, errors.New("database.url is required")
		}
		if cfg.AI.OpenAIKey == "" && cfg.AI.GeminiKey == "" {
			return nil, errors.New("ai.openai_key or ai.gemini_key is required")
		}
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
