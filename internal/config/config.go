package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AI       AIConfig       `yaml:"ai"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	RateLimit    float64       `yaml:"rate_limit"`
	RateBurst    int           `yaml:"rate_burst"`
}

type DatabaseConfig struct {
	MySQL MySQLConfig `yaml:"mysql"`
	Redis RedisConfig `yaml:"redis"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type AIConfig struct {
	Chat  ChatConfig  `yaml:"chat"`
	Image ImageConfig `yaml:"image"`
}

type ChatConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ImageConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Size    string        `yaml:"size"`
	Timeout time.Duration `yaml:"timeout"`
}

type WorkflowConfig struct {
	SufficiencyThreshold float64 `yaml:"sufficiency_threshold"`
	ReviewDimensionMin   float64 `yaml:"review_dimension_min"`
	ReviewTotalMin       float64 `yaml:"review_total_min"`
	MaxIterations        int     `yaml:"max_iterations"`
	LevelCount           int     `yaml:"level_count"`
	MaxWorkers           int     `yaml:"max_workers"`
	ContextTurns         int     `yaml:"context_turns"`
	ContextCharBudget    int     `yaml:"context_char_budget"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply environment variable overrides
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.AI.Chat.APIKey = apiKey
		if cfg.AI.Image.APIKey == "" {
			cfg.AI.Image.APIKey = apiKey
		}
	}
	if apiKey := os.Getenv("IMAGE_API_KEY"); apiKey != "" {
		cfg.AI.Image.APIKey = apiKey
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Workflow.SufficiencyThreshold == 0 {
		c.Workflow.SufficiencyThreshold = 75
	}
	if c.Workflow.ReviewDimensionMin == 0 {
		c.Workflow.ReviewDimensionMin = 75
	}
	if c.Workflow.ReviewTotalMin == 0 {
		c.Workflow.ReviewTotalMin = 80
	}
	if c.Workflow.MaxIterations == 0 {
		c.Workflow.MaxIterations = 3
	}
	if c.Workflow.LevelCount == 0 {
		c.Workflow.LevelCount = 6
	}
	if c.Workflow.MaxWorkers == 0 {
		c.Workflow.MaxWorkers = 10
	}
	if c.Workflow.ContextTurns == 0 {
		c.Workflow.ContextTurns = 10
	}
	if c.Workflow.ContextCharBudget == 0 {
		c.Workflow.ContextCharBudget = 4000
	}
	if c.AI.Chat.Timeout == 0 {
		c.AI.Chat.Timeout = 60 * time.Second
	}
	if c.AI.Image.Timeout == 0 {
		c.AI.Image.Timeout = 120 * time.Second
	}
	if c.AI.Image.Size == "" {
		c.AI.Image.Size = "1024x1024"
	}
}
