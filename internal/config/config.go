package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultProvider    = "gemini"
	DefaultModel       = "gemini-2.0-flash"
	DefaultTemperature = 0.1
	DefaultTimeout     = 120 * time.Second
	DefaultBatchSize   = 10
	DefaultMaxRounds   = 2
	DefaultDBPath      = "plandoc.db"
	DefaultOutputDir   = "generated"
	DefaultAddr        = ":8080"
	DefaultLogLevel    = "info"
)

type Config struct {
	Template struct {
		Path          string `yaml:"path"`
		ReferencePath string `yaml:"reference_path"` // optional sample document
	} `yaml:"template"`
	AI struct {
		Provider    string        `yaml:"provider"`
		Model       string        `yaml:"model"`
		APIKey      string        `yaml:"api_key"`
		BaseURL     string        `yaml:"base_url"` // endpoint override
		Temperature *float64      `yaml:"temperature"` // nil means default; 0 is valid
		Timeout     time.Duration `yaml:"timeout"` // per provider call
	} `yaml:"ai"`
	Generation struct {
		BatchSize int `yaml:"batch_size"`
		MaxRounds int `yaml:"max_rounds"`
	} `yaml:"generation"`
	Storage struct {
		DBPath    string `yaml:"db_path"`
		OutputDir string `yaml:"output_dir"`
	} `yaml:"storage"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	// 2. Load YAML config; a missing file means defaults
	var cfg Config
	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	// 3. Override with Environment Variables if present
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if apiKey := firstEnv("PLANDOC_API_KEY", "GEMINI_API_KEY"); apiKey != "" {
		c.AI.APIKey = apiKey
	}
	if provider := os.Getenv("PLANDOC_AI_PROVIDER"); provider != "" {
		c.AI.Provider = provider
	}
	if model := firstEnv("PLANDOC_MODEL", "MODEL_NAME"); model != "" {
		c.AI.Model = model
	}
	if tmpl := os.Getenv("PLANDOC_TEMPLATE"); tmpl != "" {
		c.Template.Path = tmpl
	}
	if ref := os.Getenv("PLANDOC_REFERENCE"); ref != "" {
		c.Template.ReferencePath = ref
	}
	if db := os.Getenv("PLANDOC_DB"); db != "" {
		c.Storage.DBPath = db
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.AI.Provider) == "" {
		c.AI.Provider = DefaultProvider
	}
	if strings.TrimSpace(c.AI.Model) == "" {
		c.AI.Model = DefaultModel
	}
	if c.AI.Temperature == nil {
		t := DefaultTemperature
		c.AI.Temperature = &t
	}
	if c.AI.Timeout <= 0 {
		c.AI.Timeout = DefaultTimeout
	}
	if c.Generation.BatchSize <= 0 {
		c.Generation.BatchSize = DefaultBatchSize
	}
	if c.Generation.MaxRounds <= 0 {
		c.Generation.MaxRounds = DefaultMaxRounds
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = DefaultDBPath
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = DefaultOutputDir
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(os.Getenv(n)); v != "" {
			return v
		}
	}
	return ""
}
