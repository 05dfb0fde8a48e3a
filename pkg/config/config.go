package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fishlens/fishlens/pkg/engine"
	"github.com/fishlens/fishlens/pkg/models"
)

// Config holds all fishlens configuration.
type Config struct {
	DBPath         string             `yaml:"db_path"`
	Persist        bool               `yaml:"persist"`
	VocabularyPath string             `yaml:"vocabulary_path"`
	Engine         EngineConfig       `yaml:"engine"`
	Model          ModelConfig        `yaml:"model"`
	Audit          models.AuditConfig `yaml:"audit"`
}

// EngineConfig sizes the result cache and similarity search.
type EngineConfig struct {
	CacheCapacity       int   `yaml:"cache_capacity"`
	SimilarityThreshold int   `yaml:"similarity_threshold"`
	TTLSeconds          int64 `yaml:"ttl_seconds"`
}

// ModelConfig describes the external command that analyzes an image.
// The image is written to its stdin and stdout is the raw result.
type ModelConfig struct {
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// TTL returns the entry lifetime; zero means entries never expire.
func (e EngineConfig) TTL() time.Duration {
	return time.Duration(e.TTLSeconds) * time.Second
}

// EngineConfig converts the engine section for engine.New.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		CacheCapacity:       c.Engine.CacheCapacity,
		SimilarityThreshold: c.Engine.SimilarityThreshold,
		TTL:                 c.Engine.TTL(),
	}
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	def := engine.DefaultConfig()
	return &Config{
		DBPath:  "fishlens.db",
		Persist: true,
		Engine: EngineConfig{
			CacheCapacity:       def.CacheCapacity,
			SimilarityThreshold: def.SimilarityThreshold,
		},
		Model: ModelConfig{
			Timeout: 2 * time.Minute,
		},
		Audit: models.AuditConfig{
			Enabled:       false,
			DBPath:        "fishlens_audit.db",
			RetentionDays: 30,
			MaxRawSize:    64 * 1024,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Engine.CacheCapacity <= 0 {
		return fmt.Errorf("config: engine.cache_capacity must be positive, got %d", c.Engine.CacheCapacity)
	}
	if c.Engine.SimilarityThreshold < 0 || c.Engine.SimilarityThreshold > models.FingerprintBits {
		return fmt.Errorf("config: engine.similarity_threshold must be within 0..%d, got %d",
			models.FingerprintBits, c.Engine.SimilarityThreshold)
	}
	if c.Engine.TTLSeconds < 0 {
		return fmt.Errorf("config: engine.ttl_seconds must not be negative, got %d", c.Engine.TTLSeconds)
	}
	return nil
}
