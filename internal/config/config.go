// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	OpenAI    OpenAIConfig
	Memory    MemoryConfig
	Coaching  CoachingConfig
	Scheduler SchedulerConfig
}

// OpenAIConfig holds embedding and completion service configuration
type OpenAIConfig struct {
	APIKey         string        `env:"OPENAI_API_KEY"`
	BaseURL        string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	ChatModel      string        `env:"OPENAI_CHAT_MODEL" envDefault:"gpt-4o-mini"`
	EmbeddingModel string        `env:"OPENAI_EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingDims  int           `env:"OPENAI_EMBEDDING_DIMS" envDefault:"1536"`
	Timeout        time.Duration `env:"OPENAI_TIMEOUT" envDefault:"25s"`
}

// MemoryConfig holds the long-term memory service configuration.
// The memory service is advisory: missing config just disables personalization.
type MemoryConfig struct {
	BaseURL string `env:"MEMORY_BASE_URL"`
	APIKey  string `env:"MEMORY_API_KEY"`
}

// CoachingConfig holds tunable thresholds for the strategy engine.
// Defaults mirror the curated knowledge base policy; they are not a
// bit-exact contract.
type CoachingConfig struct {
	MatchThreshold         float64 `env:"COACH_MATCH_THRESHOLD" envDefault:"0.65"`
	CandidateLimit         int     `env:"COACH_CANDIDATE_LIMIT" envDefault:"15"`
	RankedLimit            int     `env:"COACH_RANKED_LIMIT" envDefault:"10"`
	EffectivenessThreshold float64 `env:"COACH_EFFECTIVENESS_THRESHOLD" envDefault:"0.5"`
	PaceTolerancePct       float64 `env:"COACH_PACE_TOLERANCE_PCT" envDefault:"2.0"`
	AdvancedDeviationPct   float64 `env:"COACH_ADVANCED_DEVIATION_PCT" envDefault:"3.0"`
	BeginnerDeviationPct   float64 `env:"COACH_BEGINNER_DEVIATION_PCT" envDefault:"15.0"`
}

// SchedulerConfig holds the coaching scheduler's timing parameters
type SchedulerConfig struct {
	DeliveryCeiling     time.Duration `env:"COACH_DELIVERY_CEILING" envDefault:"45s"`
	FeedbackFrequencyKm int           `env:"COACH_FEEDBACK_FREQUENCY_KM" envDefault:"2"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// HasOpenAI returns true if the embedding/completion service is configured
func (c *Config) HasOpenAI() bool {
	return c.OpenAI.APIKey != ""
}

// HasMemory returns true if the long-term memory service is configured
func (c *Config) HasMemory() bool {
	return c.Memory.BaseURL != "" && c.Memory.APIKey != ""
}

// Validate ensures the configuration can run the strategy pipeline
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.OpenAI.EmbeddingDims <= 0 {
		return fmt.Errorf("OPENAI_EMBEDDING_DIMS must be positive, got %d", c.OpenAI.EmbeddingDims)
	}
	if c.Scheduler.DeliveryCeiling <= c.OpenAI.Timeout {
		return fmt.Errorf("COACH_DELIVERY_CEILING (%s) must exceed OPENAI_TIMEOUT (%s)",
			c.Scheduler.DeliveryCeiling, c.OpenAI.Timeout)
	}
	return nil
}
