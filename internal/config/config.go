// Package config provides configuration loading for reviewd.
//
// Configuration is loaded from a YAML file, then overridden by
// environment variables. Every section carries defaults so an empty
// config is usable for local development.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/reviewd/internal/logging"
)

// Config holds the complete reviewd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    logging.Config   `koanf:"logging"`
	LLM        LLMConfig        `koanf:"llm"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Vector     VectorConfig     `koanf:"vector"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LLMConfig holds the structured-generation client configuration.
type LLMConfig struct {
	BaseURL    string  `koanf:"base_url"`
	APIKey     string  `koanf:"api_key"`
	Model      string  `koanf:"model"`
	TimeoutSec int     `koanf:"timeout_sec"`
	RateLimit  float64 `koanf:"rate_limit"`
	MaxRetries int     `koanf:"max_retries"`
}

// EmbeddingsConfig holds the embedding service configuration.
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

// VectorConfig holds the embedded vector store configuration.
type VectorConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

// RetrievalConfig holds retriever defaults.
type RetrievalConfig struct {
	TopK       int     `koanf:"top_k"`
	MinScore   float64 `koanf:"min_score"`
	NumQueries int     `koanf:"num_queries"`
	MaxChunks  int     `koanf:"max_chunks"`
}

// PipelineConfig holds pipeline engine pacing knobs.
type PipelineConfig struct {
	// StageDelay is the fixed pause between marking a stage running and
	// invoking its runner, so pollers observe the transition.
	StageDelay time.Duration `koanf:"stage_delay"`

	// StreamDelay is the pause between streamed per-issue writes.
	StreamDelay time.Duration `koanf:"stream_delay"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9180
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	c.Logging.ApplyDefaults()
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.anthropic.com"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "claude-sonnet-4-20250514"
	}
	if c.LLM.TimeoutSec == 0 {
		c.LLM.TimeoutSec = 120
	}
	if c.LLM.RateLimit == 0 {
		c.LLM.RateLimit = 2
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = "http://localhost:8080"
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if c.Vector.Path == "" {
		c.Vector.Path = "~/.config/reviewd/vectorstore"
	}
	if c.Vector.Collection == "" {
		c.Vector.Collection = "reviewd_reference"
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.MinScore == 0 {
		c.Retrieval.MinScore = 0.3
	}
	if c.Retrieval.NumQueries == 0 {
		c.Retrieval.NumQueries = 3
	}
	if c.Retrieval.MaxChunks == 0 {
		c.Retrieval.MaxChunks = 8
	}
	if c.Pipeline.StageDelay == 0 {
		c.Pipeline.StageDelay = 500 * time.Millisecond
	}
	if c.Pipeline.StreamDelay == 0 {
		c.Pipeline.StreamDelay = 200 * time.Millisecond
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return fmt.Errorf("retrieval min_score must be in [0,1], got %v", c.Retrieval.MinScore)
	}
	return nil
}
