// Package embeddings provides embedding generation via a TEI-compatible
// HTTP service.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Client converts text into fixed-dimension vectors. Failures propagate;
// callers decide whether to degrade.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds configuration for the embedding service.
type Config struct {
	// BaseURL is the base URL for the embedding API.
	BaseURL string

	// Model is the embedding model to use.
	Model string
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return nil
}

// Service provides embedding generation over HTTP.
type Service struct {
	config Config
	client *http.Client
}

// NewService creates a new embedding service with the given configuration.
func NewService(config Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &Service{
		config: config,
		client: &http.Client{},
	}, nil
}

// teiRequest is the request body for the TEI embed endpoint.
type teiRequest struct {
	Inputs   interface{} `json:"inputs"`
	Truncate bool        `json:"truncate"`
}

// Embed generates an embedding for a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	vectors, err := s.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	return s.embed(ctx, texts)
}

func (s *Service) embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := teiRequest{
		Inputs:   texts,
		Truncate: true,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.Unmarshal(respBody, &vectors); err != nil {
		return nil, fmt.Errorf("%w: parsing response: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

var _ Client = (*Service)(nil)
