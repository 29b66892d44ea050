package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL     = "https://api.anthropic.com"
	defaultModel       = "claude-sonnet-4-20250514"
	defaultMaxTokens   = 4096
	defaultTimeout     = 120 * time.Second
	defaultRateLimit   = 2 // requests per second
	defaultBurst       = 4
	defaultMaxRetries  = 3
	defaultBaseBackoff = 500 * time.Millisecond
)

// Config holds configuration for the Anthropic client.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	RateLimit  float64
	MaxRetries int

	// Metrics instruments calls when non-nil.
	Metrics *Metrics
}

// AnthropicClient implements Client against the Anthropic messages API.
type AnthropicClient struct {
	model      string
	apiKey     string `json:"-"` // Never serialize API keys
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	metrics    *Metrics
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(cfg Config) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	limit := cfg.RateLimit
	if limit == 0 {
		limit = defaultRateLimit
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	return &AnthropicClient{
		model:      model,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(limit), defaultBurst),
		maxRetries: maxRetries,
		metrics:    cfg.Metrics,
	}, nil
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

type anthropicError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// retryableError marks transient transport failures worth retrying.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Generate returns the model's free-text completion for the prompt pair.
func (a *AnthropicClient) Generate(ctx context.Context, system, user string, opts Options) (string, error) {
	start := time.Now()
	text, err := a.generate(ctx, system, user, opts)
	a.metrics.CallObserved(err, time.Since(start))
	return text, err
}

func (a *AnthropicClient) generate(ctx context.Context, system, user string, opts Options) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = a.model
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	req := anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		System:      system,
		Messages:    []anthropicMessage{{Role: "user", Content: user}},
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		response, err := a.doRequest(ctx, req)
		if err == nil {
			return response, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return "", fmt.Errorf("%w: %v", ErrGeneration, err)
		}
	}

	return "", fmt.Errorf("%w: max retries exceeded: %v", ErrGeneration, lastErr)
}

// GenerateStructured generates a completion and decodes it as JSON into out.
func (a *AnthropicClient) GenerateStructured(ctx context.Context, system, user string, opts Options, out any) error {
	text, err := a.Generate(ctx, system, user, opts)
	if err != nil {
		return err
	}
	return DecodeStructured(text, out)
}

// DecodeStructured decodes model output as JSON into out, stripping a
// markdown code fence if the model wrapped its answer in one.
func DecodeStructured(text string, out any) error {
	cleaned := stripCodeFence(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return &MalformedOutputError{Raw: text, Err: err}
	}
	return nil
}

// stripCodeFence removes a leading/trailing ```json fence.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

// doRequest performs the actual HTTP request to the messages API.
func (a *AnthropicClient) doRequest(ctx context.Context, req anthropicRequest) (string, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", a.apiKey)
	httpReq.Header.Set("Anthropic-Version", "2023-06-01")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return "", &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp anthropicError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var msgResp anthropicResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(msgResp.Content) == 0 {
		return "", fmt.Errorf("empty response from API")
	}
	return msgResp.Content[0].Text, nil
}

var _ Client = (*AnthropicClient)(nil)
