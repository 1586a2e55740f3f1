package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dgallion1/docrank/internal/chunker"
		"github.com/dgallion1/docrank/internal/retry"
	"github.com/dgallion1/docrank/internal/stats"
)

// OpenAIEmbedder calls any OpenAI-compatible /v1/embeddings endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	maxTokens int
	retry     retry.Policy
	stats     *stats.LatencyStats
	log       *slog.Logger
}

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// MaxTokens clips input text to roughly this many tokens.
	MaxTokens int
	Timeout   time.Duration
}

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig, latency *stats.LatencyStats, log *slog.Logger) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("embedder api key not set")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(oc),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		retry:     retry.Default,
		stats:     latency,
		log:       log,
	}, nil
}

// Embed generates an L2-normalized embedding for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.maxTokens > 0 {
		text = chunker.Clip(text, e.maxTokens)
	}
	if len(text) == 0 {
		return nil, errors.New("cannot embed empty text")
	}

	var resp openai.EmbeddingResponse
	err := e.retry.Do(ctx, e.log, "embed", func(ctx context.Context) error {
		start := time.Now()
		var callErr error
		resp, callErr = e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.model),
			Input: []string{text},
		})
		if e.stats != nil {
			e.stats.Observe(time.Since(start), callErr)
		}
		return classifyAPIError(callErr)
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings api: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned from api")
	}

	v := make([]float32, len(resp.Data[0].Embedding))
	copy(v, resp.Data[0].Embedding)
	l2normalize(v)
	return v, nil
}

// classifyAPIError marks rate limits and server errors as retryable.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusTooManyRequests || status >= 500 {
		return &retry.RetryableError{StatusCode: status, Message: err.Error()}
	}
	return err
}

// ModelInfo returns model information.
func (e *OpenAIEmbedder) ModelInfo() string {
	return "openai-" + e.model
}
