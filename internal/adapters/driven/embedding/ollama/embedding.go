// Package ollama embeds text with a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultModel      = "nomic-embed-text"
	DefaultTimeout    = 30 * time.Second
	DefaultDimensions = 768
	DefaultMaxBatch   = 32
)

// Config configures the Ollama client. Zero fields take the defaults above.
type Config struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Dimensions int

	// MaxBatch caps the inputs sent in one /api/embed request.
	MaxBatch int
}

// EmbeddingService calls Ollama's /api/embed endpoint.
type EmbeddingService struct {
	client     *http.Client
	baseURL    string
	model      string
	dimensions int
	maxBatch   int
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

type showRequest struct {
	Model string `json:"model"`
}

// NewEmbeddingService creates a client for cfg.
func NewEmbeddingService(cfg Config) *EmbeddingService {
	s := &EmbeddingService{
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxBatch:   cfg.MaxBatch,
	}
	if s.baseURL == "" {
		s.baseURL = DefaultBaseURL
	}
	if s.model == "" {
		s.model = DefaultModel
	}
	if s.dimensions <= 0 {
		s.dimensions = DefaultDimensions
	}
	if s.maxBatch <= 0 {
		s.maxBatch = DefaultMaxBatch
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	s.client = &http.Client{Timeout: timeout}
	return s
}

// Embed returns the vector for a single text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of at most MaxBatch inputs.
// Every returned vector has the configured dimensions.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.maxBatch {
		batch := texts[start:min(start+s.maxBatch, len(texts))]

		var resp embedResponse
		if err := s.post(ctx, "/api/embed", embedRequest{Model: s.model, Input: batch}, &resp); err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("ollama: expected %d embeddings, got %d", len(batch), len(resp.Embeddings))
		}
		for _, values := range resp.Embeddings {
			if len(values) != s.dimensions {
				return nil, fmt.Errorf("ollama: model %s returned %d dimensions, configured for %d",
					s.model, len(values), s.dimensions)
			}
			out = append(out, toFloat32(values))
		}
	}
	return out, nil
}

// Dimensions returns the vector length.
func (s *EmbeddingService) Dimensions() int { return s.dimensions }

// ModelName returns the Ollama model name.
func (s *EmbeddingService) ModelName() string { return s.model }

// Ping asks the server to describe the configured model, which fails when
// the server is down or the model has not been pulled.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if err := s.post(ctx, "/api/show", showRequest{Model: s.model}, nil); err != nil {
		return fmt.Errorf("%w (is %q pulled? try 'ollama pull %s')", err, s.model, s.model)
	}
	return nil
}

// Close drops idle connections.
func (s *EmbeddingService) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// post sends body as JSON to path and decodes the reply into out when
// out is non-nil. Transport failures and non-200 replies wrap
// ErrEmbeddingUnavailable.
func (s *EmbeddingService) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ollama: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("ollama: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: ollama: %w", domain.ErrEmbeddingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: ollama %s status %d: %s",
			domain.ErrEmbeddingUnavailable, path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama: decoding %s response: %w", path, err)
	}
	return nil
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
