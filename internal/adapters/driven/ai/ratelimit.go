package ai

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/openkl/internal/core/ports/driven"
)

// Ensure RateLimited implements the interface.
var _ driven.EmbeddingService = (*RateLimited)(nil)

// RateLimited throttles requests to a remote embedding provider using a
// token bucket. Each Embed or EmbedBatch call is one request.
type RateLimited struct {
	inner   driven.EmbeddingService
	limiter *rate.Limiter
}

// NewRateLimited wraps inner so it issues at most requestsPerSecond
// calls, with bursts of up to burst.
func NewRateLimited(inner driven.EmbeddingService, requestsPerSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Embed waits for a token then delegates.
func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, text)
}

// EmbedBatch waits for a token then delegates.
func (r *RateLimited) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.EmbedBatch(ctx, texts)
}

// Dimensions returns the wrapped service's vector size.
func (r *RateLimited) Dimensions() int { return r.inner.Dimensions() }

// ModelName returns the wrapped service's model.
func (r *RateLimited) ModelName() string { return r.inner.ModelName() }

// Ping is not rate limited.
func (r *RateLimited) Ping(ctx context.Context) error { return r.inner.Ping(ctx) }

// Close closes the wrapped service.
func (r *RateLimited) Close() error { return r.inner.Close() }

// Allow reports whether a request could be made now without waiting.
func (r *RateLimited) Allow() bool { return r.limiter.Allow() }
