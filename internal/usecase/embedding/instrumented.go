// Package embedding holds embedder decorators owned by the application layer.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/logger"
	"github.com/kailas-cloud/grantmatch/internal/perf"
)

// OperationName is the tracker key of embedding calls.
const OperationName = "embedding.embed"

// InstrumentedEmbedder wraps Embedder with timing and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
// This layer owns the performance tracker samples only.
type InstrumentedEmbedder struct {
	inner     domain.Embedder
	tracker   *perf.Tracker
	name      string
	threshold time.Duration
	logger    *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder. An empty name uses OperationName.
func NewInstrumentedEmbedder(
	inner domain.Embedder, tracker *perf.Tracker, name string,
	threshold time.Duration, logger *zap.Logger,
) *InstrumentedEmbedder {
	if name == "" {
		name = OperationName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedEmbedder{
		inner:     inner,
		tracker:   tracker,
		name:      name,
		threshold: threshold,
		logger:    logger,
	}
}

// Embed delegates to the inner embedder under the tracker.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	start := time.Now()

	result, err := perf.TrackValue(ctx, p.tracker, p.name, p.threshold,
		func(ctx context.Context) (domain.EmbeddingResult, error) {
			return p.inner.Embed(ctx, text)
		})

	duration := time.Since(start)
	log := logger.FromContextOr(ctx, p.logger)

	if err != nil {
		log.Debug("Embedding request failed",
			zap.String("operation", p.name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	log.Debug("Embedding request completed",
		zap.String("operation", p.name),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}
