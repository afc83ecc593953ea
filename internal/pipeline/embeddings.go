package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"repochat/internal/domain"
	"repochat/internal/logging"
)

// ToEmbeddings attaches a vector to every unit, embedding texts in batches.
type ToEmbeddings struct {
	embedder  domain.Embedder
	batchSize int
	logger    *zap.Logger
}

// NewToEmbeddings creates the embedding stage.
func NewToEmbeddings(embedder domain.Embedder, batchSize int, logger *zap.Logger) *ToEmbeddings {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ToEmbeddings{embedder: embedder, batchSize: batchSize, logger: logging.OrNop(logger)}
}

// Name identifies the stage in logs.
func (t *ToEmbeddings) Name() string { return "to_embeddings" }

// Transform returns copies of units with Vector set.
func (t *ToEmbeddings) Transform(ctx context.Context, units []domain.Unit) ([]domain.Unit, error) {
	out := make([]domain.Unit, len(units))
	copy(out, units)
	for start := 0; start < len(out); start += t.batchSize {
		end := start + t.batchSize
		if end > len(out) {
			end = len(out)
		}
		texts := make([]string, end-start)
		for i := range texts {
			texts[i] = out[start+i].Text
		}
		vectors, err := t.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(texts) {
			return nil, errors.New("embedder returned wrong number of vectors")
		}
		for i, v := range vectors {
			if len(v) == 0 {
				return nil, fmt.Errorf("empty embedding for %s", out[start+i].ID)
			}
			out[start+i].Vector = v
		}
		t.logger.Debug("embedded batch", zap.Int("from", start), zap.Int("to", end), zap.Int("total", len(out)))
	}
	return out, nil
}
