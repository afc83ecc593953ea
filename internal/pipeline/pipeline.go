// Package pipeline composes ingestion stages into one transform.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"repochat/internal/domain"
	"repochat/internal/logging"
)

// Sequential runs its stages in order, feeding each stage the output of the
// previous one.
type Sequential struct {
	stages []domain.Transformer
	logger *zap.Logger
}

// NewSequential creates a pipeline over the given stages.
func NewSequential(logger *zap.Logger, stages ...domain.Transformer) *Sequential {
	return &Sequential{stages: stages, logger: logging.OrNop(logger)}
}

// Name lists the stage names.
func (p *Sequential) Name() string {
	name := "sequential("
	for i, s := range p.stages {
		if i > 0 {
			name += ","
		}
		name += s.Name()
	}
	return name + ")"
}

// Transform folds units through every stage. The first failing stage aborts
// the run.
func (p *Sequential) Transform(ctx context.Context, units []domain.Unit) ([]domain.Unit, error) {
	out := units
	for _, stage := range p.stages {
		start := time.Now()
		next, err := stage.Transform(ctx, out)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		p.logger.Debug("stage complete",
			zap.String("stage", stage.Name()),
			zap.Int("in", len(out)),
			zap.Int("out", len(next)),
			zap.Duration("took", time.Since(start)))
		out = next
	}
	return out, nil
}
