package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Pruner drops expired entries and reports how many it removed.
type Pruner interface {
	Prune() int
}

// Sweeper is a TickFunc source that prunes a cache on every tick.
type Sweeper struct {
	pruner Pruner
	logger zerolog.Logger
}

// NewSweeper wraps pruner.
func NewSweeper(pruner Pruner, logger zerolog.Logger) *Sweeper {
	return &Sweeper{pruner: pruner, logger: logger.With().Str("component", "cache_sweeper").Logger()}
}

// Tick prunes expired entries.
func (s *Sweeper) Tick(ctx context.Context, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	removed := s.pruner.Prune()
	event := s.logger.Debug()
	if removed > 0 {
		event = s.logger.Info()
	}
	event.Time("tick", at).Int("removed", removed).Msg("cache sweep")
	return nil
}
