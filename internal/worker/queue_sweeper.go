package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper is the queue maintenance pass run by QueueSweeper.
type Sweeper interface {
	Sweep(ctx context.Context) (timedOut, removed int, err error)
}

// QueueSweeper runs the queue sweep on a fixed interval.
type QueueSweeper struct {
	sweeper  Sweeper
	interval time.Duration
	log      zerolog.Logger
}

// NewQueueSweeper creates a new QueueSweeper.
func NewQueueSweeper(sweeper Sweeper, interval time.Duration, log zerolog.Logger) *QueueSweeper {
	return &QueueSweeper{
		sweeper:  sweeper,
		interval: interval,
		log:      log.With().Str("component", "queue_sweeper").Logger(),
	}
}

// Start sweeps once immediately and then every interval until ctx is done.
func (w *QueueSweeper) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("QueueSweeper started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("QueueSweeper stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *QueueSweeper) sweep(ctx context.Context) {
	timedOut, removed, err := w.sweeper.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Queue sweep failed")
		}
		return
	}
	if timedOut > 0 || removed > 0 {
		w.log.Info().Int("timed_out", timedOut).Int("removed", removed).Msg("Queue swept")
	}
}
