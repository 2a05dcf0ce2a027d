package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/broker"
	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationWorker drains anti-cheat events from the broker into the store in
// batches.
type ViolationWorker struct {
	repo   repository.ViolationRepository
	broker broker.Broker
	log    zerolog.Logger
	// requeueBackoff throttles the loop after pushing failed rows back.
	requeueBackoff time.Duration
}

func NewViolationWorker(repo repository.ViolationRepository, b broker.Broker, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		repo:           repo,
		broker:         b,
		log:            log.With().Str("component", "violation_worker").Logger(),
		requeueBackoff: 2 * time.Second,
	}
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]model.Violation, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		raw, err := w.broker.Pop(ctx, config.WorkerKey.PersistViolationsQueue, PollTimeout)
		if err != nil {
			if errors.Is(err, broker.ErrEmpty) || ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Broker error, sleeping 3s")
			sleepCtx(ctx, 3*time.Second)
			continue
		}

		var v model.Violation
		if err := json.Unmarshal(raw, &v); err != nil {
			// Malformed payloads cannot succeed on retry.
			w.log.Error().Err(err).Str("data", string(raw)).Msg("Discarding malformed violation")
			continue
		}
		buffer = append(buffer, v)
	}
}

// flushSafe attempts a bulk insert, then row-by-row insert, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []model.Violation) {
	if len(batch) == 0 {
		return
	}
	if err := w.repo.InsertBatch(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []model.Violation) {
	requeue := make([][]byte, 0)
	for i := range batch {
		if err := w.repo.Insert(ctx, &batch[i]); err != nil {
			w.log.Error().Err(err).Str("attempt_id", batch[i].AttemptID.String()).Msg("Insert failed, requeueing")
			data, _ := json.Marshal(batch[i])
			requeue = append(requeue, data)
		}
	}
	if len(requeue) == 0 {
		return
	}

	if err := w.broker.Push(ctx, config.WorkerKey.PersistViolationsQueue, requeue...); err != nil {
		w.log.Error().Err(err).Int("count", len(requeue)).Msg("CRITICAL: Failed to requeue violations. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(requeue)).Msg("Requeued failed violations")
	sleepCtx(ctx, w.requeueBackoff)
}

func (w *ViolationWorker) shutdown(buffer []model.Violation) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flushSafe(shutdownCtx, buffer)
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
