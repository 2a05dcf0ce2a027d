package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/broker"
	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/grading"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

const (
	GradeBatchSize    = 50
	GradeBatchTimeout = 2 * time.Second
)

// GradingWorker scores sealed attempts against their answer keys and stores
// the results in batches.
type GradingWorker struct {
	store  *repository.Store
	broker broker.Broker
	log    zerolog.Logger
	now    func() time.Time
}

func NewGradingWorker(store *repository.Store, b broker.Broker, log zerolog.Logger) *GradingWorker {
	return &GradingWorker{
		store:  store,
		broker: b,
		log:    log.With().Str("component", "grading_worker").Logger(),
		now:    time.Now,
	}
}

func (w *GradingWorker) Start(ctx context.Context) {
	w.log.Info().Msg("GradingWorker started")

	batch := make([]uuid.UUID, 0, GradeBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 && (len(batch) >= GradeBatchSize || time.Since(lastFlush) >= GradeBatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flushSafe(shutdownCtx, batch)
			cancel()
			return
		default:
		}

		raw, err := w.broker.Pop(ctx, config.WorkerKey.GradeAttemptsQueue, PollTimeout)
		if err != nil {
			if !errors.Is(err, broker.ErrEmpty) && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("Pop error")
				sleepCtx(ctx, 3*time.Second)
			}
			continue
		}

		var job model.GradeJob
		if err := json.Unmarshal(raw, &job); err != nil {
			w.log.Error().Err(err).Msg("Invalid JSON payload")
			continue
		}
		batch = append(batch, job.AttemptID)
	}
}

// flushSafe grades the batch and saves all scores in one write, falling back
// to per-attempt writes and requeueing what still fails.
func (w *GradingWorker) flushSafe(ctx context.Context, batch []uuid.UUID) {
	if len(batch) == 0 {
		return
	}

	scores := make(map[uuid.UUID]*model.Scores, len(batch))
	for _, id := range batch {
		s, err := w.score(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				w.log.Warn().Str("attempt_id", id.String()).Msg("Dropping grade job for missing attempt")
				continue
			}
			w.log.Error().Err(err).Str("attempt_id", id.String()).Msg("Grading failed")
			w.requeue(ctx, id)
			continue
		}
		scores[id] = s
	}
	if len(scores) == 0 {
		return
	}

	if err := w.store.Attempts.SaveScores(ctx, scores); err != nil {
		w.log.Warn().Err(err).Msg("bulk score update failed, using fallback")
		for id, s := range scores {
			if err := w.store.Attempts.SaveScores(ctx, map[uuid.UUID]*model.Scores{id: s}); err != nil {
				w.log.Error().Err(err).Str("attempt_id", id.String()).Msg("save score failed, requeueing")
				w.requeue(ctx, id)
			}
		}
		return
	}
	w.log.Debug().Int("count", len(scores)).Msg("Scores saved")
}

// score grades one attempt. The assigned variant's answer key overrides the
// test's key section by section.
func (w *GradingWorker) score(ctx context.Context, id uuid.UUID) (*model.Scores, error) {
	a, err := w.store.Attempts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	test, err := w.store.Tests.GetByID(ctx, a.TestID)
	if err != nil {
		return nil, err
	}

	key := test.AnswerKey
	if a.AssignedMocID != nil {
		variant, err := w.store.MocTests.GetByID(ctx, *a.AssignedMocID)
		switch {
		case err == nil:
			key = grading.MergeKeys(test.AnswerKey, variant.AnswerKey)
		case !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
	}

	s := grading.Score(key, a.Answers, a.Scores)
	s.GradedAt = w.now()
	return s, nil
}

func (w *GradingWorker) requeue(ctx context.Context, id uuid.UUID) {
	data, _ := json.Marshal(model.GradeJob{AttemptID: id})
	if err := w.broker.Push(ctx, config.WorkerKey.GradeAttemptsQueue, data); err != nil {
		w.log.Error().Err(err).Str("attempt_id", id.String()).Msg("CRITICAL: Failed to requeue grade job")
	}
}
