package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/broker"
	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
	"github.com/stemsi/ieltsmock-backend/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyViolations fails bulk inserts and single inserts for one kind.
type flakyViolations struct {
	repository.ViolationRepository
	mu      sync.Mutex
	reject  model.ViolationKind
	inserts int
}

func (f *flakyViolations) InsertBatch(context.Context, []model.Violation) error {
	return errors.New("batch rejected")
}

func (f *flakyViolations) Insert(ctx context.Context, v *model.Violation) error {
	f.mu.Lock()
	f.inserts++
	f.mu.Unlock()
	if v.Kind == f.reject {
		return errors.New("row rejected")
	}
	return f.ViolationRepository.Insert(ctx, v)
}

func violation(kind model.ViolationKind) model.Violation {
	return model.Violation{
		AttemptID:  uuid.New(),
		TestID:     uuid.New(),
		Kind:       kind,
		RecordedAt: time.Now(),
	}
}

func TestViolationWorkerDrainsQueue(t *testing.T) {
	db := memory.New()
	b := broker.NewLocal()
	w := NewViolationWorker(db.Store().Violations, b, zerolog.Nop())

	ctx := context.Background()
	for _, kind := range []model.ViolationKind{model.ViolationTabHidden, model.ViolationWindowBlur, model.ViolationFullscreenExit} {
		raw, err := json.Marshal(violation(kind))
		require.NoError(t, err)
		require.NoError(t, b.Push(ctx, config.WorkerKey.PersistViolationsQueue, raw))
	}
	require.NoError(t, b.Push(ctx, config.WorkerKey.PersistViolationsQueue, []byte("{not json")))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		w.Start(runCtx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(db.Violations()) == 3 }, 5*time.Second, 50*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Zero(t, b.Len(config.WorkerKey.PersistViolationsQueue))
}

func TestViolationWorkerFlushesOnShutdown(t *testing.T) {
	db := memory.New()
	b := broker.NewLocal()
	w := NewViolationWorker(db.Store().Violations, b, zerolog.Nop())

	raw, err := json.Marshal(violation(model.ViolationTabHidden))
	require.NoError(t, err)
	require.NoError(t, b.Push(context.Background(), config.WorkerKey.PersistViolationsQueue, raw))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	// The buffered row is flushed by shutdown well before BatchTimeout.
	assert.Eventually(t, func() bool { return b.Len(config.WorkerKey.PersistViolationsQueue) == 0 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.Len(t, db.Violations(), 1)
}

func TestViolationWorkerFallbackRequeuesFailures(t *testing.T) {
	db := memory.New()
	b := broker.NewLocal()
	repo := &flakyViolations{ViolationRepository: db.Store().Violations, reject: model.ViolationWindowBlur}
	w := NewViolationWorker(repo, b, zerolog.Nop())
	w.requeueBackoff = 0

	batch := []model.Violation{
		violation(model.ViolationTabHidden),
		violation(model.ViolationWindowBlur),
		violation(model.ViolationFullscreenExit),
	}
	w.flushSafe(context.Background(), batch)

	assert.Equal(t, 3, repo.inserts)
	assert.Len(t, db.Violations(), 2)
	require.Equal(t, 1, b.Len(config.WorkerKey.PersistViolationsQueue))

	raw, err := b.Pop(context.Background(), config.WorkerKey.PersistViolationsQueue, time.Second)
	require.NoError(t, err)
	var requeued model.Violation
	require.NoError(t, json.Unmarshal(raw, &requeued))
	assert.Equal(t, batch[1].AttemptID, requeued.AttemptID)
}
