package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

type queueRepo struct{ db *DB }

func (r *queueRepo) Replace(_ context.Context, e *model.QueueEntry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, cur := range r.db.queue {
		if cur.StudentID == e.StudentID && cur.Status != model.QueueStatusLeft {
			delete(r.db.queue, id)
		}
	}
	r.db.queue[e.ID] = clone(e)
	return nil
}

func (r *queueRepo) GetByID(_ context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	e, ok := r.db.queue[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(e), nil
}

func (r *queueRepo) FindActiveByStudent(_ context.Context, studentID int) (*model.QueueEntry, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, e := range r.db.queue {
		if e.StudentID == studentID && e.Status != model.QueueStatusLeft {
			return clone(e), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *queueRepo) Transition(_ context.Context, id uuid.UUID, status model.QueueStatus, at time.Time) (*model.QueueEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.queue[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	e.Stamp(status, at)
	return clone(e), nil
}

func (r *queueRepo) MarkByStudent(_ context.Context, studentID int, status model.QueueStatus, at time.Time) (*model.QueueEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, e := range r.db.queue {
		if e.StudentID == studentID && !e.Status.Terminal() {
			e.Stamp(status, at)
			return clone(e), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *queueRepo) PromoteByTest(_ context.Context, testID uuid.UUID, from []model.QueueStatus, to model.QueueStatus, at time.Time) ([]model.QueueEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]model.QueueEntry, 0)
	for _, e := range r.db.queue {
		if e.TestID == testID && slices.Contains(from, e.Status) {
			e.Stamp(to, at)
			out = append(out, *clone(e))
		}
	}
	return out, nil
}

func (r *queueRepo) Sweep(_ context.Context, cutoff, at time.Time) ([]model.QueueEntry, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	timedOut := make([]model.QueueEntry, 0)
	for _, e := range r.db.queue {
		if (e.Status == model.QueueStatusWaiting || e.Status == model.QueueStatusAssigned) && e.JoinedAt.Before(cutoff) {
			e.Stamp(model.QueueStatusTimeout, at)
			timedOut = append(timedOut, *clone(e))
		}
	}

	removed := 0
	for id, e := range r.db.queue {
		switch e.Status {
		case model.QueueStatusStarted, model.QueueStatusLeft, model.QueueStatusTimeout:
			delete(r.db.queue, id)
			removed++
		}
	}
	return timedOut, removed, nil
}

func (r *queueRepo) ListByTest(_ context.Context, testID uuid.UUID) ([]model.QueueEntry, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]model.QueueEntry, 0)
	for _, e := range r.db.queue {
		if e.TestID == testID {
			out = append(out, *clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}
