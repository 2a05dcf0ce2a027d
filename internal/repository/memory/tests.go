package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

type testRepo struct{ db *DB }

func (r *testRepo) Create(_ context.Context, t *model.Test) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.tests[t.ID]; ok {
		return repository.ErrDuplicate
	}
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	r.db.tests[t.ID] = clone(t)
	return nil
}

func (r *testRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Test, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	t, ok := r.db.tests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(t), nil
}

func (r *testRepo) Update(_ context.Context, t *model.Test) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cur, ok := r.db.tests[t.ID]
	if !ok {
		return repository.ErrNotFound
	}
	next := clone(t)
	next.IsActive, next.StartedAt, next.EndedAt = cur.IsActive, cur.StartedAt, cur.EndedAt
	next.CreatedBy, next.CreatedAt = cur.CreatedBy, cur.CreatedAt
	next.UpdatedAt = time.Now()
	t.UpdatedAt = next.UpdatedAt
	r.db.tests[t.ID] = next
	return nil
}

func (r *testRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.tests[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.tests, id)
	for k, key := range r.db.keys {
		if key.TestID == id {
			delete(r.db.keys, k)
		}
	}
	for aid, a := range r.db.attempts {
		if a.TestID == id {
			delete(r.db.attempts, aid)
		}
	}
	for qid, e := range r.db.queue {
		if e.TestID == id {
			delete(r.db.queue, qid)
		}
	}
	return nil
}

func (r *testRepo) ListByCreator(_ context.Context, adminID, page, perPage int) ([]model.Test, int, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	all := make([]model.Test, 0)
	for _, t := range r.db.tests {
		if t.CreatedBy == adminID {
			all = append(all, *clone(t))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	start := (page - 1) * perPage
	if start > len(all) {
		start = len(all)
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (r *testRepo) SetActive(_ context.Context, id uuid.UUID, active bool, at time.Time) (*model.Test, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.tests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	t.IsActive = active
	if active {
		t.StartedAt = ptr(at)
		t.EndedAt = nil
	} else {
		t.EndedAt = ptr(at)
	}
	t.UpdatedAt = time.Now()
	return clone(t), nil
}

type mocRepo struct{ db *DB }

func (r *mocRepo) Create(_ context.Context, m *model.MocTest) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.mocs[m.ID]; ok {
		return repository.ErrDuplicate
	}
	now := time.Now()
	m.CreatedAt, m.UpdatedAt = now, now
	r.db.mocs[m.ID] = clone(m)
	return nil
}

func (r *mocRepo) GetByID(_ context.Context, id uuid.UUID) (*model.MocTest, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	m, ok := r.db.mocs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(m), nil
}

func (r *mocRepo) GetMany(_ context.Context, ids []uuid.UUID) ([]model.MocTest, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []model.MocTest
	for _, id := range ids {
		if m, ok := r.db.mocs[id]; ok {
			out = append(out, *clone(m))
		}
	}
	return out, nil
}

func (r *mocRepo) Update(_ context.Context, m *model.MocTest) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cur, ok := r.db.mocs[m.ID]
	if !ok {
		return repository.ErrNotFound
	}
	next := clone(m)
	next.CreatedBy, next.CreatedAt = cur.CreatedBy, cur.CreatedAt
	next.UpdatedAt = time.Now()
	m.UpdatedAt = next.UpdatedAt
	r.db.mocs[m.ID] = next
	return nil
}

func (r *mocRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.mocs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.mocs, id)
	return nil
}

func (r *mocRepo) ListByCreator(_ context.Context, adminID int) ([]model.MocTest, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]model.MocTest, 0)
	for _, m := range r.db.mocs {
		if m.CreatedBy == adminID {
			out = append(out, *clone(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
