package memory

import (
	"context"
	"sort"
	"time"

	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

type keyRepo struct{ db *DB }

func (r *keyRepo) Create(_ context.Context, k *model.TestKey) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.keys[k.Key]; ok {
		return repository.ErrDuplicate
	}
	k.CreatedAt = time.Now()
	r.db.keys[k.Key] = clone(k)
	return nil
}

func (r *keyRepo) Exists(_ context.Context, key string) (bool, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	_, ok := r.db.keys[key]
	return ok, nil
}

func (r *keyRepo) Get(_ context.Context, key string) (*model.TestKey, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	k, ok := r.db.keys[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(k), nil
}

func (r *keyRepo) Bind(_ context.Context, key, name string, at time.Time) (*model.TestKey, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	k, ok := r.db.keys[key]
	if !ok || !k.IsActive || (k.UsedBy != nil && *k.UsedBy != name) {
		return nil, repository.ErrNotFound
	}
	k.UsedBy = ptr(name)
	if k.UsedAt == nil {
		k.UsedAt = ptr(at)
	}
	return clone(k), nil
}

func (r *keyRepo) Deactivate(_ context.Context, key string) (*model.TestKey, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	k, ok := r.db.keys[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	k.IsActive = false
	return clone(k), nil
}

func (r *keyRepo) ListByCreator(_ context.Context, adminID int) ([]model.TestKeyListItem, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]model.TestKeyListItem, 0)
	for _, k := range r.db.keys {
		if k.CreatedBy != adminID {
			continue
		}
		t, ok := r.db.tests[k.TestID]
		if !ok {
			continue
		}
		out = append(out, model.TestKeyListItem{TestKey: *clone(k), TestTitle: t.Title})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
