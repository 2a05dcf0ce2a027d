// Package memory is a mutex-guarded in-process implementation of the
// repository interfaces. It backs STORE_DRIVER=memory and the service tests.
package memory

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

// DB holds every collection behind a single lock so multi-collection reads
// (key listings with titles, per-admin stats) see a consistent view.
type DB struct {
	mu sync.RWMutex

	tests      map[uuid.UUID]*model.Test
	mocs       map[uuid.UUID]*model.MocTest
	keys       map[string]*model.TestKey
	attempts   map[uuid.UUID]*model.Attempt
	queue      map[uuid.UUID]*model.QueueEntry
	admins     map[int]*model.Admin
	students   map[int]*model.Student
	violations []model.Violation

	nextAdminID     int
	nextStudentID   int
	nextViolationID int64
}

// New returns an empty DB.
func New() *DB {
	return &DB{
		tests:    make(map[uuid.UUID]*model.Test),
		mocs:     make(map[uuid.UUID]*model.MocTest),
		keys:     make(map[string]*model.TestKey),
		attempts: make(map[uuid.UUID]*model.Attempt),
		queue:    make(map[uuid.UUID]*model.QueueEntry),
		admins:   make(map[int]*model.Admin),
		students: make(map[int]*model.Student),
	}
}

// NewStore returns a repository.Store backed by a fresh DB.
func NewStore() *repository.Store {
	return New().Store()
}

// Store exposes db through the repository interfaces.
func (db *DB) Store() *repository.Store {
	return &repository.Store{
		Tests:      &testRepo{db},
		MocTests:   &mocRepo{db},
		Keys:       &keyRepo{db},
		Attempts:   &attemptRepo{db},
		Queue:      &queueRepo{db},
		Admins:     &adminRepo{db},
		Students:   &studentRepo{db},
		Violations: &violationRepo{db},
	}
}

// Violations returns a copy of every stored violation.
func (db *DB) Violations() []model.Violation {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]model.Violation(nil), db.violations...)
}

// clone deep-copies v through JSON so callers never share maps or slices
// with the store.
func clone[T any](v *T) *T {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic(err)
	}
	return out
}

func ptr[T any](v T) *T { return &v }
