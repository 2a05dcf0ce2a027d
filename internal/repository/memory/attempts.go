package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

type attemptRepo struct{ db *DB }

func (r *attemptRepo) Create(_ context.Context, a *model.Attempt) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, cur := range r.db.attempts {
		if cur.TestKey == a.TestKey && !cur.IsSubmitted {
			return repository.ErrDuplicate
		}
	}
	if _, ok := r.db.attempts[a.ID]; ok {
		return repository.ErrDuplicate
	}
	r.db.attempts[a.ID] = clone(a)
	return nil
}

func (r *attemptRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	a, ok := r.db.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(a), nil
}

func (r *attemptRepo) FindOpenByKey(_ context.Context, key string) (*model.Attempt, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, a := range r.db.attempts {
		if a.TestKey == key && !a.IsSubmitted {
			return clone(a), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *attemptRepo) FindLatestByKey(_ context.Context, key string) (*model.Attempt, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var latest *model.Attempt
	for _, a := range r.db.attempts {
		if a.TestKey == key && (latest == nil || a.StartedAt.After(latest.StartedAt)) {
			latest = a
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	return clone(latest), nil
}

// mutateOpen applies fn to an unsubmitted attempt under the write lock.
func (r *attemptRepo) mutateOpen(id uuid.UUID, fn func(a *model.Attempt)) (*model.Attempt, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.attempts[id]
	if !ok || a.IsSubmitted {
		return nil, repository.ErrNotFound
	}
	fn(a)
	return clone(a), nil
}

func (r *attemptRepo) MergeSection(_ context.Context, id uuid.UUID, section model.Section, answers model.SectionAnswers, at time.Time) (*model.Attempt, error) {
	values := clone(&answers)
	return r.mutateOpen(id, func(a *model.Attempt) {
		a.Answers.Merge(section, *values)
		a.LastSaved = ptr(at)
	})
}

func (r *attemptRepo) ReplaceHighlights(_ context.Context, id uuid.UUID, highlights []model.Highlight, at time.Time) (*model.Attempt, error) {
	hl := append([]model.Highlight{}, highlights...)
	return r.mutateOpen(id, func(a *model.Attempt) {
		a.Highlights = hl
		a.LastSaved = ptr(at)
	})
}

func (r *attemptRepo) AppendRecording(_ context.Context, id uuid.UUID, url string, at time.Time) (*model.Attempt, error) {
	return r.mutateOpen(id, func(a *model.Attempt) {
		a.Recordings = append(a.Recordings, url)
		a.LastSaved = ptr(at)
	})
}

func (r *attemptRepo) Seal(_ context.Context, id uuid.UUID, submittedAt time.Time, duration int) (*model.Attempt, error) {
	return r.mutateOpen(id, func(a *model.Attempt) {
		a.IsSubmitted = true
		a.SubmittedAt = ptr(submittedAt)
		a.Duration = duration
	})
}

func (r *attemptRepo) SaveScores(_ context.Context, scores map[uuid.UUID]*model.Scores) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, s := range scores {
		if a, ok := r.db.attempts[id]; ok {
			a.Scores = clone(s)
		}
	}
	return nil
}

func (r *attemptRepo) ListByTest(_ context.Context, testID uuid.UUID) ([]model.Attempt, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]model.Attempt, 0)
	for _, a := range r.db.attempts {
		if a.TestID == testID {
			out = append(out, *clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (r *attemptRepo) result(a *model.Attempt) model.AttemptResult {
	res := model.AttemptResult{
		ID:          a.ID,
		TestKey:     a.TestKey,
		StudentName: a.StudentName,
		StartedAt:   a.StartedAt,
		SubmittedAt: a.SubmittedAt,
		IsSubmitted: a.IsSubmitted,
		Duration:    a.Duration,
	}
	if a.Scores != nil {
		res.Scores = clone(a.Scores)
	}
	if t, ok := r.db.tests[a.TestID]; ok {
		res.TestTitle = t.Title
	}
	return res
}

func (r *attemptRepo) ListResultsByCreator(_ context.Context, adminID int, testID *uuid.UUID) ([]model.AttemptResult, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]model.AttemptResult, 0)
	for _, a := range r.db.attempts {
		k, ok := r.db.keys[a.TestKey]
		if !ok || k.CreatedBy != adminID {
			continue
		}
		if testID != nil && a.TestID != *testID {
			continue
		}
		out = append(out, r.result(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (r *attemptRepo) ListResultsByStudent(_ context.Context, studentID int) ([]model.AttemptResult, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	out := make([]model.AttemptResult, 0)
	for _, a := range r.db.attempts {
		if a.StudentID != nil && *a.StudentID == studentID {
			out = append(out, r.result(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (r *attemptRepo) SummarizeStudents(_ context.Context, adminID int) ([]model.StudentSummary, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	byName := make(map[string]*model.StudentSummary)
	for _, a := range r.db.attempts {
		k, ok := r.db.keys[a.TestKey]
		if !ok || k.CreatedBy != adminID {
			continue
		}
		s, ok := byName[a.StudentName]
		if !ok {
			s = &model.StudentSummary{Name: a.StudentName}
			byName[a.StudentName] = s
		}
		s.TotalAttempts++
		if a.IsSubmitted {
			s.CompletedAttempts++
		}
		if s.LastAttempt == nil || a.StartedAt.After(*s.LastAttempt) {
			s.LastAttempt = ptr(a.StartedAt)
		}
	}

	out := make([]model.StudentSummary, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAttempt.After(*out[j].LastAttempt) })
	return out, nil
}
