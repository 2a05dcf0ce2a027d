package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

// QueueService manages the waiting room registered students enter before a
// test is started.
type QueueService struct {
	cfg     *config.Config
	store   *repository.Store
	monitor *MonitorService
	log     zerolog.Logger
	now     func() time.Time
}

// NewQueueService creates a new QueueService.
func NewQueueService(cfg *config.Config, store *repository.Store, monitor *MonitorService, log zerolog.Logger) *QueueService {
	return &QueueService{
		cfg:     cfg,
		store:   store,
		monitor: monitor,
		log:     log.With().Str("component", "queue_service").Logger(),
		now:     time.Now,
	}
}

// Policy is the client polling policy attached to every status view.
func (s *QueueService) Policy() model.PollPolicy {
	return model.PollPolicy{
		IntervalMS: int(s.cfg.QueuePollInterval / time.Millisecond),
		MaxPolls:   s.cfg.QueueMaxPolls,
	}
}

// Join places studentID in the queue for the test behind testCode,
// replacing any live entry the student had.
func (s *QueueService) Join(ctx context.Context, studentID int, testCode string) (*model.QueueEntry, error) {
	code := NormalizeKey(testCode)

	k, err := s.store.Keys.Get(ctx, code)
	if err != nil {
		return nil, notFound(err, "invalid test code")
	}
	test, err := s.store.Tests.GetByID(ctx, k.TestID)
	if err != nil {
		return nil, notFound(err, "test not found")
	}

	// The started check must see the entry before Sweep removes it.
	current, err := s.store.Queue.FindActiveByStudent(ctx, studentID)
	if err == nil && current.Status == model.QueueStatusStarted {
		return nil, apperr.Conflict("test already started")
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find queue entry: %w", err)
	}

	if _, _, err := s.Sweep(ctx); err != nil {
		return nil, err
	}

	now := s.now()
	entry := &model.QueueEntry{
		ID:        uuid.New(),
		StudentID: studentID,
		TestCode:  code,
		TestID:    test.ID,
		Status:    model.QueueStatusWaiting,
		JoinedAt:  now,
	}
	if test.IsActive {
		entry.Stamp(model.QueueStatusAssigned, now)
	}

	if err := s.store.Queue.Replace(ctx, entry); err != nil {
		return nil, fmt.Errorf("replace queue entry: %w", err)
	}

	s.log.Info().Int("student_id", studentID).Str("test_id", test.ID.String()).
		Str("status", string(entry.Status)).Msg("Student joined queue")
	s.publish(ctx, entry)
	return entry, nil
}

// Transition moves one entry to status, stamping only that status's
// timestamp. adminID must own the entry's test.
func (s *QueueService) Transition(ctx context.Context, id uuid.UUID, status model.QueueStatus, adminID int) (*model.QueueEntry, error) {
	if !status.Valid() {
		return nil, apperr.Validation(map[string]string{"status": "unknown queue status"})
	}

	entry, err := s.store.Queue.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "queue entry not found")
	}
	test, err := s.store.Tests.GetByID(ctx, entry.TestID)
	if err != nil {
		return nil, notFound(err, "test not found")
	}
	if test.CreatedBy != adminID {
		return nil, apperr.Forbidden("test belongs to another admin")
	}

	out, err := s.store.Queue.Transition(ctx, id, status, s.now())
	if err != nil {
		return nil, notFound(err, "queue entry not found")
	}
	s.publish(ctx, out)
	return out, nil
}

// Leave marks the student's entry left. Being absent from the queue is not
// an error; an entry that already started cannot be left.
func (s *QueueService) Leave(ctx context.Context, studentID int) (*model.QueueEntry, error) {
	current, err := s.store.Queue.FindActiveByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find queue entry: %w", err)
	}
	if current.Status == model.QueueStatusStarted {
		return nil, apperr.Conflict("cannot leave, test already started")
	}
	return s.mark(ctx, studentID, model.QueueStatusLeft)
}

// Timeout marks the student's entry timed out unless it is left or started.
func (s *QueueService) Timeout(ctx context.Context, studentID int) (*model.QueueEntry, error) {
	return s.mark(ctx, studentID, model.QueueStatusTimeout)
}

func (s *QueueService) mark(ctx context.Context, studentID int, status model.QueueStatus) (*model.QueueEntry, error) {
	out, err := s.store.Queue.MarkByStudent(ctx, studentID, status, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("mark queue entry: %w", err)
	}
	s.publish(ctx, out)
	return out, nil
}

// Sweep times out stale waiting entries and removes finished ones.
func (s *QueueService) Sweep(ctx context.Context) (timedOut, removed int, err error) {
	now := s.now()
	expired, removed, err := s.store.Queue.Sweep(ctx, now.Add(-s.cfg.QueueStaleAfter), now)
	if err != nil {
		return 0, 0, fmt.Errorf("sweep queue: %w", err)
	}
	for i := range expired {
		s.publish(ctx, &expired[i])
	}
	return len(expired), removed, nil
}

// PollStatus reports the student's queue state, advancing it as a side
// effect: stale entries time out, entries of an active test enter
// preparation, and preparation ends after the preparation window.
func (s *QueueService) PollStatus(ctx context.Context, studentID int) (*model.QueueStatusView, error) {
	entry, err := s.store.Queue.FindActiveByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &model.QueueStatusView{Status: model.QueueStatusNone, Poll: s.Policy()}, nil
		}
		return nil, fmt.Errorf("find queue entry: %w", err)
	}

	now := s.now()
	waiting := entry.Status == model.QueueStatusWaiting || entry.Status == model.QueueStatusAssigned

	if waiting && now.Sub(entry.JoinedAt) >= s.cfg.QueueStaleAfter {
		if out, err := s.mark(ctx, studentID, model.QueueStatusTimeout); err != nil {
			return nil, err
		} else if out != nil {
			entry = out
		}
		return s.view(entry, nil), nil
	}

	if waiting {
		test, err := s.store.Tests.GetByID(ctx, entry.TestID)
		if err != nil {
			return nil, notFound(err, "test not found")
		}
		if test.IsActive {
			if entry, err = s.transition(ctx, entry.ID, model.QueueStatusPreparation, now); err != nil {
				return nil, err
			}
		}
	}

	var remaining *int
	if entry.Status == model.QueueStatusPreparation && entry.PreparationStartedAt != nil {
		left := s.cfg.PreparationWindow - now.Sub(*entry.PreparationStartedAt)
		if left <= 0 {
			if entry, err = s.transition(ctx, entry.ID, model.QueueStatusStarted, now); err != nil {
				return nil, err
			}
		} else {
			secs := int(left / time.Second)
			remaining = &secs
		}
	}

	return s.view(entry, remaining), nil
}

// StartTest lets a student in preparation begin before the window ends.
func (s *QueueService) StartTest(ctx context.Context, studentID int) (*model.QueueStatusView, error) {
	entry, err := s.store.Queue.FindActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, notFound(err, "not in queue")
	}
	if entry.Status == model.QueueStatusStarted {
		return s.view(entry, nil), nil
	}
	if entry.Status == model.QueueStatusTimeout {
		return nil, apperr.Conflict("queue entry timed out, enter the test code again")
	}

	test, err := s.store.Tests.GetByID(ctx, entry.TestID)
	if err != nil {
		return nil, notFound(err, "test not found")
	}
	if !test.IsActive {
		return nil, apperr.Inactive("test is not active")
	}

	entry, err = s.transition(ctx, entry.ID, model.QueueStatusStarted, s.now())
	if err != nil {
		return nil, err
	}
	return s.view(entry, nil), nil
}

// CheckTestStatus reports whether the test behind a code is running.
func (s *QueueService) CheckTestStatus(ctx context.Context, testCode string) (bool, error) {
	k, err := s.store.Keys.Get(ctx, NormalizeKey(testCode))
	if err != nil {
		return false, notFound(err, "invalid test code")
	}
	test, err := s.store.Tests.GetByID(ctx, k.TestID)
	if err != nil {
		return false, notFound(err, "test not found")
	}
	return test.IsActive, nil
}

func (s *QueueService) transition(ctx context.Context, id uuid.UUID, status model.QueueStatus, at time.Time) (*model.QueueEntry, error) {
	out, err := s.store.Queue.Transition(ctx, id, status, at)
	if err != nil {
		return nil, notFound(err, "queue entry not found")
	}
	s.publish(ctx, out)
	return out, nil
}

func (s *QueueService) view(e *model.QueueEntry, remaining *int) *model.QueueStatusView {
	v := &model.QueueStatusView{
		Status:                   e.Status,
		QueueID:                  &e.ID,
		TestID:                   &e.TestID,
		JoinedAt:                 &e.JoinedAt,
		PreparationTimeRemaining: remaining,
		Poll:                     s.Policy(),
	}
	if e.Status == model.QueueStatusPreparation || e.Status == model.QueueStatusStarted {
		v.VariantCode = e.TestCode
	}
	return v
}

func (s *QueueService) publish(ctx context.Context, e *model.QueueEntry) {
	s.monitor.Publish(ctx, model.MonitorEvent{
		Type:        model.MonitorQueueChanged,
		TestID:      e.TestID,
		QueueStatus: e.Status,
	})
}
