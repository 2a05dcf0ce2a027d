package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

// TestService handles test authoring and the start/stop lifecycle.
type TestService struct {
	store   *repository.Store
	monitor *MonitorService
	log     zerolog.Logger
	now     func() time.Time
}

// NewTestService creates a new TestService.
func NewTestService(store *repository.Store, monitor *MonitorService, log zerolog.Logger) *TestService {
	return &TestService{
		store:   store,
		monitor: monitor,
		log:     log.With().Str("component", "test_service").Logger(),
		now:     time.Now,
	}
}

// Create creates a new inactive test owned by adminID.
func (s *TestService) Create(ctx context.Context, adminID int, req *model.CreateTestRequest) (*model.Test, error) {
	if err := s.checkVariants(ctx, req.MocIDs, adminID); err != nil {
		return nil, err
	}

	test := &model.Test{
		ID:          uuid.New(),
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Reading:     req.Reading,
		Listening:   req.Listening,
		Writing:     req.Writing,
		AnswerKey:   req.AnswerKey,
		Duration:    req.Duration,
		MocIDs:      req.MocIDs,
		CreatedBy:   adminID,
	}
	if test.Type == "" {
		test.Type = "academic"
	}
	if test.Duration == 0 {
		test.Duration = model.DefaultTestDuration
	}
	if test.MocIDs == nil {
		test.MocIDs = []uuid.UUID{}
	}

	if err := s.store.Tests.Create(ctx, test); err != nil {
		return nil, fmt.Errorf("create test: %w", err)
	}
	s.log.Info().Str("test_id", test.ID.String()).Int("admin_id", adminID).Msg("Test created")
	return test, nil
}

// checkVariants rejects variant IDs that do not exist or belong to another
// admin.
func (s *TestService) checkVariants(ctx context.Context, ids []uuid.UUID, adminID int) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.store.MocTests.GetMany(ctx, ids)
	if err != nil {
		return fmt.Errorf("load variants: %w", err)
	}
	known := make(map[uuid.UUID]bool, len(found))
	for _, m := range found {
		known[m.ID] = m.CreatedBy == adminID
	}
	for _, id := range ids {
		if !known[id] {
			return apperr.Validation(map[string]string{"moc_ids": "unknown variant " + id.String()})
		}
	}
	return nil
}

// Get returns a test owned by adminID.
func (s *TestService) Get(ctx context.Context, id uuid.UUID, adminID int) (*model.Test, error) {
	test, err := s.store.Tests.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "test not found")
	}
	if test.CreatedBy != adminID {
		return nil, apperr.NotFound("test not found")
	}
	return test, nil
}

// List returns a page of adminID's tests.
func (s *TestService) List(ctx context.Context, adminID, page, perPage int) ([]model.Test, int, error) {
	tests, total, err := s.store.Tests.ListByCreator(ctx, adminID, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list tests: %w", err)
	}
	if tests == nil {
		tests = []model.Test{}
	}
	return tests, total, nil
}

// Update applies the non-nil fields of req.
func (s *TestService) Update(ctx context.Context, id uuid.UUID, adminID int, req *model.UpdateTestRequest) (*model.Test, error) {
	test, err := s.Get(ctx, id, adminID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		test.Title = *req.Title
	}
	if req.Description != nil {
		test.Description = *req.Description
	}
	if req.Type != nil {
		test.Type = *req.Type
	}
	if req.Reading != nil {
		test.Reading = req.Reading
	}
	if req.Listening != nil {
		test.Listening = req.Listening
	}
	if req.Writing != nil {
		test.Writing = req.Writing
	}
	if req.AnswerKey != nil {
		test.AnswerKey = req.AnswerKey
	}
	if req.Duration != nil {
		test.Duration = *req.Duration
	}
	if req.MocIDs != nil {
		if err := s.checkVariants(ctx, req.MocIDs, adminID); err != nil {
			return nil, err
		}
		test.MocIDs = req.MocIDs
	}

	if err := s.store.Tests.Update(ctx, test); err != nil {
		return nil, notFound(err, "test not found")
	}
	return test, nil
}

// Delete removes a test together with its keys.
func (s *TestService) Delete(ctx context.Context, id uuid.UUID, adminID int) error {
	if _, err := s.Get(ctx, id, adminID); err != nil {
		return err
	}
	if err := s.store.Tests.Delete(ctx, id); err != nil {
		return notFound(err, "test not found")
	}
	s.log.Info().Str("test_id", id.String()).Msg("Test deleted")
	return nil
}

// StartMock activates a test and moves its waiting queue into preparation.
func (s *TestService) StartMock(ctx context.Context, id uuid.UUID, adminID int) (*model.Test, error) {
	if _, err := s.Get(ctx, id, adminID); err != nil {
		return nil, err
	}

	now := s.now()
	test, err := s.store.Tests.SetActive(ctx, id, true, now)
	if err != nil {
		return nil, notFound(err, "test not found")
	}

	promoted, err := s.store.Queue.PromoteByTest(ctx, id,
		[]model.QueueStatus{model.QueueStatusWaiting, model.QueueStatusAssigned},
		model.QueueStatusPreparation, now)
	if err != nil {
		// Polling students are promoted on their next poll anyway.
		s.log.Warn().Err(err).Str("test_id", id.String()).Msg("queue promotion failed")
	}

	s.log.Info().Str("test_id", id.String()).Int("promoted", len(promoted)).Msg("Test started")
	s.publishStatus(ctx, test)
	return test, nil
}

// StopMock deactivates a test. Open attempts stay open.
func (s *TestService) StopMock(ctx context.Context, id uuid.UUID, adminID int) (*model.Test, error) {
	if _, err := s.Get(ctx, id, adminID); err != nil {
		return nil, err
	}
	test, err := s.store.Tests.SetActive(ctx, id, false, s.now())
	if err != nil {
		return nil, notFound(err, "test not found")
	}
	s.log.Info().Str("test_id", id.String()).Msg("Test stopped")
	s.publishStatus(ctx, test)
	return test, nil
}

func (s *TestService) publishStatus(ctx context.Context, test *model.Test) {
	s.monitor.Publish(ctx, model.MonitorEvent{Type: model.MonitorTestStatus, TestID: test.ID})
}
