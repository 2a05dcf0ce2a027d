package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

// MocService manages content variants and MOC sessions.
type MocService struct {
	store *repository.Store
	tests *TestService
	log   zerolog.Logger
}

// NewMocService creates a new MocService.
func NewMocService(store *repository.Store, tests *TestService, log zerolog.Logger) *MocService {
	return &MocService{
		store: store,
		tests: tests,
		log:   log.With().Str("component", "moc_service").Logger(),
	}
}

// Create stores a new variant owned by adminID.
func (s *MocService) Create(ctx context.Context, adminID int, req *model.CreateMocTestRequest) (*model.MocTest, error) {
	m := &model.MocTest{ID: uuid.New(), CreatedBy: adminID}
	applyMocRequest(m, req)

	if err := s.store.MocTests.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create variant: %w", err)
	}
	s.log.Info().Str("moc_id", m.ID.String()).Int("admin_id", adminID).Msg("Variant created")
	return m, nil
}

func applyMocRequest(m *model.MocTest, req *model.CreateMocTestRequest) {
	m.Title = req.Title
	m.Type = req.Type
	if m.Type == "" {
		m.Type = "moc"
	}
	m.ReadingFile = req.ReadingFile
	m.ListeningFile = req.ListeningFile
	m.ListeningAudio = req.ListeningAudio
	m.WritingTopics = req.WritingTopics
	m.AnswerKey = req.AnswerKey
	m.ParsedContent = req.ParsedContent
	m.IsActive = req.IsActive
}

// Get returns a variant owned by adminID.
func (s *MocService) Get(ctx context.Context, id uuid.UUID, adminID int) (*model.MocTest, error) {
	m, err := s.store.MocTests.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "variant not found")
	}
	if m.CreatedBy != adminID {
		return nil, apperr.NotFound("variant not found")
	}
	return m, nil
}

// List returns adminID's variants, newest first.
func (s *MocService) List(ctx context.Context, adminID int) ([]model.MocTest, error) {
	out, err := s.store.MocTests.ListByCreator(ctx, adminID)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	return out, nil
}

// Update replaces the editable fields of a variant. Attempts already bound
// to it keep reading it by ID, including after deactivation.
func (s *MocService) Update(ctx context.Context, id uuid.UUID, adminID int, req *model.CreateMocTestRequest) (*model.MocTest, error) {
	m, err := s.Get(ctx, id, adminID)
	if err != nil {
		return nil, err
	}
	applyMocRequest(m, req)
	if err := s.store.MocTests.Update(ctx, m); err != nil {
		return nil, notFound(err, "variant not found")
	}
	return m, nil
}

// Delete removes a variant.
func (s *MocService) Delete(ctx context.Context, id uuid.UUID, adminID int) error {
	if _, err := s.Get(ctx, id, adminID); err != nil {
		return err
	}
	if err := s.store.MocTests.Delete(ctx, id); err != nil {
		return notFound(err, "variant not found")
	}
	return nil
}

// Start opens a MOC session: a new test over the given variants, activated
// immediately.
func (s *MocService) Start(ctx context.Context, adminID int, req *model.StartMocRequest) (*model.Test, error) {
	title := req.Title
	if title == "" {
		title = "MOC Test Session"
	}
	test, err := s.tests.Create(ctx, adminID, &model.CreateTestRequest{
		Title:       title,
		Description: fmt.Sprintf("MOC session over %d variants", len(req.MocIDs)),
		Type:        "moc",
		Duration:    req.Duration,
		MocIDs:      req.MocIDs,
	})
	if err != nil {
		return nil, err
	}
	started, err := s.tests.StartMock(ctx, test.ID, adminID)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("test_id", started.ID.String()).Int("variants", len(req.MocIDs)).Msg("MOC session started")
	return started, nil
}
