package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/apperr"
	"github.com/stemsi/ieltsmock-backend/internal/broker"
	"github.com/stemsi/ieltsmock-backend/internal/config"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

// AccessOutcome tells callers whether Access created a new attempt or
// resumed an existing one.
type AccessOutcome string

const (
	AccessCreated AccessOutcome = "created"
	AccessResumed AccessOutcome = "resumed"
)

// AccessResult is the tagged result of Access.
type AccessResult struct {
	Outcome AccessOutcome  `json:"outcome"`
	Attempt *model.Attempt `json:"attempt"`
}

// SubmitResult wraps a sealed attempt. AlreadySubmitted is set when the call
// found the attempt sealed by an earlier submit.
type SubmitResult struct {
	Attempt          *model.Attempt `json:"attempt"`
	AlreadySubmitted bool           `json:"already_submitted"`
}

// AttemptService implements the attempt lifecycle: access, autosave,
// submission and content resolution.
type AttemptService struct {
	cfg      *config.Config
	store    *repository.Store
	keys     *TestKeyService
	variants *VariantSelector
	broker   broker.Broker
	monitor  *MonitorService
	log      zerolog.Logger
	now      func() time.Time
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	cfg *config.Config,
	store *repository.Store,
	keys *TestKeyService,
	variants *VariantSelector,
	b broker.Broker,
	monitor *MonitorService,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		cfg:      cfg,
		store:    store,
		keys:     keys,
		variants: variants,
		broker:   b,
		monitor:  monitor,
		log:      log.With().Str("component", "attempt_service").Logger(),
		now:      time.Now,
	}
}

// ─── Access ──────────────────────────────────────────────────────────

// Access consumes testKey for fullName and returns the attempt bound to it,
// creating one on first use.
func (s *AttemptService) Access(ctx context.Context, testKey, fullName string) (*AccessResult, error) {
	key := NormalizeKey(testKey)
	name := strings.TrimSpace(fullName)
	if name == "" {
		return nil, apperr.Validation(map[string]string{"full_name": "full_name is required"})
	}

	k, err := s.store.Keys.Get(ctx, key)
	if err != nil {
		return nil, notFound(err, "test key not found")
	}
	if err := checkBindable(k, name); err != nil {
		return nil, err
	}

	test, err := s.store.Tests.GetByID(ctx, k.TestID)
	if err != nil {
		return nil, notFound(err, "test not found")
	}
	if !test.IsActive {
		return nil, apperr.Inactive("test is not active")
	}

	if open, err := s.store.Attempts.FindOpenByKey(ctx, key); err == nil {
		s.publishAttempt(ctx, model.MonitorAttemptResumed, open)
		return &AccessResult{Outcome: AccessResumed, Attempt: open}, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find open attempt: %w", err)
	}

	if latest, err := s.store.Attempts.FindLatestByKey(ctx, key); err == nil && latest.IsSubmitted {
		return nil, apperr.AlreadySubmitted("this test key has already been submitted")
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find latest attempt: %w", err)
	}

	if _, err := s.keys.Consume(ctx, key, name); err != nil {
		return nil, err
	}

	attempt := &model.Attempt{
		ID:          uuid.New(),
		TestID:      test.ID,
		TestKey:     key,
		StudentName: name,
		Answers:     model.NewAnswers(),
		Highlights:  []model.Highlight{},
		Recordings:  []string{},
		StartedAt:   s.now(),
	}

	variant, err := s.variants.Select(ctx, test.MocIDs)
	if err != nil {
		return nil, err
	}
	if variant != nil {
		attempt.AssignedMocID = &variant.ID
	}

	if student, err := s.store.Students.FindByFullName(ctx, name); err == nil {
		attempt.StudentID = &student.ID
	}

	if err := s.store.Attempts.Create(ctx, attempt); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		// A concurrent access created the attempt first.
		open, ferr := s.store.Attempts.FindOpenByKey(ctx, key)
		if ferr != nil {
			return nil, fmt.Errorf("find open attempt after conflict: %w", ferr)
		}
		return &AccessResult{Outcome: AccessResumed, Attempt: open}, nil
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("test_id", test.ID.String()).
		Bool("variant", variant != nil).
		Msg("Attempt created")
	s.publishAttempt(ctx, model.MonitorAttemptStarted, attempt)

	return &AccessResult{Outcome: AccessCreated, Attempt: attempt}, nil
}

// ─── Reads ───────────────────────────────────────────────────────────

// Get returns an attempt by ID.
func (s *AttemptService) Get(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, err := s.store.Attempts.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "attempt not found")
	}
	return a, nil
}

// RemainingSeconds is the exam time left for a, floored at zero.
func RemainingSeconds(a *model.Attempt, durationMinutes int, now time.Time) int {
	if a.IsSubmitted {
		return 0
	}
	left := durationMinutes*60 - int(now.Sub(a.StartedAt)/time.Second)
	return max(left, 0)
}

// Remaining returns the attempt's remaining seconds against its test duration.
func (s *AttemptService) Remaining(ctx context.Context, id uuid.UUID) (int, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	test, err := s.store.Tests.GetByID(ctx, a.TestID)
	if err != nil {
		return 0, notFound(err, "test not found")
	}
	return RemainingSeconds(a, test.Duration, s.now()), nil
}

// GetTestContent resolves the student-facing content of an attempt's test,
// overlaying the assigned variant field by field. Answer keys are never
// included. The result is cached per attempt.
func (s *AttemptService) GetTestContent(ctx context.Context, attemptID uuid.UUID) (*model.TestContent, error) {
	cacheKey := config.CacheKey.AttemptContentKey(attemptID.String())
	if raw, err := s.broker.Get(ctx, cacheKey); err == nil {
		var cached model.TestContent
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
	} else if !errors.Is(err, broker.ErrMiss) {
		s.log.Warn().Err(err).Str("key", cacheKey).Msg("content cache read failed")
	}

	a, err := s.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	test, err := s.store.Tests.GetByID(ctx, a.TestID)
	if err != nil {
		return nil, notFound(err, "test not found")
	}

	content := &model.TestContent{
		TestID:    test.ID,
		Title:     test.Title,
		Type:      test.Type,
		Duration:  test.Duration,
		Reading:   test.Reading,
		Listening: test.Listening,
		Writing:   test.Writing,
	}

	if a.AssignedMocID != nil {
		// Looked up by ID regardless of is_active so the content stays stable.
		variant, err := s.store.MocTests.GetByID(ctx, *a.AssignedMocID)
		switch {
		case err == nil:
			ApplyVariant(content, variant)
		case errors.Is(err, repository.ErrNotFound):
			s.log.Warn().Str("attempt_id", a.ID.String()).Str("moc_id", a.AssignedMocID.String()).
				Msg("assigned variant missing, serving test content")
		default:
			return nil, fmt.Errorf("get variant: %w", err)
		}
	}

	if raw, err := json.Marshal(content); err == nil {
		if err := s.broker.Set(ctx, cacheKey, raw, s.cfg.ContentCacheTTL); err != nil {
			s.log.Warn().Err(err).Str("key", cacheKey).Msg("content cache write failed")
		}
	}
	return content, nil
}

// ApplyVariant overlays the non-empty fields of m onto c.
func ApplyVariant(c *model.TestContent, m *model.MocTest) {
	c.VariantID = &m.ID
	if present(m.ParsedContent.Reading) {
		c.Reading = m.ParsedContent.Reading
	}
	if present(m.ParsedContent.Listening) {
		c.Listening = m.ParsedContent.Listening
	}
	if present(m.WritingTopics) {
		c.Writing = m.WritingTopics
	}
	if m.ListeningAudio != nil && *m.ListeningAudio != "" {
		c.ListeningAudio = m.ListeningAudio
	}
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// ─── Autosave ────────────────────────────────────────────────────────

// SaveSection merges answers into one section. Keys not present in answers
// keep their saved values, so repeated or reordered saves are safe.
func (s *AttemptService) SaveSection(ctx context.Context, attemptID uuid.UUID, section model.Section, answers model.SectionAnswers) (*model.Attempt, error) {
	if !section.Valid() {
		return nil, apperr.Validation(map[string]string{"section": "section must be one of reading, listening, writing"})
	}
	if answers == nil {
		answers = model.SectionAnswers{}
	}

	a, err := s.store.Attempts.MergeSection(ctx, attemptID, section, answers, s.now())
	if err != nil {
		return nil, s.explainGuard(ctx, attemptID, err)
	}

	s.monitor.Publish(ctx, model.MonitorEvent{
		Type:        model.MonitorAttemptSaved,
		TestID:      a.TestID,
		AttemptID:   &a.ID,
		StudentName: a.StudentName,
		Section:     section,
	})
	return a, nil
}

// SaveHighlights replaces the highlight list.
func (s *AttemptService) SaveHighlights(ctx context.Context, attemptID uuid.UUID, highlights []model.Highlight) (*model.Attempt, error) {
	if fields := validateHighlights(highlights); len(fields) > 0 {
		return nil, apperr.Validation(fields)
	}
	if highlights == nil {
		highlights = []model.Highlight{}
	}

	a, err := s.store.Attempts.ReplaceHighlights(ctx, attemptID, highlights, s.now())
	if err != nil {
		return nil, s.explainGuard(ctx, attemptID, err)
	}
	return a, nil
}

func validateHighlights(highlights []model.Highlight) map[string]string {
	fields := map[string]string{}
	for i, h := range highlights {
		prefix := "highlights[" + strconv.Itoa(i) + "]"
		if h.Section != "" && !h.Section.Valid() {
			fields[prefix+".section"] = "section must be one of reading, listening, writing"
		}
		if h.Start < 0 {
			fields[prefix+".start"] = "start must be 0 or greater"
		}
		if h.End < h.Start {
			fields[prefix+".end"] = "end must be greater than or equal to start"
		}
	}
	return fields
}

// AddRecording appends a speaking recording URL.
func (s *AttemptService) AddRecording(ctx context.Context, attemptID uuid.UUID, url string) (*model.Attempt, error) {
	a, err := s.store.Attempts.AppendRecording(ctx, attemptID, url, s.now())
	if err != nil {
		return nil, s.explainGuard(ctx, attemptID, err)
	}
	return a, nil
}

// RecordViolation queues an anti-cheat event for persistence and notifies
// the monitor. Violations never affect the attempt itself.
func (s *AttemptService) RecordViolation(ctx context.Context, a *model.Attempt, kind model.ViolationKind, detail string) {
	v := model.Violation{
		AttemptID:  a.ID,
		TestID:     a.TestID,
		Kind:       kind,
		Detail:     detail,
		RecordedAt: s.now(),
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal violation")
		return
	}
	if err := s.broker.Push(ctx, config.WorkerKey.PersistViolationsQueue, payload); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("queue violation failed")
	}
	s.monitor.Publish(ctx, model.MonitorEvent{
		Type:        model.MonitorViolation,
		TestID:      a.TestID,
		AttemptID:   &a.ID,
		StudentName: a.StudentName,
		Violation:   kind,
	})
}

// explainGuard converts a failed guarded write into NotFound or
// AlreadySubmitted.
func (s *AttemptService) explainGuard(ctx context.Context, attemptID uuid.UUID, err error) error {
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	a, gerr := s.store.Attempts.GetByID(ctx, attemptID)
	if gerr != nil {
		return notFound(gerr, "attempt not found")
	}
	if a.IsSubmitted {
		return apperr.AlreadySubmitted("attempt has already been submitted")
	}
	return fmt.Errorf("attempt %s: guarded update matched no row", attemptID)
}

// ─── Submit ──────────────────────────────────────────────────────────

// Submit seals the attempt. Submitting a sealed attempt is a no-op that
// returns it with AlreadySubmitted set, since the client timer and a manual
// submit can race.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID) (*SubmitResult, error) {
	a, err := s.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.IsSubmitted {
		return &SubmitResult{Attempt: a, AlreadySubmitted: true}, nil
	}

	now := s.now()
	duration := max(int(now.Sub(a.StartedAt)/time.Second), 0)

	sealed, err := s.store.Attempts.Seal(ctx, attemptID, now, duration)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("seal attempt: %w", err)
		}
		current, gerr := s.Get(ctx, attemptID)
		if gerr != nil {
			return nil, gerr
		}
		return &SubmitResult{Attempt: current, AlreadySubmitted: true}, nil
	}

	s.enqueueGrading(ctx, sealed.ID)
	if err := s.broker.Del(ctx, config.CacheKey.AttemptContentKey(sealed.ID.String())); err != nil {
		s.log.Warn().Err(err).Msg("content cache delete failed")
	}
	s.log.Info().Str("attempt_id", sealed.ID.String()).Int("duration", sealed.Duration).Msg("Attempt submitted")
	s.publishAttempt(ctx, model.MonitorAttemptSubmitted, sealed)

	return &SubmitResult{Attempt: sealed}, nil
}

func (s *AttemptService) enqueueGrading(ctx context.Context, id uuid.UUID) {
	payload, _ := json.Marshal(model.GradeJob{AttemptID: id})
	if err := s.broker.Push(ctx, config.WorkerKey.GradeAttemptsQueue, payload); err != nil {
		s.log.Error().Err(err).Str("attempt_id", id.String()).Msg("enqueue grading failed")
	}
}

func (s *AttemptService) publishAttempt(ctx context.Context, typ model.MonitorEventType, a *model.Attempt) {
	s.monitor.Publish(ctx, model.MonitorEvent{
		Type:        typ,
		TestID:      a.TestID,
		AttemptID:   &a.ID,
		StudentName: a.StudentName,
	})
}
