package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/ieltsmock-backend/internal/model"
	"github.com/stemsi/ieltsmock-backend/internal/repository"
)

// ImportStats counts what an import created and what it skipped.
type ImportStats struct {
	Admins   int `json:"admins"`
	Students int `json:"students"`
	MocTests int `json:"moc_tests"`
	Tests    int `json:"tests"`
	Keys     int `json:"keys"`
	Attempts int `json:"attempts"`
	Queue    int `json:"queue"`
	Skipped  int `json:"skipped"`
}

// Importer copies a legacy Document into a repository.Store. Records that
// already exist are linked rather than duplicated, so an import can be rerun.
type Importer struct {
	store *repository.Store
	log   zerolog.Logger
	now   func() time.Time

	admins   map[string]int
	students map[string]int
	fallback int
}

// NewImporter creates a new Importer.
func NewImporter(store *repository.Store, log zerolog.Logger) *Importer {
	return &Importer{
		store:    store,
		log:      log.With().Str("component", "docstore_import").Logger(),
		now:      time.Now,
		admins:   map[string]int{},
		students: map[string]int{},
	}
}

// Import runs every collection in dependency order.
func (im *Importer) Import(ctx context.Context, doc *Document) (*ImportStats, error) {
	EnsureStructure(doc)
	stats := &ImportStats{}

	steps := []func(context.Context, *Document, *ImportStats) error{
		im.importAccounts,
		im.importMocTests,
		im.importTests,
		im.importKeys,
		im.importAttempts,
		im.importQueue,
	}
	for _, step := range steps {
		if err := step(ctx, doc, stats); err != nil {
			return stats, err
		}
	}

	im.log.Info().Interface("stats", stats).Msg("Legacy document imported")
	return stats, nil
}

// ─── Accounts ────────────────────────────────────────────────────────

func (im *Importer) importAccounts(ctx context.Context, doc *Document, stats *ImportStats) error {
	add := func(acc Account, role model.AdminRole) error {
		admin := &model.Admin{
			Email:        strings.TrimSpace(acc.Identity()),
			Name:         acc.Name,
			PasswordHash: acc.Password,
			Role:         role,
			IsActive:     acc.IsActive == nil || *acc.IsActive,
		}
		if admin.Name == "" {
			admin.Name = admin.Email
		}

		err := im.store.Admins.Create(ctx, admin)
		switch {
		case err == nil:
			stats.Admins++
		case errors.Is(err, repository.ErrDuplicate):
			existing, gerr := im.store.Admins.GetByEmail(ctx, admin.Email)
			if gerr != nil {
				return fmt.Errorf("lookup admin %s: %w", admin.Email, gerr)
			}
			admin = existing
			stats.Skipped++
		default:
			return fmt.Errorf("create admin %s: %w", admin.Email, err)
		}

		im.admins[acc.ID] = admin.ID
		if role == model.AdminRoleOwner && im.fallback == 0 {
			im.fallback = admin.ID
		}
		return nil
	}

	for _, o := range doc.Owners {
		if err := add(o, model.AdminRoleOwner); err != nil {
			return err
		}
	}
	for _, a := range doc.Admins {
		if err := add(a, model.AdminRoleAdmin); err != nil {
			return err
		}
	}

	for _, acc := range doc.Students {
		s := &model.Student{
			Email:        strings.TrimSpace(acc.Identity()),
			FullName:     strings.TrimSpace(acc.FullName),
			PasswordHash: acc.Password,
		}
		err := im.store.Students.Create(ctx, s)
		switch {
		case err == nil:
			stats.Students++
		case errors.Is(err, repository.ErrDuplicate):
			existing, gerr := im.store.Students.GetByEmail(ctx, s.Email)
			if gerr != nil {
				return fmt.Errorf("lookup student %s: %w", s.Email, gerr)
			}
			s = existing
			stats.Skipped++
		default:
			return fmt.Errorf("create student %s: %w", s.Email, err)
		}
		im.students[acc.ID] = s.ID
	}
	return nil
}

// owner resolves a legacy creator id, falling back to the first owner for
// records whose creator is gone.
func (im *Importer) owner(legacyID string) (int, bool) {
	if id, ok := im.admins[legacyID]; ok {
		return id, true
	}
	return im.fallback, im.fallback != 0
}

// ─── Content ─────────────────────────────────────────────────────────

func (im *Importer) importMocTests(ctx context.Context, doc *Document, stats *ImportStats) error {
	for _, m := range doc.MocTests {
		id, err := uuid.Parse(m.ID)
		if err != nil {
			im.skip(stats, "moc_test", m.ID, "invalid id")
			continue
		}
		creator, ok := im.owner(m.CreatedBy)
		if !ok {
			im.skip(stats, "moc_test", m.ID, "unknown creator")
			continue
		}

		var parsed model.ParsedContent
		if len(m.ParsedContent) > 0 && string(m.ParsedContent) != "null" {
			if err := json.Unmarshal(m.ParsedContent, &parsed); err != nil {
				im.skip(stats, "moc_test", m.ID, "unreadable parsed content")
				continue
			}
		}

		err = im.store.MocTests.Create(ctx, &model.MocTest{
			ID:             id,
			Title:          m.Title,
			Type:           defaultString(m.Type, "moc"),
			ReadingFile:    m.ReadingFile,
			ListeningFile:  m.ListeningFile,
			ListeningAudio: m.ListeningAudio,
			WritingTopics:  nullable(m.WritingTopics),
			AnswerKey:      answerKey(m.AnswerKey),
			ParsedContent:  parsed,
			IsActive:       m.IsActive,
			CreatedBy:      creator,
		})
		if err := im.count(err, &stats.MocTests, stats); err != nil {
			return fmt.Errorf("create moc test %s: %w", m.ID, err)
		}
	}
	return nil
}

func (im *Importer) importTests(ctx context.Context, doc *Document, stats *ImportStats) error {
	for _, t := range doc.Tests {
		id, err := uuid.Parse(t.ID)
		if err != nil {
			im.skip(stats, "test", t.ID, "invalid id")
			continue
		}
		creator, ok := im.owner(t.CreatedBy)
		if !ok {
			im.skip(stats, "test", t.ID, "unknown creator")
			continue
		}

		mocIDs := make([]uuid.UUID, 0, len(t.MocIDs))
		for _, raw := range t.MocIDs {
			if mid, err := uuid.Parse(raw); err == nil {
				mocIDs = append(mocIDs, mid)
			}
		}

		test := &model.Test{
			ID:          id,
			Title:       t.Title,
			Description: t.Description,
			Type:        defaultString(t.Type, "academic"),
			Reading:     nullable(t.Reading),
			Listening:   nullable(t.Listening),
			Writing:     nullable(t.Writing),
			AnswerKey:   answerKey(t.AnswerKey),
			Duration:    t.Duration,
			MocIDs:      mocIDs,
			CreatedBy:   creator,
		}
		if test.Duration <= 0 {
			test.Duration = model.DefaultTestDuration
		}

		err = im.store.Tests.Create(ctx, test)
		if errors.Is(err, repository.ErrDuplicate) {
			stats.Skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("create test %s: %w", t.ID, err)
		}
		stats.Tests++

		if t.IsActive {
			if _, err := im.store.Tests.SetActive(ctx, id, true, im.timeOr(t.StartedAt)); err != nil {
				return fmt.Errorf("activate test %s: %w", t.ID, err)
			}
		}
	}
	return nil
}

// ─── Keys and attempts ───────────────────────────────────────────────

func (im *Importer) importKeys(ctx context.Context, doc *Document, stats *ImportStats) error {
	for _, k := range doc.TestKeys {
		testID, err := uuid.Parse(k.TestID)
		if err != nil {
			im.skip(stats, "test_key", k.Key, "invalid test id")
			continue
		}
		creator, ok := im.owner(k.AdminID)
		if !ok {
			im.skip(stats, "test_key", k.Key, "unknown creator")
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(k.Key))

		err = im.store.Keys.Create(ctx, &model.TestKey{Key: key, TestID: testID, CreatedBy: creator, IsActive: true})
		if errors.Is(err, repository.ErrDuplicate) {
			stats.Skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("create key %s: %w", key, err)
		}
		stats.Keys++

		if k.UsedBy != nil {
			if _, err := im.store.Keys.Bind(ctx, key, strings.TrimSpace(*k.UsedBy), im.timeOr(k.UsedAt)); err != nil {
				return fmt.Errorf("bind key %s: %w", key, err)
			}
		}
		if !k.IsActive {
			if _, err := im.store.Keys.Deactivate(ctx, key); err != nil {
				return fmt.Errorf("deactivate key %s: %w", key, err)
			}
		}
	}
	return nil
}

func (im *Importer) importAttempts(ctx context.Context, doc *Document, stats *ImportStats) error {
	for _, a := range doc.Attempts {
		id, err := uuid.Parse(a.ID)
		if err != nil {
			im.skip(stats, "attempt", a.ID, "invalid id")
			continue
		}
		testID, err := uuid.Parse(a.TestID)
		if err != nil {
			im.skip(stats, "attempt", a.ID, "invalid test id")
			continue
		}

		attempt := &model.Attempt{
			ID:          id,
			TestID:      testID,
			TestKey:     strings.ToUpper(strings.TrimSpace(a.TestKey)),
			StudentName: strings.TrimSpace(a.StudentName),
			Answers:     model.NewAnswers(),
			Highlights:  []model.Highlight{},
			Recordings:  []string{},
			StartedAt:   im.timeOr(&a.StartedAt),
		}
		if a.StudentID != nil {
			if sid, ok := im.students[*a.StudentID]; ok {
				attempt.StudentID = &sid
			}
		}
		for _, s := range model.Sections {
			if values, ok := a.Answers[string(s)]; ok {
				attempt.Answers.Merge(s, model.SectionAnswers(values))
			}
		}
		if len(a.Highlights) > 0 {
			if err := json.Unmarshal(a.Highlights, &attempt.Highlights); err != nil {
				im.log.Warn().Str("attempt_id", a.ID).Msg("Dropping unreadable highlights")
				attempt.Highlights = []model.Highlight{}
			}
		}

		err = im.store.Attempts.Create(ctx, attempt)
		if errors.Is(err, repository.ErrDuplicate) {
			stats.Skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("create attempt %s: %w", a.ID, err)
		}
		stats.Attempts++

		// Highlights are rewritten to carry the legacy last-saved stamp.
		if a.LastSaved != nil {
			if _, err := im.store.Attempts.ReplaceHighlights(ctx, id, attempt.Highlights, im.timeOr(a.LastSaved)); err != nil {
				return fmt.Errorf("stamp attempt %s: %w", a.ID, err)
			}
		}
		if a.IsSubmitted {
			if _, err := im.store.Attempts.Seal(ctx, id, im.timeOr(a.SubmittedAt), a.Duration); err != nil {
				return fmt.Errorf("seal attempt %s: %w", a.ID, err)
			}
		}
	}
	return nil
}

// ─── Queue ───────────────────────────────────────────────────────────

// importQueue carries over only live entries; finished ones would be
// removed by the next sweep anyway.
func (im *Importer) importQueue(ctx context.Context, doc *Document, stats *ImportStats) error {
	for _, q := range doc.Queue {
		status := model.QueueStatus(q.Status)
		if status != model.QueueStatusWaiting && status != model.QueueStatusAssigned && status != model.QueueStatusPreparation {
			stats.Skipped++
			continue
		}
		id, err := uuid.Parse(q.ID)
		if err != nil {
			im.skip(stats, "queue", q.ID, "invalid id")
			continue
		}
		testID, err := uuid.Parse(q.TestID)
		if err != nil {
			im.skip(stats, "queue", q.ID, "invalid test id")
			continue
		}
		studentID, ok := im.students[q.StudentID]
		if !ok {
			im.skip(stats, "queue", q.ID, "unknown student")
			continue
		}

		entry := &model.QueueEntry{
			ID:        id,
			StudentID: studentID,
			TestCode:  strings.ToUpper(strings.TrimSpace(q.TestCode)),
			TestID:    testID,
			Status:    model.QueueStatusWaiting,
			JoinedAt:  im.timeOr(&q.JoinedAt),
		}
		if q.AssignedAt != nil {
			entry.Stamp(model.QueueStatusAssigned, im.timeOr(q.AssignedAt))
		}
		if err := im.store.Queue.Replace(ctx, entry); err != nil {
			return fmt.Errorf("create queue entry %s: %w", q.ID, err)
		}
		if status == model.QueueStatusPreparation {
			if _, err := im.store.Queue.Transition(ctx, id, status, im.timeOr(q.PreparationStartedAt)); err != nil {
				return fmt.Errorf("restore queue entry %s: %w", q.ID, err)
			}
		}
		stats.Queue++
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────

func (im *Importer) count(err error, n *int, stats *ImportStats) error {
	switch {
	case err == nil:
		*n++
		return nil
	case errors.Is(err, repository.ErrDuplicate):
		stats.Skipped++
		return nil
	default:
		return err
	}
}

func (im *Importer) skip(stats *ImportStats, kind, id, reason string) {
	stats.Skipped++
	im.log.Warn().Str("kind", kind).Str("id", id).Str("reason", reason).Msg("Skipping legacy record")
}

// timeOr parses a legacy ISO-8601 stamp, using the current time when it is
// missing or malformed.
func (im *Importer) timeOr(raw *string) time.Time {
	if raw != nil && *raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, *raw); err == nil {
			return t
		}
	}
	return im.now()
}

func answerKey(raw map[string]map[string]any) model.AnswerKey {
	out := model.AnswerKey{}
	for section, answers := range raw {
		s := model.Section(section)
		if !s.Valid() {
			continue
		}
		m := make(map[string]string, len(answers))
		for q, v := range answers {
			switch val := v.(type) {
			case string:
				m[q] = val
			case []any:
				parts := make([]string, 0, len(val))
				for _, p := range val {
					parts = append(parts, fmt.Sprint(p))
				}
				m[q] = strings.Join(parts, "|")
			default:
				m[q] = fmt.Sprint(val)
			}
		}
		out[s] = m
	}
	return out
}

func nullable(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
