package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/ieltsmock-backend/internal/model"
)

// Storage-level errors. Services translate these into domain errors.
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// TestRepository persists test definitions.
type TestRepository interface {
	Create(ctx context.Context, t *model.Test) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error)
	Update(ctx context.Context, t *model.Test) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCreator(ctx context.Context, adminID, page, perPage int) ([]model.Test, int, error)
	// SetActive flips is_active and stamps started_at or ended_at.
	SetActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) (*model.Test, error)
}

// MocTestRepository persists content variants.
type MocTestRepository interface {
	Create(ctx context.Context, m *model.MocTest) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.MocTest, error)
	// GetMany returns the variants found for ids, in ids order.
	GetMany(ctx context.Context, ids []uuid.UUID) ([]model.MocTest, error)
	Update(ctx context.Context, m *model.MocTest) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByCreator(ctx context.Context, adminID int) ([]model.MocTest, error)
}

// TestKeyRepository persists access keys.
type TestKeyRepository interface {
	// Create returns ErrDuplicate when the key string is taken.
	Create(ctx context.Context, k *model.TestKey) error
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (*model.TestKey, error)
	// Bind sets used_by/used_at when the key is active and unused or already
	// used by name. It returns ErrNotFound when the guard does not hold.
	Bind(ctx context.Context, key, name string, at time.Time) (*model.TestKey, error)
	Deactivate(ctx context.Context, key string) (*model.TestKey, error)
	ListByCreator(ctx context.Context, adminID int) ([]model.TestKeyListItem, error)
}

// AttemptRepository persists attempts. Mutations on a sealed attempt return
// ErrNotFound; callers disambiguate with GetByID.
type AttemptRepository interface {
	// Create returns ErrDuplicate when an unsubmitted attempt already exists
	// for the key.
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	FindOpenByKey(ctx context.Context, key string) (*model.Attempt, error)
	FindLatestByKey(ctx context.Context, key string) (*model.Attempt, error)
	MergeSection(ctx context.Context, id uuid.UUID, section model.Section, answers model.SectionAnswers, at time.Time) (*model.Attempt, error)
	ReplaceHighlights(ctx context.Context, id uuid.UUID, highlights []model.Highlight, at time.Time) (*model.Attempt, error)
	AppendRecording(ctx context.Context, id uuid.UUID, url string, at time.Time) (*model.Attempt, error)
	Seal(ctx context.Context, id uuid.UUID, submittedAt time.Time, duration int) (*model.Attempt, error)
	SaveScores(ctx context.Context, scores map[uuid.UUID]*model.Scores) error
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Attempt, error)
	ListResultsByCreator(ctx context.Context, adminID int, testID *uuid.UUID) ([]model.AttemptResult, error)
	ListResultsByStudent(ctx context.Context, studentID int) ([]model.AttemptResult, error)
	SummarizeStudents(ctx context.Context, adminID int) ([]model.StudentSummary, error)
}

// QueueRepository persists waiting-queue entries.
type QueueRepository interface {
	// Replace removes the student's current non-left entry and inserts e
	// atomically.
	Replace(ctx context.Context, e *model.QueueEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error)
	FindActiveByStudent(ctx context.Context, studentID int) (*model.QueueEntry, error)
	Transition(ctx context.Context, id uuid.UUID, status model.QueueStatus, at time.Time) (*model.QueueEntry, error)
	// MarkByStudent moves the student's entry to status unless it is left or
	// started. It returns ErrNotFound when nothing was updated.
	MarkByStudent(ctx context.Context, studentID int, status model.QueueStatus, at time.Time) (*model.QueueEntry, error)
	// PromoteByTest moves every entry of testID in one of from to status.
	PromoteByTest(ctx context.Context, testID uuid.UUID, from []model.QueueStatus, to model.QueueStatus, at time.Time) ([]model.QueueEntry, error)
	// Sweep times out waiting/assigned entries joined before cutoff and then
	// removes every started, left and timed-out entry.
	Sweep(ctx context.Context, cutoff, at time.Time) (timedOut []model.QueueEntry, removed int, err error)
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.QueueEntry, error)
}

// AdminRepository persists admins and the owner.
type AdminRepository interface {
	Create(ctx context.Context, a *model.Admin) error
	GetByID(ctx context.Context, id int) (*model.Admin, error)
	GetByEmail(ctx context.Context, email string) (*model.Admin, error)
	List(ctx context.Context, role model.AdminRole) ([]model.Admin, error)
	SetActive(ctx context.Context, id int, active bool) error
	UpdatePassword(ctx context.Context, id int, hash string) error
	Delete(ctx context.Context, id int) error
	Stats(ctx context.Context) ([]model.AdminStats, error)
}

// StudentRepository persists registered students.
type StudentRepository interface {
	Create(ctx context.Context, s *model.Student) error
	GetByID(ctx context.Context, id int) (*model.Student, error)
	GetByEmail(ctx context.Context, email string) (*model.Student, error)
	FindByFullName(ctx context.Context, name string) (*model.Student, error)
	UpdateFullName(ctx context.Context, id int, name string) (*model.Student, error)
}

// ViolationRepository persists anti-cheat events.
type ViolationRepository interface {
	InsertBatch(ctx context.Context, batch []model.Violation) error
	Insert(ctx context.Context, v *model.Violation) error
	CountByTest(ctx context.Context, testID uuid.UUID) (map[uuid.UUID]int, error)
}

// Store bundles every repository behind one value.
type Store struct {
	Tests      TestRepository
	MocTests   MocTestRepository
	Keys       TestKeyRepository
	Attempts   AttemptRepository
	Queue      QueueRepository
	Admins     AdminRepository
	Students   StudentRepository
	Violations ViolationRepository
}

// NewPostgresStore wires the Postgres repositories over one pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Tests:      NewTestRepository(pool),
		MocTests:   NewMocTestRepository(pool),
		Keys:       NewTestKeyRepository(pool),
		Attempts:   NewAttemptRepository(pool),
		Queue:      NewQueueRepository(pool),
		Admins:     NewAdminRepository(pool),
		Students:   NewStudentRepository(pool),
		Violations: NewViolationRepository(pool),
	}
}

// ─── pgx helpers ─────────────────────────────────────────────────────

const uniqueViolation = "23505"

// translate maps pgx errors onto the storage-level sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

func offset(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	return (page - 1) * perPage, perPage
}
