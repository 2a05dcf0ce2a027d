package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/ieltsmock-backend/internal/model"
)

const attemptColumns = `id, test_id, test_key, student_name, student_id, assigned_moc_id, answers,
	highlights, recordings, scores, started_at, last_saved, submitted_at, is_submitted, duration`

// PgAttemptRepository handles attempt data access. Every mutation is a single
// guarded UPDATE so concurrent saves and submits cannot lose each other's writes.
type PgAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new PgAttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *PgAttemptRepository {
	return &PgAttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.TestID, &a.TestKey, &a.StudentName, &a.StudentID, &a.AssignedMocID,
		&a.Answers, &a.Highlights, &a.Recordings, &a.Scores, &a.StartedAt, &a.LastSaved,
		&a.SubmittedAt, &a.IsSubmitted, &a.Duration)
	if err != nil {
		return nil, translate(err)
	}
	if a.Highlights == nil {
		a.Highlights = []model.Highlight{}
	}
	if a.Recordings == nil {
		a.Recordings = []string{}
	}
	return a, nil
}

func collectAttempts(rows pgx.Rows) ([]model.Attempt, error) {
	defer rows.Close()
	out := make([]model.Attempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Create inserts an attempt. The partial unique index on (test_key) WHERE NOT
// is_submitted turns a concurrent second creation into ErrDuplicate.
func (r *PgAttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempts (id, test_id, test_key, student_name, student_id, assigned_moc_id,
		                       answers, highlights, recordings, started_at, is_submitted, duration)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, 0)`,
		a.ID, a.TestID, a.TestKey, a.StudentName, a.StudentID, a.AssignedMocID,
		a.Answers, a.Highlights, a.Recordings, a.StartedAt,
	)
	return translate(err)
}

// GetByID retrieves an attempt.
func (r *PgAttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// FindOpenByKey returns the unsubmitted attempt for a key.
func (r *PgAttemptRepository) FindOpenByKey(ctx context.Context, key string) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE test_key = $1 AND NOT is_submitted`, key))
}

// FindLatestByKey returns the most recent attempt for a key, sealed or not.
func (r *PgAttemptRepository) FindLatestByKey(ctx context.Context, key string) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE test_key = $1 ORDER BY started_at DESC LIMIT 1`, key))
}

// MergeSection overlays answers onto one section key by key.
func (r *PgAttemptRepository) MergeSection(ctx context.Context, id uuid.UUID, section model.Section, answers model.SectionAnswers, at time.Time) (*model.Attempt, error) {
	if answers == nil {
		answers = model.SectionAnswers{}
	}
	return scanAttempt(r.pool.QueryRow(ctx,
		`UPDATE attempts
		 SET answers = jsonb_set(answers, ARRAY[$2::text],
		                         COALESCE(answers -> $2::text, '{}'::jsonb) || $3::jsonb, true),
		     last_saved = $4
		 WHERE id = $1 AND NOT is_submitted
		 RETURNING `+attemptColumns, id, string(section), answers, at))
}

// ReplaceHighlights overwrites the highlight list.
func (r *PgAttemptRepository) ReplaceHighlights(ctx context.Context, id uuid.UUID, highlights []model.Highlight, at time.Time) (*model.Attempt, error) {
	if highlights == nil {
		highlights = []model.Highlight{}
	}
	return scanAttempt(r.pool.QueryRow(ctx,
		`UPDATE attempts SET highlights = $2::jsonb, last_saved = $3
		 WHERE id = $1 AND NOT is_submitted
		 RETURNING `+attemptColumns, id, highlights, at))
}

// AppendRecording adds a speaking recording URL.
func (r *PgAttemptRepository) AppendRecording(ctx context.Context, id uuid.UUID, url string, at time.Time) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`UPDATE attempts SET recordings = array_append(recordings, $2), last_saved = $3
		 WHERE id = $1 AND NOT is_submitted
		 RETURNING `+attemptColumns, id, url, at))
}

// Seal submits the attempt exactly once.
func (r *PgAttemptRepository) Seal(ctx context.Context, id uuid.UUID, submittedAt time.Time, duration int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`UPDATE attempts SET is_submitted = TRUE, submitted_at = $2, duration = $3
		 WHERE id = $1 AND NOT is_submitted
		 RETURNING `+attemptColumns, id, submittedAt, duration))
}

// SaveScores bulk-updates grading output using UNNEST.
func (r *PgAttemptRepository) SaveScores(ctx context.Context, scores map[uuid.UUID]*model.Scores) error {
	if len(scores) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(scores))
	docs := make([]string, 0, len(scores))
	for id, s := range scores {
		raw, err := json.Marshal(s)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		docs = append(docs, string(raw))
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE attempts AS a
		 SET scores = u.scores::jsonb
		 FROM UNNEST($1::uuid[], $2::text[]) AS u (id, scores)
		 WHERE a.id = u.id`, ids, docs)
	return err
}

// ListByTest returns every attempt of a test, oldest first.
func (r *PgAttemptRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE test_id = $1 ORDER BY started_at`, testID)
	if err != nil {
		return nil, err
	}
	return collectAttempts(rows)
}

// ListResultsByCreator returns reporting rows for attempts made with the
// admin's keys, optionally narrowed to one test.
func (r *PgAttemptRepository) ListResultsByCreator(ctx context.Context, adminID int, testID *uuid.UUID) ([]model.AttemptResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.test_key, t.title, a.student_name, a.started_at, a.submitted_at,
		        a.is_submitted, a.duration, a.scores
		 FROM attempts a
		 JOIN test_keys k ON k.key = a.test_key
		 JOIN tests t ON t.id = a.test_id
		 WHERE k.created_by = $1 AND ($2::uuid IS NULL OR a.test_id = $2)
		 ORDER BY a.started_at DESC`, adminID, testID)
	if err != nil {
		return nil, err
	}
	return collectResults(rows)
}

// ListResultsByStudent returns a registered student's attempt history.
func (r *PgAttemptRepository) ListResultsByStudent(ctx context.Context, studentID int) ([]model.AttemptResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.test_key, t.title, a.student_name, a.started_at, a.submitted_at,
		        a.is_submitted, a.duration, a.scores
		 FROM attempts a
		 JOIN tests t ON t.id = a.test_id
		 WHERE a.student_id = $1
		 ORDER BY a.started_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	return collectResults(rows)
}

func collectResults(rows pgx.Rows) ([]model.AttemptResult, error) {
	defer rows.Close()
	out := make([]model.AttemptResult, 0)
	for rows.Next() {
		var res model.AttemptResult
		if err := rows.Scan(&res.ID, &res.TestKey, &res.TestTitle, &res.StudentName, &res.StartedAt,
			&res.SubmittedAt, &res.IsSubmitted, &res.Duration, &res.Scores); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// SummarizeStudents groups the admin's attempts by candidate name.
func (r *PgAttemptRepository) SummarizeStudents(ctx context.Context, adminID int) ([]model.StudentSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.student_name,
		        COUNT(*),
		        COUNT(*) FILTER (WHERE a.is_submitted),
		        MAX(a.started_at)
		 FROM attempts a
		 JOIN test_keys k ON k.key = a.test_key
		 WHERE k.created_by = $1
		 GROUP BY a.student_name
		 ORDER BY MAX(a.started_at) DESC`, adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.StudentSummary, 0)
	for rows.Next() {
		var s model.StudentSummary
		if err := rows.Scan(&s.Name, &s.TotalAttempts, &s.CompletedAttempts, &s.LastAttempt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
