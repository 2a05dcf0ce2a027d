package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/ieltsmock-backend/internal/model"
)

const testColumns = `id, title, description, type, reading, listening, writing, answer_key,
	duration, is_active, moc_ids, created_by, started_at, ended_at, created_at, updated_at`

// PgTestRepository handles test data access.
type PgTestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new PgTestRepository.
func NewTestRepository(pool *pgxpool.Pool) *PgTestRepository {
	return &PgTestRepository{pool: pool}
}

func scanTest(row pgx.Row) (*model.Test, error) {
	t := &model.Test{}
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Type, &t.Reading, &t.Listening, &t.Writing,
		&t.AnswerKey, &t.Duration, &t.IsActive, &t.MocIDs, &t.CreatedBy, &t.StartedAt, &t.EndedAt,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

// Create inserts a new test.
func (r *PgTestRepository) Create(ctx context.Context, t *model.Test) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO tests (id, title, description, type, reading, listening, writing, answer_key,
		                    duration, is_active, moc_ids, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at, updated_at`,
		t.ID, t.Title, t.Description, t.Type, t.Reading, t.Listening, t.Writing, t.AnswerKey,
		t.Duration, t.IsActive, t.MocIDs, t.CreatedBy,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

// GetByID retrieves a test by ID.
func (r *PgTestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	return scanTest(r.pool.QueryRow(ctx, `SELECT `+testColumns+` FROM tests WHERE id = $1`, id))
}

// Update overwrites the editable fields of a test.
func (r *PgTestRepository) Update(ctx context.Context, t *model.Test) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE tests
		 SET title = $2, description = $3, type = $4, reading = $5, listening = $6, writing = $7,
		     answer_key = $8, duration = $9, moc_ids = $10, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		t.ID, t.Title, t.Description, t.Type, t.Reading, t.Listening, t.Writing,
		t.AnswerKey, t.Duration, t.MocIDs,
	).Scan(&t.UpdatedAt)
	return translate(err)
}

// Delete removes a test and, by cascade, its keys, attempts and queue entries.
func (r *PgTestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByCreator returns a page of the admin's tests, newest first.
func (r *PgTestRepository) ListByCreator(ctx context.Context, adminID, page, perPage int) ([]model.Test, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tests WHERE created_by = $1`, adminID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	off, limit := offset(page, perPage)
	rows, err := r.pool.Query(ctx,
		`SELECT `+testColumns+` FROM tests
		 WHERE created_by = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, adminID, limit, off)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tests := make([]model.Test, 0)
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, 0, err
		}
		tests = append(tests, *t)
	}
	return tests, total, rows.Err()
}

// SetActive activates or deactivates a test. Activation stamps started_at and
// clears ended_at; deactivation stamps ended_at.
func (r *PgTestRepository) SetActive(ctx context.Context, id uuid.UUID, active bool, at time.Time) (*model.Test, error) {
	return scanTest(r.pool.QueryRow(ctx,
		`UPDATE tests
		 SET is_active = $2,
		     started_at = CASE WHEN $2 THEN $3 ELSE started_at END,
		     ended_at = CASE WHEN $2 THEN NULL ELSE $3 END,
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+testColumns, id, active, at))
}
