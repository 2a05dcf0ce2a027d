package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/ieltsmock-backend/internal/model"
)

const mocColumns = `id, title, type, reading_file, listening_file, listening_audio, writing_topics,
	answer_key, parsed_content, is_active, created_by, created_at, updated_at`

// PgMocTestRepository handles variant data access.
type PgMocTestRepository struct {
	pool *pgxpool.Pool
}

// NewMocTestRepository creates a new PgMocTestRepository.
func NewMocTestRepository(pool *pgxpool.Pool) *PgMocTestRepository {
	return &PgMocTestRepository{pool: pool}
}

func scanMoc(row pgx.Row) (*model.MocTest, error) {
	m := &model.MocTest{}
	err := row.Scan(&m.ID, &m.Title, &m.Type, &m.ReadingFile, &m.ListeningFile, &m.ListeningAudio,
		&m.WritingTopics, &m.AnswerKey, &m.ParsedContent, &m.IsActive, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return m, nil
}

// Create inserts a variant.
func (r *PgMocTestRepository) Create(ctx context.Context, m *model.MocTest) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO moc_tests (id, title, type, reading_file, listening_file, listening_audio,
		                        writing_topics, answer_key, parsed_content, is_active, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		m.ID, m.Title, m.Type, m.ReadingFile, m.ListeningFile, m.ListeningAudio,
		m.WritingTopics, m.AnswerKey, m.ParsedContent, m.IsActive, m.CreatedBy,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

// GetByID retrieves a variant regardless of its active flag.
func (r *PgMocTestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.MocTest, error) {
	return scanMoc(r.pool.QueryRow(ctx, `SELECT `+mocColumns+` FROM moc_tests WHERE id = $1`, id))
}

// GetMany returns the variants for ids preserving the order of ids. Unknown
// ids are skipped.
func (r *PgMocTestRepository) GetMany(ctx context.Context, ids []uuid.UUID) ([]model.MocTest, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+mocColumns+` FROM moc_tests WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]model.MocTest, len(ids))
	for rows.Next() {
		m, err := scanMoc(rows)
		if err != nil {
			return nil, err
		}
		byID[m.ID] = *m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.MocTest, 0, len(byID))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Update overwrites a variant's editable fields.
func (r *PgMocTestRepository) Update(ctx context.Context, m *model.MocTest) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE moc_tests
		 SET title = $2, type = $3, reading_file = $4, listening_file = $5, listening_audio = $6,
		     writing_topics = $7, answer_key = $8, parsed_content = $9, is_active = $10, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		m.ID, m.Title, m.Type, m.ReadingFile, m.ListeningFile, m.ListeningAudio,
		m.WritingTopics, m.AnswerKey, m.ParsedContent, m.IsActive,
	).Scan(&m.UpdatedAt)
	return translate(err)
}

// Delete removes a variant. Attempts keep their assignment id.
func (r *PgMocTestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM moc_tests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByCreator returns the admin's variants, newest first.
func (r *PgMocTestRepository) ListByCreator(ctx context.Context, adminID int) ([]model.MocTest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+mocColumns+` FROM moc_tests WHERE created_by = $1 ORDER BY created_at DESC`, adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.MocTest, 0)
	for rows.Next() {
		m, err := scanMoc(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
