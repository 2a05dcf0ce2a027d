package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/ieltsmock-backend/internal/model"
)

// PgViolationRepository handles anti-cheat event persistence.
type PgViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new PgViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *PgViolationRepository {
	return &PgViolationRepository{pool: pool}
}

// InsertBatch bulk-loads violations with COPY.
func (r *PgViolationRepository) InsertBatch(ctx context.Context, batch []model.Violation) error {
	rows := make([][]any, 0, len(batch))
	for _, v := range batch {
		rows = append(rows, []any{v.AttemptID, v.TestID, string(v.Kind), v.Detail, v.RecordedAt})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_violations"},
		[]string{"attempt_id", "test_id", "kind", "detail", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert stores one violation. Used when a bulk load fails.
func (r *PgViolationRepository) Insert(ctx context.Context, v *model.Violation) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempt_violations (attempt_id, test_id, kind, detail, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		v.AttemptID, v.TestID, v.Kind, v.Detail, v.RecordedAt,
	).Scan(&v.ID)
}

// CountByTest returns violation counts per attempt for a test.
func (r *PgViolationRepository) CountByTest(ctx context.Context, testID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, COUNT(*) FROM attempt_violations WHERE test_id = $1 GROUP BY attempt_id`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
