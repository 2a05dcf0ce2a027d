package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/ieltsmock-backend/internal/model"
)

const keyColumns = `key, test_id, created_by, is_active, used_by, used_at, created_at`

// PgTestKeyRepository handles test key data access.
type PgTestKeyRepository struct {
	pool *pgxpool.Pool
}

// NewTestKeyRepository creates a new PgTestKeyRepository.
func NewTestKeyRepository(pool *pgxpool.Pool) *PgTestKeyRepository {
	return &PgTestKeyRepository{pool: pool}
}

func scanKey(row pgx.Row) (*model.TestKey, error) {
	k := &model.TestKey{}
	if err := row.Scan(&k.Key, &k.TestID, &k.CreatedBy, &k.IsActive, &k.UsedBy, &k.UsedAt, &k.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return k, nil
}

// Create inserts a key. The primary key on key is the final uniqueness guard.
func (r *PgTestKeyRepository) Create(ctx context.Context, k *model.TestKey) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO test_keys (key, test_id, created_by, is_active)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		k.Key, k.TestID, k.CreatedBy, k.IsActive,
	).Scan(&k.CreatedAt)
	return translate(err)
}

// Exists reports whether the key string is taken.
func (r *PgTestKeyRepository) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM test_keys WHERE key = $1)`, key).Scan(&exists)
	return exists, err
}

// Get retrieves a key.
func (r *PgTestKeyRepository) Get(ctx context.Context, key string) (*model.TestKey, error) {
	return scanKey(r.pool.QueryRow(ctx, `SELECT `+keyColumns+` FROM test_keys WHERE key = $1`, key))
}

// Bind records the first use of a key in one guarded statement. Re-binding
// the same name keeps the original used_at.
func (r *PgTestKeyRepository) Bind(ctx context.Context, key, name string, at time.Time) (*model.TestKey, error) {
	return scanKey(r.pool.QueryRow(ctx,
		`UPDATE test_keys
		 SET used_by = $2, used_at = COALESCE(used_at, $3)
		 WHERE key = $1 AND is_active AND (used_by IS NULL OR used_by = $2)
		 RETURNING `+keyColumns, key, name, at))
}

// Deactivate marks a key inactive.
func (r *PgTestKeyRepository) Deactivate(ctx context.Context, key string) (*model.TestKey, error) {
	return scanKey(r.pool.QueryRow(ctx,
		`UPDATE test_keys SET is_active = FALSE WHERE key = $1 RETURNING `+keyColumns, key))
}

// ListByCreator lists the admin's keys with their test titles.
func (r *PgTestKeyRepository) ListByCreator(ctx context.Context, adminID int) ([]model.TestKeyListItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT k.key, k.test_id, k.created_by, k.is_active, k.used_by, k.used_at, k.created_at, t.title
		 FROM test_keys k
		 JOIN tests t ON t.id = k.test_id
		 WHERE k.created_by = $1
		 ORDER BY k.created_at DESC`, adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.TestKeyListItem, 0)
	for rows.Next() {
		var it model.TestKeyListItem
		if err := rows.Scan(&it.Key, &it.TestID, &it.CreatedBy, &it.IsActive, &it.UsedBy, &it.UsedAt,
			&it.CreatedAt, &it.TestTitle); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
