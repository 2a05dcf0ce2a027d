package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/ieltsmock-backend/internal/model"
)

const adminColumns = `id, email, name, password_hash, role, is_active, created_at, updated_at`

// PgAdminRepository handles admin data access.
type PgAdminRepository struct {
	pool *pgxpool.Pool
}

// NewAdminRepository creates a new PgAdminRepository.
func NewAdminRepository(pool *pgxpool.Pool) *PgAdminRepository {
	return &PgAdminRepository{pool: pool}
}

func scanAdmin(row pgx.Row) (*model.Admin, error) {
	a := &model.Admin{}
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Role, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return a, nil
}

// Create inserts an admin and sets its ID. A taken email yields ErrDuplicate.
func (r *PgAdminRepository) Create(ctx context.Context, a *model.Admin) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO admins (email, name, password_hash, role, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		a.Email, a.Name, a.PasswordHash, a.Role, a.IsActive,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return translate(err)
}

// GetByID retrieves an admin by ID.
func (r *PgAdminRepository) GetByID(ctx context.Context, id int) (*model.Admin, error) {
	return scanAdmin(r.pool.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE id = $1`, id))
}

// GetByEmail retrieves an admin by email (for login).
func (r *PgAdminRepository) GetByEmail(ctx context.Context, email string) (*model.Admin, error) {
	return scanAdmin(r.pool.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE LOWER(email) = LOWER($1)`, email))
}

// List returns admins with the given role, or all when role is empty.
func (r *PgAdminRepository) List(ctx context.Context, role model.AdminRole) ([]model.Admin, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+adminColumns+` FROM admins
		 WHERE ($1 = '' OR role = $1)
		 ORDER BY created_at DESC`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	admins := make([]model.Admin, 0)
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, *a)
	}
	return admins, rows.Err()
}

// SetActive enables or disables an admin account.
func (r *PgAdminRepository) SetActive(ctx context.Context, id int, active bool) error {
	return r.exec(ctx, `UPDATE admins SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
}

// UpdatePassword replaces the password hash.
func (r *PgAdminRepository) UpdatePassword(ctx context.Context, id int, hash string) error {
	return r.exec(ctx, `UPDATE admins SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
}

// Delete removes an admin.
func (r *PgAdminRepository) Delete(ctx context.Context, id int) error {
	return r.exec(ctx, `DELETE FROM admins WHERE id = $1`, id)
}

func (r *PgAdminRepository) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats aggregates tests, keys and attempts per admin.
func (r *PgAdminRepository) Stats(ctx context.Context) ([]model.AdminStats, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.name, a.email,
		        (SELECT COUNT(*) FROM tests t WHERE t.created_by = a.id),
		        (SELECT COUNT(*) FROM test_keys k WHERE k.created_by = a.id),
		        (SELECT COUNT(*) FROM attempts at JOIN test_keys k ON k.key = at.test_key WHERE k.created_by = a.id),
		        (SELECT COUNT(*) FROM attempts at JOIN test_keys k ON k.key = at.test_key
		          WHERE k.created_by = a.id AND at.is_submitted)
		 FROM admins a
		 WHERE a.role = 'admin'
		 ORDER BY a.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.AdminStats, 0)
	for rows.Next() {
		var s model.AdminStats
		if err := rows.Scan(&s.AdminID, &s.Name, &s.Email, &s.TotalTests, &s.TotalKeys,
			&s.TotalAttempts, &s.SubmittedCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
