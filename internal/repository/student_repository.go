package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/ieltsmock-backend/internal/model"
)

const studentColumns = `id, email, full_name, password_hash, created_at, updated_at`

// PgStudentRepository handles registered student data access.
type PgStudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new PgStudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *PgStudentRepository {
	return &PgStudentRepository{pool: pool}
}

func scanStudent(row pgx.Row) (*model.Student, error) {
	s := &model.Student{}
	if err := row.Scan(&s.ID, &s.Email, &s.FullName, &s.PasswordHash, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return s, nil
}

// Create inserts a student. A taken email yields ErrDuplicate.
func (r *PgStudentRepository) Create(ctx context.Context, s *model.Student) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO students (email, full_name, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		s.Email, s.FullName, s.PasswordHash,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	return translate(err)
}

// GetByID retrieves a student.
func (r *PgStudentRepository) GetByID(ctx context.Context, id int) (*model.Student, error) {
	return scanStudent(r.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
}

// GetByEmail retrieves a student by email (for login).
func (r *PgStudentRepository) GetByEmail(ctx context.Context, email string) (*model.Student, error) {
	return scanStudent(r.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE LOWER(email) = LOWER($1)`, email))
}

// FindByFullName returns the earliest student registered under name.
func (r *PgStudentRepository) FindByFullName(ctx context.Context, name string) (*model.Student, error) {
	return scanStudent(r.pool.QueryRow(ctx,
		`SELECT `+studentColumns+` FROM students WHERE full_name = $1 ORDER BY id LIMIT 1`, name))
}

// UpdateFullName renames a student.
func (r *PgStudentRepository) UpdateFullName(ctx context.Context, id int, name string) (*model.Student, error) {
	return scanStudent(r.pool.QueryRow(ctx,
		`UPDATE students SET full_name = $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+studentColumns, id, name))
}
