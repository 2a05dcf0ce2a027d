package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/ieltsmock-backend/internal/model"
)

const queueColumns = `id, student_id, test_code, test_id, status, joined_at, assigned_at,
	preparation_started_at, started_at, left_at, timeout_at`

// queueStampColumn is the whitelist of timestamp columns a status transition
// may write. Waiting has none.
var queueStampColumn = map[model.QueueStatus]string{
	model.QueueStatusAssigned:    "assigned_at",
	model.QueueStatusPreparation: "preparation_started_at",
	model.QueueStatusStarted:     "started_at",
	model.QueueStatusLeft:        "left_at",
	model.QueueStatusTimeout:     "timeout_at",
}

// PgQueueRepository handles waiting-queue data access.
type PgQueueRepository struct {
	pool *pgxpool.Pool
}

// NewQueueRepository creates a new PgQueueRepository.
func NewQueueRepository(pool *pgxpool.Pool) *PgQueueRepository {
	return &PgQueueRepository{pool: pool}
}

func scanQueue(row pgx.Row) (*model.QueueEntry, error) {
	e := &model.QueueEntry{}
	err := row.Scan(&e.ID, &e.StudentID, &e.TestCode, &e.TestID, &e.Status, &e.JoinedAt, &e.AssignedAt,
		&e.PreparationStartedAt, &e.StartedAt, &e.LeftAt, &e.TimeoutAt)
	if err != nil {
		return nil, translate(err)
	}
	return e, nil
}

func collectQueue(rows pgx.Rows) ([]model.QueueEntry, error) {
	defer rows.Close()
	out := make([]model.QueueEntry, 0)
	for rows.Next() {
		e, err := scanQueue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// stampSQL builds the SET clause for a status change. The timestamp is bound
// as parameter n when the status has a column.
func stampSQL(status model.QueueStatus, n int) (string, bool) {
	col, ok := queueStampColumn[status]
	if !ok {
		return "status = $2", false
	}
	return fmt.Sprintf("status = $2, %s = $%d", col, n), true
}

// Replace deletes the student's non-left entry and inserts e in one
// transaction.
func (r *PgQueueRepository) Replace(ctx context.Context, e *model.QueueEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM queue_entries WHERE student_id = $1 AND status <> 'left'`, e.StudentID); err != nil {
		return fmt.Errorf("delete previous entry: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO queue_entries (id, student_id, test_code, test_id, status, joined_at, assigned_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.StudentID, e.TestCode, e.TestID, e.Status, e.JoinedAt, e.AssignedAt); err != nil {
		return translate(err)
	}

	return tx.Commit(ctx)
}

// GetByID retrieves an entry.
func (r *PgQueueRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	return scanQueue(r.pool.QueryRow(ctx, `SELECT `+queueColumns+` FROM queue_entries WHERE id = $1`, id))
}

// FindActiveByStudent returns the student's non-left entry.
func (r *PgQueueRepository) FindActiveByStudent(ctx context.Context, studentID int) (*model.QueueEntry, error) {
	return scanQueue(r.pool.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM queue_entries WHERE student_id = $1 AND status <> 'left'`, studentID))
}

// Transition sets status and its paired timestamp only.
func (r *PgQueueRepository) Transition(ctx context.Context, id uuid.UUID, status model.QueueStatus, at time.Time) (*model.QueueEntry, error) {
	set, stamped := stampSQL(status, 3)
	args := []any{id, status}
	if stamped {
		args = append(args, at)
	}
	return scanQueue(r.pool.QueryRow(ctx,
		`UPDATE queue_entries SET `+set+` WHERE id = $1 RETURNING `+queueColumns, args...))
}

// MarkByStudent moves the student's open entry unless it has been left or started.
func (r *PgQueueRepository) MarkByStudent(ctx context.Context, studentID int, status model.QueueStatus, at time.Time) (*model.QueueEntry, error) {
	set, stamped := stampSQL(status, 3)
	args := []any{studentID, status}
	if stamped {
		args = append(args, at)
	}
	return scanQueue(r.pool.QueryRow(ctx,
		`UPDATE queue_entries SET `+set+`
		 WHERE student_id = $1 AND status NOT IN ('left', 'started')
		 RETURNING `+queueColumns, args...))
}

// PromoteByTest moves all of a test's entries in one of from to status.
func (r *PgQueueRepository) PromoteByTest(ctx context.Context, testID uuid.UUID, from []model.QueueStatus, to model.QueueStatus, at time.Time) ([]model.QueueEntry, error) {
	fromStr := make([]string, len(from))
	for i, s := range from {
		fromStr[i] = string(s)
	}
	set, stamped := stampSQL(to, 4)
	args := []any{testID, to, fromStr}
	if stamped {
		args = append(args, at)
	}
	rows, err := r.pool.Query(ctx,
		`UPDATE queue_entries SET `+set+`
		 WHERE test_id = $1 AND status = ANY($3::text[])
		 RETURNING `+queueColumns, args...)
	if err != nil {
		return nil, err
	}
	return collectQueue(rows)
}

// Sweep times out stale waiting/assigned entries and removes finished ones.
func (r *PgQueueRepository) Sweep(ctx context.Context, cutoff, at time.Time) ([]model.QueueEntry, int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`UPDATE queue_entries SET status = 'timeout', timeout_at = $2
		 WHERE status IN ('waiting', 'assigned') AND joined_at < $1
		 RETURNING `+queueColumns, cutoff, at)
	if err != nil {
		return nil, 0, fmt.Errorf("timeout stale entries: %w", err)
	}
	timedOut, err := collectQueue(rows)
	if err != nil {
		return nil, 0, err
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM queue_entries WHERE status IN ('started', 'left', 'timeout')`)
	if err != nil {
		return nil, 0, fmt.Errorf("remove finished entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}
	return timedOut, int(tag.RowsAffected()), nil
}

// ListByTest returns a test's entries in join order.
func (r *PgQueueRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.QueueEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+queueColumns+` FROM queue_entries WHERE test_id = $1 ORDER BY joined_at`, testID)
	if err != nil {
		return nil, err
	}
	return collectQueue(rows)
}
