package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tilldesk/receiptd/internal/domain"
	"github.com/tilldesk/receiptd/internal/ports"
)

const (
	selectPendingSQL = `
		SELECT id::text, payload, status, created_at
		FROM print_jobs
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1`

	updateStatusSQL = `
		UPDATE print_jobs
		SET status = $2, message = $3, updated_at = now()
		WHERE id = $1`
)

// Ledger implements ports.Ledger against the print_jobs table.
type Ledger struct {
	pool   *pgxpool.Pool
	logger ports.Logger
}

var _ ports.Ledger = (*Ledger)(nil)

// NewLedger creates a ledger backed by the given pool. The pool is owned
// and closed by the caller.
func NewLedger(pool *pgxpool.Pool, logger ports.Logger) *Ledger {
	return &Ledger{pool: pool, logger: logger}
}

// SelectPending returns up to limit pending jobs ordered by creation time.
func (l *Ledger) SelectPending(ctx context.Context, limit int) ([]domain.Job, error) {
	rows, err := l.pool.Query(ctx, selectPendingSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		var (
			idStr     string
			payload   []byte
			status    string
			createdAt time.Time
		)
		if err := rows.Scan(&idStr, &payload, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending row: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			// A malformed id cannot be marked error either; skip it.
			l.logger.Error("pending row has malformed id",
				ports.String("id", idStr),
				ports.Err(err))
			continue
		}
		jobs = append(jobs, domain.Job{
			ID:        id,
			Payload:   payload,
			Status:    domain.Status(status),
			CreatedAt: createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select pending: %w", err)
	}
	return jobs, nil
}

// UpdateStatus writes a terminal status. The write is a plain UPDATE by
// primary key, so repeating it with the same status is harmless.
func (l *Ledger) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, message string) error {
	tag, err := l.pool.Exec(ctx, updateStatusSQL, id.String(), string(status), message)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		l.logger.Warn("status write matched no row",
			ports.String("job", id.String()),
			ports.String("status", string(status)))
	}
	return nil
}
