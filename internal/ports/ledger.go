package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/tilldesk/receiptd/internal/domain"
)

// Ledger reads pending jobs from and writes terminal statuses to the
// remote job ledger. It carries no business logic.
type Ledger interface {
	// SelectPending returns up to limit jobs in pending state, ordered by
	// creation time ascending.
	SelectPending(ctx context.Context, limit int) ([]domain.Job, error)

	// UpdateStatus writes a terminal status for a job. Terminal statuses
	// are idempotent: writing the same one twice must be safe.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, message string) error
}
