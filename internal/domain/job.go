package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the ledger status of a print job.
type Status string

const (
	// StatusPending marks a job awaiting delivery.
	StatusPending Status = "pending"

	// StatusPrinted marks a job that was physically printed.
	StatusPrinted Status = "printed"

	// StatusError marks a job that failed terminally.
	StatusError Status = "error"
)

// Terminal reports whether the status ends the job's lifecycle. Terminal
// statuses are idempotent: writing the same one twice is safe.
func (s Status) Terminal() bool {
	return s == StatusPrinted || s == StatusError
}

// Job is one row of the remote job ledger. The payload is raw receipt JSON
// owned by the render stage; the core only shape-checks it.
type Job struct {
	ID        uuid.UUID
	Payload   []byte
	Status    Status
	CreatedAt time.Time
}
