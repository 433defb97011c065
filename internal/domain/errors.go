package domain

import "errors"

// Domain errors returned by the public API and checked with errors.Is.
var (
	// ErrInvalidPayload means the job payload failed the shape check.
	// Terminal: the job is marked error without a retry.
	ErrInvalidPayload = errors.New("receiptd: invalid payload")

	// ErrConnectionFailed means the printer is absent or could not be opened.
	ErrConnectionFailed = errors.New("receiptd: printer connection failed")

	// ErrSubmitFailed means writing the command stream to the printer failed.
	ErrSubmitFailed = errors.New("receiptd: submit to printer failed")

	// ErrHardwareTimeout means the printer accepted the stream but never
	// completed within the hardware timeout.
	ErrHardwareTimeout = errors.New("receiptd: printer timed out")

	// ErrQueueFull is returned by the work queue under backpressure.
	ErrQueueFull = errors.New("receiptd: work queue full")

	// ErrDuplicateJob is returned by the work queue when an entry with the
	// same job id is already queued.
	ErrDuplicateJob = errors.New("receiptd: job already queued")

	// ErrSubscriptionClosed means the realtime feed disconnected or errored.
	ErrSubscriptionClosed = errors.New("receiptd: subscription closed")

	// ErrAlreadyRunning is returned when Start() is called on a running daemon.
	ErrAlreadyRunning = errors.New("receiptd: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped daemon.
	ErrNotRunning = errors.New("receiptd: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("receiptd: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("receiptd: invalid configuration")
)
