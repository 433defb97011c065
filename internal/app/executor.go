package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tilldesk/receiptd/internal/domain"
	"github.com/tilldesk/receiptd/internal/ports"
)

// Default executor configuration values.
const (
	DefaultMaxAttempts   = 3
	DefaultSubmitTimeout = 15 * time.Second
)

// ExecutorConfig contains configuration for the delivery executor.
type ExecutorConfig struct {
	// MaxAttempts is the number of physical delivery attempts per job.
	MaxAttempts int

	// SubmitTimeout is the hardware timeout one submit races against: the
	// buffer or cutter can hang without ever returning an error.
	SubmitTimeout time.Duration

	// BackoffBase and BackoffMax shape the delay between attempts
	// (base * 2^attempt, saturated).
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Executor drives one job through render and submit against the printer
// connection, with bounded retries and exponential backoff.
type Executor struct {
	conns    *ConnManager
	renderer ports.Renderer
	cfg      ExecutorConfig
	back     *backoff
	logger   ports.Logger
}

// NewExecutor creates a delivery executor.
func NewExecutor(conns *ConnManager, renderer ports.Renderer, cfg ExecutorConfig, logger ports.Logger) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	return &Executor{
		conns:    conns,
		renderer: renderer,
		cfg:      cfg,
		back:     newBackoff(cfg.BackoffBase, cfg.BackoffMax),
		logger:   logger,
	}
}

// Deliver prints one job. An invalid payload fails terminally without a
// retry. Any other failure tears down the suspect connection and retries
// the whole operation after an exponential backoff, up to MaxAttempts.
// After exhausting attempts the last error is returned; the caller writes
// the terminal status.
func (e *Executor) Deliver(ctx context.Context, job domain.Job) error {
	receipt, err := domain.ParseReceipt(job.Payload)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, e.back.Delay(attempt-1)); err != nil {
				return err
			}
		}

		lastErr = e.attempt(ctx, receipt)
		if lastErr == nil {
			if attempt > 0 {
				e.logger.Info("delivered after retry",
					ports.String("job", job.ID.String()),
					ports.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(lastErr, domain.ErrInvalidPayload) || ctx.Err() != nil {
			return lastErr
		}

		e.logger.Warn("delivery attempt failed",
			ports.String("job", job.ID.String()),
			ports.Int("attempt", attempt+1),
			ports.Err(lastErr))

		// The connection is suspect and must not be reused.
		e.conns.Teardown()
	}
	return lastErr
}

// attempt performs exactly one physical delivery: acquire, render, submit.
func (e *Executor) attempt(ctx context.Context, receipt domain.Receipt) error {
	handle, err := e.conns.Acquire(ctx)
	if err != nil {
		return err
	}

	commands, err := e.renderer.Render(receipt)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	return e.submit(handle, commands)
}

// submit races one physical write against the hardware timeout. The write
// is never canceled mid-flight: a timed-out write keeps running in its
// goroutine until the subsequent teardown invalidates the handle. No
// cleanup cut or feed is issued on failure.
func (e *Executor) submit(handle ports.Handle, commands []byte) error {
	done := make(chan error, 1)
	go func() {
		done <- handle.Submit(context.Background(), commands)
	}()

	timer := time.NewTimer(e.cfg.SubmitTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrSubmitFailed, err)
		}
		return nil
	case <-timer.C:
		return domain.ErrHardwareTimeout
	}
}
