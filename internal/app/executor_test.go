package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tilldesk/receiptd/internal/domain"
)

func newTestExecutor(dev *stubDevice, cfg ExecutorConfig) (*Executor, *ConnManager) {
	conns := NewConnManager(dev, ConnConfig{}, noop())
	return NewExecutor(conns, &stubRenderer{}, cfg, noop()), conns
}

func TestExecutorDeliverSuccess(t *testing.T) {
	h := &stubHandle{}
	dev := &stubDevice{handle: h}
	ex, _ := newTestExecutor(dev, ExecutorConfig{})

	if err := ex.Deliver(context.Background(), testJob()); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if got := h.submitCount(); got != 1 {
		t.Fatalf("expected 1 submit, got %d", got)
	}
}

func TestExecutorDeliverInvalidPayloadFailsFast(t *testing.T) {
	dev := &stubDevice{}
	ex, _ := newTestExecutor(dev, ExecutorConfig{})

	job := testJob()
	job.Payload = []byte(`{"items":[]}`)

	err := ex.Deliver(context.Background(), job)
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if got := dev.openCount(); got != 0 {
		t.Fatalf("expected no opens for invalid payload, got %d", got)
	}
}

func TestExecutorDeliverExhaustsAttempts(t *testing.T) {
	h := &stubHandle{submitFn: func(n int) error {
		return errors.New("write: input/output error")
	}}
	dev := &stubDevice{handle: h}
	ex, conns := newTestExecutor(dev, ExecutorConfig{
		MaxAttempts: 3,
		BackoffBase: 30 * time.Millisecond,
		BackoffMax:  time.Second,
	})

	err := ex.Deliver(context.Background(), testJob())
	if !errors.Is(err, domain.ErrSubmitFailed) {
		t.Fatalf("expected ErrSubmitFailed, got %v", err)
	}
	if got := h.submitCount(); got != 3 {
		t.Fatalf("expected 3 submits, got %d", got)
	}
	// Each failure tears down the suspect connection.
	if got := dev.openCount(); got != 3 {
		t.Fatalf("expected 3 opens, got %d", got)
	}
	if conns.Ready() {
		t.Fatal("expected connection torn down after final failure")
	}

	// Backoff between attempts grows.
	times := h.submitTimes()
	gap1 := times[1].Sub(times[0])
	gap2 := times[2].Sub(times[1])
	if gap1 < 25*time.Millisecond {
		t.Fatalf("first retry too soon: %v", gap1)
	}
	if gap2 <= gap1 {
		t.Fatalf("expected growing backoff, got %v then %v", gap1, gap2)
	}
}

func TestExecutorDeliverRecoversOnLaterAttempt(t *testing.T) {
	h := &stubHandle{submitFn: func(n int) error {
		if n < 3 {
			return errors.New("write: input/output error")
		}
		return nil
	}}
	dev := &stubDevice{handle: h}
	ex, _ := newTestExecutor(dev, ExecutorConfig{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
	})

	if err := ex.Deliver(context.Background(), testJob()); err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if got := h.submitCount(); got != 3 {
		t.Fatalf("expected 3 submits, got %d", got)
	}
}

func TestExecutorDeliverHardwareTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	h := &stubHandle{block: block}
	dev := &stubDevice{handle: h}
	ex, _ := newTestExecutor(dev, ExecutorConfig{
		MaxAttempts:   1,
		SubmitTimeout: 20 * time.Millisecond,
	})

	err := ex.Deliver(context.Background(), testJob())
	if !errors.Is(err, domain.ErrHardwareTimeout) {
		t.Fatalf("expected ErrHardwareTimeout, got %v", err)
	}
}

func TestExecutorDeliverRenderFailureIsTerminal(t *testing.T) {
	h := &stubHandle{}
	dev := &stubDevice{handle: h}
	conns := NewConnManager(dev, ConnConfig{}, noop())
	ex := NewExecutor(conns, &stubRenderer{err: errors.New("unsupported code page")}, ExecutorConfig{MaxAttempts: 3}, noop())

	err := ex.Deliver(context.Background(), testJob())
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if got := h.submitCount(); got != 0 {
		t.Fatalf("expected no submits, got %d", got)
	}
	// Terminal failures do not retry.
	if got := dev.openCount(); got != 1 {
		t.Fatalf("expected 1 open, got %d", got)
	}
}

func TestExecutorDeliverStopsOnCancel(t *testing.T) {
	h := &stubHandle{submitFn: func(n int) error {
		return errors.New("write: input/output error")
	}}
	dev := &stubDevice{handle: h}
	ex, _ := newTestExecutor(dev, ExecutorConfig{
		MaxAttempts: 5,
		BackoffBase: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := ex.Deliver(ctx, testJob())
	if err == nil {
		t.Fatal("expected error after cancel")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("deliver did not stop promptly: %v", elapsed)
	}
	if got := h.submitCount(); got != 1 {
		t.Fatalf("expected 1 submit before cancel, got %d", got)
	}
}
