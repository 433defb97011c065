package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tilldesk/receiptd/internal/domain"
	"github.com/tilldesk/receiptd/internal/ports"
)

func TestConnManagerReusesHandle(t *testing.T) {
	dev := &stubDevice{}
	m := NewConnManager(dev, ConnConfig{}, noop())

	h1, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	h2, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("second acquire failed: %v", err)
	}
	if h1 != h2 {
		t.Fatal("expected the same handle")
	}
	if got := dev.openCount(); got != 1 {
		t.Fatalf("expected 1 open, got %d", got)
	}
}

func TestConnManagerSingleOpenUnderConcurrency(t *testing.T) {
	dev := &stubDevice{openDelay: 50 * time.Millisecond}
	m := NewConnManager(dev, ConnConfig{OpenGrace: 5 * time.Second}, noop())

	var wg sync.WaitGroup
	handles := make([]ports.Handle, 5)
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = m.Acquire(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		if errs[i] != nil {
			t.Fatalf("acquire %d failed: %v", i, errs[i])
		}
		if handles[i] != handles[0] {
			t.Fatal("acquires returned different handles")
		}
	}
	if got := dev.openCount(); got != 1 {
		t.Fatalf("expected 1 open, got %d", got)
	}
}

func TestConnManagerSharesOpenError(t *testing.T) {
	dev := &stubDevice{openDelay: 30 * time.Millisecond, openErr: errors.New("no such device")}
	m := NewConnManager(dev, ConnConfig{OpenGrace: 5 * time.Second}, noop())

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Acquire(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		if !errors.Is(errs[i], domain.ErrConnectionFailed) {
			t.Fatalf("acquire %d: expected ErrConnectionFailed, got %v", i, errs[i])
		}
	}
	if got := dev.openCount(); got != 1 {
		t.Fatalf("expected 1 open, got %d", got)
	}
}

func TestConnManagerGraceExpiryTakesOver(t *testing.T) {
	dev := &stubDevice{openDelay: 200 * time.Millisecond}
	m := NewConnManager(dev, ConnConfig{OpenGrace: 20 * time.Millisecond}, noop())

	first := make(chan error, 1)
	go func() {
		_, err := m.Acquire(context.Background())
		first <- err
	}()

	waitFor(t, time.Second, func() bool { return dev.openCount() == 1 })

	// The second caller outlives the grace and opens on its own.
	h, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("takeover acquire failed: %v", err)
	}
	if h == nil {
		t.Fatal("takeover acquire returned nil handle")
	}
	if err := <-first; err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if got := dev.openCount(); got != 2 {
		t.Fatalf("expected 2 opens, got %d", got)
	}
	if !m.Ready() {
		t.Fatal("expected a ready connection")
	}
}

func TestConnManagerTeardownIdempotent(t *testing.T) {
	h := &stubHandle{}
	dev := &stubDevice{handle: h}
	m := NewConnManager(dev, ConnConfig{}, noop())

	// Teardown with no handle is a no-op.
	m.Teardown()

	if _, err := m.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	m.Teardown()
	m.Teardown()

	if got := h.closeCount(); got != 1 {
		t.Fatalf("expected 1 close, got %d", got)
	}
	if m.Ready() {
		t.Fatal("expected no ready connection after teardown")
	}
}

func TestConnManagerDetachInvalidatesHandle(t *testing.T) {
	h := &stubHandle{}
	dev := &stubDevice{handle: h}
	m := NewConnManager(dev, ConnConfig{}, noop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan ports.HotplugEvent)
	go m.Run(ctx, events)

	if _, err := m.Acquire(ctx); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	events <- ports.HotplugEvent{Type: ports.HotplugDetach, Node: "/dev/usb/lp0"}

	waitFor(t, time.Second, func() bool { return !m.Ready() })
	if got := h.closeCount(); got != 1 {
		t.Fatalf("expected 1 close, got %d", got)
	}

	// The next acquire opens fresh.
	if _, err := m.Acquire(ctx); err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	if got := dev.openCount(); got != 2 {
		t.Fatalf("expected 2 opens, got %d", got)
	}
}

func TestConnManagerAttachOpensInBackground(t *testing.T) {
	dev := &stubDevice{}
	m := NewConnManager(dev, ConnConfig{}, noop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan ports.HotplugEvent)
	go m.Run(ctx, events)

	events <- ports.HotplugEvent{Type: ports.HotplugAttach, Node: "/dev/usb/lp0"}

	waitFor(t, time.Second, func() bool { return m.Ready() })
	if got := dev.openCount(); got != 1 {
		t.Fatalf("expected 1 open, got %d", got)
	}
}
