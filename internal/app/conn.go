package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tilldesk/receiptd/internal/domain"
	"github.com/tilldesk/receiptd/internal/ports"
)

// Default connection manager configuration values.
const (
	DefaultOpenTimeout = 5 * time.Second
	DefaultOpenGrace   = 3 * time.Second
)

// ConnConfig contains configuration for the connection manager.
type ConnConfig struct {
	// OpenTimeout bounds one physical open call.
	OpenTimeout time.Duration

	// OpenGrace is how long Acquire waits for an open already in progress
	// before starting its own. Opening the same USB device twice is
	// undefined, so a second open is a last resort against a wedged one.
	OpenGrace time.Duration
}

// openState is one in-progress open attempt. Waiters block on done and
// read h/err afterwards, so concurrent Acquire calls observe the same
// handle or the same error without a second physical open.
type openState struct {
	done chan struct{}
	h    ports.Handle
	err  error
}

// ConnManager owns the lifecycle of the single physical printer
// connection. At most one ready handle exists process-wide.
type ConnManager struct {
	device ports.Device
	cfg    ConnConfig
	logger ports.Logger

	mu      sync.Mutex
	handle  ports.Handle
	opening *openState
}

// NewConnManager creates a connection manager for the given device.
func NewConnManager(device ports.Device, cfg ConnConfig, logger ports.Logger) *ConnManager {
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.OpenGrace <= 0 {
		cfg.OpenGrace = DefaultOpenGrace
	}
	return &ConnManager{
		device: device,
		cfg:    cfg,
		logger: logger,
	}
}

// Ready reports whether a ready connection currently exists.
func (m *ConnManager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil
}

// Acquire returns the ready connection, waiting for an in-progress open
// or performing one itself. Errors wrap ErrConnectionFailed except for
// context cancellation.
func (m *ConnManager) Acquire(ctx context.Context) (ports.Handle, error) {
	m.mu.Lock()
	if m.handle != nil {
		h := m.handle
		m.mu.Unlock()
		return h, nil
	}

	if st := m.opening; st != nil {
		m.mu.Unlock()

		timer := time.NewTimer(m.cfg.OpenGrace)
		defer timer.Stop()
		select {
		case <-st.done:
			if st.err != nil {
				return nil, st.err
			}
			return st.h, nil
		case <-timer.C:
			// Grace expired: the in-progress open is presumed wedged.
			m.logger.Warn("open grace period expired, opening anyway")
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		m.mu.Lock()
		if m.handle != nil {
			h := m.handle
			m.mu.Unlock()
			return h, nil
		}
	}

	st := &openState{done: make(chan struct{})}
	m.opening = st
	m.mu.Unlock()

	h, err := m.open(ctx)

	m.mu.Lock()
	if m.opening == st {
		m.opening = nil
	}
	if err != nil {
		st.err = err
	} else if m.handle == nil {
		m.handle = h
		st.h = h
	} else {
		// A takeover open won the race; keep its handle.
		st.h = m.handle
		m.mu.Unlock()
		_ = h.Close()
		close(st.done)
		return st.h, nil
	}
	m.mu.Unlock()
	close(st.done)

	return st.h, st.err
}

func (m *ConnManager) open(ctx context.Context) (ports.Handle, error) {
	octx, cancel := context.WithTimeout(ctx, m.cfg.OpenTimeout)
	defer cancel()

	h, err := m.device.Open(octx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrConnectionFailed, err)
	}
	m.logger.Info("printer connection ready")
	return h, nil
}

// Teardown closes and forgets the current handle. Idempotent. Safe to
// call while a delivery is in flight: the borrowed handle then fails its
// submit and the executor retries on a fresh connection.
func (m *ConnManager) Teardown() {
	m.mu.Lock()
	h := m.handle
	m.handle = nil
	m.mu.Unlock()

	if h == nil {
		return
	}
	if err := h.Close(); err != nil {
		m.logger.Warn("printer close failed", ports.Err(err))
	} else {
		m.logger.Info("printer connection closed")
	}
}

// Run consumes hot-plug events until the channel closes or ctx ends.
// A matching detach invalidates the handle immediately; a matching attach
// attempts an opportunistic open in the background, where failure is
// logged, not escalated (the next job retries anyway).
func (m *ConnManager) Run(ctx context.Context, events <-chan ports.HotplugEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case ports.HotplugDetach:
				m.logger.Info("printer detached", ports.String("node", ev.Node))
				m.Teardown()
			case ports.HotplugAttach:
				m.logger.Info("printer attached", ports.String("node", ev.Node))
				go func() {
					if _, err := m.Acquire(ctx); err != nil {
						m.logger.Warn("open after attach failed", ports.Err(err))
					}
				}()
			}
		}
	}
}
