package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tilldesk/receiptd/internal/domain"
	"github.com/tilldesk/receiptd/internal/ports"
	"github.com/tilldesk/receiptd/pkg/log"
)

// testPayload is a minimal valid receipt payload.
const testPayload = `{"invoice":{"number":"A-1"},"items":[{"name":"Espresso","quantity":1,"unit_price":4.20,"amount":4.20}],"totals":{"total":4.20}}`

func testJob() domain.Job {
	return domain.Job{
		ID:        uuid.New(),
		Payload:   []byte(testPayload),
		Status:    domain.StatusPending,
		CreatedAt: time.Now(),
	}
}

func noop() ports.Logger { return log.NewNoopLogger() }

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// memLedger is an in-memory ports.Ledger.
type memLedger struct {
	mu          sync.Mutex
	pending     []domain.Job
	status      map[uuid.UUID]domain.Status
	selectCalls int
	selectErr   error
	updateErr   error
}

func newMemLedger(jobs ...domain.Job) *memLedger {
	return &memLedger{pending: jobs, status: make(map[uuid.UUID]domain.Status)}
}

func (l *memLedger) SelectPending(ctx context.Context, limit int) ([]domain.Job, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.selectCalls++
	if l.selectErr != nil {
		return nil, l.selectErr
	}
	var out []domain.Job
	for _, j := range l.pending {
		if st, ok := l.status[j.ID]; ok && st.Terminal() {
			continue
		}
		out = append(out, j)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *memLedger) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.updateErr != nil {
		return l.updateErr
	}
	l.status[id] = status
	return nil
}

func (l *memLedger) statusOf(id uuid.UUID) domain.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.status[id]; ok {
		return st
	}
	return domain.StatusPending
}

func (l *memLedger) selects() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.selectCalls
}

// stubDeliverer records delivered job ids.
type stubDeliverer struct {
	mu   sync.Mutex
	jobs []uuid.UUID
	err  error
	fn   func(ctx context.Context, job domain.Job) error
}

func (d *stubDeliverer) Deliver(ctx context.Context, job domain.Job) error {
	d.mu.Lock()
	d.jobs = append(d.jobs, job.ID)
	fn := d.fn
	err := d.err
	d.mu.Unlock()
	if fn != nil {
		return fn(ctx, job)
	}
	return err
}

func (d *stubDeliverer) delivered() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uuid.UUID{}, d.jobs...)
}

// stubHandle counts submits and closes.
type stubHandle struct {
	mu       sync.Mutex
	submits  int
	closes   int
	submitAt []time.Time
	submitFn func(n int) error // n is the 1-based submit number
	block    chan struct{}     // when non-nil, Submit blocks until closed
}

func (h *stubHandle) Submit(ctx context.Context, commands []byte) error {
	h.mu.Lock()
	h.submits++
	n := h.submits
	h.submitAt = append(h.submitAt, time.Now())
	fn := h.submitFn
	block := h.block
	h.mu.Unlock()
	if block != nil {
		<-block
	}
	if fn != nil {
		return fn(n)
	}
	return nil
}

func (h *stubHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	return nil
}

func (h *stubHandle) submitCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.submits
}

func (h *stubHandle) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

func (h *stubHandle) submitTimes() []time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Time{}, h.submitAt...)
}

// stubDevice opens stub handles.
type stubDevice struct {
	mu        sync.Mutex
	opens     int
	openErr   error
	openDelay time.Duration
	handle    *stubHandle // shared handle; when nil each open makes a new one
}

func (d *stubDevice) Open(ctx context.Context) (ports.Handle, error) {
	d.mu.Lock()
	d.opens++
	delay := d.openDelay
	err := d.openErr
	h := d.handle
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	if h == nil {
		h = &stubHandle{}
	}
	return h, nil
}

func (d *stubDevice) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// stubRenderer returns a fixed command stream.
type stubRenderer struct {
	err error
}

func (r *stubRenderer) Render(rcpt domain.Receipt) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte("CMDS"), nil
}

// stubSub is a controllable ports.Subscription.
type stubSub struct {
	events chan domain.Job
	done   chan struct{}

	mu     sync.Mutex
	err    error
	state  ports.SubscriptionState
	closed int
}

func newStubSub() *stubSub {
	return &stubSub{
		events: make(chan domain.Job, 16),
		done:   make(chan struct{}),
		state:  ports.SubscriptionSubscribed,
	}
}

func (s *stubSub) Events() <-chan domain.Job { return s.events }
func (s *stubSub) Done() <-chan struct{}     { return s.done }

func (s *stubSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stubSub) State() ports.SubscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stubSub) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	s.state = ports.SubscriptionClosed
}

func (s *stubSub) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fail signals subscription loss with the given cause.
func (s *stubSub) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.state = ports.SubscriptionClosed
	s.mu.Unlock()
	close(s.done)
}

// stubFeed hands out stub subscriptions, optionally failing first.
type stubFeed struct {
	mu       sync.Mutex
	subs     []*stubSub
	errs     []error // consumed one per Subscribe; nil entry = success
	failAll  bool
	attempts []time.Time
}

func (f *stubFeed) Subscribe(ctx context.Context) (ports.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, time.Now())
	if f.failAll {
		return nil, domain.ErrSubscriptionClosed
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	sub := newStubSub()
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *stubFeed) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.attempts)
}

func (f *stubFeed) sub(i int) *stubSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.subs) {
		return nil
	}
	return f.subs[i]
}

func (f *stubFeed) attemptTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time{}, f.attempts...)
}
