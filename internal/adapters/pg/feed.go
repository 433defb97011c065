package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tilldesk/receiptd/internal/domain"
	"github.com/tilldesk/receiptd/internal/ports"
)

// DefaultChannel is the NOTIFY channel insert triggers fire on.
const DefaultChannel = "print_jobs_insert"

// eventBuffer bounds undelivered notifications per subscription. A burst
// beyond it drops events; the reconciliation pull recovers the rows.
const eventBuffer = 64

// Feed implements ports.Feed over Postgres LISTEN/NOTIFY. Each Subscribe
// hijacks one connection from the pool for the lifetime of the
// subscription.
type Feed struct {
	pool    *pgxpool.Pool
	channel string
	logger  ports.Logger
}

var _ ports.Feed = (*Feed)(nil)

// NewFeed creates a feed listening on channel (DefaultChannel when empty).
func NewFeed(pool *pgxpool.Pool, channel string, logger ports.Logger) *Feed {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Feed{pool: pool, channel: channel, logger: logger}
}

// Subscribe acquires a dedicated connection, issues LISTEN, and starts the
// notification loop. The returned subscription is confirmed: the LISTEN
// round trip has completed.
func (f *Feed) Subscribe(ctx context.Context) (ports.Subscription, error) {
	pooled, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	// Hijack: a connection that dies inside WaitForNotification must not
	// go back into the pool.
	conn := pooled.Hijack()

	sub := &subscription{
		conn:   conn,
		events: make(chan domain.Job, eventBuffer),
		done:   make(chan struct{}),
		state:  ports.SubscriptionJoining,
		logger: f.logger,
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen %s: %w", f.channel, err)
	}
	sub.setState(ports.SubscriptionSubscribed)

	lctx, cancel := context.WithCancel(context.Background())
	sub.cancel = cancel
	go sub.loop(lctx)

	return sub, nil
}

// subscription is one live LISTEN connection.
type subscription struct {
	conn   *pgx.Conn
	events chan domain.Job
	done   chan struct{}
	cancel context.CancelFunc
	logger ports.Logger

	mu    sync.Mutex
	state ports.SubscriptionState
	err   error

	closeOnce sync.Once
}

func (s *subscription) Events() <-chan domain.Job { return s.events }
func (s *subscription) Done() <-chan struct{}     { return s.done }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) State() ports.SubscriptionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *subscription) setState(state ports.SubscriptionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Close releases the subscription and its connection. Idempotent.
func (s *subscription) Close() {
	s.closeOnce.Do(func() {
		s.setState(ports.SubscriptionClosed)
		s.cancel()
	})
}

// loop blocks on notifications until the connection fails or Close fires.
// The connection is closed on the way out in both cases.
func (s *subscription) loop(ctx context.Context) {
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.conn.Close(cctx)
		close(s.done)
	}()

	for {
		n, err := s.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Closed locally; not a feed failure.
				return
			}
			s.fail(err)
			return
		}

		job, err := decodeNotification([]byte(n.Payload))
		if err != nil {
			// Malformed or truncated payload: the row is not lost, the
			// next reconciliation pull finds it.
			s.logger.Warn("undecodable notification",
				ports.String("channel", n.Channel),
				ports.Err(err))
			continue
		}

		select {
		case s.events <- job:
		default:
			s.logger.Warn("event buffer full, dropping notification",
				ports.String("job", job.ID.String()))
		}
	}
}

func (s *subscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.state = ports.SubscriptionClosed
	s.mu.Unlock()
}

// notification mirrors the row JSON the insert trigger publishes.
type notification struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// decodeNotification parses one NOTIFY payload into a job.
func decodeNotification(data []byte) (domain.Job, error) {
	var n notification
	if err := json.Unmarshal(data, &n); err != nil {
		return domain.Job{}, fmt.Errorf("decode notification: %w", err)
	}
	id, err := uuid.Parse(n.ID)
	if err != nil {
		return domain.Job{}, fmt.Errorf("decode notification id: %w", err)
	}
	return domain.Job{
		ID:        id,
		Payload:   n.Payload,
		Status:    domain.Status(n.Status),
		CreatedAt: n.CreatedAt,
	}, nil
}
