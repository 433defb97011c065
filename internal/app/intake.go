package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tilldesk/receiptd/internal/domain"
	"github.com/tilldesk/receiptd/internal/ports"
)

// Default intake configuration values.
const (
	DefaultReconcileLimit  = 200
	DefaultWatchdogPeriod  = 60 * time.Second
	DefaultResubscribeBase = time.Second
	DefaultResubscribeMax  = 60 * time.Second
)

// IntakeConfig contains configuration for the intake controller.
type IntakeConfig struct {
	// ReconcileLimit is the page size of one reconciliation pull.
	ReconcileLimit int

	// WatchdogPeriod is the fixed period at which the watchdog forces a
	// resubscribe (when not subscribed) and always runs a reconciliation
	// pull.
	WatchdogPeriod time.Duration

	// ResubscribeBase and ResubscribeMax shape the resubscribe delay
	// (base * 2^(retries-1), saturated at max, uncapped in count).
	ResubscribeBase time.Duration
	ResubscribeMax  time.Duration
}

// Intake discovers candidate jobs and feeds the work queue. Two producers
// share one gate: the realtime subscription (push) and the reconciliation
// pull (pull). Both run on a single event loop, so subscription state
// transitions stay ordered.
type Intake struct {
	cfg    IntakeConfig
	ledger ports.Ledger
	feed   ports.Feed
	queue  *Queue
	back   *backoff
	logger ports.Logger

	mu      sync.Mutex
	sub     ports.Subscription // current subscription, nil when none
	retries int                // consecutive subscribe failures/losses
}

// NewIntake creates an intake controller.
func NewIntake(cfg IntakeConfig, ledger ports.Ledger, feed ports.Feed, queue *Queue, logger ports.Logger) *Intake {
	if cfg.ReconcileLimit <= 0 {
		cfg.ReconcileLimit = DefaultReconcileLimit
	}
	if cfg.WatchdogPeriod <= 0 {
		cfg.WatchdogPeriod = DefaultWatchdogPeriod
	}
	if cfg.ResubscribeBase <= 0 {
		cfg.ResubscribeBase = DefaultResubscribeBase
	}
	if cfg.ResubscribeMax <= 0 {
		cfg.ResubscribeMax = DefaultResubscribeMax
	}
	return &Intake{
		cfg:    cfg,
		ledger: ledger,
		feed:   feed,
		queue:  queue,
		back:   newBackoff(cfg.ResubscribeBase, cfg.ResubscribeMax),
		logger: logger,
	}
}

// SubscriptionState reports the state of the current subscription, or
// Idle when none exists. Safe to call from any goroutine.
func (c *Intake) SubscriptionState() ports.SubscriptionState {
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	if sub == nil {
		return ports.SubscriptionIdle
	}
	return sub.State()
}

// Run is the intake event loop. It reconciles once at startup, establishes
// the realtime subscription, and then reacts to feed events, subscription
// loss, resubscribe timers, and the watchdog until ctx ends.
func (c *Intake) Run(ctx context.Context) {
	// Reconcile before the first subscribe so rows inserted while the
	// process was down are recovered even if the feed is unreachable.
	c.Reconcile(ctx)

	var resub <-chan time.Time
	if !c.subscribe(ctx) {
		resub = c.scheduleResubscribe()
	}

	watchdog := time.NewTicker(c.cfg.WatchdogPeriod)
	defer watchdog.Stop()

	for {
		var events <-chan domain.Job
		var lost <-chan struct{}
		if sub := c.current(); sub != nil {
			events = sub.Events()
			lost = sub.Done()
		}

		select {
		case <-ctx.Done():
			c.release()
			return

		case job, ok := <-events:
			if !ok {
				// Feed closed its event channel without signaling Done.
				c.onLost(errors.New("event channel closed"))
				resub = c.scheduleResubscribe()
				continue
			}
			if job.Status != domain.StatusPending {
				continue
			}
			c.AddJob(ctx, job)

		case <-lost:
			c.onLost(c.current().Err())
			resub = c.scheduleResubscribe()

		case <-resub:
			resub = nil
			if !c.subscribe(ctx) {
				resub = c.scheduleResubscribe()
			}

		case <-watchdog.C:
			// Self-healing: a subscription can wedge in a state that never
			// reaches a callback-driven transition.
			if c.SubscriptionState() != ports.SubscriptionSubscribed {
				c.logger.Warn("watchdog forcing resubscribe",
					ports.String("state", c.SubscriptionState().String()))
				if c.subscribe(ctx) {
					resub = nil
				} else if resub == nil {
					resub = c.scheduleResubscribe()
				}
			}
			// Unconditional safety net against missed notifications.
			c.Reconcile(ctx)
		}
	}
}

// AddJob validates and enqueues a discovered job. Both intake paths go
// through this gate.
func (c *Intake) AddJob(ctx context.Context, job domain.Job) {
	if _, err := domain.ParseReceipt(job.Payload); err != nil {
		c.logger.Warn("rejecting malformed job",
			ports.String("job", job.ID.String()),
			ports.Err(err))
		c.markError(ctx, job.ID, err)
		return
	}

	switch err := c.queue.Push(job); {
	case err == nil:
		c.logger.Debug("job queued",
			ports.String("job", job.ID.String()),
			ports.Int("depth", c.queue.Size()))
	case errors.Is(err, domain.ErrDuplicateJob):
		// The first arrival is authoritative; the racing path is a no-op.
		c.logger.Debug("duplicate job ignored", ports.String("job", job.ID.String()))
	case errors.Is(err, domain.ErrQueueFull):
		c.logger.Error("queue full, failing job",
			ports.String("job", job.ID.String()),
			ports.Int("depth", c.queue.Size()))
		c.markError(ctx, job.ID, err)
	}
}

// Reconcile pulls all still-pending rows in creation order and funnels
// them through the AddJob gate. This is the safety net that guarantees no
// row is permanently stranded by a missed push notification.
func (c *Intake) Reconcile(ctx context.Context) {
	jobs, err := c.ledger.SelectPending(ctx, c.cfg.ReconcileLimit)
	if err != nil {
		c.logger.Error("reconcile query failed", ports.Err(err))
		return
	}
	if len(jobs) > 0 {
		c.logger.Info("reconcile found pending jobs", ports.Int("count", len(jobs)))
	}
	for _, job := range jobs {
		c.AddJob(ctx, job)
	}
}

// subscribe releases any stale subscription and attempts a new one.
// On confirmation it resets the retry counter and runs an immediate
// reconciliation pull; on failure it increments the counter.
func (c *Intake) subscribe(ctx context.Context) bool {
	c.release()
	c.logger.Info("subscribing to ledger feed")

	sub, err := c.feed.Subscribe(ctx)
	if err != nil {
		c.mu.Lock()
		c.retries++
		c.mu.Unlock()
		c.logger.Warn("subscribe failed", ports.Err(err))
		return false
	}

	c.mu.Lock()
	c.sub = sub
	c.retries = 0
	c.mu.Unlock()

	c.logger.Info("subscribed to ledger feed")
	c.Reconcile(ctx)
	return true
}

// onLost releases the stale subscription before any new one is created,
// so two feeds are never registered at once.
func (c *Intake) onLost(err error) {
	c.logger.Warn("subscription lost", ports.Err(err))
	c.release()
	c.mu.Lock()
	c.retries++
	c.mu.Unlock()
}

func (c *Intake) scheduleResubscribe() <-chan time.Time {
	c.mu.Lock()
	retries := c.retries
	c.mu.Unlock()
	if retries < 1 {
		retries = 1
	}
	delay := c.back.Delay(retries - 1)
	c.logger.Info("resubscribe scheduled",
		ports.Duration("delay", delay),
		ports.Int("failures", retries))
	return time.After(delay)
}

func (c *Intake) current() ports.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub
}

func (c *Intake) release() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

func (c *Intake) markError(ctx context.Context, id uuid.UUID, cause error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if err := c.ledger.UpdateStatus(wctx, id, domain.StatusError, cause.Error()); err != nil {
		c.logger.Error("status write failed",
			ports.String("job", id.String()),
			ports.Err(err))
	}
}
