package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tilldesk/receiptd/internal/domain"
	"github.com/tilldesk/receiptd/internal/ports"
)

// Default queue configuration values.
const (
	DefaultQueueMax      = 100
	DefaultConcurrency   = 1
	DefaultInterJobPause = 250 * time.Millisecond

	// statusWriteTimeout bounds a terminal status write so a slow ledger
	// cannot stall the worker loop.
	statusWriteTimeout = 10 * time.Second
)

// QueueConfig contains configuration for the work queue.
type QueueConfig struct {
	// MaxLength is the backpressure bound: pushes beyond it are rejected.
	MaxLength int

	// Concurrency is the number of jobs in flight at once.
	Concurrency int

	// InterJobPause is the deliberate pause between consecutive jobs so
	// the feed/cut motor is not driven back to back. Distinct from retry
	// backoff.
	InterJobPause time.Duration
}

// Deliverer drives one job to a terminal outcome.
type Deliverer interface {
	Deliver(ctx context.Context, job domain.Job) error
}

// Queue is the bounded, deduplicating FIFO buffer of jobs awaiting
// delivery. Entries are identified by job id; an id stays reserved from
// push until its terminal status is written, so a reconciliation pull
// racing an in-flight job cannot duplicate work.
type Queue struct {
	cfg     QueueConfig
	deliver Deliverer
	ledger  ports.Ledger
	logger  ports.Logger

	mu       sync.Mutex
	entries  []domain.Job
	ids      map[uuid.UUID]struct{}
	inFlight int

	wake chan struct{}
}

// NewQueue creates a work queue that hands jobs to deliver and writes
// their terminal status through ledger.
func NewQueue(cfg QueueConfig, deliver Deliverer, ledger ports.Ledger, logger ports.Logger) *Queue {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultQueueMax
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Queue{
		cfg:     cfg,
		deliver: deliver,
		ledger:  ledger,
		logger:  logger,
		ids:     make(map[uuid.UUID]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Push enqueues a job. Returns nil when accepted, ErrDuplicateJob when an
// entry with the same id is already queued or in flight (the first arrival
// is authoritative), and ErrQueueFull under backpressure (the caller must
// mark the job error).
func (q *Queue) Push(job domain.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.ids[job.ID]; dup {
		return domain.ErrDuplicateJob
	}
	if len(q.entries) >= q.cfg.MaxLength {
		return domain.ErrQueueFull
	}

	q.entries = append(q.entries, job)
	q.ids[job.ID] = struct{}{}

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Size returns the number of queued (not yet started) jobs.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// InFlight returns the number of jobs currently being delivered.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// Run consumes the queue until ctx is canceled. At most cfg.Concurrency
// jobs are in flight; a worker that finishes a job immediately attempts
// the next after the inter-job pause.
func (q *Queue) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < q.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.worker(ctx)
		}()
	}
	wg.Wait()
}

func (q *Queue) worker(ctx context.Context) {
	for {
		job, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		q.process(ctx, job)
		q.forget(job.ID)

		if err := sleep(ctx, q.cfg.InterJobPause); err != nil {
			return
		}
	}
}

// pop removes the head entry in FIFO order. The id stays reserved until
// forget is called.
func (q *Queue) pop() (domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return domain.Job{}, false
	}
	job := q.entries[0]
	q.entries = q.entries[1:]
	q.inFlight++
	return job, true
}

func (q *Queue) forget(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.ids, id)
	q.inFlight--
}

// process delivers one job and writes its terminal status. A delivery
// aborted by process shutdown writes nothing: the row stays pending and
// the next reconciliation pull recovers it.
func (q *Queue) process(ctx context.Context, job domain.Job) {
	err := q.deliver.Deliver(ctx, job)
	if err != nil && ctx.Err() != nil {
		q.logger.Warn("delivery aborted by shutdown",
			ports.String("job", job.ID.String()))
		return
	}

	status := domain.StatusPrinted
	message := ""
	if err != nil {
		status = domain.StatusError
		message = err.Error()
	}
	q.writeStatus(ctx, job.ID, status, message)
}

// writeStatus is best effort: a failed write is logged and the queue moves
// on. A printed job whose write failed may be re-delivered by a later
// reconciliation pull; the duplicate physical print is an accepted
// tradeoff of at-least-once semantics.
func (q *Queue) writeStatus(ctx context.Context, id uuid.UUID, status domain.Status, message string) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	if err := q.ledger.UpdateStatus(wctx, id, status, message); err != nil {
		q.logger.Error("terminal status write failed",
			ports.String("job", id.String()),
			ports.String("status", string(status)),
			ports.Err(err))
		return
	}
	q.logger.Info("job finished",
		ports.String("job", id.String()),
		ports.String("status", string(status)))
}

// Drain blocks until the queue is empty and no job is in flight, or ctx
// ends. Used by once mode.
func (q *Queue) Drain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if q.Size() == 0 && q.InFlight() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
