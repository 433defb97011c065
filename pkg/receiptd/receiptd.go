package receiptd

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tilldesk/receiptd/internal/adapters/escpos"
	"github.com/tilldesk/receiptd/internal/adapters/pg"
	"github.com/tilldesk/receiptd/internal/adapters/usb"
	"github.com/tilldesk/receiptd/internal/app"
	"github.com/tilldesk/receiptd/internal/domain"
	"github.com/tilldesk/receiptd/internal/ports"
)

// Receiptd is a receipt-printing worker that can be embedded in other
// applications. Use New() to create an instance, then Start() to begin
// processing.
type Receiptd struct {
	config Config
	opts   options
	logger ports.Logger

	lifecycle *app.Lifecycle

	mu     sync.RWMutex
	pool   *pgxpool.Pool
	queue  *app.Queue
	conns  *app.ConnManager
	intake *app.Intake
	cancel context.CancelFunc
}

// Stats is a point-in-time snapshot of worker internals.
type Stats struct {
	State        State
	QueueDepth   int
	InFlight     int
	Subscription string
	PrinterReady bool
}

// New creates a new worker with the given configuration.
// The instance is created in StateStopped; call Start() to begin.
// Returns an error if configuration is invalid.
func New(cfg Config, opts ...Option) (*Receiptd, error) {
	cfg.SetDefaults()

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	needDB := o.ledger == nil || o.feed == nil
	needDevice := o.device == nil
	if err := cfg.validate(needDB, needDevice); err != nil {
		return nil, err
	}

	return &Receiptd{
		config:    cfg,
		opts:      o,
		logger:    o.logger,
		lifecycle: app.NewLifecycle(o.logger),
	}, nil
}

// Start begins processing in the background and returns once the workers
// are running. The provided context bounds the lifetime of the worker.
// In once mode the current backlog is pulled synchronously and no
// realtime subscription is made; pair Start with Drain and Stop.
func (w *Receiptd) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := w.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.lifecycle.SetCancel(cancel)

	fail := func(reason string, err error) error {
		cancel()
		_ = w.lifecycle.TransitionTo(app.StateCrashed, reason)
		return err
	}

	ledger, feed := w.opts.ledger, w.opts.feed
	if ledger == nil || feed == nil {
		pool, err := pgxpool.New(runCtx, w.config.DatabaseURL)
		if err != nil {
			return fail("database config", fmt.Errorf("database config: %w", err))
		}
		if err := pool.Ping(runCtx); err != nil {
			pool.Close()
			return fail("database unreachable", fmt.Errorf("database ping: %w", err))
		}
		w.pool = pool
		if ledger == nil {
			ledger = pg.NewLedger(pool, w.logger)
		}
		if feed == nil {
			feed = pg.NewFeed(pool, w.config.ListenChannel, w.logger)
		}
	}

	device := w.opts.device
	watcher := w.opts.hotplug
	if device == nil {
		device = usb.NewDevice(usb.DeviceConfig{
			VendorID:  w.config.VendorID,
			ProductID: w.config.ProductID,
			Node:      w.config.DeviceNode,
		}, w.logger)
		if watcher == nil {
			hcfg := usb.HotplugConfig{}
			if w.config.DeviceNode != "" {
				hcfg.Dir = filepath.Dir(w.config.DeviceNode)
				hcfg.Node = filepath.Base(w.config.DeviceNode)
			}
			watcher = usb.NewHotplug(hcfg, w.logger)
		}
	}

	renderer := w.opts.renderer
	if renderer == nil {
		renderer = escpos.NewEncoder(escpos.EncoderConfig{Width: w.config.ReceiptWidth})
	}

	w.conns = app.NewConnManager(device, app.ConnConfig{
		OpenTimeout: w.config.OpenTimeout,
		OpenGrace:   w.config.OpenGrace,
	}, w.logger)

	executor := app.NewExecutor(w.conns, renderer, app.ExecutorConfig{
		MaxAttempts:   w.config.MaxAttempts,
		SubmitTimeout: w.config.SubmitTimeout,
		BackoffBase:   w.config.RetryBase,
		BackoffMax:    w.config.RetryMax,
	}, w.logger)

	w.queue = app.NewQueue(app.QueueConfig{
		MaxLength:     w.config.QueueMax,
		Concurrency:   w.config.Concurrency,
		InterJobPause: w.config.InterJobPause,
	}, executor, ledger, w.logger)

	w.intake = app.NewIntake(app.IntakeConfig{
		ReconcileLimit:  w.config.ReconcileLimit,
		WatchdogPeriod:  w.config.WatchdogPeriod,
		ResubscribeBase: w.config.ResubscribeBase,
		ResubscribeMax:  w.config.ResubscribeMax,
	}, ledger, feed, w.queue, w.logger)

	w.lifecycle.AddWorker()
	go func() {
		defer w.lifecycle.WorkerDone()
		w.queue.Run(runCtx)
	}()

	if w.config.Once {
		w.intake.Reconcile(runCtx)
	} else {
		w.lifecycle.AddWorker()
		go func() {
			defer w.lifecycle.WorkerDone()
			w.intake.Run(runCtx)
		}()
	}

	if watcher != nil {
		events, err := watcher.Watch(runCtx)
		if err != nil {
			// The printer still works without hot-plug: a torn connection
			// is rediscovered on the next delivery attempt.
			w.logger.Warn("hotplug watching unavailable", ports.Err(err))
		} else {
			w.lifecycle.AddWorker()
			go func() {
				defer w.lifecycle.WorkerDone()
				w.conns.Run(runCtx, events)
			}()
		}
	}

	_ = w.lifecycle.TransitionTo(app.StateRunning, "workers started")
	return nil
}

// Stop gracefully shuts down the worker: running deliveries finish their
// current attempt, the printer connection is torn down and the database
// pool is closed. Waits up to 30 seconds before forcing shutdown.
func (w *Receiptd) Stop() error {
	w.mu.Lock()

	if !w.lifecycle.CanStop() {
		w.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := w.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()

	err := w.lifecycle.WaitWithTimeout(app.ShutdownTimeout)

	w.mu.Lock()
	if w.conns != nil {
		w.conns.Teardown()
	}
	if w.pool != nil {
		w.pool.Close()
		w.pool = nil
	}
	w.mu.Unlock()

	if err != nil {
		_ = w.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = w.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}
	return err
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (w *Receiptd) Status() State {
	return convertState(w.lifecycle.State())
}

// Stats returns a snapshot of queue depth, in-flight count, subscription
// state and printer readiness.
func (w *Receiptd) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	st := Stats{
		State:        convertState(w.lifecycle.State()),
		Subscription: ports.SubscriptionIdle.String(),
	}
	if w.queue != nil {
		st.QueueDepth = w.queue.Size()
		st.InFlight = w.queue.InFlight()
	}
	if w.intake != nil {
		st.Subscription = w.intake.SubscriptionState().String()
	}
	if w.conns != nil {
		st.PrinterReady = w.conns.Ready()
	}
	return st
}

// Drain blocks until the queue is empty and nothing is in flight, or ctx
// ends. Used with once mode to wait out the backlog before Stop.
func (w *Receiptd) Drain(ctx context.Context) error {
	w.mu.RLock()
	q := w.queue
	w.mu.RUnlock()
	if q == nil {
		return domain.ErrNotRunning
	}
	return q.Drain(ctx)
}
