package receiptd

import (
	"github.com/tilldesk/receiptd/internal/ports"
	"github.com/tilldesk/receiptd/pkg/log"
)

// Logger is the interface for structured logging.
type Logger = log.Logger

// Option configures optional behavior of the worker.
type Option func(*options)

// options holds the optional configuration for a worker instance.
type options struct {
	logger   ports.Logger
	ledger   ports.Ledger
	feed     ports.Feed
	device   ports.Device
	renderer ports.Renderer
	hotplug  ports.HotplugWatcher
}

func defaultOptions() options {
	return options{
		logger: log.NewNoopLogger(),
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLedger replaces the Postgres-backed job ledger.
// Mainly useful for embedding and tests.
func WithLedger(ledger ports.Ledger) Option {
	return func(o *options) {
		o.ledger = ledger
	}
}

// WithFeed replaces the LISTEN/NOTIFY realtime feed.
func WithFeed(feed ports.Feed) Option {
	return func(o *options) {
		o.feed = feed
	}
}

// WithDevice replaces the USB printer device. When a device is injected,
// hot-plug watching is disabled unless WithHotplug is also given.
func WithDevice(device ports.Device) Option {
	return func(o *options) {
		o.device = device
	}
}

// WithRenderer replaces the ESC/POS encoder.
func WithRenderer(renderer ports.Renderer) Option {
	return func(o *options) {
		o.renderer = renderer
	}
}

// WithHotplug replaces the device node watcher.
func WithHotplug(watcher ports.HotplugWatcher) Option {
	return func(o *options) {
		o.hotplug = watcher
	}
}
