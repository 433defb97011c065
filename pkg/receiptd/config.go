package receiptd

import (
	"fmt"
	"time"
)

// Config holds the configuration for the print worker.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config struct {
	// DatabaseURL is the Postgres connection string for the job ledger.
	// Required unless both a ledger and a feed are injected via options.
	DatabaseURL string

	// ListenChannel is the NOTIFY channel the insert trigger fires on.
	ListenChannel string

	// VendorID and ProductID identify the USB printer (lowercase hex).
	// DeviceNode bypasses discovery with an explicit /dev node.
	VendorID   string
	ProductID  string
	DeviceNode string

	// QueueMax bounds the work queue; Concurrency is the number of jobs
	// in flight at once; InterJobPause separates consecutive jobs.
	QueueMax      int
	Concurrency   int
	InterJobPause time.Duration

	// MaxAttempts, RetryBase, RetryMax and SubmitTimeout shape one
	// delivery: physical attempts, backoff between them, and the
	// hardware timeout each submit races against.
	MaxAttempts   int
	RetryBase     time.Duration
	RetryMax      time.Duration
	SubmitTimeout time.Duration

	// OpenTimeout bounds one printer open; OpenGrace is how long a
	// caller waits for an in-progress open before opening itself.
	OpenTimeout time.Duration
	OpenGrace   time.Duration

	// WatchdogPeriod, ResubscribeBase, ResubscribeMax and ReconcileLimit
	// control intake: the periodic safety-net pull and the resubscribe
	// schedule after feed loss.
	WatchdogPeriod  time.Duration
	ResubscribeBase time.Duration
	ResubscribeMax  time.Duration
	ReconcileLimit  int

	// ReceiptWidth is the printable column count of the printer.
	ReceiptWidth int

	// Once processes the current backlog and stops instead of
	// subscribing to the realtime feed.
	Once bool
}

// DefaultConfig returns a Config with sensible default values.
// At minimum, set DatabaseURL and the printer identity before New.
func DefaultConfig() Config {
	return Config{
		ListenChannel:   "print_jobs_insert",
		QueueMax:        100,
		Concurrency:     1,
		InterJobPause:   250 * time.Millisecond,
		MaxAttempts:     3,
		RetryBase:       500 * time.Millisecond,
		RetryMax:        30 * time.Second,
		SubmitTimeout:   15 * time.Second,
		OpenTimeout:     5 * time.Second,
		OpenGrace:       3 * time.Second,
		WatchdogPeriod:  60 * time.Second,
		ResubscribeBase: time.Second,
		ResubscribeMax:  60 * time.Second,
		ReconcileLimit:  200,
		ReceiptWidth:    42,
	}
}

// SetDefaults fills zero fields with default values.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.ListenChannel == "" {
		c.ListenChannel = d.ListenChannel
	}
	if c.QueueMax <= 0 {
		c.QueueMax = d.QueueMax
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.InterJobPause <= 0 {
		c.InterJobPause = d.InterJobPause
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBase <= 0 {
		c.RetryBase = d.RetryBase
	}
	if c.RetryMax <= 0 {
		c.RetryMax = d.RetryMax
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = d.SubmitTimeout
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	if c.OpenGrace <= 0 {
		c.OpenGrace = d.OpenGrace
	}
	if c.WatchdogPeriod <= 0 {
		c.WatchdogPeriod = d.WatchdogPeriod
	}
	if c.ResubscribeBase <= 0 {
		c.ResubscribeBase = d.ResubscribeBase
	}
	if c.ResubscribeMax <= 0 {
		c.ResubscribeMax = d.ResubscribeMax
	}
	if c.ReconcileLimit <= 0 {
		c.ReconcileLimit = d.ReconcileLimit
	}
	if c.ReceiptWidth <= 0 {
		c.ReceiptWidth = d.ReceiptWidth
	}
}

// validate checks the parts of the configuration that no option
// replaced. needDB is false when ledger and feed are injected; needDevice
// is false when a device is injected.
func (c *Config) validate(needDB, needDevice bool) error {
	if needDB && c.DatabaseURL == "" {
		return fmt.Errorf("DatabaseURL is required")
	}
	if needDevice && c.DeviceNode == "" && (c.VendorID == "" || c.ProductID == "") {
		return fmt.Errorf("VendorID and ProductID are required (or DeviceNode)")
	}
	if c.RetryMax < c.RetryBase {
		return fmt.Errorf("RetryMax must not be below RetryBase")
	}
	return nil
}
