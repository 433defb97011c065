package cliconfig

import (
	"fmt"
	"strconv"
	"time"
)

// DefaultListenChannel is the NOTIFY channel the ledger's insert trigger
// fires on.
const DefaultListenChannel = "print_jobs_insert"

// Config holds CLI configuration for receiptd.
type Config struct {
	DatabaseURL   string
	ListenChannel string

	VendorID   string
	ProductID  string
	DeviceNode string

	QueueMax      int
	Concurrency   int
	InterJobPause time.Duration

	MaxAttempts   int
	RetryBase     time.Duration
	RetryMax      time.Duration
	SubmitTimeout time.Duration

	OpenTimeout time.Duration
	OpenGrace   time.Duration

	WatchdogPeriod  time.Duration
	ResubscribeBase time.Duration
	ResubscribeMax  time.Duration
	ReconcileLimit  int

	ReceiptWidth int
	Once         bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ListenChannel:   DefaultListenChannel,
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

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("db-url is required")
	}
	if c.DeviceNode == "" && (c.VendorID == "" || c.ProductID == "") {
		return fmt.Errorf("vendor-id and product-id are required (or device-node)")
	}
	if c.ListenChannel == "" {
		c.ListenChannel = DefaultListenChannel
	}

	if c.QueueMax <= 0 {
		return fmt.Errorf("queue-max must be positive")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max-attempts must be at least 1")
	}
	if c.RetryBase <= 0 || c.RetryMax <= 0 {
		return fmt.Errorf("retry intervals must be positive")
	}
	if c.RetryMax < c.RetryBase {
		return fmt.Errorf("retry-max must not be below retry-base")
	}
	if c.SubmitTimeout <= 0 {
		return fmt.Errorf("submit-timeout must be positive")
	}
	if c.WatchdogPeriod <= 0 {
		return fmt.Errorf("watchdog must be positive")
	}
	if c.ReconcileLimit <= 0 {
		return fmt.Errorf("reconcile-limit must be positive")
	}
	if c.ReceiptWidth <= 0 {
		return fmt.Errorf("receipt-width must be positive")
	}

	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
