package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (RECEIPTD_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("db-url", os.Getenv("RECEIPTD_DB_URL"), &cfg.DatabaseURL)
	s.setString("listen-channel", os.Getenv("RECEIPTD_LISTEN_CHANNEL"), &cfg.ListenChannel)
	s.setString("vendor-id", os.Getenv("RECEIPTD_VENDOR_ID"), &cfg.VendorID)
	s.setString("product-id", os.Getenv("RECEIPTD_PRODUCT_ID"), &cfg.ProductID)
	s.setString("device-node", os.Getenv("RECEIPTD_DEVICE_NODE"), &cfg.DeviceNode)

	if err := s.setIntFromString("queue-max", os.Getenv("RECEIPTD_QUEUE_MAX"), &cfg.QueueMax); err != nil {
		return err
	}
	if err := s.setIntFromString("concurrency", os.Getenv("RECEIPTD_CONCURRENCY"), &cfg.Concurrency); err != nil {
		return err
	}
	if err := s.setIntFromString("max-attempts", os.Getenv("RECEIPTD_MAX_ATTEMPTS"), &cfg.MaxAttempts); err != nil {
		return err
	}
	if err := s.setIntFromString("reconcile-limit", os.Getenv("RECEIPTD_RECONCILE_LIMIT"), &cfg.ReconcileLimit); err != nil {
		return err
	}
	if err := s.setIntFromString("receipt-width", os.Getenv("RECEIPTD_RECEIPT_WIDTH"), &cfg.ReceiptWidth); err != nil {
		return err
	}

	if err := s.setDuration("inter-job-pause", os.Getenv("RECEIPTD_INTER_JOB_PAUSE"), &cfg.InterJobPause); err != nil {
		return err
	}
	if err := s.setDuration("retry-base", os.Getenv("RECEIPTD_RETRY_BASE"), &cfg.RetryBase); err != nil {
		return err
	}
	if err := s.setDuration("retry-max", os.Getenv("RECEIPTD_RETRY_MAX"), &cfg.RetryMax); err != nil {
		return err
	}
	if err := s.setDuration("submit-timeout", os.Getenv("RECEIPTD_SUBMIT_TIMEOUT"), &cfg.SubmitTimeout); err != nil {
		return err
	}
	if err := s.setDuration("open-timeout", os.Getenv("RECEIPTD_OPEN_TIMEOUT"), &cfg.OpenTimeout); err != nil {
		return err
	}
	if err := s.setDuration("open-grace", os.Getenv("RECEIPTD_OPEN_GRACE"), &cfg.OpenGrace); err != nil {
		return err
	}
	if err := s.setDuration("watchdog", os.Getenv("RECEIPTD_WATCHDOG"), &cfg.WatchdogPeriod); err != nil {
		return err
	}
	if err := s.setDuration("resubscribe-base", os.Getenv("RECEIPTD_RESUBSCRIBE_BASE"), &cfg.ResubscribeBase); err != nil {
		return err
	}
	if err := s.setDuration("resubscribe-max", os.Getenv("RECEIPTD_RESUBSCRIBE_MAX"), &cfg.ResubscribeMax); err != nil {
		return err
	}

	s.setBoolFromString("once", os.Getenv("RECEIPTD_ONCE"), &cfg.Once)

	return nil
}
