package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	DatabaseURL   string `toml:"db_url"`
	ListenChannel string `toml:"listen_channel"`

	VendorID   string `toml:"vendor_id"`
	ProductID  string `toml:"product_id"`
	DeviceNode string `toml:"device_node"`

	QueueMax      int    `toml:"queue_max"`
	Concurrency   int    `toml:"concurrency"`
	InterJobPause string `toml:"inter_job_pause"`

	MaxAttempts   int    `toml:"max_attempts"`
	RetryBase     string `toml:"retry_base"`
	RetryMax      string `toml:"retry_max"`
	SubmitTimeout string `toml:"submit_timeout"`

	OpenTimeout string `toml:"open_timeout"`
	OpenGrace   string `toml:"open_grace"`

	WatchdogPeriod  string `toml:"watchdog"`
	ResubscribeBase string `toml:"resubscribe_base"`
	ResubscribeMax  string `toml:"resubscribe_max"`
	ReconcileLimit  int    `toml:"reconcile_limit"`

	ReceiptWidth int   `toml:"receipt_width"`
	Once         *bool `toml:"once"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.receiptd/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".receiptd", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("db-url", fc.DatabaseURL, &cfg.DatabaseURL)
	s.setString("listen-channel", fc.ListenChannel, &cfg.ListenChannel)
	s.setString("vendor-id", fc.VendorID, &cfg.VendorID)
	s.setString("product-id", fc.ProductID, &cfg.ProductID)
	s.setString("device-node", fc.DeviceNode, &cfg.DeviceNode)

	s.setInt("queue-max", fc.QueueMax, &cfg.QueueMax)
	s.setInt("concurrency", fc.Concurrency, &cfg.Concurrency)
	s.setInt("max-attempts", fc.MaxAttempts, &cfg.MaxAttempts)
	s.setInt("reconcile-limit", fc.ReconcileLimit, &cfg.ReconcileLimit)
	s.setInt("receipt-width", fc.ReceiptWidth, &cfg.ReceiptWidth)

	if err := s.setDuration("inter-job-pause", fc.InterJobPause, &cfg.InterJobPause); err != nil {
		return err
	}
	if err := s.setDuration("retry-base", fc.RetryBase, &cfg.RetryBase); err != nil {
		return err
	}
	if err := s.setDuration("retry-max", fc.RetryMax, &cfg.RetryMax); err != nil {
		return err
	}
	if err := s.setDuration("submit-timeout", fc.SubmitTimeout, &cfg.SubmitTimeout); err != nil {
		return err
	}
	if err := s.setDuration("open-timeout", fc.OpenTimeout, &cfg.OpenTimeout); err != nil {
		return err
	}
	if err := s.setDuration("open-grace", fc.OpenGrace, &cfg.OpenGrace); err != nil {
		return err
	}
	if err := s.setDuration("watchdog", fc.WatchdogPeriod, &cfg.WatchdogPeriod); err != nil {
		return err
	}
	if err := s.setDuration("resubscribe-base", fc.ResubscribeBase, &cfg.ResubscribeBase); err != nil {
		return err
	}
	if err := s.setDuration("resubscribe-max", fc.ResubscribeMax, &cfg.ResubscribeMax); err != nil {
		return err
	}

	s.setBool("once", fc.Once, &cfg.Once)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
