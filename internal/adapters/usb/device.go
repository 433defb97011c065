package usb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tilldesk/receiptd/internal/ports"
)

const (
	// DefaultSysPath is where the kernel lists usblp class devices.
	DefaultSysPath = "/sys/class/usbmisc"

	// DefaultDevDir is where usblp device nodes appear.
	DefaultDevDir = "/dev/usb"
)

// DeviceConfig identifies the printer to open.
type DeviceConfig struct {
	// VendorID and ProductID are lowercase hex as sysfs reports them,
	// e.g. "04b8" and "0202". Used for discovery when Node is empty.
	VendorID  string
	ProductID string

	// Node is an explicit device node, e.g. /dev/usb/lp0. When set,
	// discovery is skipped entirely.
	Node string

	// SysPath and DevDir override the kernel paths. Tests only.
	SysPath string
	DevDir  string
}

// Device opens the usblp character device for a fixed vendor/product pair.
type Device struct {
	cfg    DeviceConfig
	logger ports.Logger
}

var _ ports.Device = (*Device)(nil)

// NewDevice creates a device for the given identity.
func NewDevice(cfg DeviceConfig, logger ports.Logger) *Device {
	if cfg.SysPath == "" {
		cfg.SysPath = DefaultSysPath
	}
	if cfg.DevDir == "" {
		cfg.DevDir = DefaultDevDir
	}
	return &Device{cfg: cfg, logger: logger}
}

// Open resolves the device node and opens it read-write. Opening a usblp
// node blocks while the printer is claimed or powering up, so the open
// itself runs in a goroutine bounded by ctx.
func (d *Device) Open(ctx context.Context) (ports.Handle, error) {
	node := d.cfg.Node
	if node == "" {
		var err error
		node, err = d.discover()
		if err != nil {
			return nil, err
		}
	}

	type result struct {
		f   *os.File
		err error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := os.OpenFile(node, os.O_RDWR, 0)
		ch <- result{f, err}
	}()

	select {
	case <-ctx.Done():
		// The orphaned open finishes on its own; close whatever it got.
		go func() {
			if r := <-ch; r.f != nil {
				_ = r.f.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("open %s: %w", node, r.err)
		}
		d.logger.Info("printer device opened", ports.String("node", node))
		return &handle{f: r.f, node: node}, nil
	}
}

// discover scans the usblp class entries for the configured identity and
// maps the matching entry to its device node.
func (d *Device) discover() (string, error) {
	entries, err := os.ReadDir(d.cfg.SysPath)
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", d.cfg.SysPath, err)
	}

	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "lp") {
			continue
		}
		base := filepath.Join(d.cfg.SysPath, e.Name())
		// The device symlink points at the interface; the ids live one
		// level up on the USB device itself. Path kept un-cleaned so the
		// kernel resolves the symlink, not us.
		vendor, err := readSysAttr(base + "/device/../idVendor")
		if err != nil {
			continue
		}
		product, err := readSysAttr(base + "/device/../idProduct")
		if err != nil {
			continue
		}
		if strings.EqualFold(vendor, d.cfg.VendorID) && strings.EqualFold(product, d.cfg.ProductID) {
			return filepath.Join(d.cfg.DevDir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no usblp device matches %s:%s", d.cfg.VendorID, d.cfg.ProductID)
}

func readSysAttr(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// handle is one open usblp node.
type handle struct {
	mu     sync.Mutex
	f      *os.File
	node   string
	closed bool
}

var _ ports.Handle = (*handle)(nil)

// Submit writes the full command stream to the device. usblp buffers
// writes in the kernel; a wedged printer blocks here, which is why the
// caller races this against its hardware timeout.
func (h *handle) Submit(ctx context.Context, commands []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// The file is not borrowed under the mutex for the whole write:
	// Close must be able to interrupt a wedged write, and os.File
	// tolerates the concurrent close.
	h.mu.Lock()
	closed := h.closed
	f := h.f
	h.mu.Unlock()
	if closed {
		return fmt.Errorf("submit on closed handle %s", h.node)
	}

	for len(commands) > 0 {
		n, err := f.Write(commands)
		if err != nil {
			return fmt.Errorf("write %s: %w", h.node, err)
		}
		commands = commands[n:]
	}
	return nil
}

// Close releases the node. Idempotent.
func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.f.Close()
}
