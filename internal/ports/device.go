package ports

import "context"

// Device is the physical printer, identified by a fixed vendor/product
// pair. Opening the same device twice concurrently is undefined; the
// connection manager serializes opens.
type Device interface {
	// Open constructs a handle to the device. Blocking, bounded by ctx.
	Open(ctx context.Context) (Handle, error)
}

// Handle is an open connection to the printer. The delivery executor
// borrows it for the duration of one submit and must not retain it past
// a teardown.
type Handle interface {
	// Submit writes a rendered command stream to the device.
	Submit(ctx context.Context, commands []byte) error

	// Close releases the handle. Idempotent: closing an already-closed
	// handle returns nil.
	Close() error
}

// HotplugEventType classifies a hot-plug notification.
type HotplugEventType int

const (
	HotplugAttach HotplugEventType = iota
	HotplugDetach
)

// HotplugEvent is an attach or detach notification for the managed device.
type HotplugEvent struct {
	Type HotplugEventType
	Node string
}

// HotplugWatcher emits attach/detach events for the managed device.
type HotplugWatcher interface {
	// Watch delivers events until ctx is canceled. The channel is closed
	// when the watcher stops.
	Watch(ctx context.Context) (<-chan HotplugEvent, error)
}
