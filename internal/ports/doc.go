// Package ports defines the interfaces that connect the delivery engine
// to infrastructure adapters.
//
// The application layer (internal/app) depends only on these interfaces.
// Adapters (internal/adapters) implement them against Postgres, the USB
// device layer, and the ESC/POS encoder. This keeps the engine testable
// with in-memory stubs and the dependency direction pointing inward.
//
//   - [Ledger]: read pending jobs, write terminal statuses
//   - [Feed] / [Subscription]: realtime notifications of inserted rows
//   - [Device] / [Handle]: the physical printer
//   - [HotplugWatcher]: attach/detach events for the printer
//   - [Renderer]: receipt payload to printer command stream
//   - [Logger]: structured logging abstraction
package ports
