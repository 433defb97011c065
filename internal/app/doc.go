// Package app contains the delivery-reliability engine of receiptd.
//
// The engine is built from four cooperating pieces, each owning one
// failure domain:
//
//   - [Queue]: bounded, deduplicating FIFO of jobs awaiting delivery,
//     consumed by a fixed number of workers (default one)
//   - [ConnManager]: lifecycle of the single physical printer connection,
//     including hot-plug reaction
//   - [Executor]: drives one job through render and submit with a hardware
//     timeout and bounded retries with exponential backoff
//   - [Intake]: feeds the queue from the realtime subscription (push) and
//     the reconciliation pull (pull), with a watchdog that keeps both
//     paths alive
//
// Together they guarantee that every pending ledger row transitions to
// exactly one terminal status, with at-least-once delivery semantics and
// idempotent terminal writes.
package app
