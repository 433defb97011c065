// Package domain contains the core entities and error taxonomy of receiptd.
//
// It has no dependencies on infrastructure concerns (database, USB, logging)
// and is testable without mocks.
//
//   - [Job]: one row of the remote job ledger
//   - [Status]: the ledger status of a job (pending, printed, error)
//   - [Receipt]: the structured payload of a print job
package domain
