// Package pg implements the ledger and realtime feed ports against
// PostgreSQL. The ledger uses a shared pgxpool; the feed hijacks a
// dedicated connection for LISTEN/NOTIFY so pool traffic never starves
// notification delivery.
package pg
