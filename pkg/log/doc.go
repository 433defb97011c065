// Package log provides the logging abstraction used by receiptd components.
//
// The Logger interface can be implemented by any logging library. A zerolog
// adapter is provided for production use and a no-op logger for tests:
//
//	logger := log.NewZerologLogger()
//	logger := log.NewNoopLogger()
package log
