package ports

import "github.com/tilldesk/receiptd/pkg/log"

// Logger re-exports the logging abstraction so application code can
// depend on ports alone.
type Logger = log.Logger

// Field is a structured log field.
type Field = log.Field

// Field constructors, re-exported for convenience.
var (
	String   = log.String
	Int      = log.Int
	Bool     = log.Bool
	Duration = log.Duration
	Err      = log.Err
	Any      = log.Any
)
