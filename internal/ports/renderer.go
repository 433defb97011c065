package ports

import "github.com/tilldesk/receiptd/internal/domain"

// Renderer turns a receipt into the printer's command stream.
// Implementations are pure: no state, no I/O. Render fails only on a
// structurally invalid payload.
type Renderer interface {
	Render(r domain.Receipt) ([]byte, error)
}
