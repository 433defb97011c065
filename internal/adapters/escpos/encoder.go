// Package escpos renders receipts into ESC/POS command streams for
// thermal printers.
package escpos

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tilldesk/receiptd/internal/domain"
	"github.com/tilldesk/receiptd/internal/ports"
)

// DefaultWidth is the column count of an 80mm printer in Font A.
const DefaultWidth = 42

// ESC/POS control sequences.
var (
	cmdInit        = []byte{0x1b, 0x40}             // ESC @
	cmdAlignLeft   = []byte{0x1b, 0x61, 0x00}       // ESC a 0
	cmdAlignCenter = []byte{0x1b, 0x61, 0x01}       // ESC a 1
	cmdBoldOn      = []byte{0x1b, 0x45, 0x01}       // ESC E 1
	cmdBoldOff     = []byte{0x1b, 0x45, 0x00}       // ESC E 0
	cmdDoubleOn    = []byte{0x1d, 0x21, 0x11}       // GS ! double w+h
	cmdDoubleOff   = []byte{0x1d, 0x21, 0x00}       // GS ! normal
	cmdFeedAndCut  = []byte{0x1d, 0x56, 0x42, 0x00} // GS V partial cut
)

// EncoderConfig controls receipt layout.
type EncoderConfig struct {
	// Width is the printable column count.
	Width int

	// FeedLines pads the bottom so the cut lands below the last line.
	FeedLines int
}

// Encoder implements ports.Renderer for ESC/POS printers.
type Encoder struct {
	cfg EncoderConfig
}

var _ ports.Renderer = (*Encoder)(nil)

// NewEncoder creates an encoder with the given layout.
func NewEncoder(cfg EncoderConfig) *Encoder {
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.FeedLines <= 0 {
		cfg.FeedLines = 4
	}
	return &Encoder{cfg: cfg}
}

// Render produces the full command stream for one receipt: init, header,
// invoice identity, item lines, totals, payments, feed and cut.
func (e *Encoder) Render(r domain.Receipt) ([]byte, error) {
	if len(r.Items) == 0 {
		return nil, fmt.Errorf("receipt has no items")
	}

	var buf bytes.Buffer
	buf.Write(cmdInit)

	e.header(&buf, r.Company)
	e.invoice(&buf, r.Invoice)
	e.rule(&buf)
	e.items(&buf, r.Items)
	e.rule(&buf)
	e.totals(&buf, r.Totals)
	e.payments(&buf, r.Payments, r.Totals)

	buf.Write(bytes.Repeat([]byte{'\n'}, e.cfg.FeedLines))
	buf.Write(cmdFeedAndCut)
	return buf.Bytes(), nil
}

func (e *Encoder) header(buf *bytes.Buffer, c domain.Company) {
	buf.Write(cmdAlignCenter)
	if c.Name != "" {
		buf.Write(cmdBoldOn)
		e.line(buf, c.Name)
		buf.Write(cmdBoldOff)
	}
	if c.TaxID != "" {
		e.line(buf, c.TaxID)
	}
	if c.Address != "" {
		e.line(buf, c.Address)
	}
	if c.Phone != "" {
		e.line(buf, c.Phone)
	}
	buf.Write(cmdAlignLeft)
	buf.WriteByte('\n')
}

func (e *Encoder) invoice(buf *bytes.Buffer, inv domain.Invoice) {
	number := inv.Number
	if inv.Series != "" {
		number = inv.Series + "-" + inv.Number
	}
	e.line(buf, "RECEIPT "+number)
	if inv.IssuedAt != "" {
		e.line(buf, inv.IssuedAt)
	}
}

func (e *Encoder) items(buf *bytes.Buffer, items []domain.Item) {
	for _, it := range items {
		e.line(buf, it.Name)
		detail := fmt.Sprintf("  %s x %s", trimFloat(it.Quantity), money(it.UnitPrice))
		e.line(buf, leftRight(detail, money(it.Amount), e.cfg.Width))
	}
}

func (e *Encoder) totals(buf *bytes.Buffer, t domain.Totals) {
	if t.Subtotal != 0 {
		e.line(buf, leftRight("Subtotal", money(t.Subtotal), e.cfg.Width))
	}
	if t.Tax != 0 {
		e.line(buf, leftRight("Tax", money(t.Tax), e.cfg.Width))
	}
	total := 0.0
	if t.Total != nil {
		total = *t.Total
	}
	buf.Write(cmdDoubleOn)
	// Double width halves the effective columns.
	e.line(buf, leftRight("TOTAL", money(total), e.cfg.Width/2))
	buf.Write(cmdDoubleOff)
}

// payments prints the settlement block. A receipt with no payment amounts
// at all is treated as settled by transfer for the full total, matching
// how back offices record invoiced orders.
func (e *Encoder) payments(buf *bytes.Buffer, p domain.Payments, t domain.Totals) {
	if p.Cash == 0 && p.Card == 0 && p.Transfer == 0 && t.Total != nil {
		p.Transfer = *t.Total
	}

	buf.WriteByte('\n')
	if p.Cash != 0 {
		e.line(buf, leftRight("Cash", money(p.Cash), e.cfg.Width))
	}
	if p.Card != 0 {
		e.line(buf, leftRight("Card", money(p.Card), e.cfg.Width))
	}
	if p.Transfer != 0 {
		e.line(buf, leftRight("Transfer", money(p.Transfer), e.cfg.Width))
	}
	if p.Balance != 0 {
		e.line(buf, leftRight("Balance", money(p.Balance), e.cfg.Width))
	}
	if p.Change != 0 {
		e.line(buf, leftRight("Change", money(p.Change), e.cfg.Width))
	}
}

func (e *Encoder) rule(buf *bytes.Buffer) {
	e.line(buf, strings.Repeat("-", e.cfg.Width))
}

// line writes s clipped to the printable width plus a line feed.
func (e *Encoder) line(buf *bytes.Buffer, s string) {
	if len(s) > e.cfg.Width {
		s = s[:e.cfg.Width]
	}
	buf.WriteString(s)
	buf.WriteByte('\n')
}

// leftRight pads label and value to opposite edges of one line.
func leftRight(label, value string, width int) string {
	gap := width - len(label) - len(value)
	if gap < 1 {
		gap = 1
	}
	return label + strings.Repeat(" ", gap) + value
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// trimFloat renders quantities without trailing zeros: 2 not 2.00,
// 0.5 stays 0.5.
func trimFloat(v float64) string {
	s := fmt.Sprintf("%.3f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
