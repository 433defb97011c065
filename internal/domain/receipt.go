package domain

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate caches struct metadata; safe for concurrent use.
var validate = validator.New()

// Receipt is the structured payload of a print job. The core checks only
// its shape (invoice info present, numeric total, items is a non-empty
// sequence); layout decisions belong to the render stage.
type Receipt struct {
	Company  Company  `json:"company"`
	Invoice  Invoice  `json:"invoice"`
	Items    []Item   `json:"items" validate:"required,min=1,dive"`
	Totals   Totals   `json:"totals"`
	Payments Payments `json:"payments"`
}

// Company identifies the issuing business.
type Company struct {
	Name    string `json:"name"`
	TaxID   string `json:"tax_id"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// Invoice carries the fiscal identity of the receipt.
type Invoice struct {
	Number   string `json:"number" validate:"required"`
	Series   string `json:"series"`
	IssuedAt string `json:"issued_at"`
}

// Item is a single receipt line.
type Item struct {
	Name      string  `json:"name" validate:"required"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Amount    float64 `json:"amount"`
}

// Totals summarizes the receipt amounts. Total is a pointer so that an
// absent total fails validation while an explicit zero passes.
type Totals struct {
	Subtotal float64  `json:"subtotal"`
	Tax      float64  `json:"tax"`
	Total    *float64 `json:"total" validate:"required"`
}

// Payments records how the total was settled.
type Payments struct {
	Cash     float64 `json:"cash"`
	Card     float64 `json:"card"`
	Transfer float64 `json:"transfer"`
	Balance  float64 `json:"balance"`
	Change   float64 `json:"change"`
}

// ParseReceipt decodes and shape-checks a job payload.
// All failures wrap ErrInvalidPayload.
func ParseReceipt(payload []byte) (Receipt, error) {
	var r Receipt
	if err := json.Unmarshal(payload, &r); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(r); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return r, nil
}
