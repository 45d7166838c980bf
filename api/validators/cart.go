package validators

import (
	"fmt"
	"net/http"
	"time"

	"github.com/angelmondragon/vaccine-orders/internal/cart"
	pkgerrors "github.com/angelmondragon/vaccine-orders/pkg/errors"
)

// CartItemInput is the validated view of one submitted cart line.
type CartItemInput struct {
	ProductID             string `json:"product_id" validate:"required"`
	DosePackID            string `json:"dose_pack_id"`
	Quantity              int    `json:"quantity" validate:"min=1"`
	RequestedDeliveryDate string `json:"requested_delivery_date" validate:"omitempty,datetime=2006-01-02"`
	SpecialInstructions   string `json:"special_instructions" validate:"max=2000"`
}

// DecodeCartItems reads a cart payload in either field naming and validates every line.
// Lines without a delivery date get the default one relative to now.
func DecodeCartItems(r *http.Request, now time.Time) ([]cart.Line, error) {
	data, err := ReadBody(r)
	if err != nil {
		return nil, err
	}
	records, err := cart.ParseRecords(data)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "invalid request body").
			WithDetails(map[string]any{"error": err.Error()})
	}

	lines := make([]cart.Line, 0, len(records))
	seen := make(map[cart.LineKey]int, len(records))
	for i, rec := range records {
		line, err := cart.DecodeLine(rec, now)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart item").
				WithDetails(map[string]any{"index": i, "error": err.Error()})
		}

		input := CartItemInput{
			ProductID:             line.Product.ID.String(),
			DosePackID:            line.DosePack.ID.String(),
			Quantity:              line.Quantity,
			RequestedDeliveryDate: line.RequestedDeliveryDate,
			SpecialInstructions:   line.SpecialInstructions,
		}
		if err := ValidateStruct(&input); err != nil {
			typed := pkgerrors.As(err)
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid cart item at index %d", i)).
				WithDetails(map[string]any{"index": i, "fields": typed.Details()})
		}

		if first, dup := seen[line.Key()]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate cart item").
				WithDetails(map[string]any{"index": i, "duplicate_of": first})
		}
		seen[line.Key()] = i
		lines = append(lines, line)
	}
	return lines, nil
}
