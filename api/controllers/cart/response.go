package cart

import (
	"net/http"

	"github.com/angelmondragon/vaccine-orders/api/responses"
	cartcore "github.com/angelmondragon/vaccine-orders/internal/cart"
	pkgerrors "github.com/angelmondragon/vaccine-orders/pkg/errors"
	"github.com/angelmondragon/vaccine-orders/pkg/logger"
)

// CartResponse is the data payload of both cart endpoints; items use underscore naming.
type CartResponse struct {
	Items []cartcore.RemoteLine `json:"items"`
}

func newCartResponse(lines []cartcore.Line) (CartResponse, error) {
	resp := CartResponse{Items: make([]cartcore.RemoteLine, 0, len(lines))}
	for _, line := range lines {
		rec, err := cartcore.EncodeLine(line, cartcore.SnakeNaming)
		if err != nil {
			return CartResponse{}, err
		}
		resp.Items = append(resp.Items, rec)
	}
	return resp, nil
}

func writeCart(w http.ResponseWriter, r *http.Request, logg *logger.Logger, lines []cartcore.Line) {
	resp, err := newCartResponse(lines)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart"))
		return
	}
	responses.WriteSuccess(w, resp)
}
