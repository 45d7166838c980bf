package cart

import (
	"net/http"
	"time"

	"github.com/angelmondragon/vaccine-orders/api/middleware"
	"github.com/angelmondragon/vaccine-orders/api/responses"
	"github.com/angelmondragon/vaccine-orders/api/validators"
	"github.com/angelmondragon/vaccine-orders/internal/remotecart"
	pkgerrors "github.com/angelmondragon/vaccine-orders/pkg/errors"
	"github.com/angelmondragon/vaccine-orders/pkg/logger"
)

// CartFetch returns the authenticated user's stored cart.
func CartFetch(svc remotecart.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeCart(w, r, logg, lines)
	}
}

// CartReplace overwrites the authenticated user's cart with the submitted items.
// now supplies the clock used to default missing delivery dates.
func CartReplace(svc remotecart.Service, logg *logger.Logger, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines, err := validators.DecodeCartItems(r, now())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stored, err := svc.Replace(r.Context(), userID, lines)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithField(r.Context(), "items", len(stored)), "cart.replaced")
		}
		writeCart(w, r, logg, stored)
	}
}

func userIDFromContext(r *http.Request) (string, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return userID, nil
}
