package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/vaccine-orders/api/responses"
	pkgAuth "github.com/angelmondragon/vaccine-orders/pkg/auth"
	"github.com/angelmondragon/vaccine-orders/pkg/config"
	pkgerrors "github.com/angelmondragon/vaccine-orders/pkg/errors"
	"github.com/angelmondragon/vaccine-orders/pkg/logger"
)

// credentialSchemes are the Authorization prefixes accepted in front of the JWT.
// Storefront clients send "Token"; "Bearer" is kept for other callers.
var credentialSchemes = []string{"bearer ", "token "}

// Auth validates the access token and seeds the request context with its user id.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := credentialFromHeader(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithUserID(r.Context(), claims.UserID)
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func credentialFromHeader(raw string) string {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	for _, scheme := range credentialSchemes {
		if strings.HasPrefix(lower, scheme) {
			return strings.TrimSpace(raw[len(scheme):])
		}
	}
	return raw
}
