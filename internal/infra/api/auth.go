package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"educommerce/internal/domain/model"
	"educommerce/internal/infra/logging"
)

type sessionCtxKey struct{}

// SessionFrom returns the authenticated SessionContext for the request.
func SessionFrom(ctx context.Context) (model.SessionContext, bool) {
	s, ok := ctx.Value(sessionCtxKey{}).(model.SessionContext)
	return s, ok
}

// identityClaims is the shape of the identity tokens the auth provider
// issues. The impersonation claim is present only while an admin acts as the
// subject; re-issuing the token without it ends the impersonation.
type identityClaims struct {
	Impersonator string `json:"impersonator,omitempty"`
	jwt.RegisteredClaims
}

// Authenticate verifies the HS256 identity token and places an explicit
// SessionContext in the request context. No ambient identity state exists
// past this point.
func Authenticate(hmacSecret, environment string) Middleware {
	keyFn := func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(hmacSecret), nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" || raw == r.Header.Get("Authorization") {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			claims := &identityClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, keyFn,
				jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid || claims.Subject == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			session := model.SessionContext{
				UserID:         claims.Subject,
				ImpersonatorID: claims.Impersonator,
				Environment:    environment,
			}
			ctx := context.WithValue(r.Context(), sessionCtxKey{}, session)
			ctx = logging.WithUserID(ctx, session.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
