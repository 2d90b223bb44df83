package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/marketplace-commissions/api/responses"
	pkgAuth "github.com/angelmondragon/marketplace-commissions/pkg/auth"
	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-commissions/pkg/errors"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
)

// bearer accepts "Bearer <token>" in any case as well as a bare token.
func bearer(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		header = header[7:]
	}
	return strings.TrimSpace(header)
}

// Auth verifies the access token and records the caller's id, role and
// active store on the request context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearer(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			userID, role, storeID := claims.UserID.String(), string(claims.Role), ""
			if claims.ActiveStoreID != nil {
				storeID = claims.ActiveStoreID.String()
			}
			ctx := WithRole(WithUserID(r.Context(), userID), role)
			if storeID != "" {
				ctx = WithStoreID(ctx, storeID)
			}
			if logg != nil {
				ctx = logg.WithActor(ctx, userID, role, storeID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose token carries a different role.
func RequireRole(role enums.ActorRole, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := RoleFromContext(r.Context()); got != string(role) {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Newf(pkgerrors.CodeForbidden, "%s role required", role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
