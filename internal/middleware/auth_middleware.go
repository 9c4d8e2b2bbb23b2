package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/erpcore/erp/internal/apperror"
	"github.com/erpcore/erp/internal/httputil"
	"github.com/erpcore/erp/internal/models"
	"github.com/erpcore/erp/internal/service"
	"github.com/sirupsen/logrus"
)

type contextKey string

const claimsKey contextKey = "claims"

type AuthMiddleware struct {
	jwtService     *service.JWTService
	sessionService *service.SessionService
	logger         *logrus.Logger
}

func NewAuthMiddleware(jwtService *service.JWTService, sessionService *service.SessionService, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService:     jwtService,
		sessionService: sessionService,
		logger:         logger,
	}
}

// RequireAuth admits requests carrying a valid access token whose session is
// still the user's live one. The claims are stored in the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(w, m.logger, apperror.Unauthorized("Missing authorization header"))
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			httputil.RespondWithError(w, m.logger, apperror.Unauthorized("Invalid authorization header format"))
			return
		}

		claims, err := m.jwtService.DecodeAccess(strings.TrimSpace(token))
		if err != nil {
			m.logger.WithError(err).Debug("Token verification failed")
			httputil.RespondWithError(w, m.logger, err)
			return
		}

		if _, err := m.sessionService.Validate(r.Context(), claims); err != nil {
			m.logger.WithError(err).WithField("user_id", claims.UserID.String()).Debug("Session validation failed")
			httputil.RespondWithError(w, m.logger, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func WithClaims(ctx context.Context, claims *models.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims RequireAuth stored for this request.
func ClaimsFromContext(ctx context.Context) (*models.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*models.Claims)
	return claims, ok && claims != nil
}
