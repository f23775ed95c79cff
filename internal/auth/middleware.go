package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/redmonkez12/docstamp-api/internal/httputil"
	"github.com/redmonkez12/docstamp-api/internal/logging"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const (
	AccountIDContextKey    ContextKey = "account_id"
	AccountEmailContextKey ContextKey = "account_email"
)

// Middleware handles authentication for protected routes
type Middleware struct {
	tokenService TokenService
}

func NewMiddleware(tokenService TokenService) *Middleware {
	return &Middleware{tokenService: tokenService}
}

// RequireAuth validates the access token from the Authorization header,
// falling back to the access token cookie
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string

		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			scheme, value, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || value == "" {
				httputil.RespondErrorWithCode(w, "invalid authorization header format", httputil.CodeInvalidAuthHeader, http.StatusUnauthorized)
				return
			}
			token = strings.TrimSpace(value)
		}

		if token == "" {
			cookieToken, err := GetAccessTokenFromCookie(r)
			if err != nil {
				httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
				return
			}
			token = cookieToken
		}

		claims, err := m.tokenService.VerifyToken(token)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				httputil.RespondErrorWithCode(w, "token has expired", httputil.CodeTokenExpired, http.StatusUnauthorized)
				return
			}
			httputil.RespondErrorWithCode(w, "invalid token", httputil.CodeInvalidToken, http.StatusUnauthorized)
			return
		}

		accountID, err := uuid.Parse(claims.AccountID)
		if err != nil {
			httputil.RespondErrorWithCode(w, "invalid account ID in token", httputil.CodeInvalidTokenUserID, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), AccountIDContextKey, accountID)
		ctx = context.WithValue(ctx, AccountEmailContextKey, claims.Email)

		// Tag the request logger with the caller
		logger := logging.GetLoggerFromContext(ctx).WithFields(map[string]any{"account_id": accountID.String()})
		ctx = logging.WithLogger(ctx, logger)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAccountIDFromContext extracts the account ID from the request context
func GetAccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	accountID, ok := ctx.Value(AccountIDContextKey).(uuid.UUID)
	return accountID, ok
}

// GetAccountEmailFromContext extracts the account email from the request context
func GetAccountEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(AccountEmailContextKey).(string)
	return email, ok
}

// WithAccountID returns a context carrying an authenticated account ID
func WithAccountID(ctx context.Context, accountID uuid.UUID) context.Context {
	return context.WithValue(ctx, AccountIDContextKey, accountID)
}
