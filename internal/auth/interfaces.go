package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/docstamp-api/internal/config"
)

// TokenService defines the interface for token creation and validation.
// Implementations include PasetoService (PASETO v4.local) and JWTService (HS256).
type TokenService interface {
	CreateToken(accountID uuid.UUID, email string, duration time.Duration) (string, error)
	VerifyToken(tokenStr string) (*TokenClaims, error)
}

// Notifier delivers a freshly issued OTP to the account holder
type Notifier interface {
	SendOTPEmail(ctx context.Context, toEmail, name, code string, validFor time.Duration) error
}

// NewTokenService builds the access token implementation selected by cfg
func NewTokenService(cfg config.AuthConfig) (TokenService, error) {
	switch cfg.TokenFormat {
	case config.TokenFormatJWT:
		return NewJWTService(cfg.JWTSecret)
	case config.TokenFormatPaseto, "":
		return NewPasetoService(cfg.PasetoKey)
	default:
		return nil, fmt.Errorf("unsupported token format %q", cfg.TokenFormat)
	}
}
