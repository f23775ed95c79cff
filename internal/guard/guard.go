// Package guard decides whether an account may perform a gated action.
// Decisions are always made from the stored account, never from client input.
package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/redmonkez12/docstamp-api/internal/account"
)

// ErrActionNotPermitted is returned when the account is not eligible.
// It is a final answer for the request, not a retryable failure.
var ErrActionNotPermitted = errors.New("action not permitted, verify your account with an OTP first")

// Action names a gated operation
type Action string

const (
	ActionCreateStamp Action = "create_stamp"
)

// CanCreateStamp reports whether acc may create stamps
func CanCreateStamp(acc *account.Account) bool {
	return acc != nil && acc.OTPVerified
}

var policies = map[Action]func(*account.Account) bool{
	ActionCreateStamp: CanCreateStamp,
}

// Guard loads accounts and applies action policies
type Guard struct {
	accounts account.Store
}

func New(accounts account.Store) *Guard {
	return &Guard{accounts: accounts}
}

// Authorize returns nil when the account may perform action
func (g *Guard) Authorize(ctx context.Context, accountID uuid.UUID, action Action) error {
	allowed, ok := policies[action]
	if !ok {
		return fmt.Errorf("unknown action %q: %w", action, ErrActionNotPermitted)
	}

	acc, err := g.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrActionNotPermitted
		}
		return fmt.Errorf("failed to load account: %w", err)
	}

	if !acc.IsActive || !allowed(acc) {
		return ErrActionNotPermitted
	}
	return nil
}
