// Package otp issues and checks the one-time codes stored on an account.
//
// All writes go through account.Store.Save, which is a compare-and-swap on the
// account version. When a write loses a race the engine reloads the account
// and re-evaluates, so a single outstanding code can be consumed at most once.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/redmonkez12/docstamp-api/internal/account"
)

const (
	// DefaultTTL is how long an issued code stays valid
	DefaultTTL = 10 * time.Minute

	codeMin = 100000
	codeMax = 999999

	maxAttempts = 5
)

// ErrTooMuchContention is returned when every CAS attempt lost a race
var ErrTooMuchContention = errors.New("otp: too many concurrent updates")

// CodeSource produces a 6-digit code in [100000, 999999]
type CodeSource func() (string, error)

// Grant mutates an account after a successful check
type Grant func(acc *account.Account)

// Engine generates and validates one-time codes
type Engine struct {
	store account.Store
	ttl   time.Duration
	now   func() time.Time
	codes CodeSource
}

// Option customizes an Engine
type Option func(*Engine)

// WithTTL overrides the code lifetime
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithClock injects a clock (useful for tests)
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithCodeSource overrides the random code generator
func WithCodeSource(src CodeSource) Option {
	return func(e *Engine) {
		if src != nil {
			e.codes = src
		}
	}
}

func NewEngine(store account.Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
		codes: RandomCode,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TTL returns the configured code lifetime
func (e *Engine) TTL() time.Duration {
	return e.ttl
}

// Generate issues a new code for acc, replacing any outstanding one.
// acc is updated in place with the persisted state.
func (e *Engine) Generate(ctx context.Context, acc *account.Account) (string, error) {
	code, err := e.codes()
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		acc.SetOTP(code, e.now().Add(e.ttl))

		err := e.store.Save(ctx, acc)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, account.ErrStaleAccount) {
			return "", fmt.Errorf("failed to store otp: %w", err)
		}
		if err := account.Reload(ctx, e.store, acc); err != nil {
			return "", fmt.Errorf("failed to reload account: %w", err)
		}
	}

	return "", ErrTooMuchContention
}

// Check validates submitted against the outstanding code of acc.
//
// A missing or mismatching code returns false without writing. An expired
// code is cleared and false is returned. A matching code is cleared, grant is
// applied and true is returned. acc is updated in place.
func (e *Engine) Check(ctx context.Context, acc *account.Account, submitted string, grant Grant) (bool, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if !acc.HasOutstandingOTP() || acc.OTPCode == nil {
			return false, nil
		}

		var ok bool
		switch {
		case acc.OTPExpired(e.now()):
			acc.ClearOTP()
		case codesEqual(*acc.OTPCode, submitted):
			acc.ClearOTP()
			if grant != nil {
				grant(acc)
			}
			ok = true
		default:
			return false, nil
		}

		err := e.store.Save(ctx, acc)
		if err == nil {
			return ok, nil
		}
		if !errors.Is(err, account.ErrStaleAccount) {
			return false, fmt.Errorf("failed to update otp state: %w", err)
		}
		if err := account.Reload(ctx, e.store, acc); err != nil {
			return false, fmt.Errorf("failed to reload account: %w", err)
		}
	}

	return false, ErrTooMuchContention
}

// RandomCode returns a uniformly random code in [100000, 999999] using crypto/rand
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+codeMin), nil
}

// codesEqual is an exact, constant-time string comparison
func codesEqual(stored, submitted string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}
