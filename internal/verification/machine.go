// Package verification drives an account through Unverified, OtpPending and
// Verified using the one-time codes issued by the otp engine.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redmonkez12/docstamp-api/internal/account"
	"github.com/redmonkez12/docstamp-api/internal/logging"
	"github.com/redmonkez12/docstamp-api/internal/otp"
)

// ErrInvalidOrExpired is returned for a missing, wrong or expired code.
// The message is intentionally opaque.
var ErrInvalidOrExpired = errors.New("invalid or expired OTP")

// State is the derived verification state of an account
type State string

const (
	StateUnverified State = "unverified"
	StateOtpPending State = "otp_pending"
	StateVerified   State = "verified"
)

// Flow selects which flags a successful verification grants
type Flow int

const (
	// FlowEmail confirms ownership of the email address. It sets IsVerified
	// and OTPVerified.
	FlowEmail Flow = iota
	// FlowAction re-confirms an authenticated user before gated actions. It
	// sets OTPVerified only.
	FlowAction
)

func (f Flow) String() string {
	switch f {
	case FlowEmail:
		return "email"
	case FlowAction:
		return "action"
	default:
		return fmt.Sprintf("flow(%d)", int(f))
	}
}

func (f Flow) grant() otp.Grant {
	switch f {
	case FlowEmail:
		return func(acc *account.Account) {
			acc.IsVerified = true
			acc.OTPVerified = true
		}
	default:
		return func(acc *account.Account) {
			acc.OTPVerified = true
		}
	}
}

// Machine applies verification transitions
type Machine struct {
	engine *otp.Engine
	logger *logging.Logger
	now    func() time.Time
}

// Option customizes a Machine
type Option func(*Machine)

// WithClock injects the clock used to derive OtpPending
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMachine(engine *otp.Engine, logger *logging.Logger, opts ...Option) *Machine {
	m := &Machine{
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CodeTTL is how long an issued code stays valid
func (m *Machine) CodeTTL() time.Duration {
	return m.engine.TTL()
}

// StateOf derives the current state. A verified account stays Verified even
// while an action code is outstanding.
func (m *Machine) StateOf(acc *account.Account) State {
	switch {
	case acc.IsVerified:
		return StateVerified
	case acc.HasOutstandingOTP() && !acc.OTPExpired(m.now()):
		return StateOtpPending
	default:
		return StateUnverified
	}
}

// Issue generates a fresh code for acc and returns it. Any earlier code stops
// being accepted.
func (m *Machine) Issue(ctx context.Context, acc *account.Account) (string, error) {
	from := m.StateOf(acc)

	code, err := m.engine.Generate(ctx, acc)
	if err != nil {
		return "", err
	}

	m.logTransition(acc, from, m.StateOf(acc), "otp_issued")
	return code, nil
}

// Verify checks code against the outstanding OTP and applies the grants of flow
func (m *Machine) Verify(ctx context.Context, acc *account.Account, code string, flow Flow) error {
	from := m.StateOf(acc)

	ok, err := m.engine.Check(ctx, acc, code, flow.grant())
	if err != nil {
		return err
	}
	if !ok {
		m.logger.WithFields(map[string]any{
			"account_id": acc.ID.String(),
			"flow":       flow.String(),
			"state":      string(m.StateOf(acc)),
		}).Info("otp verification rejected")
		return ErrInvalidOrExpired
	}

	m.logTransition(acc, from, m.StateOf(acc), "otp_verified_"+flow.String())
	return nil
}

func (m *Machine) logTransition(acc *account.Account, from, to State, reason string) {
	m.logger.WithFields(map[string]any{
		"account_id": acc.ID.String(),
		"from":       string(from),
		"to":         string(to),
		"reason":     reason,
	}).Info("verification state transition")
}
