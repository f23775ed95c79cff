package account

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RoleGroup classifies an account at registration time. It is never changed afterwards.
type RoleGroup string

const (
	RoleIndividual RoleGroup = "individual"
	RoleCompany    RoleGroup = "company"
)

// RoleGroupFor maps the registration company flag to a role group
func RoleGroupFor(isCompany bool) RoleGroup {
	if isCompany {
		return RoleCompany
	}
	return RoleIndividual
}

// Account is the identity record for a registered user
type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose password hash in JSON
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	RoleGroup    RoleGroup `json:"role_group"`
	IsActive     bool      `json:"is_active"`
	IsVerified   bool      `json:"is_verified"`
	OTPVerified  bool      `json:"otp_verified"`

	// OTPCode and OTPExpiresAt are either both set or both nil
	OTPCode       *string    `json:"-"`
	OTPExpiresAt  *time.Time `json:"-"`
	OTPGeneration int64      `json:"-"`

	// Version guards compare-and-swap writes
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasOutstandingOTP reports whether a code has been issued and not yet cleared.
// Expiry is not considered.
func (a *Account) HasOutstandingOTP() bool {
	return a.OTPExpiresAt != nil
}

// OTPExpired reports whether the outstanding code is past its expiry at now
func (a *Account) OTPExpired(now time.Time) bool {
	return a.OTPExpiresAt != nil && now.After(*a.OTPExpiresAt)
}

// SetOTP records a freshly issued code and bumps the generation
func (a *Account) SetOTP(code string, expiresAt time.Time) {
	a.OTPCode = &code
	a.OTPExpiresAt = &expiresAt
	a.OTPGeneration++
}

// ClearOTP removes any outstanding code
func (a *Account) ClearOTP() {
	a.OTPCode = nil
	a.OTPExpiresAt = nil
}

// DisplayName returns the full name, or the email when no name was given
func (a *Account) DisplayName() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.Email
	}
	return name
}

// Clone returns a deep copy of the account
func (a *Account) Clone() *Account {
	c := *a
	if a.OTPCode != nil {
		code := *a.OTPCode
		c.OTPCode = &code
	}
	if a.OTPExpiresAt != nil {
		exp := *a.OTPExpiresAt
		c.OTPExpiresAt = &exp
	}
	return &c
}
