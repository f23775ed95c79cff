package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"

	"github.com/redmonkez12/docstamp-api/internal/account"
	"github.com/redmonkez12/docstamp-api/internal/logging"
	"github.com/redmonkez12/docstamp-api/internal/verification"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailRequired      = errors.New("email is required")
	ErrUserNotFound       = errors.New("user not found")
	ErrNotVerified        = errors.New("account not verified, please verify your email first")
	// ErrNotificationFailed means the OTP was issued and stored but could not
	// be delivered. The code stays valid.
	ErrNotificationFailed = errors.New("failed to deliver verification code")
)

const defaultNotificationTimeout = 10 * time.Second

// RegisterInput is the registration payload
type RegisterInput struct {
	FirstName            string `json:"first_name"`
	LastName             string `json:"last_name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	IsCompany            bool   `json:"is_company"`
}

// Validate returns validation.Errors keyed by JSON field name
func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.FirstName, validation.Length(0, 150)),
		validation.Field(&in.LastName, validation.Length(0, 150)),
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(
			&in.PasswordConfirmation,
			validation.Required,
			validation.By(valuesMatch(in.Password)),
		),
	)
}

// valuesMatch checks that a field equals str
func valuesMatch(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("passwords do not match")
		}
		return nil
	}
}

// Service handles registration, OTP verification and credential issuance
type Service struct {
	accounts             account.Store
	machine              *verification.Machine
	refreshTokens        RefreshTokenRepository
	tokens               TokenService
	notifier             Notifier
	logger               *logging.Logger
	accessTokenDuration  time.Duration
	refreshTokenDuration time.Duration
	notificationTimeout  time.Duration
	argon2               argon2Params
	dummyHash            string
	now                  func() time.Time
}

// ServiceOption customizes a Service
type ServiceOption func(*Service)

// WithNotificationTimeout bounds how long OTP delivery may take
func WithNotificationTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.notificationTimeout = d
		}
	}
}

func withArgon2Params(p argon2Params) ServiceOption {
	return func(s *Service) {
		s.argon2 = p
	}
}

func NewService(
	accounts account.Store,
	machine *verification.Machine,
	refreshTokens RefreshTokenRepository,
	tokens TokenService,
	notifier Notifier,
	logger *logging.Logger,
	accessTokenDuration time.Duration,
	refreshTokenDuration time.Duration,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		accounts:             accounts,
		machine:              machine,
		refreshTokens:        refreshTokens,
		tokens:               tokens,
		notifier:             notifier,
		logger:               logger,
		accessTokenDuration:  accessTokenDuration,
		refreshTokenDuration: refreshTokenDuration,
		notificationTimeout:  defaultNotificationTimeout,
		argon2:               defaultArgon2Params,
		now:                  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	// A missing account is checked against this so it costs the same as a wrong password
	s.dummyHash, _ = hashPassword("docstamp-dummy-password", s.argon2)

	return s
}

// Register creates an unverified account and sends it a verification code.
//
// Validation failures are returned as validation.Errors before anything is
// written. Once the account exists it is always returned: a delivery failure
// comes back wrapping ErrNotificationFailed, and a failure to issue the code
// comes back as a plain error. In both cases the caller requests a new code.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*account.Account, error) {
	in.Email = account.NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if err := in.Validate(); err != nil {
		return nil, err
	}

	_, err := s.accounts.GetByEmail(ctx, in.Email)
	if err == nil {
		return nil, account.ErrDuplicateEmail
	}
	if !errors.Is(err, account.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}

	passwordHash, err := hashPassword(in.Password, s.argon2)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	acc, err := s.accounts.Create(ctx, &account.Account{
		Email:        in.Email,
		PasswordHash: passwordHash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		RoleGroup:    account.RoleGroupFor(in.IsCompany),
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, account.ErrDuplicateEmail) {
			return nil, account.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("account registered", "account_id", acc.ID, "role_group", acc.RoleGroup)

	if err := s.issueAndNotify(ctx, acc); err != nil {
		return acc, err
	}

	return acc, nil
}

// RequestOTP issues a fresh code for the account registered under email
func (s *Service) RequestOTP(ctx context.Context, email string) error {
	email = account.NormalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}

	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to get account: %w", err)
	}

	return s.issueAndNotify(ctx, acc)
}

// RequestOTPForAccount issues a fresh code for an authenticated account
func (s *Service) RequestOTPForAccount(ctx context.Context, accountID uuid.UUID) error {
	acc, err := s.getAccount(ctx, accountID)
	if err != nil {
		return err
	}
	return s.issueAndNotify(ctx, acc)
}

// VerifyOTP completes email verification. Unknown emails are reported the
// same way as a wrong code.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (*account.Account, error) {
	email = account.NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, verification.ErrInvalidOrExpired
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if err := s.machine.Verify(ctx, acc, code, verification.FlowEmail); err != nil {
		return nil, err
	}
	return acc, nil
}

// VerifyOTPForAccount marks an authenticated account eligible for gated actions
func (s *Service) VerifyOTPForAccount(ctx context.Context, accountID uuid.UUID, code string) (*account.Account, error) {
	acc, err := s.getAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if err := s.machine.Verify(ctx, acc, code, verification.FlowAction); err != nil {
		return nil, err
	}
	return acc, nil
}

// Authenticate checks credentials. It never reveals which half was wrong.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*account.Account, error) {
	email = account.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			verifyPassword(s.dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if !verifyPassword(acc.PasswordHash, password) || !acc.IsActive {
		return nil, ErrInvalidCredentials
	}

	if !acc.IsVerified {
		return nil, ErrNotVerified
	}

	return acc, nil
}

// Login authenticates and returns a fresh token pair
func (s *Service) Login(ctx context.Context, email, password string) (*AuthTokens, error) {
	acc, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	tokens, err := s.IssueTokens(ctx, acc)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return tokens, nil
}

// IssueTokens creates an access token and a stored refresh token for acc
func (s *Service) IssueTokens(ctx context.Context, acc *account.Account) (*AuthTokens, error) {
	accessToken, err := s.tokens.CreateToken(acc.ID, acc.Email, s.accessTokenDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create access token: %w", err)
	}

	refreshToken, err := generateRandomToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	expiresAt := s.now().Add(s.refreshTokenDuration)
	if err := s.refreshTokens.StoreRefreshToken(ctx, acc.ID, refreshToken, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTokenDuration.Seconds()),
	}, nil
}

// RefreshAccessToken rotates a refresh token into a new pair
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (*AuthTokens, error) {
	rt, err := s.refreshTokens.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	// Revoke before issuing so a token can only be rotated once
	if err := s.refreshTokens.RevokeRefreshToken(ctx, refreshToken); err != nil {
		if errors.Is(err, ErrRefreshTokenRevoked) || errors.Is(err, ErrRefreshTokenNotFound) {
			return nil, ErrRefreshTokenRevoked
		}
		return nil, fmt.Errorf("failed to revoke old refresh token: %w", err)
	}

	acc, err := s.accounts.GetByID(ctx, rt.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if !acc.IsActive || !acc.IsVerified {
		return nil, ErrInvalidToken
	}

	tokens, err := s.IssueTokens(ctx, acc)
	if err != nil {
		return nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	return tokens, nil
}

// RevokeRefreshToken revokes a refresh token
func (s *Service) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	return s.refreshTokens.RevokeRefreshToken(ctx, refreshToken)
}

// RevokeAllRefreshTokens signs the owner of refreshToken out of every session
func (s *Service) RevokeAllRefreshTokens(ctx context.Context, refreshToken string) error {
	rt, err := s.refreshTokens.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		return err
	}
	if err := s.refreshTokens.RevokeAllAccountTokens(ctx, rt.AccountID); err != nil {
		return err
	}
	s.logger.Info("all refresh tokens revoked", "account_id", rt.AccountID)
	return nil
}

// Me returns the account behind an authenticated request
func (s *Service) Me(ctx context.Context, accountID uuid.UUID) (*account.Account, error) {
	return s.getAccount(ctx, accountID)
}

func (s *Service) getAccount(ctx context.Context, accountID uuid.UUID) (*account.Account, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acc, nil
}

// issueAndNotify commits a new OTP, then tries to deliver it. A delivery
// failure leaves the committed code in place.
func (s *Service) issueAndNotify(ctx context.Context, acc *account.Account) error {
	code, err := s.machine.Issue(ctx, acc)
	if err != nil {
		return fmt.Errorf("failed to issue otp: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.notificationTimeout)
	defer cancel()

	if err := s.notifier.SendOTPEmail(sendCtx, acc.Email, acc.DisplayName(), code, s.machine.CodeTTL()); err != nil {
		s.logger.Warn("failed to send otp email", "account_id", acc.ID, "error", err)
		return fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}

	return nil
}
