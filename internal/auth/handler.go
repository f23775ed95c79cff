package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/docstamp-api/internal/account"
	"github.com/redmonkez12/docstamp-api/internal/httputil"
	"github.com/redmonkez12/docstamp-api/internal/logging"
	"github.com/redmonkez12/docstamp-api/internal/ratelimit"
	"github.com/redmonkez12/docstamp-api/internal/verification"
)

// Handler contains HTTP handlers for authentication and verification endpoints
type Handler struct {
	service         *Service
	rateLimiter     *ratelimit.Limiter
	isProduction    bool
	accessDuration  time.Duration
	refreshDuration time.Duration
}

func NewHandler(service *Service, rateLimiter *ratelimit.Limiter, isProduction bool, accessDuration, refreshDuration time.Duration) *Handler {
	return &Handler{
		service:         service,
		rateLimiter:     rateLimiter,
		isProduction:    isProduction,
		accessDuration:  accessDuration,
		refreshDuration: refreshDuration,
	}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest represents the token refresh request body
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// OTPRequest asks for a code to be sent to email
type OTPRequest struct {
	Email string `json:"email"`
}

// VerifyOTPRequest submits a code. Email is only read on the public endpoint.
type VerifyOTPRequest struct {
	Email   string `json:"email,omitempty"`
	OTPCode string `json:"otp_code"`
}

// AccountResponse represents an account in API responses
type AccountResponse struct {
	ID          uuid.UUID         `json:"id"`
	Email       string            `json:"email"`
	FirstName   string            `json:"first_name"`
	LastName    string            `json:"last_name"`
	RoleGroup   account.RoleGroup `json:"role_group"`
	IsVerified  bool              `json:"is_verified"`
	OTPVerified bool              `json:"otp_verified"`
	CreatedAt   time.Time         `json:"created_at"`
}

// RegisterResponse represents the registration response
type RegisterResponse struct {
	Account            AccountResponse `json:"account"`
	Message            string          `json:"message"`
	NotificationFailed bool            `json:"notification_failed,omitempty"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

func toAccountResponse(acc *account.Account) AccountResponse {
	return AccountResponse{
		ID:          acc.ID,
		Email:       acc.Email,
		FirstName:   acc.FirstName,
		LastName:    acc.LastName,
		RoleGroup:   acc.RoleGroup,
		IsVerified:  acc.IsVerified,
		OTPVerified: acc.OTPVerified,
		CreatedAt:   acc.CreatedAt,
	}
}

// Register handles account registration
// @Summary      Register a new account
// @Description  Create an unverified account. A 6-digit verification code is emailed to the address.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RegisterInput true "Registration data"
// @Success      201 {object} RegisterResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid request or validation error"
// @Failure      409 {object} httputil.ErrorResponse "Email already exists"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.ipLimited(w, r, "register") {
		return
	}

	var req RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid registration request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	acc, err := h.service.Register(r.Context(), req)
	if err != nil && acc == nil {
		if fields, ok := httputil.FieldErrors(err); ok {
			logger.Warn("registration failed: validation error", "fields", fields)
			httputil.RespondFieldErrors(w, fields)
			return
		}
		if errors.Is(err, account.ErrDuplicateEmail) {
			logger.Warn("registration failed: email already exists")
			httputil.RespondJSON(w, httputil.ErrorResponse{
				Error:  "email already exists",
				Code:   httputil.CodeEmailAlreadyExists,
				Fields: map[string]string{"email": "an account with this email already exists"},
			}, http.StatusConflict)
			return
		}
		logger.Error("registration failed: internal error", "error", err.Error())
		respondError(w, "failed to register account", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	resp := RegisterResponse{
		Account: toAccountResponse(acc),
		Message: "Registration successful. Please check your email for the verification code.",
	}
	switch {
	case err == nil:
		h.codeIssued(r, acc.Email)
		logger.Info("account registered successfully", "account_id", acc.ID)
	case errors.Is(err, ErrNotificationFailed):
		h.codeIssued(r, acc.Email)
		logger.Warn("registration succeeded but otp delivery failed", "account_id", acc.ID, "error", err.Error())
		resp.NotificationFailed = true
		resp.Message = "Registration successful, but the verification code could not be sent. Please request a new one."
	default:
		// The account exists, so a retry would conflict. The client recovers through /auth/otp/request.
		logger.Error("registration succeeded but otp issue failed", "account_id", acc.ID, "error", err.Error())
		resp.NotificationFailed = true
		resp.Message = "Registration successful, but no verification code could be issued. Please request a new one."
	}

	respondJSON(w, resp, http.StatusCreated)
}

// RequestOTP handles the public OTP request
// @Summary      Request a verification code
// @Description  Generate a new 6-digit code for the account and email it. Any earlier code stops working.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body OTPRequest true "Account email"
// @Success      200 {object} MessageResponse
// @Success      202 {object} httputil.ErrorResponse "Code issued but delivery failed"
// @Failure      400 {object} httputil.ErrorResponse "Email is required"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /auth/otp/request [post]
func (h *Handler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req OTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid otp request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if h.ipLimited(w, r, "otp") || h.onCooldown(w, r, req.Email) {
		return
	}

	err := h.service.RequestOTP(r.Context(), req.Email)
	h.respondOTPIssued(w, r, req.Email, err)
}

// RequestOTPForAccount handles the authenticated OTP request
// @Summary      Request a verification code for the current account
// @Description  Generate a new 6-digit code for the authenticated account and email it.
// @Tags         otp
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} MessageResponse
// @Success      202 {object} httputil.ErrorResponse "Code issued but delivery failed"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Router       /otp/request [post]
func (h *Handler) RequestOTPForAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountIDFromContext(r.Context())
	if !ok {
		respondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}
	email, _ := GetAccountEmailFromContext(r.Context())

	if h.onCooldown(w, r, email) {
		return
	}

	err := h.service.RequestOTPForAccount(r.Context(), accountID)
	h.respondOTPIssued(w, r, email, err)
}

func (h *Handler) respondOTPIssued(w http.ResponseWriter, r *http.Request, email string, err error) {
	logger := logging.GetLoggerFromContext(r.Context())

	switch {
	case err == nil:
		h.codeIssued(r, email)
		logger.Info("otp issued")
		respondJSON(w, MessageResponse{Message: "A verification code has been sent to your email."}, http.StatusOK)
	case errors.Is(err, ErrNotificationFailed):
		h.codeIssued(r, email)
		logger.Warn("otp issued but delivery failed", "error", err.Error())
		respondJSON(w, httputil.ErrorResponse{
			Error: "the verification code was issued but could not be delivered, please try again",
			Code:  httputil.CodeNotificationFailed,
		}, http.StatusAccepted)
	case errors.Is(err, ErrEmailRequired):
		respondError(w, err.Error(), httputil.CodeEmailRequired, http.StatusBadRequest)
	case errors.Is(err, ErrUserNotFound):
		logger.Warn("otp request for unknown account")
		respondError(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
	default:
		logger.Error("otp request failed: internal error", "error", err.Error())
		respondError(w, "failed to issue verification code", httputil.CodeInternalError, http.StatusInternalServerError)
	}
}

// VerifyOTP handles the public email verification
// @Summary      Verify email with a code
// @Description  Submit the emailed code. On success the account is verified and may log in.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body VerifyOTPRequest true "Email and code"
// @Success      200 {object} AccountResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid or expired OTP"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests or wrong codes"
// @Router       /auth/otp/verify [post]
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid otp verify body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	if h.ipLimited(w, r, "otp_verify") || h.otpAttemptsExhausted(w, r, req.Email) {
		return
	}

	acc, err := h.service.VerifyOTP(r.Context(), req.Email, req.OTPCode)
	h.respondVerified(w, r, req.Email, acc, err)
}

// VerifyOTPForAccount handles the authenticated verification
// @Summary      Verify a code for the current account
// @Description  Submit the emailed code. On success the account may create stamps.
// @Tags         otp
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body VerifyOTPRequest true "Code"
// @Success      200 {object} AccountResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid or expired OTP"
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests or wrong codes"
// @Router       /otp/verify [post]
func (h *Handler) VerifyOTPForAccount(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	accountID, ok := GetAccountIDFromContext(r.Context())
	if !ok {
		respondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid otp verify body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	email, _ := GetAccountEmailFromContext(r.Context())
	if email == "" {
		email = accountID.String()
	}
	if h.ipLimited(w, r, "otp_verify") || h.otpAttemptsExhausted(w, r, email) {
		return
	}

	acc, err := h.service.VerifyOTPForAccount(r.Context(), accountID, req.OTPCode)
	h.respondVerified(w, r, email, acc, err)
}

func (h *Handler) respondVerified(w http.ResponseWriter, r *http.Request, email string, acc *account.Account, err error) {
	logger := logging.GetLoggerFromContext(r.Context())

	switch {
	case err == nil:
		h.resetOTPAttempts(r, email)
		logger.Info("otp verified", "account_id", acc.ID)
		respondJSON(w, toAccountResponse(acc), http.StatusOK)
	case errors.Is(err, verification.ErrInvalidOrExpired):
		h.recordOTPFailure(r, email)
		respondError(w, "Invalid or expired OTP", httputil.CodeInvalidOrExpired, http.StatusBadRequest)
	case errors.Is(err, ErrEmailRequired):
		respondError(w, err.Error(), httputil.CodeEmailRequired, http.StatusBadRequest)
	case errors.Is(err, ErrUserNotFound):
		respondError(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
	default:
		logger.Error("otp verification failed: internal error", "error", err.Error())
		respondError(w, "failed to verify code", httputil.CodeInternalError, http.StatusInternalServerError)
	}
}

// Login handles account login
// @Summary      Login
// @Description  Authenticate a verified account and receive access and refresh tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} AuthTokens
// @Failure      400 {object} httputil.ErrorResponse "Invalid request body"
// @Failure      401 {object} httputil.ErrorResponse "Invalid credentials"
// @Failure      403 {object} httputil.ErrorResponse "Account not verified"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	if h.ipLimited(w, r, "login") {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login request body", "error", err.Error())
		respondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	tokens, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			logger.Warn("login failed: invalid credentials")
			respondError(w, "Invalid email or password", httputil.CodeInvalidCredentials, http.StatusUnauthorized)
			return
		}
		if errors.Is(err, ErrNotVerified) {
			logger.Warn("login failed: account not verified")
			respondError(w, err.Error(), httputil.CodeNotVerified, http.StatusForbidden)
			return
		}
		logger.Error("login failed: internal error", "error", err.Error())
		respondError(w, "failed to login", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("account logged in successfully")
	h.respondTokens(w, r, tokens, "logged in successfully")
}

// Refresh handles access token refresh
// @Summary      Refresh access token
// @Description  Rotate a refresh token into a new token pair
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RefreshRequest false "Refresh token (or refresh_token cookie)"
// @Success      200 {object} AuthTokens
// @Failure      400 {object} httputil.ErrorResponse "Refresh token required"
// @Failure      401 {object} httputil.ErrorResponse "Invalid or expired refresh token"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	refreshToken := refreshTokenFromRequest(r)
	if refreshToken == "" {
		logger.Warn("refresh token missing from both body and cookie")
		respondError(w, "refresh token required", httputil.CodeRefreshTokenRequired, http.StatusBadRequest)
		return
	}

	tokens, err := h.service.RefreshAccessToken(r.Context(), refreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrRefreshTokenRevoked) || errors.Is(err, ErrRefreshTokenExpired) {
			logger.Warn("token refresh failed: invalid or expired token", "error", err.Error())
			respondError(w, "invalid or expired refresh token", httputil.CodeInvalidRefreshToken, http.StatusUnauthorized)
			return
		}
		logger.Error("token refresh failed: internal error", "error", err.Error())
		respondError(w, "failed to refresh token", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	logger.Info("access token refreshed successfully")
	h.respondTokens(w, r, tokens, "token refreshed successfully")
}

// Logout handles logout
// @Summary      Logout
// @Description  Revoke the refresh token and clear auth cookies. With all=true every refresh token of the account is revoked.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body RefreshRequest false "Optional refresh token"
// @Param        all query bool false "Sign out of every session"
// @Success      200 {object} MessageResponse
// @Router       /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	everywhere := r.URL.Query().Get("all") == "true"

	if refreshToken := refreshTokenFromRequest(r); refreshToken != "" {
		revoke := h.service.RevokeRefreshToken
		if everywhere {
			revoke = h.service.RevokeAllRefreshTokens
		}
		if err := revoke(r.Context(), refreshToken); err != nil {
			// Still clear cookies
			logger.Warn("failed to revoke refresh token", "error", err.Error())
		}
	}

	ClearAuthCookies(w, h.isProduction)

	logger.Info("account logged out successfully", "everywhere", everywhere)
	respondJSON(w, MessageResponse{Message: "logged out"}, http.StatusOK)
}

// Me returns the authenticated account
// @Summary      Current account
// @Tags         account
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} AccountResponse
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Router       /me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	accountID, ok := GetAccountIDFromContext(r.Context())
	if !ok {
		respondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	acc, err := h.service.Me(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			respondError(w, "user not found", httputil.CodeUserNotFound, http.StatusNotFound)
			return
		}
		logger.Error("failed to load account", "error", err.Error())
		respondError(w, "failed to load account", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	respondJSON(w, toAccountResponse(acc), http.StatusOK)
}

func (h *Handler) respondTokens(w http.ResponseWriter, r *http.Request, tokens *AuthTokens, message string) {
	if ShouldUseCookies(r) {
		SetAuthCookies(w, tokens.AccessToken, tokens.RefreshToken, h.isProduction, h.accessDuration, h.refreshDuration)
		// Tokens stay out of the body when cookies carry them
		respondJSON(w, MessageResponse{Message: message}, http.StatusOK)
		return
	}
	respondJSON(w, tokens, http.StatusOK)
}

// ipLimited checks and records the per-IP window for purpose. It writes the
// 429 response and returns true when the caller is over the limit.
func (h *Handler) ipLimited(w http.ResponseWriter, r *http.Request, purpose string) bool {
	if h.rateLimiter == nil {
		return false
	}
	logger := logging.GetLoggerFromContext(r.Context())
	ip := getClientIP(r)

	exceeded, err := h.rateLimiter.CheckIPRateLimitWithPurpose(r.Context(), ip, purpose)
	if err != nil {
		// Fail open so a Redis outage does not lock everyone out
		logger.Error("failed to check IP rate limit", "error", err.Error())
		return false
	}
	if exceeded {
		logger.Warn("IP rate limit exceeded", "ip", ip, "purpose", purpose)
		respondError(w, "too many requests, please try again later", httputil.CodeTooManyRequests, http.StatusTooManyRequests)
		return true
	}

	if err := h.rateLimiter.RecordIPRequestWithPurpose(r.Context(), ip, purpose); err != nil {
		logger.Error("failed to record IP request", "error", err.Error())
	}
	return false
}

func (h *Handler) onCooldown(w http.ResponseWriter, r *http.Request, email string) bool {
	if h.rateLimiter == nil || strings.TrimSpace(email) == "" {
		return false
	}
	logger := logging.GetLoggerFromContext(r.Context())

	onCooldown, err := h.rateLimiter.CheckEmailCooldown(r.Context(), email)
	if err != nil {
		logger.Error("failed to check email cooldown", "error", err.Error())
		return false
	}
	if onCooldown {
		logger.Warn("otp request on cooldown")
		respondError(w, "please wait before requesting another code", httputil.CodeCooldownActive, http.StatusTooManyRequests)
		return true
	}
	return false
}

// otpAttemptsExhausted writes a 429 and returns true once the account behind
// email has submitted too many wrong codes. The count is per account, so
// changing client IP does not help.
func (h *Handler) otpAttemptsExhausted(w http.ResponseWriter, r *http.Request, email string) bool {
	if h.rateLimiter == nil || strings.TrimSpace(email) == "" {
		return false
	}
	logger := logging.GetLoggerFromContext(r.Context())

	exhausted, err := h.rateLimiter.OTPAttemptsExhausted(r.Context(), email)
	if err != nil {
		logger.Error("failed to check otp attempts", "error", err.Error())
		return false
	}
	if exhausted {
		logger.Warn("otp attempts exhausted")
		respondError(w, "too many incorrect codes, please request a new one", httputil.CodeTooManyAttempts, http.StatusTooManyRequests)
		return true
	}
	return false
}

func (h *Handler) recordOTPFailure(r *http.Request, email string) {
	if h.rateLimiter == nil || strings.TrimSpace(email) == "" {
		return
	}
	if err := h.rateLimiter.RecordOTPFailure(r.Context(), email); err != nil {
		logging.GetLoggerFromContext(r.Context()).Error("failed to record otp failure", "error", err.Error())
	}
}

func (h *Handler) resetOTPAttempts(r *http.Request, email string) {
	if h.rateLimiter == nil || strings.TrimSpace(email) == "" {
		return
	}
	if err := h.rateLimiter.ResetOTPAttempts(r.Context(), email); err != nil {
		logging.GetLoggerFromContext(r.Context()).Error("failed to reset otp attempts", "error", err.Error())
	}
}

// codeIssued starts the resend cooldown and gives the new code a fresh set of attempts
func (h *Handler) codeIssued(r *http.Request, email string) {
	h.setCooldown(r, email)
	h.resetOTPAttempts(r, email)
}

func (h *Handler) setCooldown(r *http.Request, email string) {
	if h.rateLimiter == nil || email == "" {
		return
	}
	if err := h.rateLimiter.SetEmailCooldown(r.Context(), email); err != nil {
		logging.GetLoggerFromContext(r.Context()).Error("failed to set email cooldown", "error", err.Error())
	}
}

// refreshTokenFromRequest reads the token from the JSON body, falling back to the cookie
func refreshTokenFromRequest(r *http.Request) string {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.RefreshToken != "" {
		return strings.TrimSpace(req.RefreshToken)
	}
	if cookieToken, err := GetRefreshTokenFromCookie(r); err == nil {
		return strings.TrimSpace(cookieToken)
	}
	return ""
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	httputil.RespondJSON(w, data, statusCode)
}

// respondError sends an error response with a machine-readable code
func respondError(w http.ResponseWriter, message string, code string, statusCode int) {
	httputil.RespondErrorWithCode(w, message, code, statusCode)
}

// getClientIP returns the peer address. Forwarding headers are only honoured
// when the router runs middleware.RealIP, which rewrites RemoteAddr.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
