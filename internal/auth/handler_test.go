package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/docstamp-api/internal/httputil"
	"github.com/redmonkez12/docstamp-api/internal/otp"
	"github.com/redmonkez12/docstamp-api/internal/ratelimit"
)

func newTestRouter(t *testing.T) (http.Handler, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return routerFor(env), env
}

func routerFor(env *testEnv) http.Handler {
	limiter := ratelimit.NewLimiter(env.client, ratelimit.Limits{IPLimit: 100, EmailCooldown: time.Minute})
	h := NewHandler(env.service, limiter, false, 15*time.Minute, 7*24*time.Hour)
	mw := NewMiddleware(env.tokens)

	r := chi.NewRouter()
	r.Post("/auth/register", h.Register)
	r.Post("/auth/otp/request", h.RequestOTP)
	r.Post("/auth/otp/verify", h.VerifyOTP)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh", h.Refresh)
	r.Post("/auth/logout", h.Logout)
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAuth)
		r.Get("/me", h.Me)
		r.Post("/otp/request", h.RequestOTPForAccount)
		r.Post("/otp/verify", h.VerifyOTPForAccount)
	})
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandler_RegisterVerifyLogin(t *testing.T) {
	router, env := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", validRegistration("alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var reg RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.Equal(t, "alice@example.com", reg.Account.Email)
	assert.False(t, reg.Account.IsVerified)
	assert.False(t, reg.NotificationFailed)
	assert.NotContains(t, rec.Body.String(), "password")

	login := LoginRequest{Email: "alice@example.com", Password: "correct-horse"}
	rec = doJSON(t, router, http.MethodPost, "/auth/login", login, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, httputil.CodeNotVerified, decodeError(t, rec).Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/otp/verify", VerifyOTPRequest{Email: "alice@example.com", OTPCode: "000000"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decodeError(t, rec)
	assert.Equal(t, "Invalid or expired OTP", errResp.Error)
	assert.Equal(t, httputil.CodeInvalidOrExpired, errResp.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/otp/verify", VerifyOTPRequest{Email: "alice@example.com", OTPCode: env.notifier.lastCode(t)}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/auth/login", login, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tokens AuthTokens
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	assert.NotEmpty(t, tokens.AccessToken)

	auth := http.Header{"Authorization": {"Bearer " + tokens.AccessToken}}
	rec = doJSON(t, router, http.MethodGet, "/me", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var me AccountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.True(t, me.IsVerified)
	assert.True(t, me.OTPVerified)

	rec = doJSON(t, router, http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: tokens.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: tokens.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_RegisterValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	in := validRegistration("alice@example.com")
	in.PasswordConfirmation = "different"
	rec := doJSON(t, router, http.MethodPost, "/auth/register", in, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, httputil.CodeValidationFailed, resp.Code)
	assert.Equal(t, "passwords do not match", resp.Fields["password_confirmation"])
}

func TestHandler_RegisterDuplicate(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", validRegistration("dup@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/register", validRegistration("dup@example.com"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, httputil.CodeEmailAlreadyExists, resp.Code)
	assert.Contains(t, resp.Fields, "email")
}

func TestHandler_RegisterNotificationFailed(t *testing.T) {
	router, env := newTestRouter(t)
	env.notifier.failWith(errSMTPDown)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", validRegistration("late@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var reg RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.True(t, reg.NotificationFailed)
}

func TestHandler_RequestOTP(t *testing.T) {
	router, env := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/otp/request", OTPRequest{Email: ""}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeEmailRequired, decodeError(t, rec).Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/otp/request", OTPRequest{Email: "ghost@example.com"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, httputil.CodeUserNotFound, decodeError(t, rec).Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/register", validRegistration("otp@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// registration started the cooldown
	rec = doJSON(t, router, http.MethodPost, "/auth/otp/request", OTPRequest{Email: "otp@example.com"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	env.redis.FastForward(2 * time.Minute)
	env.notifier.failWith(errSMTPDown)
	rec = doJSON(t, router, http.MethodPost, "/auth/otp/request", OTPRequest{Email: "otp@example.com"}, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, httputil.CodeNotificationFailed, decodeError(t, rec).Code)
}

func TestHandler_AuthenticatedOTPFlow(t *testing.T) {
	router, env := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", validRegistration("act@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/auth/otp/verify", VerifyOTPRequest{Email: "act@example.com", OTPCode: env.notifier.lastCode(t)}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	tokens, err := env.service.Login(t.Context(), "act@example.com", "correct-horse")
	require.NoError(t, err)
	auth := http.Header{"Authorization": {"Bearer " + tokens.AccessToken}}

	env.redis.FastForward(2 * time.Minute)
	rec = doJSON(t, router, http.MethodPost, "/otp/request", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/otp/verify", VerifyOTPRequest{OTPCode: "bad"}, auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/otp/verify", VerifyOTPRequest{OTPCode: env.notifier.lastCode(t)}, auth)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/otp/request", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_LoginCookies(t *testing.T) {
	router, env := newTestRouter(t)

	_, err := env.service.Register(t.Context(), validRegistration("cookie@example.com"))
	require.NoError(t, err)
	_, err = env.service.VerifyOTP(t.Context(), "cookie@example.com", env.notifier.lastCode(t))
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/auth/login",
		LoginRequest{Email: "cookie@example.com", Password: "correct-horse"},
		http.Header{"Origin": {"http://localhost:3000"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "access_token")

	cookies := rec.Result().Cookies()
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
		assert.True(t, c.HttpOnly)
	}
	assert.ElementsMatch(t, []string{AccessTokenCookieName, RefreshTokenCookieName}, names)

	rec = doJSON(t, router, http.MethodPost, "/auth/logout", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		assert.Equal(t, -1, c.MaxAge)
	}
}

func TestHandler_LoginInvalidCredentials(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/login", LoginRequest{Email: "x@example.com", Password: "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "Invalid email or password", resp.Error)
	assert.Equal(t, httputil.CodeInvalidCredentials, resp.Code)
}

func TestHandler_RegisterIssueFailure(t *testing.T) {
	codes := &switchableCodes{broken: true}
	env := newTestEnv(t, otp.WithCodeSource(codes.next))
	router := routerFor(env)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", validRegistration("nocode@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reg RegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.True(t, reg.NotificationFailed)

	rec = doJSON(t, router, http.MethodPost, "/auth/register", validRegistration("nocode@example.com"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// No code went out, so no cooldown blocks the follow-up request
	codes.set(false)
	rec = doJSON(t, router, http.MethodPost, "/auth/otp/request", OTPRequest{Email: "nocode@example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = doJSON(t, router, http.MethodPost, "/auth/otp/verify", VerifyOTPRequest{Email: "nocode@example.com", OTPCode: env.notifier.lastCode(t)}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_VerifyOTPAttemptsCappedPerAccount(t *testing.T) {
	router, env := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", validRegistration("victim@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	code := env.notifier.lastCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	verifyFrom := func(i int, otpCode string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(VerifyOTPRequest{Email: "victim@example.com", OTPCode: otpCode}))
		req := httptest.NewRequest(http.MethodPost, "/auth/otp/verify", &buf)
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = fmt.Sprintf("198.51.100.%d:4000", i+1)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	throttled := 0
	for i := 0; i < 20; i++ {
		rec := verifyFrom(i, wrong)
		if rec.Code == http.StatusTooManyRequests {
			throttled++
			assert.Equal(t, httputil.CodeTooManyAttempts, decodeError(t, rec).Code)
		} else {
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		}
	}
	assert.Equal(t, 15, throttled)

	// Once exhausted even the right code is refused
	rec = verifyFrom(50, code)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A new code brings a fresh set of attempts
	env.redis.FastForward(2 * time.Minute)
	rec = doJSON(t, router, http.MethodPost, "/auth/otp/request", OTPRequest{Email: "victim@example.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = verifyFrom(51, env.notifier.lastCode(t))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHandler_AuthenticatedVerifySharesAttemptCap(t *testing.T) {
	router, env := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/auth/register", validRegistration("shared@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/auth/otp/verify", VerifyOTPRequest{Email: "shared@example.com", OTPCode: env.notifier.lastCode(t)}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	tokens, err := env.service.Login(t.Context(), "shared@example.com", "correct-horse")
	require.NoError(t, err)
	auth := http.Header{"Authorization": {"Bearer " + tokens.AccessToken}}

	env.redis.FastForward(2 * time.Minute)
	rec = doJSON(t, router, http.MethodPost, "/otp/request", nil, auth)
	require.Equal(t, http.StatusOK, rec.Code)

	for i := 0; i < 5; i++ {
		rec = doJSON(t, router, http.MethodPost, "/otp/verify", VerifyOTPRequest{OTPCode: "bad"}, auth)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec = doJSON(t, router, http.MethodPost, "/otp/verify", VerifyOTPRequest{OTPCode: env.notifier.lastCode(t)}, auth)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, httputil.CodeTooManyAttempts, decodeError(t, rec).Code)

	// The public endpoint counts against the same account
	rec = doJSON(t, router, http.MethodPost, "/auth/otp/verify", VerifyOTPRequest{Email: "shared@example.com", OTPCode: env.notifier.lastCode(t)}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandler_LogoutEverywhere(t *testing.T) {
	router, env := newTestRouter(t)

	_, err := env.service.Register(t.Context(), validRegistration("multi@example.com"))
	require.NoError(t, err)
	_, err = env.service.VerifyOTP(t.Context(), "multi@example.com", env.notifier.lastCode(t))
	require.NoError(t, err)

	laptop, err := env.service.Login(t.Context(), "multi@example.com", "correct-horse")
	require.NoError(t, err)
	phone, err := env.service.Login(t.Context(), "multi@example.com", "correct-horse")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/auth/logout?all=true", RefreshRequest{RefreshToken: laptop.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: phone.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	assert.Equal(t, "192.0.2.10", getClientIP(req))

	// forwarding headers are left to middleware.RealIP
	req.Header.Set("X-Real-IP", "198.51.100.2")
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "192.0.2.10", getClientIP(req))
}
