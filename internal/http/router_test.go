package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/docstamp-api/internal/account"
	"github.com/redmonkez12/docstamp-api/internal/auth"
	"github.com/redmonkez12/docstamp-api/internal/config"
	"github.com/redmonkez12/docstamp-api/internal/document"
	"github.com/redmonkez12/docstamp-api/internal/guard"
	"github.com/redmonkez12/docstamp-api/internal/httputil"
	"github.com/redmonkez12/docstamp-api/internal/logging"
	"github.com/redmonkez12/docstamp-api/internal/otp"
	"github.com/redmonkez12/docstamp-api/internal/ratelimit"
	"github.com/redmonkez12/docstamp-api/internal/stamp"
	"github.com/redmonkez12/docstamp-api/internal/storage"
	"github.com/redmonkez12/docstamp-api/internal/verification"
)

type capturingNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func (n *capturingNotifier) SendOTPEmail(_ context.Context, to, _, code string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[to] = code
	return nil
}

func (n *capturingNotifier) code(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[email]
}

type stubObjects struct{}

func (stubObjects) PresignUpload(_ context.Context, prefix string) (*storage.PresignedURL, error) {
	return &storage.PresignedURL{Key: prefix + uuid.NewString(), URL: "https://s3.test/put"}, nil
}

func (stubObjects) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://s3.test/" + key, nil
}

type stubDocuments struct{}

func (stubDocuments) Create(_ context.Context, d *document.Document) (*document.Document, error) {
	c := *d
	c.ID = uuid.New()
	return &c, nil
}

func (stubDocuments) ListByAccount(context.Context, uuid.UUID) ([]*document.Document, error) {
	return nil, nil
}

func (stubDocuments) GetBySerial(context.Context, string) (*document.Document, error) {
	return nil, document.ErrNotFound
}

type stubStamps struct {
	mu      sync.Mutex
	created int
}

func (s *stubStamps) Create(_ context.Context, st *stamp.Stamp) (*stamp.Stamp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	c := *st
	c.ID = uuid.New()
	return &c, nil
}

func (s *stubStamps) ListByAccount(context.Context, uuid.UUID) ([]*stamp.Stamp, error) {
	return nil, nil
}

type testApp struct {
	router   http.Handler
	notifier *capturingNotifier
	tokens   auth.TokenService
	stamps   *stubStamps
}

func newTestApp(t *testing.T, env string) *testApp {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Env: env, TrustedOrigins: []string{"http://localhost:3000"}},
	}
	logger := logging.New(io.Discard, false)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	tokens, err := auth.NewPasetoService([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	store := account.NewMemoryStore()
	machine := verification.NewMachine(otp.NewEngine(store), logger)
	notifier := &capturingNotifier{codes: make(map[string]string)}
	authService := auth.NewService(store, machine, auth.NewRedisRepository(client), tokens, notifier, logger, 15*time.Minute, time.Hour)
	limiter := ratelimit.NewLimiter(client, ratelimit.Limits{IPLimit: 1000, IPWindow: time.Minute})

	stamps := &stubStamps{}
	handlers := Handlers{
		Auth:      auth.NewHandler(authService, limiter, false, 15*time.Minute, time.Hour),
		Documents: document.NewHandler(document.NewService(stubDocuments{}, stubObjects{}, logger, "http://localhost:3000", "http://localhost:8080")),
		Stamps:    stamp.NewHandler(stamp.NewService(stamps, guard.New(store), stubObjects{}, logger)),
	}

	return &testApp{
		router:   NewRouter(cfg, handlers, auth.NewMiddleware(tokens), logger),
		notifier: notifier,
		tokens:   tokens,
		stamps:   stamps,
	}
}

func (a *testApp) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	app := newTestApp(t, "prod")

	rec := app.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestRouter_SwaggerOnlyInDev(t *testing.T) {
	prod := newTestApp(t, "prod")
	assert.Equal(t, http.StatusNotFound, prod.do(t, http.MethodGet, "/swagger/index.html", nil, "").Code)

	dev := newTestApp(t, "dev")
	assert.NotEqual(t, http.StatusNotFound, dev.do(t, http.MethodGet, "/swagger/index.html", nil, "").Code)
}

func TestRouter_ProtectedRoutesRequireAuth(t *testing.T) {
	app := newTestApp(t, "prod")

	for _, path := range []string{"/me", "/documents", "/stamps"} {
		rec := app.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestRouter_NotFoundIsJSON(t *testing.T) {
	app := newTestApp(t, "prod")

	rec := app.do(t, http.MethodGet, "/nope", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, httputil.CodeNotFound, resp.Code)
}

func TestRouter_EndToEnd_VerifyThenStamp(t *testing.T) {
	app := newTestApp(t, "prod")
	const email = "alice@example.com"

	rec := app.do(t, http.MethodPost, "/auth/register", map[string]any{
		"first_name":            "Alice",
		"last_name":             "Smith",
		"email":                 email,
		"password":              "correct-horse",
		"password_confirmation": "correct-horse",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	code := app.notifier.code(email)
	require.Len(t, code, 6)

	login := map[string]string{"email": email, "password": "correct-horse"}
	rec = app.do(t, http.MethodPost, "/auth/login", login, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = app.do(t, http.MethodPost, "/auth/otp/verify", map[string]string{"email": email, "otp_code": code}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = app.do(t, http.MethodPost, "/auth/login", login, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tokens auth.AuthTokens
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tokens))
	require.NotEmpty(t, tokens.AccessToken)

	rec = app.do(t, http.MethodPost, "/stamps", map[string]string{"shape": "circle", "text": "APPROVED"}, tokens.AccessToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, app.stamps.created)
}

func TestRouter_StampRefusedForUnverifiedBearer(t *testing.T) {
	app := newTestApp(t, "prod")
	const email = "bob@example.com"

	rec := app.do(t, http.MethodPost, "/auth/register", map[string]any{
		"first_name":            "Bob",
		"last_name":             "Jones",
		"email":                 email,
		"password":              "correct-horse",
		"password_confirmation": "correct-horse",
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var reg auth.RegisterResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reg))

	// A well-formed token does not stand in for verification
	token, err := app.tokens.CreateToken(reg.Account.ID, email, time.Minute)
	require.NoError(t, err)

	rec = app.do(t, http.MethodPost, "/stamps", map[string]string{"shape": "circle"}, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, app.stamps.created)
}
