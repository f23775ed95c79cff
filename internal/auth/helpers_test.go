package auth

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/docstamp-api/internal/account"
	"github.com/redmonkez12/docstamp-api/internal/logging"
	"github.com/redmonkez12/docstamp-api/internal/otp"
	"github.com/redmonkez12/docstamp-api/internal/verification"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

// cheap argon2 parameters keep the tests fast
var testArgon2Params = argon2Params{time: 1, memory: 8 * 1024, threads: 1, keyLen: 32}

type sentOTP struct {
	to   string
	name string
	code string
	ttl  time.Duration
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentOTP
	err  error
}

func (n *fakeNotifier) SendOTPEmail(_ context.Context, toEmail, name, code string, validFor time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentOTP{to: toEmail, name: name, code: code, ttl: validFor})
	return nil
}

func (n *fakeNotifier) failWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *fakeNotifier) lastCode(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "no otp was sent")
	return n.sent[len(n.sent)-1].code
}

var errSMTPDown = errors.New("smtp: connection refused")

var errNoEntropy = errors.New("entropy source unavailable")

// switchableCodes produces random codes until broken is set
type switchableCodes struct {
	mu     sync.Mutex
	broken bool
}

func (c *switchableCodes) next() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken {
		return "", errNoEntropy
	}
	return otp.RandomCode()
}

func (c *switchableCodes) set(broken bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broken = broken
}

type testEnv struct {
	service  *Service
	store    *account.MemoryStore
	notifier *fakeNotifier
	tokens   *PasetoService
	redis    *miniredis.Miniredis
	client   *redis.Client
}

func newTestEnv(t *testing.T, engineOpts ...otp.Option) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	tokens, err := NewPasetoService(testKey)
	require.NoError(t, err)

	store := account.NewMemoryStore()
	logger := logging.New(io.Discard, false)
	machine := verification.NewMachine(otp.NewEngine(store, engineOpts...), logger)
	notifier := &fakeNotifier{}

	svc := NewService(
		store,
		machine,
		NewRedisRepository(client),
		tokens,
		notifier,
		logger,
		15*time.Minute,
		7*24*time.Hour,
		withArgon2Params(testArgon2Params),
		WithNotificationTimeout(time.Second),
	)

	return &testEnv{
		service:  svc,
		store:    store,
		notifier: notifier,
		tokens:   tokens,
		redis:    mr,
		client:   client,
	}
}

func validRegistration(email string) RegisterInput {
	return RegisterInput{
		FirstName:            "Alice",
		LastName:             "Liddell",
		Email:                email,
		Password:             "correct-horse",
		PasswordConfirmation: "correct-horse",
	}
}
