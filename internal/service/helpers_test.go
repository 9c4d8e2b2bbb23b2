package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/erpcore/erp/internal/cache"
	"github.com/erpcore/erp/internal/config"
	"github.com/erpcore/erp/internal/events"
	"github.com/erpcore/erp/internal/metrics"
	"github.com/erpcore/erp/internal/models"
	"github.com/erpcore/erp/internal/repository"
	"github.com/erpcore/erp/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var (
	keysOnce   sync.Once
	sharedKeys *KeyMaterial
	keysErr    error
)

// testKeys returns one generated key material per test binary.
func testKeys(t *testing.T) *KeyMaterial {
	t.Helper()
	keysOnce.Do(func() {
		sharedKeys, keysErr = GenerateKeyMaterial(2048)
	})
	require.NoError(t, keysErr)
	return sharedKeys
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testPasswordConfig() *config.PasswordConfig {
	return &config.PasswordConfig{
		MemoryKiB:            8 * 1024,
		Iterations:           1,
		Parallelism:          1,
		Workers:              4,
		ResetCodeMaxAttempts: 3,
	}
}

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{
		AccessExpiry:  30 * time.Minute,
		RefreshExpiry: 24 * time.Hour,
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) ofType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	mr        *miniredis.Miniredis
	store     *cache.RedisStore
	users     *repository.MemoryUserRepository
	pool      *worker.Pool
	passwords *PasswordService
	sessions  *SessionService
	tokens    *JWTService
	auth      *AuthService
	refresh   *RefreshTokenService
	reset     *ResetCodeService
	user      *UserService
	publisher *recordingPublisher
	metrics   *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := quietLogger()
	store := cache.NewRedisStore(client, logger)
	users := repository.NewMemoryUserRepository()
	pool := worker.NewPool(4)
	m := metrics.New()
	pub := &recordingPublisher{}

	tokens, err := NewJWTService(testKeys(t), testJWTConfig(), logger)
	require.NoError(t, err)

	passwords := NewPasswordService(testPasswordConfig(), pool, m, logger)
	sessions := NewSessionService(store, logger)

	return &testEnv{
		mr:        mr,
		store:     store,
		users:     users,
		pool:      pool,
		passwords: passwords,
		sessions:  sessions,
		tokens:    tokens,
		auth:      NewAuthService(users, passwords, sessions, tokens, pub, m, logger),
		refresh:   NewRefreshTokenService(users, sessions, tokens, pub, m, logger),
		reset:     NewResetCodeService(store, users, passwords, sessions, pool, pub, testPasswordConfig(), logger),
		user:      NewUserService(users, passwords, pub, logger),
		publisher: pub,
		metrics:   m,
	}
}

// seedUser stores an active account whose password is hashed for real.
func (e *testEnv) seedUser(t *testing.T, email, password string) *models.User {
	t.Helper()
	user, err := e.user.Register(context.Background(), email, "user-"+email[:1], password)
	require.NoError(t, err)
	return user
}
