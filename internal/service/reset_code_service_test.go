package service

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erpcore/erp/internal/apperror"
	"github.com/erpcore/erp/internal/cache"
	"github.com/erpcore/erp/internal/events"
	"github.com/erpcore/erp/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requestCode runs RequestReset and returns the delivered code.
func requestCode(t *testing.T, env *testEnv, email string) string {
	t.Helper()
	require.NoError(t, env.reset.RequestReset(context.Background(), email))
	requested := env.publisher.ofType(events.TypePasswordResetRequested)
	require.NotEmpty(t, requested)
	return requested[len(requested)-1].Attributes["code"]
}

func TestRequestReset_StoresHashedCode(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "a@b.com", "secret12")

	code := requestCode(t, env, "a@b.com")
	assert.Regexp(t, `^\d{5}$`, code)

	key := cache.ForgetPasswordKey{UserID: user.UserUUID}
	pending, found, err := cache.GetValue[models.ResetCode](context.Background(), env.store, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.NotContains(t, pending.CodeHash, code)
	assert.Equal(t, 300*time.Second, env.mr.TTL(key.String()))
	assert.False(t, env.mr.Exists(cache.ResetAttemptsKey{UserID: user.UserUUID}.String()))
}

func TestRequestReset_UnknownEmailIsSilent(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.reset.RequestReset(context.Background(), "nobody@b.com"))
	assert.Empty(t, env.publisher.ofType(events.TypePasswordResetRequested))
}

func TestReset_ChangesPasswordAndEndsSession(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "a@b.com", "secret12")
	ctx := context.Background()
	_, claims := loginClaims(t, env, "a@b.com", "secret12")

	code := requestCode(t, env, "a@b.com")
	require.NoError(t, env.reset.Reset(ctx, user.UserUUID, code, "brand-new-pw"))

	_, err := env.sessions.Validate(ctx, claims)
	assert.True(t, apperror.Is(err, apperror.KindSessionNotAvailable))

	_, err = env.auth.Login(ctx, "a@b.com", "secret12")
	assert.True(t, apperror.Is(err, apperror.KindInvalidCredentials))
	_, err = env.auth.Login(ctx, "a@b.com", "brand-new-pw")
	assert.NoError(t, err)

	// The code is single use.
	err = env.reset.Reset(ctx, user.UserUUID, code, "another-pw-1")
	assert.True(t, apperror.Is(err, apperror.KindInvalidInput))
}

func TestReset_WrongCodeCountsAttemptsAndKeepsTTL(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "a@b.com", "secret12")
	ctx := context.Background()
	code := requestCode(t, env, "a@b.com")

	key := cache.ForgetPasswordKey{UserID: user.UserUUID}
	attemptsKey := cache.ResetAttemptsKey{UserID: user.UserUUID}
	env.mr.FastForward(100 * time.Second)

	err := env.reset.Reset(ctx, user.UserUUID, wrongCode(code, 0), "brand-new-pw")
	assert.True(t, apperror.Is(err, apperror.KindInvalidInput))

	attempts, err := env.mr.Get(attemptsKey.String())
	require.NoError(t, err)
	assert.Equal(t, "1", attempts)
	assert.Equal(t, 200*time.Second, env.mr.TTL(key.String()))
}

func TestReset_NewCodeResetsAttempts(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "a@b.com", "secret12")
	ctx := context.Background()

	first := requestCode(t, env, "a@b.com")
	for i := 0; i < testPasswordConfig().ResetCodeMaxAttempts; i++ {
		require.Error(t, env.reset.Reset(ctx, user.UserUUID, wrongCode(first, i), "brand-new-pw"))
	}

	second := requestCode(t, env, "a@b.com")
	assert.NoError(t, env.reset.Reset(ctx, user.UserUUID, second, "brand-new-pw"))
	assert.False(t, env.mr.Exists(cache.ResetAttemptsKey{UserID: user.UserUUID}.String()))
}

func TestReset_MaxAttemptsDiscardsCode(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "a@b.com", "secret12")
	ctx := context.Background()
	code := requestCode(t, env, "a@b.com")

	for i := 0; i < testPasswordConfig().ResetCodeMaxAttempts; i++ {
		require.Error(t, env.reset.Reset(ctx, user.UserUUID, wrongCode(code, i), "brand-new-pw"))
	}

	err := env.reset.Reset(ctx, user.UserUUID, code, "brand-new-pw")
	require.Error(t, err)
	assert.Equal(t, "Maximum attempts exceeded", apperror.DetailOf(err))

	exists, err := env.store.Exists(ctx, cache.ForgetPasswordKey{UserID: user.UserUUID})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestReset_ConcurrentGuessesRespectLimit(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "a@b.com", "secret12")
	ctx := context.Background()
	code := requestCode(t, env, "a@b.com")

	const guesses = 20
	var exhausted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < guesses; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := env.reset.Reset(ctx, user.UserUUID, wrongCode(code, i), "brand-new-pw")
			assert.Error(t, err)
			if apperror.DetailOf(err) == "Maximum attempts exceeded" {
				exhausted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.GreaterOrEqual(t, int(exhausted.Load()), 1)

	err := env.reset.Reset(ctx, user.UserUUID, code, "brand-new-pw")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindInvalidInput))
	assert.False(t, env.mr.Exists(cache.ForgetPasswordKey{UserID: user.UserUUID}.String()))

	_, err = env.auth.Login(ctx, "a@b.com", "secret12")
	assert.NoError(t, err)
}

func TestRequestReset_CodeNeverLogged(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "a@b.com", "secret12")

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)

	pub := events.NewLogPublisher(logger)
	capture := &recordingPublisher{}
	svc := NewResetCodeService(env.store, env.users, env.passwords, env.sessions, env.pool,
		fanout{pub, capture}, testPasswordConfig(), logger)

	require.NoError(t, svc.RequestReset(context.Background(), "a@b.com"))
	requested := capture.ofType(events.TypePasswordResetRequested)
	require.Len(t, requested, 1)
	code := requested[0].Attributes[events.AttrResetCode]
	require.Len(t, code, 5)

	assert.Contains(t, buf.String(), "attr_code")
	assert.NotContains(t, buf.String(), code)
}

// fanout publishes every event to each publisher in turn.
type fanout []events.Publisher

func (f fanout) Publish(ctx context.Context, e events.Event) error {
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (f fanout) Close() error { return nil }

// wrongCode returns a five digit code different from code, varied by i.
func wrongCode(code string, i int) string {
	for n := i; ; n++ {
		candidate := fmt.Sprintf("%05d", n%100000)
		if candidate != code {
			return candidate
		}
	}
}

func TestReset_RejectsWeakPasswordAndMissingCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.reset.Reset(ctx, uuid.New(), "12345", "short")
	assert.True(t, apperror.Is(err, apperror.KindInvalidInput))

	err = env.reset.Reset(ctx, uuid.New(), "12345", "long-enough-pw")
	assert.True(t, apperror.Is(err, apperror.KindInvalidInput))
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := generateCode(resetCodeLength)
		require.NoError(t, err)
		assert.Regexp(t, `^\d{5}$`, code)
	}
}
