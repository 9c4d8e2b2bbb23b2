package service

import (
	"context"
	"testing"
	"time"

	"github.com/erpcore/erp/internal/apperror"
	"github.com/erpcore/erp/internal/cache"
	"github.com/erpcore/erp/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claimsFor(userID, sessionID uuid.UUID) *models.Claims {
	return models.NewClaims(time.Now(), time.Hour, userID, sessionID, models.RoleUser)
}

func TestSessionCreate_StoresUUIDWithTTL(t *testing.T) {
	env := newTestEnv(t)
	userID := uuid.New()

	sessionID, err := env.sessions.Create(context.Background(), userID)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, sessionID)

	key := cache.SessionKey{UserID: userID}.String()
	raw, err := env.mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, `"`+sessionID.String()+`"`, raw)
	assert.Equal(t, 2000*time.Second, env.mr.TTL(key))
}

func TestSessionValidate_OnlyLatestSessionIsValid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := env.sessions.Create(ctx, userID)
	require.NoError(t, err)
	second, err := env.sessions.Create(ctx, userID)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	got, err := env.sessions.Validate(ctx, claimsFor(userID, second))
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	_, err = env.sessions.Validate(ctx, claimsFor(userID, first))
	assert.True(t, apperror.Is(err, apperror.KindInvalidSession))

	// The mismatch removed the stored session.
	var stored uuid.UUID
	found, err := env.store.Get(ctx, cache.SessionKey{UserID: userID}, &stored)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = env.sessions.Validate(ctx, claimsFor(userID, second))
	assert.True(t, apperror.Is(err, apperror.KindSessionNotAvailable))
}

func TestSessionValidate_Absent(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.sessions.Validate(context.Background(), claimsFor(uuid.New(), uuid.New()))
	assert.True(t, apperror.Is(err, apperror.KindSessionNotAvailable))
	assert.Equal(t, "Session not available", apperror.DetailOf(err))
}

func TestSessionValidate_Expired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	sessionID, err := env.sessions.Create(ctx, userID)
	require.NoError(t, err)

	env.mr.FastForward(cache.SessionExpiry + time.Second)

	_, err = env.sessions.Validate(ctx, claimsFor(userID, sessionID))
	assert.True(t, apperror.Is(err, apperror.KindSessionNotAvailable))
}

func TestSessionInvalidate_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	sessionID, err := env.sessions.Create(ctx, userID)
	require.NoError(t, err)

	require.NoError(t, env.sessions.Invalidate(ctx, userID))
	require.NoError(t, env.sessions.Invalidate(ctx, userID))

	_, err = env.sessions.Validate(ctx, claimsFor(userID, sessionID))
	assert.True(t, apperror.Is(err, apperror.KindSessionNotAvailable))
}

func TestSessionRemaining(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	userID := uuid.New()

	ttl, err := env.sessions.Remaining(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), ttl)

	_, err = env.sessions.Create(ctx, userID)
	require.NoError(t, err)

	ttl, err = env.sessions.Remaining(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), ttl)
}

func TestSession_StoreDownIsInternal(t *testing.T) {
	env := newTestEnv(t)
	env.mr.Close()

	_, err := env.sessions.Create(context.Background(), uuid.New())
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))

	_, err = env.sessions.Validate(context.Background(), claimsFor(uuid.New(), uuid.New()))
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
}
