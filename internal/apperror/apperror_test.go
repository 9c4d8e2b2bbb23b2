package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_WrappedChain(t *testing.T) {
	base := New(KindInvalidSession, "Session is Invalid")
	wrapped := fmt.Errorf("refresh: %w", base)

	assert.Equal(t, KindInvalidSession, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindInvalidSession))
	assert.False(t, Is(wrapped, KindUnauthorized))
}

func TestKindOf_PlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindInternal))
}

func TestWrap_UnwrapsToCause(t *testing.T) {
	cause := errors.New("redis down")
	err := Internal("failed to read session", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "redis down")
}

func TestDetailOf_HidesInternal(t *testing.T) {
	assert.Equal(t, "", DetailOf(Internal("db password is hunter2", nil)))
	assert.Equal(t, "", DetailOf(New(KindTaskFailed, "panic in worker")))
	assert.Equal(t, "User not found", DetailOf(NotFound("User not found")))
	assert.Equal(t, "", DetailOf(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:            http.StatusNotFound,
		KindInvalidInput:        http.StatusBadRequest,
		KindInvalidCredentials:  http.StatusBadRequest,
		KindUnauthorized:        http.StatusUnauthorized,
		KindSessionNotAvailable: http.StatusUnauthorized,
		KindInvalidSession:      http.StatusUnauthorized,
		KindForbidden:           http.StatusForbidden,
		KindConflict:            http.StatusConflict,
		KindTaskFailed:          http.StatusInternalServerError,
		KindInternal:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.HTTPStatus(), kind.String())
	}
}
