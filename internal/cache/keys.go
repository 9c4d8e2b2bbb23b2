package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	SessionExpiry        = 2000 * time.Second
	ForgetPasswordExpiry = 300 * time.Second
)

// Key is a namespaced store key. Each variant carries its own expiry.
type Key interface {
	fmt.Stringer
	Expiry() time.Duration
}

// SessionKey maps a user to the single session id currently valid for it.
// Its value is a uuid.UUID.
type SessionKey struct {
	UserID uuid.UUID
}

func (k SessionKey) String() string {
	return "SESSION_KEY_" + k.UserID.String()
}

func (SessionKey) Expiry() time.Duration {
	return SessionExpiry
}

// ForgetPasswordKey holds the pending password reset code of a user.
type ForgetPasswordKey struct {
	UserID uuid.UUID
}

func (k ForgetPasswordKey) String() string {
	return "FORGET_PASS_KEY_" + k.UserID.String()
}

func (ForgetPasswordKey) Expiry() time.Duration {
	return ForgetPasswordExpiry
}

// ResetAttemptsKey counts guesses against the pending reset code of a user.
// Its value is an integer maintained with INCR.
type ResetAttemptsKey struct {
	UserID uuid.UUID
}

func (k ResetAttemptsKey) String() string {
	return "FORGET_PASS_ATTEMPTS_" + k.UserID.String()
}

func (ResetAttemptsKey) Expiry() time.Duration {
	return ForgetPasswordExpiry
}
