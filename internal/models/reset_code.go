package models

import (
	"time"

	"github.com/google/uuid"
)

// ResetCode is the pending password reset stored under a ForgetPasswordKey.
// Guesses are counted separately under a ResetAttemptsKey.
type ResetCode struct {
	CodeHash  string    `json:"code_hash"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
