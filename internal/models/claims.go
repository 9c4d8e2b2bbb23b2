package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the payload of both access and refresh tokens.
type Claims struct {
	IssuedAt  int64     `json:"iat"`
	ExpiresAt int64     `json:"exp"`
	UserID    uuid.UUID `json:"uuid"`
	SessionID uuid.UUID `json:"sid"`
	Role      string    `json:"role"`
}

func NewClaims(now time.Time, ttl time.Duration, userID, sessionID uuid.UUID, role string) *Claims {
	iat := now.Unix()
	return &Claims{
		IssuedAt:  iat,
		ExpiresAt: iat + int64(ttl.Seconds()),
		UserID:    userID,
		SessionID: sessionID,
		Role:      role,
	}
}

func (c *Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	if c.ExpiresAt == 0 {
		return nil, nil
	}
	return jwt.NewNumericDate(time.Unix(c.ExpiresAt, 0)), nil
}

func (c *Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	if c.IssuedAt == 0 {
		return nil, nil
	}
	return jwt.NewNumericDate(time.Unix(c.IssuedAt, 0)), nil
}

func (c *Claims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

func (c *Claims) GetIssuer() (string, error) {
	return "", nil
}

func (c *Claims) GetSubject() (string, error) {
	return c.UserID.String(), nil
}

func (c *Claims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}
