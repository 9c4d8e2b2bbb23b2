package service

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/erpcore/erp/internal/apperror"
	"github.com/erpcore/erp/internal/config"
	"github.com/erpcore/erp/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenSignatureInvalid = errors.New("token signature is invalid")
	ErrTokenExpired          = errors.New("token is expired")
)

type JWTService struct {
	keys          *KeyMaterial
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	parser        *jwt.Parser
	now           func() time.Time
	logger        *logrus.Logger
}

func NewJWTService(keys *KeyMaterial, cfg *config.JWTConfig, logger *logrus.Logger) (*JWTService, error) {
	if keys == nil || keys.Access.Private == nil || keys.Refresh.Private == nil ||
		keys.Access.Public == nil || keys.Refresh.Public == nil {
		return nil, fmt.Errorf("access and refresh key pairs are required")
	}
	if cfg.AccessExpiry <= 0 || cfg.RefreshExpiry <= cfg.AccessExpiry {
		return nil, fmt.Errorf("refresh expiry must be longer than a positive access expiry")
	}

	return &JWTService{
		keys:          keys,
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
		now:    time.Now,
		logger: logger,
	}, nil
}

func (s *JWTService) Keys() *KeyMaterial {
	return s.keys
}

func (s *JWTService) AccessExpiry() time.Duration {
	return s.accessExpiry
}

// Encode signs claims with key using RS256.
func (s *JWTService) Encode(claims *models.Claims, key *rsa.PrivateKey) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", apperror.Internal("failed to sign token", err)
	}
	return signed, nil
}

// Decode verifies the signature of tokenString against key and checks its
// expiry. Every failure is Unauthorized and wraps one of ErrTokenMalformed,
// ErrTokenSignatureInvalid or ErrTokenExpired.
func (s *JWTService) Decode(tokenString string, key *rsa.PublicKey) (*models.Claims, error) {
	claims := &models.Claims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		s.logger.WithError(err).Debug("Token decode failed")
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, apperror.Wrap(apperror.KindUnauthorized, "Token is expired", ErrTokenExpired)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, apperror.Wrap(apperror.KindUnauthorized, "Token signature is invalid", ErrTokenSignatureInvalid)
		default:
			return nil, apperror.Wrap(apperror.KindUnauthorized, "Token is malformed", fmt.Errorf("%w: %v", ErrTokenMalformed, err))
		}
	}
	if !token.Valid || claims.UserID == uuid.Nil || claims.SessionID == uuid.Nil {
		return nil, apperror.Wrap(apperror.KindUnauthorized, "Token is malformed", ErrTokenMalformed)
	}
	return claims, nil
}

func (s *JWTService) DecodeAccess(tokenString string) (*models.Claims, error) {
	return s.Decode(tokenString, s.keys.Access.Public)
}

func (s *JWTService) DecodeRefresh(tokenString string) (*models.Claims, error) {
	return s.Decode(tokenString, s.keys.Refresh.Public)
}

// GenerateTokens issues an access/refresh pair for user bound to sessionID.
func (s *JWTService) GenerateTokens(user *models.User, sessionID uuid.UUID) (*models.TokenPair, error) {
	now := s.now()

	access := models.NewClaims(now, s.accessExpiry, user.UserUUID, sessionID, user.Role)
	accessToken, err := s.Encode(access, s.keys.Access.Private)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign access token")
		return nil, err
	}

	refresh := models.NewClaims(now, s.refreshExpiry, user.UserUUID, sessionID, user.Role)
	refreshToken, err := s.Encode(refresh, s.keys.Refresh.Private)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign refresh token")
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessExpiry.Seconds()),
	}, nil
}
