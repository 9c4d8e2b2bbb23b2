package service

import (
	"context"

	"github.com/erpcore/erp/internal/apperror"
	"github.com/erpcore/erp/internal/cache"
	"github.com/erpcore/erp/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SessionStore is the subset of cache.RedisStore sessions need.
type SessionStore interface {
	Set(ctx context.Context, key cache.Key, value any) error
	Get(ctx context.Context, key cache.Key, dest any) (bool, error)
	Delete(ctx context.Context, key cache.Key) (bool, error)
	TTL(ctx context.Context, key cache.Key) (int64, error)
}

// SessionService binds each user to at most one live session id. A newer
// session overwrites the previous one, which then fails validation.
type SessionService struct {
	store  SessionStore
	logger *logrus.Logger
}

func NewSessionService(store SessionStore, logger *logrus.Logger) *SessionService {
	return &SessionService{
		store:  store,
		logger: logger,
	}
}

func (s *SessionService) Create(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	sessionID := uuid.New()
	if err := s.store.Set(ctx, cache.SessionKey{UserID: userID}, sessionID); err != nil {
		s.logger.WithError(err).WithField("user_id", userID.String()).Error("Failed to store session")
		return uuid.Nil, apperror.Internal("failed to store session", err)
	}
	return sessionID, nil
}

// Validate checks that claims carry the user's live session id and returns the
// user id. On mismatch the stored session is deleted, so a stale token also
// ends the newer session.
func (s *SessionService) Validate(ctx context.Context, claims *models.Claims) (uuid.UUID, error) {
	key := cache.SessionKey{UserID: claims.UserID}

	var stored uuid.UUID
	found, err := s.store.Get(ctx, key, &stored)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", claims.UserID.String()).Error("Failed to read session")
		return uuid.Nil, apperror.Internal("failed to read session", err)
	}
	if !found {
		return uuid.Nil, apperror.New(apperror.KindSessionNotAvailable, "Session not available")
	}

	if stored != claims.SessionID {
		s.logger.WithFields(logrus.Fields{
			"user_id":    claims.UserID.String(),
			"session_id": claims.SessionID.String(),
		}).Warn("Session mismatch, invalidating session")
		if _, err := s.store.Delete(ctx, key); err != nil {
			return uuid.Nil, apperror.Internal("failed to delete session", err)
		}
		return uuid.Nil, apperror.New(apperror.KindInvalidSession, "Session is Invalid")
	}

	return claims.UserID, nil
}

func (s *SessionService) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.store.Delete(ctx, cache.SessionKey{UserID: userID}); err != nil {
		s.logger.WithError(err).WithField("user_id", userID.String()).Error("Failed to delete session")
		return apperror.Internal("failed to delete session", err)
	}
	return nil
}

// Remaining returns the session TTL in seconds, -2 when there is no session.
func (s *SessionService) Remaining(ctx context.Context, userID uuid.UUID) (int64, error) {
	ttl, err := s.store.TTL(ctx, cache.SessionKey{UserID: userID})
	if err != nil {
		return 0, apperror.Internal("failed to read session ttl", err)
	}
	return ttl, nil
}
