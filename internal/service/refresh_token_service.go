package service

import (
	"context"

	"github.com/erpcore/erp/internal/apperror"
	"github.com/erpcore/erp/internal/events"
	"github.com/erpcore/erp/internal/metrics"
	"github.com/erpcore/erp/internal/models"
	"github.com/sirupsen/logrus"
)

type RefreshTokenService struct {
	users     UserRepository
	sessions  *SessionService
	tokens    *JWTService
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

func NewRefreshTokenService(
	users UserRepository,
	sessions *SessionService,
	tokens *JWTService,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *RefreshTokenService {
	return &RefreshTokenService{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Refresh exchanges a refresh token for a new pair bound to a new session.
// The presented token's session stops validating once this returns.
func (s *RefreshTokenService) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	pair, err := s.refresh(ctx, refreshToken)
	if err != nil {
		s.metrics.AuthOperation("refresh", outcomeOf(err))
		return nil, err
	}
	s.metrics.AuthOperation("refresh", "success")
	return pair, nil
}

func (s *RefreshTokenService) refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	claims, err := s.tokens.DecodeRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	userID := claims.UserID
	if _, err := s.sessions.Validate(ctx, claims); err != nil {
		return nil, err
	}

	user, err := s.users.FindByUUID(ctx, userID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to look up user")
		return nil, apperror.Internal("failed to look up user", err)
	}
	if user == nil {
		return nil, apperror.NotFound("User not found")
	}
	if !user.IsActive() {
		if err := s.sessions.Invalidate(ctx, userID); err != nil {
			return nil, err
		}
		publish(ctx, s.publisher, s.logger, events.New(events.TypeSessionInvalidated, userID).With("reason", "inactive"))
		return nil, apperror.New(apperror.KindForbidden, "Account is not active")
	}

	sessionID, err := s.sessions.Create(ctx, userID)
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.GenerateTokens(user, sessionID)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":     userID.String(),
		"old_session": claims.SessionID.String(),
		"new_session": sessionID.String(),
	}).Debug("Session rotated")
	publish(ctx, s.publisher, s.logger, events.New(events.TypeTokenRefreshed, userID).WithSession(sessionID))

	return pair, nil
}

func outcomeOf(err error) string {
	switch apperror.KindOf(err) {
	case apperror.KindUnauthorized:
		return "unauthorized"
	case apperror.KindSessionNotAvailable:
		return "session_not_available"
	case apperror.KindInvalidSession:
		return "invalid_session"
	case apperror.KindNotFound:
		return "not_found"
	case apperror.KindForbidden:
		return "forbidden"
	case apperror.KindInvalidInput, apperror.KindInvalidCredentials:
		return "rejected"
	default:
		return "error"
	}
}
