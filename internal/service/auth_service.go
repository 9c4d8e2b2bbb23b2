package service

import (
	"context"

	"github.com/erpcore/erp/internal/apperror"
	"github.com/erpcore/erp/internal/events"
	"github.com/erpcore/erp/internal/metrics"
	"github.com/erpcore/erp/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// UserRepository is implemented by the Postgres and DynamoDB user stores.
// Lookups return (nil, nil) when no user matches.
type UserRepository interface {
	FindActiveByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUUID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	Ping(ctx context.Context) error
}

type AuthService struct {
	users     UserRepository
	passwords *PasswordService
	sessions  *SessionService
	tokens    *JWTService
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *logrus.Logger
}

func NewAuthService(
	users UserRepository,
	passwords *PasswordService,
	sessions *SessionService,
	tokens *JWTService,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passwords: passwords,
		sessions:  sessions,
		tokens:    tokens,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// Login verifies email/password against an active account and opens a new
// session, replacing any previous one. Unknown accounts and wrong passwords
// fail identically with InvalidCredentials.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.TokenPair, error) {
	email = models.NormalizeEmail(email)

	user, err := s.users.FindActiveByEmail(ctx, email)
	if err != nil {
		s.metrics.AuthOperation("login", "error")
		s.logger.WithError(err).Error("Failed to look up user")
		return nil, apperror.Internal("failed to look up user", err)
	}
	if user == nil {
		s.metrics.AuthOperation("login", "invalid_credentials")
		s.logger.WithField("email", email).Info("Login for unknown or inactive account")
		return nil, apperror.New(apperror.KindInvalidCredentials, "Invalid email or password")
	}

	ok, err := s.passwords.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		s.metrics.AuthOperation("login", "error")
		return nil, err
	}
	if !ok {
		s.metrics.AuthOperation("login", "invalid_credentials")
		publish(ctx, s.publisher, s.logger, events.New(events.TypeLoginFailed, user.UserUUID))
		return nil, apperror.New(apperror.KindInvalidCredentials, "Invalid email or password")
	}

	sessionID, err := s.sessions.Create(ctx, user.UserUUID)
	if err != nil {
		s.metrics.AuthOperation("login", "error")
		return nil, err
	}

	pair, err := s.tokens.GenerateTokens(user, sessionID)
	if err != nil {
		s.metrics.AuthOperation("login", "error")
		return nil, err
	}

	s.metrics.AuthOperation("login", "success")
	s.logger.WithFields(logrus.Fields{
		"user_id":    user.UserUUID.String(),
		"session_id": sessionID.String(),
	}).Info("User logged in")
	publish(ctx, s.publisher, s.logger, events.New(events.TypeLogin, user.UserUUID).WithSession(sessionID))

	return pair, nil
}

func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) error {
	if err := s.sessions.Invalidate(ctx, userID); err != nil {
		s.metrics.AuthOperation("logout", "error")
		return err
	}
	s.metrics.AuthOperation("logout", "success")
	publish(ctx, s.publisher, s.logger, events.New(events.TypeLogout, userID))
	return nil
}

// publish is best effort: audit delivery never fails the request.
func publish(ctx context.Context, p events.Publisher, logger *logrus.Logger, event events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		logger.WithError(err).WithField("type", event.Type).Warn("Audit event dropped")
	}
}
