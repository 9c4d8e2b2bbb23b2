package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/erpcore/erp/internal/apperror"
	"github.com/erpcore/erp/internal/events"
	"github.com/erpcore/erp/internal/models"
	"github.com/erpcore/erp/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 64
)

type UserService struct {
	users     UserRepository
	passwords *PasswordService
	publisher events.Publisher
	logger    *logrus.Logger
}

func NewUserService(users UserRepository, passwords *PasswordService, publisher events.Publisher, logger *logrus.Logger) *UserService {
	return &UserService{
		users:     users,
		passwords: passwords,
		publisher: publisher,
		logger:    logger,
	}
}

// ValidateEmail accepts a bare address only, no display name.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperror.InvalidInput("email is not valid")
	}
	return nil
}

func (s *UserService) Register(ctx context.Context, email, username, password string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	username = strings.TrimSpace(username)

	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return nil, apperror.InvalidInput("username must be between 3 and 64 characters")
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(ctx, password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &models.User{
		UserUUID:     uuid.New(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleUser,
		Status:       models.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, apperror.New(apperror.KindConflict, "User already exists")
		}
		s.logger.WithError(err).Error("Failed to create user")
		return nil, apperror.Internal("failed to create user", err)
	}

	s.logger.WithField("user_id", user.UserUUID.String()).Info("User registered")
	publish(ctx, s.publisher, s.logger, events.New(events.TypeUserRegistered, user.UserUUID))

	return user, nil
}

func (s *UserService) Profile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByUUID(ctx, userID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to look up user")
		return nil, apperror.Internal("failed to look up user", err)
	}
	if user == nil {
		return nil, apperror.NotFound("User not found")
	}
	return user, nil
}
