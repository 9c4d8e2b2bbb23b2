package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/erpcore/erp/internal/apperror"
	"github.com/erpcore/erp/internal/cache"
	"github.com/erpcore/erp/internal/config"
	"github.com/erpcore/erp/internal/events"
	"github.com/erpcore/erp/internal/models"
	"github.com/erpcore/erp/internal/repository"
	"github.com/erpcore/erp/internal/worker"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const resetCodeLength = 5

// CodeStore is the subset of cache.RedisStore pending reset codes need.
type CodeStore interface {
	Set(ctx context.Context, key cache.Key, value any) error
	Get(ctx context.Context, key cache.Key, dest any) (bool, error)
	Delete(ctx context.Context, key cache.Key) (bool, error)
	Incr(ctx context.Context, key cache.Key) (int64, error)
}

// ResetCodeService runs the forget/reset password flow. Codes are delivered
// out of band by whatever consumes the password_reset_requested event.
type ResetCodeService struct {
	store       CodeStore
	users       UserRepository
	passwords   *PasswordService
	sessions    *SessionService
	pool        *worker.Pool
	publisher   events.Publisher
	maxAttempts int
	logger      *logrus.Logger
}

func NewResetCodeService(
	store CodeStore,
	users UserRepository,
	passwords *PasswordService,
	sessions *SessionService,
	pool *worker.Pool,
	publisher events.Publisher,
	cfg *config.PasswordConfig,
	logger *logrus.Logger,
) *ResetCodeService {
	return &ResetCodeService{
		store:       store,
		users:       users,
		passwords:   passwords,
		sessions:    sessions,
		pool:        pool,
		publisher:   publisher,
		maxAttempts: cfg.ResetCodeMaxAttempts,
		logger:      logger,
	}
}

// RequestReset issues a new code for the active account behind email. It
// reports success for unknown addresses too.
func (s *ResetCodeService) RequestReset(ctx context.Context, email string) error {
	email = models.NormalizeEmail(email)

	user, err := s.users.FindActiveByEmail(ctx, email)
	if err != nil {
		s.logger.WithError(err).Error("Failed to look up user")
		return apperror.Internal("failed to look up user", err)
	}
	if user == nil {
		s.logger.WithField("email", email).Debug("Reset requested for unknown account")
		return nil
	}

	code, err := generateCode(resetCodeLength)
	if err != nil {
		return apperror.Internal("failed to generate reset code", err)
	}

	hash, err := worker.Submit(ctx, s.pool, func() ([]byte, error) {
		return bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	})
	if err != nil {
		return apperror.Internal("failed to hash reset code", err)
	}

	pending := models.ResetCode{
		CodeHash:  string(hash),
		UserID:    user.UserUUID,
		CreatedAt: time.Now().UTC(),
	}
	// A new code gets a fresh attempt budget.
	if _, err := s.store.Delete(ctx, cache.ResetAttemptsKey{UserID: user.UserUUID}); err != nil {
		s.logger.WithError(err).Error("Failed to clear reset attempts")
		return apperror.Internal("failed to clear reset attempts", err)
	}
	if err := s.store.Set(ctx, cache.ForgetPasswordKey{UserID: user.UserUUID}, pending); err != nil {
		s.logger.WithError(err).Error("Failed to store reset code")
		return apperror.Internal("failed to store reset code", err)
	}

	publish(ctx, s.publisher, s.logger, events.New(events.TypePasswordResetRequested, user.UserUUID).
		With(events.AttrEmail, user.Email).
		With(events.AttrResetCode, code))

	return nil
}

// Reset replaces the password when code matches the pending one. Every guess
// is counted before the comparison; once the count passes the limit the code
// is discarded.
func (s *ResetCodeService) Reset(ctx context.Context, userID uuid.UUID, code, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	key := cache.ForgetPasswordKey{UserID: userID}
	attemptsKey := cache.ResetAttemptsKey{UserID: userID}

	var pending models.ResetCode
	found, err := s.store.Get(ctx, key, &pending)
	if err != nil {
		s.logger.WithError(err).Error("Failed to read reset code")
		return apperror.Internal("failed to read reset code", err)
	}
	if !found {
		return apperror.InvalidInput("Reset code is invalid or expired")
	}

	attempts, err := s.store.Incr(ctx, attemptsKey)
	if err != nil {
		return apperror.Internal("failed to count reset attempt", err)
	}
	if attempts > int64(s.maxAttempts) {
		s.logger.WithField("user_id", userID.String()).Warn("Reset code attempts exhausted")
		if err := s.discardCode(ctx, userID); err != nil {
			return err
		}
		return apperror.InvalidInput("Maximum attempts exceeded")
	}

	match, err := worker.Submit(ctx, s.pool, func() (bool, error) {
		err := bcrypt.CompareHashAndPassword([]byte(pending.CodeHash), []byte(code))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return err == nil, err
	})
	if err != nil {
		return apperror.Internal("failed to verify reset code", err)
	}
	if !match {
		return apperror.InvalidInput("Reset code is invalid or expired")
	}

	hash, err := s.passwords.Hash(ctx, newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperror.NotFound("User not found")
		}
		s.logger.WithError(err).Error("Failed to update password")
		return apperror.Internal("failed to update password", err)
	}

	if err := s.discardCode(ctx, userID); err != nil {
		return err
	}
	if err := s.sessions.Invalidate(ctx, userID); err != nil {
		return err
	}

	s.logger.WithField("user_id", userID.String()).Info("Password reset")
	publish(ctx, s.publisher, s.logger, events.New(events.TypePasswordReset, userID))
	return nil
}

func (s *ResetCodeService) discardCode(ctx context.Context, userID uuid.UUID) error {
	for _, key := range []cache.Key{cache.ForgetPasswordKey{UserID: userID}, cache.ResetAttemptsKey{UserID: userID}} {
		if _, err := s.store.Delete(ctx, key); err != nil {
			return apperror.Internal("failed to delete reset code", err)
		}
	}
	return nil
}

func generateCode(length int) (string, error) {
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to read random digit: %w", err)
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}
