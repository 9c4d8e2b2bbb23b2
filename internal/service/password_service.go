package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/erpcore/erp/internal/apperror"
	"github.com/erpcore/erp/internal/config"
	"github.com/erpcore/erp/internal/metrics"
	"github.com/erpcore/erp/internal/worker"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"
)

const (
	argon2Version = argon2.Version

	saltLength = 16
	keyLength  = 32

	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var ErrInvalidHash = errors.New("invalid password hash")

type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// PasswordService hashes and verifies passwords with Argon2id. All hashing
// runs on the worker pool.
type PasswordService struct {
	params  Argon2Params
	pool    *worker.Pool
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

func NewPasswordService(cfg *config.PasswordConfig, pool *worker.Pool, m *metrics.Metrics, logger *logrus.Logger) *PasswordService {
	return &PasswordService{
		params: Argon2Params{
			MemoryKiB:   cfg.MemoryKiB,
			Iterations:  cfg.Iterations,
			Parallelism: cfg.Parallelism,
		},
		pool:    pool,
		metrics: m,
		logger:  logger,
	}
}

// ValidatePassword enforces the policy for newly chosen passwords.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return apperror.InvalidInput(fmt.Sprintf("password must be between %d and %d characters", MinPasswordLength, MaxPasswordLength))
	}
	return nil
}

// Hash returns the encoded Argon2id hash of password:
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
func (s *PasswordService) Hash(ctx context.Context, password string) (string, error) {
	start := time.Now()
	encoded, err := worker.Submit(ctx, s.pool, func() (string, error) {
		return hashPassword(password, s.params)
	})
	s.metrics.ObserveHash("hash", time.Since(start))
	if err != nil {
		return "", s.taskError("failed to hash password", err)
	}
	return encoded, nil
}

// Verify reports whether password matches encoded. A mismatch is (false, nil);
// a malformed hash is an Internal error.
func (s *PasswordService) Verify(ctx context.Context, password, encoded string) (bool, error) {
	start := time.Now()
	ok, err := worker.Submit(ctx, s.pool, func() (bool, error) {
		return verifyPassword(password, encoded, s.params)
	})
	s.metrics.ObserveHash("verify", time.Since(start))
	if err != nil {
		return false, s.taskError("failed to verify password", err)
	}
	if !ok {
		s.logger.Debug("The password is not correct")
	}
	return ok, nil
}

func (s *PasswordService) taskError(detail string, err error) error {
	switch {
	case errors.Is(err, worker.ErrTaskFailed):
		s.logger.WithError(err).Error("Password hashing task failed")
		return apperror.Wrap(apperror.KindTaskFailed, detail, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperror.Internal(detail, err)
	default:
		s.logger.WithError(err).Error(detail)
		return apperror.Internal(detail, err)
	}
}

func hashPassword(password string, p Argon2Params) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, keyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		p.MemoryKiB,
		p.Iterations,
		p.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

func verifyPassword(password, encoded string, limits Argon2Params) (bool, error) {
	params, salt, expected, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	// Refuse stored parameters far above ours so a planted hash cannot pin a worker.
	if params.MemoryKiB > limits.MemoryKiB*2 ||
		params.Iterations > limits.Iterations*2 ||
		uint32(params.Parallelism) > uint32(limits.Parallelism)*2 {
		return false, ErrInvalidHash
	}

	key := argon2.IDKey([]byte(password), salt, params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func decodeHash(encoded string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 || len(salt) > 64 {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}
	hash, err := b64.DecodeString(parts[5])
	if err != nil || len(hash) < 16 || len(hash) > 128 {
		return Argon2Params{}, nil, nil, ErrInvalidHash
	}

	return Argon2Params{MemoryKiB: mem, Iterations: it, Parallelism: uint8(par)}, salt, hash, nil
}
