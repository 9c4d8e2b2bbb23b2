package repository

import (
	"context"
	"sync"
	"time"

	"github.com/erpcore/erp/internal/models"
	"github.com/google/uuid"
)

// MemoryUserRepository keeps users in process memory. It backs
// USER_STORE=memory for local runs; nothing survives a restart.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]models.User
	byEmail map[string]uuid.UUID
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[uuid.UUID]models.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (r *MemoryUserRepository) FindActiveByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, nil
	}
	user := r.byID[id]
	if !user.IsActive() {
		return nil, nil
	}
	return &user, nil
}

func (r *MemoryUserRepository) FindByUUID(_ context.Context, userID uuid.UUID) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[userID]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (r *MemoryUserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[user.Email]; ok {
		return ErrUserExists
	}
	if _, ok := r.byID[user.UserUUID]; ok {
		return ErrUserExists
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	r.byID[user.UserUUID] = *user
	r.byEmail[user.Email] = user.UserUUID
	return nil
}

func (r *MemoryUserRepository) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now().UTC()
	r.byID[userID] = user
	return nil
}

// SetStatus changes an account's status.
func (r *MemoryUserRepository) SetStatus(userID uuid.UUID, status models.UserStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.Status = status
	r.byID[userID] = user
	return nil
}

// Delete removes an account and frees its email.
func (r *MemoryUserRepository) Delete(userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user, ok := r.byID[userID]; ok {
		delete(r.byEmail, user.Email)
		delete(r.byID, userID)
	}
}

func (r *MemoryUserRepository) Ping(context.Context) error {
	return nil
}
