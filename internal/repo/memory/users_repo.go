package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/taskhub/internal/domain/user"
)

type UsersRepo struct {
	mu      sync.RWMutex
	nextID  int64
	byEmail map[string]user.User
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		byEmail: make(map[string]user.User),
	}
}

func (r *UsersRepo) FindByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byEmail[user.NormalizeEmail(email)]
	if !ok || u.DeletedAt != nil {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) Create(_ context.Context, email, passwordHash, name string) (user.User, error) {
	key := user.NormalizeEmail(email)

	r.mu.Lock()
	defer r.mu.Unlock()

	// the unique index in Postgres covers soft-deleted rows too
	if _, exists := r.byEmail[key]; exists {
		return user.User{}, user.ErrEmailTaken
	}

	r.nextID++
	now := time.Now().UTC()

	u := user.User{
		ID:           r.nextID,
		Email:        key,
		PasswordHash: passwordHash,
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.byEmail[key] = u

	return u, nil
}

// SoftDelete marks the user deleted. Lookups stop returning it.
func (r *UsersRepo) SoftDelete(_ context.Context, email string) error {
	key := user.NormalizeEmail(email)

	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byEmail[key]
	if !ok {
		return user.ErrNotFound
	}

	now := time.Now().UTC()
	u.DeletedAt = &now
	r.byEmail[key] = u
	return nil
}

func (r *UsersRepo) Ping(context.Context) error { return nil }
