package identity

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	users   map[string]User
	byEmail map[string]string
}

// NewMemoryRepository builds an in-memory user store for tests and local runs.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]User), byEmail: make(map[string]string)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := NormalizeEmail(user.Email)
	if _, exists := r.byEmail[email]; exists {
		return ErrDuplicateEmail
	}
	user.Email = email
	r.users[user.ID] = cloneUser(user)
	r.byEmail[email] = user.ID
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return cloneUser(r.users[id]), nil
}

func (r *memoryRepository) List(_ context.Context) ([]User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, cloneUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (r *memoryRepository) SearchByEmail(ctx context.Context, email string) ([]User, error) {
	user, err := r.FindByEmail(ctx, email)
	if err == ErrUserNotFound {
		return []User{}, nil
	}
	if err != nil {
		return nil, err
	}
	return []User{user}, nil
}

func (r *memoryRepository) Update(_ context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.users[user.ID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	if stored.Version != user.Version {
		return User{}, ErrVersionConflict
	}
	updated := cloneUser(user)
	updated.Email = stored.Email
	updated.CreatedAt = stored.CreatedAt
	updated.Version = stored.Version + 1
	updated.UpdatedAt = time.Now().UTC()
	r.users[user.ID] = updated
	return cloneUser(updated), nil
}
