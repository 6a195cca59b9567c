package user

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepo is a map-backed Repository with the same contract as the
// PostgreSQL implementation. Tests and local tooling use it in place of a
// database.
type InMemoryRepo struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{users: make(map[uuid.UUID]*User)}
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyUser(u *User) *User {
	cp := *u
	cp.DisplayName = copyStr(u.DisplayName)
	cp.PhotoURL = copyStr(u.PhotoURL)
	cp.Phone = copyStr(u.Phone)
	cp.Bio = copyStr(u.Bio)
	return &cp
}

func (r *InMemoryRepo) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.UID]; ok {
		return ErrAlreadyExists
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	r.users[u.UID] = copyUser(u)
	return nil
}

func (r *InMemoryRepo) GetByID(_ context.Context, uid uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[uid]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (r *InMemoryRepo) Update(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.users[u.UID]
	if !ok {
		return ErrNotFound
	}
	next := copyUser(u)
	next.Role = cur.Role
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	r.users[u.UID] = next
	u.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *InMemoryRepo) SetRole(_ context.Context, uid uuid.UUID, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[uid]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	return nil
}
