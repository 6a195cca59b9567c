package user

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned by Update and SetRole when no row matches.
	ErrNotFound = errors.New("user: not found")
	// ErrAlreadyExists is returned by Create when the UID is already taken.
	ErrAlreadyExists = errors.New("user: already exists")
)

// Repository is the users collection contract. Create fails with
// ErrAlreadyExists and leaves the existing row untouched. GetByID returns
// (nil, nil) when the row is absent. Update never changes the role column;
// SetRole is the dedicated backfill path for legacy rows.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, uid uuid.UUID) (*User, error)
	Update(ctx context.Context, u *User) error
	SetRole(ctx context.Context, uid uuid.UUID, role string) error
}
