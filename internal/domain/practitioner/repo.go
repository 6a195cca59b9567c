package practitioner

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/holisticconnect/holisticconnect/pkg/pagination"
)

// DefaultListLimit caps a listing when the caller does not choose a limit.
const DefaultListLimit = 50

var (
	ErrNotFound      = errors.New("practitioner: not found")
	ErrAlreadyExists = errors.New("practitioner: already exists")
)

// Query selects and pages a practitioner listing. Results are ordered by
// created_at descending with uid as the tiebreaker; After must come from the
// same ordering.
type Query struct {
	Active *bool
	Limit  int
	After  pagination.Cursor
}

// Repository is the practitioners collection contract. Create fails with
// ErrAlreadyExists and leaves the existing row untouched; GetByID returns
// (nil, nil) when the row is absent; Update fails with ErrNotFound.
type Repository interface {
	Create(ctx context.Context, p *Practitioner) error
	GetByID(ctx context.Context, uid uuid.UUID) (*Practitioner, error)
	Update(ctx context.Context, p *Practitioner) error
	List(ctx context.Context, q Query) ([]*Practitioner, pagination.Cursor, error)
}
