package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/holisticconnect/holisticconnect/pkg/pagination"
)

// DefaultListLimit caps a listing when the caller does not choose a limit.
const DefaultListLimit = 100

var (
	ErrNotFound      = errors.New("appointment: not found")
	ErrAlreadyExists = errors.New("appointment: already exists")
)

// Query filters and pages an appointment listing. From and To bound
// start_time inclusively. Results are ordered by start_time ascending with id
// as the tiebreaker; After must come from the same ordering.
type Query struct {
	ClientID       *uuid.UUID
	PractitionerID *uuid.UUID
	Status         *string
	From           *time.Time
	To             *time.Time
	Limit          int
	After          pagination.Cursor
}

// WatchFunc receives the full, current result set of a watched query. It is
// never handed a delta.
type WatchFunc func([]*Appointment)

// Repository is the appointments collection contract. Create fails with
// ErrAlreadyExists and leaves the existing row untouched; GetByID returns
// (nil, nil) when the row is absent; Update and Cancel fail with ErrNotFound.
// Cancel is a status update that also records the actor and timestamp;
// cancelling an already-cancelled row is an ordinary update.
//
// Watch registers fn for q and returns an unsubscribe handle. fn fires once
// with the current set at registration and once after every mutation. When a
// recompute fails, fn receives an empty set and the error is logged.
// Cancelling ctx tears the subscription down like the handle does.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Cancel(ctx context.Context, id uuid.UUID, actor string) error
	List(ctx context.Context, q Query) ([]*Appointment, pagination.Cursor, error)
	Watch(ctx context.Context, q Query, fn WatchFunc) (func(), error)
}
