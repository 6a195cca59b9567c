package appointment

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/holisticconnect/holisticconnect/pkg/pagination"
)

// InMemoryRepo is a map-backed Repository with the same contract, ordering
// and watch behavior as the PostgreSQL implementation.
type InMemoryRepo struct {
	mu       sync.RWMutex
	items    map[uuid.UUID]*Appointment
	watchers *watchRegistry
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		items:    make(map[uuid.UUID]*Appointment),
		watchers: newWatchRegistry(zerolog.Nop()),
	}
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyStrPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyAppointment(a *Appointment) *Appointment {
	cp := *a
	cp.Notes = copyStrPtr(a.Notes)
	cp.PractitionerNotes = copyStrPtr(a.PractitionerNotes)
	cp.CancelledBy = copyStrPtr(a.CancelledBy)
	cp.CancelledAt = copyTimePtr(a.CancelledAt)
	cp.IntakeFormID = copyStrPtr(a.IntakeFormID)
	return &cp
}

func (r *InMemoryRepo) Create(_ context.Context, a *Appointment) error {
	if err := r.create(a); err != nil {
		return err
	}
	r.watchers.notify(r.List)
	return nil
}

func (r *InMemoryRepo) create(a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if _, ok := r.items[a.ID]; ok {
		return ErrAlreadyExists
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	r.items[a.ID] = copyAppointment(a)
	return nil
}

func (r *InMemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.items[id]
	if !ok {
		return nil, nil
	}
	return copyAppointment(a), nil
}

func (r *InMemoryRepo) Update(_ context.Context, a *Appointment) error {
	if err := r.update(a); err != nil {
		return err
	}
	r.watchers.notify(r.List)
	return nil
}

// update replaces every mutable column. The parties and created_at are fixed
// at booking time.
func (r *InMemoryRepo) update(a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.items[a.ID]
	if !ok {
		return ErrNotFound
	}
	next := copyAppointment(a)
	next.ClientID = cur.ClientID
	next.PractitionerID = cur.PractitionerID
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	r.items[a.ID] = next
	a.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *InMemoryRepo) Cancel(_ context.Context, id uuid.UUID, actor string) error {
	if err := r.cancel(id, actor); err != nil {
		return err
	}
	r.watchers.notify(r.List)
	return nil
}

func (r *InMemoryRepo) cancel(id uuid.UUID, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	a.Status = StatusCancelled
	a.CancelledBy = &actor
	a.CancelledAt = &now
	a.UpdatedAt = now
	return nil
}

// idLess orders UUIDs the way Postgres compares the uuid type, byte-wise.
func idLess(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func (r *InMemoryRepo) List(_ context.Context, q Query) ([]*Appointment, pagination.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var matches []*Appointment
	for _, a := range r.items {
		if q.ClientID != nil && a.ClientID != *q.ClientID {
			continue
		}
		if q.PractitionerID != nil && a.PractitionerID != *q.PractitionerID {
			continue
		}
		if q.Status != nil && a.Status != *q.Status {
			continue
		}
		if q.From != nil && a.StartTime.Before(*q.From) {
			continue
		}
		if q.To != nil && a.StartTime.After(*q.To) {
			continue
		}
		if !q.After.IsZero() {
			// Resume strictly after the cursor row in (start_time, id) ASC order.
			if a.StartTime.Before(q.After.Key) {
				continue
			}
			if a.StartTime.Equal(q.After.Key) && !idLess(q.After.ID, a.ID) {
				continue
			}
		}
		matches = append(matches, copyAppointment(a))
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].StartTime.Equal(matches[j].StartTime) {
			return matches[i].StartTime.Before(matches[j].StartTime)
		}
		return idLess(matches[i].ID, matches[j].ID)
	})

	var next pagination.Cursor
	if len(matches) > limit {
		matches = matches[:limit]
		last := matches[len(matches)-1]
		next = pagination.Cursor{Key: last.StartTime, ID: last.ID}
	}
	return matches, next, nil
}

func (r *InMemoryRepo) Watch(ctx context.Context, q Query, fn WatchFunc) (func(), error) {
	return r.watchers.add(ctx, q, fn, r.List), nil
}
