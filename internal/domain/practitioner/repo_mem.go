package practitioner

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/holisticconnect/holisticconnect/pkg/pagination"
)

// InMemoryRepo is a map-backed Repository with the same contract and ordering
// as the PostgreSQL implementation.
type InMemoryRepo struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Practitioner
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{items: make(map[uuid.UUID]*Practitioner)}
}

func copyPractitioner(p *Practitioner) *Practitioner {
	cp := *p
	if p.Bio != nil {
		v := *p.Bio
		cp.Bio = &v
	}
	if p.Specialties != nil {
		cp.Specialties = append([]string(nil), p.Specialties...)
	}
	if p.Availability != nil {
		cp.Availability = make(WeeklyAvailability, len(p.Availability))
		for k, v := range p.Availability {
			cp.Availability[k] = v
		}
	}
	if p.Active != nil {
		v := *p.Active
		cp.Active = &v
	}
	return &cp
}

func (r *InMemoryRepo) Create(_ context.Context, p *Practitioner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[p.UID]; ok {
		return ErrAlreadyExists
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	r.items[p.UID] = copyPractitioner(p)
	return nil
}

func (r *InMemoryRepo) GetByID(_ context.Context, uid uuid.UUID) (*Practitioner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[uid]
	if !ok {
		return nil, nil
	}
	return copyPractitioner(p), nil
}

func (r *InMemoryRepo) Update(_ context.Context, p *Practitioner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.items[p.UID]
	if !ok {
		return ErrNotFound
	}
	next := copyPractitioner(p)
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	r.items[p.UID] = next
	p.UpdatedAt = next.UpdatedAt
	return nil
}

// uidLess orders UUIDs the way Postgres compares the uuid type, byte-wise.
func uidLess(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func (r *InMemoryRepo) List(_ context.Context, q Query) ([]*Practitioner, pagination.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var matches []*Practitioner
	for _, p := range r.items {
		if q.Active != nil && (p.Active == nil || *p.Active != *q.Active) {
			continue
		}
		if !q.After.IsZero() {
			// Resume strictly after the cursor row in (created_at, uid) DESC order.
			if p.CreatedAt.After(q.After.Key) {
				continue
			}
			if p.CreatedAt.Equal(q.After.Key) && !uidLess(p.UID, q.After.ID) {
				continue
			}
		}
		matches = append(matches, copyPractitioner(p))
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return uidLess(matches[j].UID, matches[i].UID)
	})

	var next pagination.Cursor
	if len(matches) > limit {
		matches = matches[:limit]
		last := matches[len(matches)-1]
		next = pagination.Cursor{Key: last.CreatedAt, ID: last.UID}
	}
	return matches, next, nil
}
