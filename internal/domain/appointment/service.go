package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/holisticconnect/holisticconnect/pkg/pagination"
)

// Service carries the booking rules that sit above storage: required fields,
// status vocabulary, and the merge semantics of partial updates.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, a *Appointment) error {
	if a.ClientID == uuid.Nil {
		return fmt.Errorf("client_id is required")
	}
	if a.PractitionerID == uuid.Nil {
		return fmt.Errorf("practitioner_id is required")
	}
	if a.StartTime.IsZero() {
		return fmt.Errorf("start_time is required")
	}
	if a.EndTime.IsZero() {
		return fmt.Errorf("end_time is required")
	}
	if !a.EndTime.After(a.StartTime) {
		return fmt.Errorf("end_time must be after start_time")
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	if !validStatuses[a.Status] {
		return fmt.Errorf("invalid status: %s", a.Status)
	}
	return s.repo.Create(ctx, a)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// Update merges the request into the stored appointment and writes the whole
// record back. Whoever writes last wins.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	cur, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, ErrNotFound
	}

	if req.StartTime != nil {
		cur.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		cur.EndTime = *req.EndTime
	}
	if !cur.EndTime.After(cur.StartTime) {
		return nil, fmt.Errorf("end_time must be after start_time")
	}
	if req.Status != nil {
		if !validStatuses[*req.Status] {
			return nil, fmt.Errorf("invalid status: %s", *req.Status)
		}
		cur.Status = *req.Status
	}
	if req.Notes != nil {
		cur.Notes = req.Notes
	}
	if req.PractitionerNotes != nil {
		cur.PractitionerNotes = req.PractitionerNotes
	}
	if req.IntakeFormID != nil {
		cur.IntakeFormID = req.IntakeFormID
	}
	if req.IntakeFormCompleted != nil {
		cur.IntakeFormCompleted = *req.IntakeFormCompleted
	}

	if err := s.repo.Update(ctx, cur); err != nil {
		return nil, err
	}
	return cur, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor string) error {
	if !validActors[actor] {
		return fmt.Errorf("invalid actor: %s", actor)
	}
	return s.repo.Cancel(ctx, id, actor)
}

func (s *Service) List(ctx context.Context, q Query) ([]*Appointment, pagination.Cursor, error) {
	return s.repo.List(ctx, q)
}

func (s *Service) Watch(ctx context.Context, q Query, fn WatchFunc) (func(), error) {
	return s.repo.Watch(ctx, q, fn)
}
