package practitioner

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/holisticconnect/holisticconnect/pkg/pagination"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateProfile stores a practitioner document, filling sign-up defaults for
// anything the caller left unset.
func (s *Service) CreateProfile(ctx context.Context, p *Practitioner) error {
	if p.UID == uuid.Nil {
		return fmt.Errorf("uid is required")
	}
	if p.Specialties == nil {
		p.Specialties = []string{}
	}
	if p.PricingInitial == 0 {
		p.PricingInitial = DefaultPricingInitial
	}
	if p.PricingFollowup == 0 {
		p.PricingFollowup = DefaultPricingFollowup
	}
	if p.PricingCurrency == "" {
		p.PricingCurrency = DefaultCurrency
	}
	if p.AvailabilityTimezone == "" {
		p.AvailabilityTimezone = "UTC"
	}
	if p.Availability == nil {
		p.Availability = DefaultAvailability()
	}
	if p.SessionDurationMinutes == 0 {
		p.SessionDurationMinutes = DefaultSessionMinutes
	}
	if p.Active == nil {
		active := true
		p.Active = &active
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, uid uuid.UUID) (*Practitioner, error) {
	return s.repo.GetByID(ctx, uid)
}

// UpdateProfile applies the provided fields on top of the stored document and
// writes the whole document back, last-write-wins.
func (s *Service) UpdateProfile(ctx context.Context, uid uuid.UUID, upd ProfileUpdate) (*Practitioner, error) {
	p, err := s.repo.GetByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	if upd.Bio != nil {
		p.Bio = upd.Bio
	}
	if upd.Specialties != nil {
		p.Specialties = *upd.Specialties
	}
	if upd.PricingInitial != nil {
		p.PricingInitial = *upd.PricingInitial
	}
	if upd.PricingFollowup != nil {
		p.PricingFollowup = *upd.PricingFollowup
	}
	if upd.PricingCurrency != nil {
		p.PricingCurrency = *upd.PricingCurrency
	}
	if upd.AvailabilityTimezone != nil {
		p.AvailabilityTimezone = *upd.AvailabilityTimezone
	}
	if upd.Availability != nil {
		p.Availability = *upd.Availability
	}
	if upd.SessionDurationMinutes != nil {
		p.SessionDurationMinutes = *upd.SessionDurationMinutes
	}
	if upd.Active != nil {
		p.Active = upd.Active
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, q Query) ([]*Practitioner, pagination.Cursor, error) {
	return s.repo.List(ctx, q)
}
