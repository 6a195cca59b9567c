package user

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// CreateProfile stores a new profile for a freshly issued auth UID. An empty
// role defaults to client.
func (s *Service) CreateProfile(ctx context.Context, u *User) error {
	if u.UID == uuid.Nil {
		return fmt.Errorf("uid is required")
	}
	if u.Email == "" {
		return fmt.Errorf("email is required")
	}
	if u.Role == "" {
		u.Role = RoleClient
	}
	if !ValidRole(u.Role) {
		return fmt.Errorf("invalid role: %s", u.Role)
	}
	return s.repo.Create(ctx, u)
}

func (s *Service) Get(ctx context.Context, uid uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, uid)
}

// UpdateProfile applies the provided fields on top of the stored profile and
// writes the whole document back. Concurrent edits resolve last-write-wins.
func (s *Service) UpdateProfile(ctx context.Context, uid uuid.UUID, upd ProfileUpdate) (*User, error) {
	u, err := s.repo.GetByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	if upd.DisplayName != nil {
		u.DisplayName = upd.DisplayName
	}
	if upd.PhotoURL != nil {
		u.PhotoURL = upd.PhotoURL
	}
	if upd.Phone != nil {
		u.Phone = upd.Phone
	}
	if upd.Bio != nil {
		u.Bio = upd.Bio
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// RoleOf reports the durable role stored on the profile. Rows written before
// the role column existed read as client, and the value is backfilled so the
// next lookup hits the column directly. A backfill write failure is logged
// and does not change the answer.
func (s *Service) RoleOf(ctx context.Context, uid uuid.UUID) (string, error) {
	u, err := s.repo.GetByID(ctx, uid)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", nil
	}
	if u.Role == "" {
		if err := s.repo.SetRole(ctx, uid, RoleClient); err != nil {
			s.log.Warn().Err(err).Str("uid", uid.String()).Msg("role backfill failed")
		}
		return RoleClient, nil
	}
	return u.Role, nil
}
