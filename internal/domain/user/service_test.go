package user

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestService() (*Service, *InMemoryRepo) {
	repo := NewInMemoryRepo()
	return NewService(repo, zerolog.Nop()), repo
}

func TestCreateProfile(t *testing.T) {
	svc, _ := newTestService()
	u := &User{UID: uuid.New(), Email: "a@example.com"}
	if err := svc.CreateProfile(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != RoleClient {
		t.Errorf("expected role to default to client, got %q", u.Role)
	}
}

func TestCreateProfile_UIDRequired(t *testing.T) {
	svc, _ := newTestService()
	err := svc.CreateProfile(context.Background(), &User{Email: "a@example.com"})
	if err == nil {
		t.Error("expected error for missing uid")
	}
}

func TestCreateProfile_EmailRequired(t *testing.T) {
	svc, _ := newTestService()
	err := svc.CreateProfile(context.Background(), &User{UID: uuid.New()})
	if err == nil {
		t.Error("expected error for missing email")
	}
}

func TestCreateProfile_InvalidRole(t *testing.T) {
	svc, _ := newTestService()
	err := svc.CreateProfile(context.Background(), &User{UID: uuid.New(), Email: "a@example.com", Role: "admin"})
	if err == nil {
		t.Error("expected error for invalid role")
	}
}

func TestCreateProfile_Duplicate(t *testing.T) {
	svc, _ := newTestService()
	u := &User{UID: uuid.New(), Email: "a@example.com"}
	svc.CreateProfile(context.Background(), u)

	err := svc.CreateProfile(context.Background(), &User{UID: u.UID, Email: "b@example.com"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newTestService()
	bio := "tea specialist"
	u := &User{UID: uuid.New(), Email: "a@example.com", Bio: &bio}
	svc.CreateProfile(context.Background(), u)

	name := "Ada"
	got, err := svc.UpdateProfile(context.Background(), u.UID, ProfileUpdate{DisplayName: &name})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DisplayName == nil || *got.DisplayName != "Ada" {
		t.Errorf("display name not applied: %+v", got)
	}
	if got.Bio == nil || *got.Bio != "tea specialist" {
		t.Error("expected untouched fields to survive the update")
	}
}

func TestUpdateProfile_NotFound(t *testing.T) {
	svc, _ := newTestService()
	name := "Ada"
	_, err := svc.UpdateProfile(context.Background(), uuid.New(), ProfileUpdate{DisplayName: &name})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRoleOf(t *testing.T) {
	svc, _ := newTestService()
	u := &User{UID: uuid.New(), Email: "p@example.com", Role: RolePractitioner}
	svc.CreateProfile(context.Background(), u)

	role, err := svc.RoleOf(context.Background(), u.UID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != RolePractitioner {
		t.Errorf("expected practitioner, got %q", role)
	}
}

func TestRoleOf_UnknownUser(t *testing.T) {
	svc, _ := newTestService()
	role, err := svc.RoleOf(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != "" {
		t.Errorf("expected empty role for unknown uid, got %q", role)
	}
}

func TestRoleOf_LegacyRowBackfills(t *testing.T) {
	svc, repo := newTestService()
	// Seed directly so the row has no role, as pre-role-column data would.
	u := &User{UID: uuid.New(), Email: "old@example.com"}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("seed: %v", err)
	}

	role, err := svc.RoleOf(context.Background(), u.UID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != RoleClient {
		t.Errorf("expected client for legacy row, got %q", role)
	}
	got, _ := repo.GetByID(context.Background(), u.UID)
	if got.Role != RoleClient {
		t.Errorf("expected role to be backfilled, got %q", got.Role)
	}
}
