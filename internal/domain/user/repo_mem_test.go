package user

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func seedUser(t *testing.T, repo Repository, role string) *User {
	t.Helper()
	u := &User{
		UID:   uuid.New(),
		Email: "someone@example.com",
		Role:  role,
	}
	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestRepoCreate(t *testing.T) {
	repo := NewInMemoryRepo()
	u := seedUser(t, repo, RoleClient)

	if u.CreatedAt.IsZero() || u.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be stamped on create")
	}
	got, err := repo.GetByID(context.Background(), u.UID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Email != "someone@example.com" {
		t.Errorf("unexpected stored user: %+v", got)
	}
}

func TestRepoCreate_ExistingKeyDoesNotMutate(t *testing.T) {
	repo := NewInMemoryRepo()
	u := seedUser(t, repo, RoleClient)

	dup := &User{UID: u.UID, Email: "intruder@example.com", Role: RolePractitioner}
	if err := repo.Create(context.Background(), dup); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, _ := repo.GetByID(context.Background(), u.UID)
	if got.Email != "someone@example.com" || got.Role != RoleClient {
		t.Errorf("existing row mutated by failed create: %+v", got)
	}
}

func TestRepoGetByID_AbsentIsNotAnError(t *testing.T) {
	repo := NewInMemoryRepo()
	got, err := repo.GetByID(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for absent row, got %+v", got)
	}
}

func TestRepoUpdate(t *testing.T) {
	repo := NewInMemoryRepo()
	u := seedUser(t, repo, RoleClient)
	created := u.UpdatedAt

	name := "Ada"
	u.DisplayName = &name
	if err := repo.Update(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.UpdatedAt.Before(created) {
		t.Error("expected updated_at to move forward")
	}

	got, _ := repo.GetByID(context.Background(), u.UID)
	if got.DisplayName == nil || *got.DisplayName != "Ada" {
		t.Errorf("update not persisted: %+v", got)
	}
}

func TestRepoUpdate_NeverTouchesRole(t *testing.T) {
	repo := NewInMemoryRepo()
	u := seedUser(t, repo, RoleClient)

	u.Role = RolePractitioner
	if err := repo.Update(context.Background(), u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := repo.GetByID(context.Background(), u.UID)
	if got.Role != RoleClient {
		t.Errorf("update changed role to %q", got.Role)
	}
}

func TestRepoUpdate_Missing(t *testing.T) {
	repo := NewInMemoryRepo()
	err := repo.Update(context.Background(), &User{UID: uuid.New(), Email: "x@example.com"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRepoSetRole(t *testing.T) {
	repo := NewInMemoryRepo()
	u := seedUser(t, repo, "")

	if err := repo.SetRole(context.Background(), u.UID, RolePractitioner); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := repo.GetByID(context.Background(), u.UID)
	if got.Role != RolePractitioner {
		t.Errorf("expected practitioner, got %q", got.Role)
	}
}

func TestRepoSetRole_Missing(t *testing.T) {
	repo := NewInMemoryRepo()
	err := repo.SetRole(context.Background(), uuid.New(), RoleClient)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRepoGetByID_CopyOnReturn(t *testing.T) {
	repo := NewInMemoryRepo()
	u := seedUser(t, repo, RoleClient)

	first, _ := repo.GetByID(context.Background(), u.UID)
	first.Email = "tampered@example.com"
	bio := "tampered"
	first.Bio = &bio

	second, _ := repo.GetByID(context.Background(), u.UID)
	if second.Email != "someone@example.com" || second.Bio != nil {
		t.Errorf("stored row aliased by returned copy: %+v", second)
	}
}
