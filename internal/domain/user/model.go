package user

import (
	"time"

	"github.com/google/uuid"
)

// Roles a profile can carry. Role is set once at sign-up; regular profile
// updates never touch it.
const (
	RoleClient       = "client"
	RolePractitioner = "practitioner"
)

var validRoles = map[string]bool{
	RoleClient: true, RolePractitioner: true,
}

// ValidRole reports whether role is a known profile role.
func ValidRole(role string) bool { return validRoles[role] }

// User maps to the users table. The primary key is the auth UID, so profile
// and credential are always 1-1.
type User struct {
	UID           uuid.UUID `db:"uid" json:"uid"`
	Email         string    `db:"email" json:"email"`
	Role          string    `db:"role" json:"role"`
	DisplayName   *string   `db:"display_name" json:"display_name,omitempty"`
	PhotoURL      *string   `db:"photo_url" json:"photo_url,omitempty"`
	EmailVerified bool      `db:"email_verified" json:"email_verified"`
	Phone         *string   `db:"phone" json:"phone,omitempty"`
	Bio           *string   `db:"bio" json:"bio,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ProfileUpdate is the set of fields a user may change on their own profile.
// Nil means "leave as is". Email, role and verification state are managed by
// the auth flows, not by profile edits.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name"`
	PhotoURL    *string `json:"photo_url"`
	Phone       *string `json:"phone"`
	Bio         *string `json:"bio"`
}
