package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses. Cancelled rows keep their history; nothing is ever
// physically deleted.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
)

var validStatuses = map[string]bool{
	StatusPending: true, StatusConfirmed: true, StatusCancelled: true,
	StatusCompleted: true, StatusNoShow: true,
}

// ValidStatus reports whether s is a known appointment status.
func ValidStatus(s string) bool {
	return validStatuses[s]
}

// Cancellation actors.
const (
	ActorClient       = "client"
	ActorPractitioner = "practitioner"
)

var validActors = map[string]bool{
	ActorClient: true, ActorPractitioner: true,
}

// Appointment maps to the appointments table. client_id and practitioner_id
// reference users by convention only; the schema carries no FK constraints.
type Appointment struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	ClientID            uuid.UUID  `db:"client_id" json:"client_id"`
	PractitionerID      uuid.UUID  `db:"practitioner_id" json:"practitioner_id"`
	StartTime           time.Time  `db:"start_time" json:"start_time"`
	EndTime             time.Time  `db:"end_time" json:"end_time"`
	Status              string     `db:"status" json:"status"`
	Notes               *string    `db:"notes" json:"notes,omitempty"`
	PractitionerNotes   *string    `db:"practitioner_notes" json:"practitioner_notes,omitempty"`
	CancelledBy         *string    `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancelledAt         *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	ReminderSent        bool       `db:"reminder_sent" json:"reminder_sent"`
	IntakeFormID        *string    `db:"intake_form_id" json:"intake_form_id,omitempty"`
	IntakeFormCompleted bool       `db:"intake_form_completed" json:"intake_form_completed"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// ViewFor returns the appointment as the given viewer may see it.
// Practitioner notes are private to the practitioner side.
func (a *Appointment) ViewFor(viewer uuid.UUID) *Appointment {
	if viewer == a.PractitionerID {
		return a
	}
	cp := *a
	cp.PractitionerNotes = nil
	return &cp
}

// UpdateRequest is the set of fields a party may change on an appointment.
// Nil means "leave as is".
type UpdateRequest struct {
	StartTime           *time.Time `json:"start_time"`
	EndTime             *time.Time `json:"end_time"`
	Status              *string    `json:"status"`
	Notes               *string    `json:"notes"`
	PractitionerNotes   *string    `json:"practitioner_notes"`
	IntakeFormID        *string    `json:"intake_form_id"`
	IntakeFormCompleted *bool      `json:"intake_form_completed"`
}
