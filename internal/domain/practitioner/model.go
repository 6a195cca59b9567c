package practitioner

import (
	"time"

	"github.com/google/uuid"
)

// Sign-up defaults. Pricing is stored in minor units, so 10000 is $100.00.
const (
	DefaultPricingInitial  = 10000
	DefaultPricingFollowup = 8000
	DefaultCurrency        = "USD"
	DefaultSessionMinutes  = 60
)

// DaySchedule is one weekday's bookable window. Start and End are wall-clock
// times ("09:00") in the practitioner's availability timezone.
type DaySchedule struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Enabled bool   `json:"enabled"`
}

// WeeklyAvailability maps lowercase weekday names to their windows. It is
// stored as a single JSONB column.
type WeeklyAvailability map[string]DaySchedule

// DefaultAvailability returns Mon-Fri 09:00-17:00 with weekends disabled.
func DefaultAvailability() WeeklyAvailability {
	avail := WeeklyAvailability{}
	for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday"} {
		avail[day] = DaySchedule{Start: "09:00", End: "17:00", Enabled: true}
	}
	for _, day := range []string{"saturday", "sunday"} {
		avail[day] = DaySchedule{Start: "09:00", End: "17:00", Enabled: false}
	}
	return avail
}

// Practitioner maps to the practitioners table. The primary key is the same
// UID as the users row, so the profile pair shares one identity.
type Practitioner struct {
	UID                    uuid.UUID          `db:"uid" json:"uid"`
	Bio                    *string            `db:"bio" json:"bio,omitempty"`
	Specialties            []string           `db:"specialties" json:"specialties"`
	PricingInitial         int64              `db:"pricing_initial" json:"pricing_initial"`
	PricingFollowup        int64              `db:"pricing_followup" json:"pricing_followup"`
	PricingCurrency        string             `db:"pricing_currency" json:"pricing_currency"`
	AvailabilityTimezone   string             `db:"availability_timezone" json:"availability_timezone"`
	Availability           WeeklyAvailability `db:"availability" json:"availability"`
	SessionDurationMinutes int                `db:"session_duration_minutes" json:"session_duration_minutes"`
	Active                 *bool              `db:"active" json:"active,omitempty"`
	CreatedAt              time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time          `db:"updated_at" json:"updated_at"`
}

// NewDefault builds the practitioner document sign-up creates for a new
// practitioner account.
func NewDefault(uid uuid.UUID) *Practitioner {
	active := true
	return &Practitioner{
		UID:                    uid,
		Specialties:            []string{},
		PricingInitial:         DefaultPricingInitial,
		PricingFollowup:        DefaultPricingFollowup,
		PricingCurrency:        DefaultCurrency,
		AvailabilityTimezone:   "UTC",
		Availability:           DefaultAvailability(),
		SessionDurationMinutes: DefaultSessionMinutes,
		Active:                 &active,
	}
}

// ProfileUpdate is the set of fields a practitioner may change on their own
// document. Nil means "leave as is".
type ProfileUpdate struct {
	Bio                    *string             `json:"bio"`
	Specialties            *[]string           `json:"specialties"`
	PricingInitial         *int64              `json:"pricing_initial"`
	PricingFollowup        *int64              `json:"pricing_followup"`
	PricingCurrency        *string             `json:"pricing_currency"`
	AvailabilityTimezone   *string             `json:"availability_timezone"`
	Availability           *WeeklyAvailability `json:"availability"`
	SessionDurationMinutes *int                `json:"session_duration_minutes"`
	Active                 *bool               `json:"active"`
}
