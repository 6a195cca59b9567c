package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/holisticconnect/holisticconnect/internal/domain/appointment"
	"github.com/holisticconnect/holisticconnect/internal/domain/practitioner"
	"github.com/holisticconnect/holisticconnect/internal/domain/user"
	"github.com/holisticconnect/holisticconnect/pkg/pagination"
)

func TestAppointmentLifecycle(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	repo := newAppointmentRepo()

	client := createTestUser(t, ctx, "cleo@example.com", user.RoleClient, "Cleo Waters")
	pract := createTestUser(t, ctx, "petra@example.com", user.RolePractitioner, "Petra Stone")

	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	appt := createTestAppointment(t, ctx, repo, client.UID, pract.UID, start, appointment.StatusPending)

	got, err := repo.GetByID(ctx, appt.ID)
	if err != nil {
		t.Fatalf("get appointment: %v", err)
	}
	if got == nil {
		t.Fatal("expected appointment, got nil")
	}
	if !got.StartTime.Equal(appt.StartTime) {
		t.Errorf("start time: expected %v, got %v", appt.StartTime, got.StartTime)
	}
	if got.Status != appointment.StatusPending {
		t.Errorf("status: expected pending, got %s", got.Status)
	}

	// Re-creating the same id must fail without touching the stored row.
	dup := *appt
	dup.Status = appointment.StatusConfirmed
	if err := repo.Create(ctx, &dup); !errors.Is(err, appointment.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	got, err = repo.GetByID(ctx, appt.ID)
	if err != nil || got == nil {
		t.Fatalf("get after duplicate create: %v", err)
	}
	if got.Status != appointment.StatusPending {
		t.Errorf("duplicate create mutated stored row: status %s", got.Status)
	}

	got.Status = appointment.StatusConfirmed
	got.Notes = ptrStr("bring previous records")
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("update appointment: %v", err)
	}

	if err := repo.Cancel(ctx, appt.ID, appointment.ActorClient); err != nil {
		t.Fatalf("cancel appointment: %v", err)
	}
	got, err = repo.GetByID(ctx, appt.ID)
	if err != nil || got == nil {
		t.Fatalf("get after cancel: %v", err)
	}
	if got.Status != appointment.StatusCancelled {
		t.Errorf("status after cancel: expected cancelled, got %s", got.Status)
	}
	if got.CancelledBy == nil || *got.CancelledBy != appointment.ActorClient {
		t.Errorf("cancelled_by: expected %q, got %v", appointment.ActorClient, got.CancelledBy)
	}
	if got.CancelledAt == nil {
		t.Error("cancelled_at not set")
	}
}

func TestAppointmentMissingRows(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	repo := newAppointmentRepo()

	got, err := repo.GetByID(ctx, uuid.New())
	if err != nil {
		t.Fatalf("get missing appointment: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing appointment, got %+v", got)
	}

	now := time.Now().UTC()
	phantom := &appointment.Appointment{
		ID:             uuid.New(),
		ClientID:       uuid.New(),
		PractitionerID: uuid.New(),
		StartTime:      now,
		EndTime:        now.Add(time.Hour),
		Status:         appointment.StatusPending,
	}
	if err := repo.Update(ctx, phantom); !errors.Is(err, appointment.ErrNotFound) {
		t.Errorf("expected ErrNotFound on update, got %v", err)
	}
	if err := repo.Cancel(ctx, uuid.New(), appointment.ActorClient); !errors.Is(err, appointment.ErrNotFound) {
		t.Errorf("expected ErrNotFound on cancel, got %v", err)
	}
}

func TestAppointmentListFiltersAndPaging(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	repo := newAppointmentRepo()

	clientA := uuid.New()
	clientB := uuid.New()
	pract := uuid.New()

	// Five bookings an hour apart; odd slots belong to clientB and stay pending.
	base := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	var all []*appointment.Appointment
	for i := 0; i < 5; i++ {
		a := &appointment.Appointment{
			ClientID:       clientA,
			PractitionerID: pract,
			StartTime:      base.Add(time.Duration(i) * time.Hour),
			EndTime:        base.Add(time.Duration(i+1) * time.Hour),
			Status:         appointment.StatusConfirmed,
		}
		if i%2 == 1 {
			a.ClientID = clientB
			a.Status = appointment.StatusPending
		}
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("seed appointment %d: %v", i, err)
		}
		all = append(all, a)
	}

	items, _, err := repo.List(ctx, appointment.Query{ClientID: &clientA})
	if err != nil {
		t.Fatalf("list by client: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("list by client: expected 3, got %d", len(items))
	}

	status := appointment.StatusPending
	items, _, err = repo.List(ctx, appointment.Query{Status: &status})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("list by status: expected 2, got %d", len(items))
	}

	// Window bounds are inclusive on both ends.
	from := base.Add(time.Hour)
	to := base.Add(3 * time.Hour)
	items, _, err = repo.List(ctx, appointment.Query{From: &from, To: &to})
	if err != nil {
		t.Fatalf("list by window: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("list by window: expected 3, got %d", len(items))
	}

	// Keyset paging walks all five in start-time order without repeats.
	var walked []uuid.UUID
	var cursor pagination.Cursor
	for {
		page, next, err := repo.List(ctx, appointment.Query{Limit: 2, After: cursor})
		if err != nil {
			t.Fatalf("page after %v: %v", cursor, err)
		}
		for _, a := range page {
			walked = append(walked, a.ID)
		}
		if next.IsZero() {
			break
		}
		if len(page) != 2 {
			t.Fatalf("non-final page has %d rows, expected 2", len(page))
		}
		cursor = next
	}
	if len(walked) != 5 {
		t.Fatalf("paging walked %d rows, expected 5", len(walked))
	}
	for i, id := range walked {
		if id != all[i].ID {
			t.Errorf("page order at %d: expected %s, got %s", i, all[i].ID, id)
		}
	}
}

func TestAppointmentWatchDeliversRecomputes(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	repo := newAppointmentRepo()

	client := uuid.New()
	pract := uuid.New()

	var mu sync.Mutex
	var deliveries [][]*appointment.Appointment
	stop, err := repo.Watch(ctx, appointment.Query{ClientID: &client}, func(items []*appointment.Appointment) {
		mu.Lock()
		deliveries = append(deliveries, items)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer stop()

	last := func() []*appointment.Appointment {
		mu.Lock()
		defer mu.Unlock()
		if len(deliveries) == 0 {
			return nil
		}
		return deliveries[len(deliveries)-1]
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(deliveries)
	}

	// Subscribing delivers the current set before any mutation.
	if count() != 1 || len(last()) != 0 {
		t.Fatalf("initial delivery: expected one empty set, got %d deliveries with %d items", count(), len(last()))
	}

	start := time.Now().UTC().Add(24 * time.Hour)
	mine := createTestAppointment(t, ctx, repo, client, pract, start, appointment.StatusPending)
	if items := last(); len(items) != 1 || items[0].ID != mine.ID {
		t.Fatalf("after create: expected my appointment in the set, got %d items", len(items))
	}

	// A mutation outside the query still recomputes, and the set is unchanged.
	createTestAppointment(t, ctx, repo, uuid.New(), pract, start.Add(time.Hour), appointment.StatusPending)
	if items := last(); len(items) != 1 {
		t.Fatalf("after unrelated create: expected 1 item, got %d", len(items))
	}

	mine.Status = appointment.StatusConfirmed
	if err := repo.Update(ctx, mine); err != nil {
		t.Fatalf("update: %v", err)
	}
	if items := last(); len(items) != 1 || items[0].Status != appointment.StatusConfirmed {
		t.Fatal("after update: expected the confirmed appointment in the set")
	}

	// After unsubscribing, mutations stop arriving.
	stop()
	before := count()
	createTestAppointment(t, ctx, repo, client, pract, start.Add(2*time.Hour), appointment.StatusPending)
	if count() != before {
		t.Error("received delivery after unsubscribe")
	}
}

func TestPractitionerDirectoryOrderingAndPaging(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	repo := practitioner.NewRepoPG(globalDB.Pool)

	var uids []uuid.UUID
	for i := 0; i < 3; i++ {
		u := createTestUser(t, ctx, fmt.Sprintf("pract%d@example.com", i), user.RolePractitioner, "P")
		createTestPractitionerProfile(t, ctx, u.UID)
		uids = append(uids, u.UID)
		// Distinct created_at stamps keep the expected order unambiguous.
		time.Sleep(5 * time.Millisecond)
	}

	items, next, err := repo.List(ctx, practitioner.Query{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 practitioners, got %d", len(items))
	}
	if !next.IsZero() {
		t.Error("expected no next cursor on a single page")
	}
	// Newest first.
	for i, p := range items {
		if p.UID != uids[2-i] {
			t.Errorf("order at %d: expected %s, got %s", i, uids[2-i], p.UID)
		}
	}

	page1, cur, err := repo.List(ctx, practitioner.Query{Limit: 2})
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1) != 2 || cur.IsZero() {
		t.Fatalf("page 1: expected 2 rows and a cursor, got %d rows", len(page1))
	}
	page2, cur2, err := repo.List(ctx, practitioner.Query{Limit: 2, After: cur})
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2) != 1 || !cur2.IsZero() {
		t.Fatalf("page 2: expected 1 final row, got %d", len(page2))
	}
	if page2[0].UID != uids[0] {
		t.Errorf("page 2: expected oldest profile %s, got %s", uids[0], page2[0].UID)
	}

	// The active filter hides deactivated profiles.
	hidden, err := repo.GetByID(ctx, uids[1])
	if err != nil || hidden == nil {
		t.Fatalf("get profile: %v", err)
	}
	hidden.Active = ptrBool(false)
	if err := repo.Update(ctx, hidden); err != nil {
		t.Fatalf("deactivate profile: %v", err)
	}
	active, _, err := repo.List(ctx, practitioner.Query{Active: ptrBool(true)})
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("expected 2 active practitioners, got %d", len(active))
	}
}

func TestPractitionerProfileRoundtrip(t *testing.T) {
	ctx := context.Background()
	truncateAll(t, ctx)
	repo := practitioner.NewRepoPG(globalDB.Pool)

	u := createTestUser(t, ctx, "soma@example.com", user.RolePractitioner, "Soma Reyes")
	p := createTestPractitionerProfile(t, ctx, u.UID)

	p.Bio = ptrStr("Somatic therapist focused on nervous system regulation")
	p.Specialties = []string{"somatic", "mindfulness"}
	p.Availability["saturday"] = practitioner.DaySchedule{Start: "10:00", End: "14:00", Enabled: true}
	p.SessionDurationMinutes = 45
	if err := repo.Update(ctx, p); err != nil {
		t.Fatalf("update profile: %v", err)
	}

	got, err := repo.GetByID(ctx, u.UID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got == nil {
		t.Fatal("expected profile, got nil")
	}
	if got.Bio == nil || *got.Bio != *p.Bio {
		t.Errorf("bio did not survive the roundtrip: %v", got.Bio)
	}
	if len(got.Specialties) != 2 || got.Specialties[0] != "somatic" {
		t.Errorf("specialties did not survive the roundtrip: %v", got.Specialties)
	}
	sat := got.Availability["saturday"]
	if !sat.Enabled || sat.Start != "10:00" || sat.End != "14:00" {
		t.Errorf("availability did not survive the roundtrip: %+v", sat)
	}
	if got.SessionDurationMinutes != 45 {
		t.Errorf("session duration: expected 45, got %d", got.SessionDurationMinutes)
	}

	missing, err := repo.GetByID(ctx, uuid.New())
	if err != nil {
		t.Fatalf("get missing profile: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing profile, got %+v", missing)
	}
}
