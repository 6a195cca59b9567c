// Package reminder runs the scheduled sweep that emails clients about
// upcoming appointments. Sending is best effort: a failed email is logged
// and retried on the next sweep, and only a delivered reminder is marked on
// the appointment.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/holisticconnect/holisticconnect/internal/domain/appointment"
	"github.com/holisticconnect/holisticconnect/internal/domain/user"
)

const (
	defaultSpec = "* * * * *"
	defaultLead = 24 * time.Hour

	// A sweep pages the repository and talks to the mail relay, so it gets
	// its own deadline instead of running unbounded.
	sweepTimeout = 5 * time.Minute
)

// Mailer delivers a single reminder email. *mail.Mailer satisfies it.
type Mailer interface {
	SendAppointmentReminder(ctx context.Context, email, displayName, practitionerName string, startTime time.Time) error
}

// Config controls when the sweep runs and how far ahead it looks.
type Config struct {
	Spec string        // five-field cron expression
	Lead time.Duration // window ahead of now to remind for
}

// Worker owns the cron schedule and the sweep itself.
type Worker struct {
	cron   *cron.Cron
	appts  appointment.Repository
	users  user.Repository
	mailer Mailer
	spec   string
	lead   time.Duration
	log    zerolog.Logger
}

// NewWorker creates a reminder worker. Zero config fields fall back to a
// per-minute sweep with a 24 hour lead window.
func NewWorker(appts appointment.Repository, users user.Repository, mailer Mailer, cfg Config, log zerolog.Logger) *Worker {
	if cfg.Spec == "" {
		cfg.Spec = defaultSpec
	}
	if cfg.Lead <= 0 {
		cfg.Lead = defaultLead
	}
	return &Worker{
		// A sweep that outlives its interval must not overlap the next one.
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		appts:  appts,
		users:  users,
		mailer: mailer,
		spec:   cfg.Spec,
		lead:   cfg.Lead,
		log:    log,
	}
}

// Start schedules the sweep and starts the cron loop. It does not block.
func (w *Worker) Start() error {
	if _, err := w.cron.AddFunc(w.spec, w.tick); err != nil {
		return fmt.Errorf("schedule reminder sweep: %w", err)
	}
	w.cron.Start()
	w.log.Info().Str("spec", w.spec).Dur("lead", w.lead).Msg("reminder worker started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
	w.log.Info().Msg("reminder worker stopped")
}

func (w *Worker) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	sent, err := w.RunOnce(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("reminder sweep failed")
		return
	}
	if sent > 0 {
		w.log.Info().Int("sent", sent).Msg("reminder sweep complete")
	}
}

// RunOnce performs a single sweep over every confirmed appointment starting
// inside the lead window and returns how many reminders went out. Rows
// already flagged reminder_sent are passed over.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	horizon := now.Add(w.lead)
	status := appointment.StatusConfirmed

	sent := 0
	q := appointment.Query{Status: &status, From: &now, To: &horizon}
	for {
		page, next, err := w.appts.List(ctx, q)
		if err != nil {
			return sent, fmt.Errorf("list upcoming appointments: %w", err)
		}
		for _, a := range page {
			if a.ReminderSent {
				continue
			}
			if w.remind(ctx, a) {
				sent++
			}
		}
		// Marking rows does not move them under the cursor: the sort key is
		// (start_time, id) and the sweep never touches either.
		if next.IsZero() {
			return sent, nil
		}
		q.After = next
	}
}

// remind emails one appointment's client and flags the row on success.
func (w *Worker) remind(ctx context.Context, a *appointment.Appointment) bool {
	client, err := w.users.GetByID(ctx, a.ClientID)
	if err != nil || client == nil {
		w.log.Warn().Err(err).
			Str("appointment_id", a.ID.String()).
			Str("client_id", a.ClientID.String()).
			Msg("reminder skipped, client profile unavailable")
		return false
	}

	name := ""
	if client.DisplayName != nil {
		name = *client.DisplayName
	}
	if err := w.mailer.SendAppointmentReminder(ctx, client.Email, name, w.practitionerName(ctx, a.PractitionerID), a.StartTime); err != nil {
		w.log.Error().Err(err).
			Str("appointment_id", a.ID.String()).
			Msg("reminder send failed")
		return false
	}

	a.ReminderSent = true
	if err := w.appts.Update(ctx, a); err != nil {
		// The email went out but the flag did not stick. The next sweep
		// sends a duplicate rather than silently losing reminders.
		w.log.Error().Err(err).
			Str("appointment_id", a.ID.String()).
			Msg("failed to mark reminder as sent")
		return false
	}

	w.log.Info().
		Str("appointment_id", a.ID.String()).
		Str("to", client.Email).
		Time("start_time", a.StartTime).
		Msg("appointment reminder sent")
	return true
}

func (w *Worker) practitionerName(ctx context.Context, uid uuid.UUID) string {
	u, err := w.users.GetByID(ctx, uid)
	if err != nil || u == nil {
		return "your practitioner"
	}
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return u.Email
}
