package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/holisticconnect/holisticconnect/internal/platform/db"
	"github.com/holisticconnect/holisticconnect/pkg/pagination"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct {
	pool     *pgxpool.Pool
	watchers *watchRegistry
}

// NewRepoPG creates the PostgreSQL-backed appointments repository. Watch
// subscribers are notified of mutations made through this repository.
func NewRepoPG(pool *pgxpool.Pool, log zerolog.Logger) Repository {
	return &repoPG{pool: pool, watchers: newWatchRegistry(log)}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const appointmentCols = `id, client_id, practitioner_id, start_time, end_time, status,
	notes, practitioner_notes, cancelled_by, cancelled_at, reminder_sent,
	intake_form_id, intake_form_completed, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.ClientID, &a.PractitionerID, &a.StartTime, &a.EndTime, &a.Status,
		&a.Notes, &a.PractitionerNotes, &a.CancelledBy, &a.CancelledAt, &a.ReminderSent,
		&a.IntakeFormID, &a.IntakeFormCompleted, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, client_id, practitioner_id, start_time, end_time, status,
			notes, practitioner_notes, reminder_sent, intake_form_id, intake_form_completed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		a.ID, a.ClientID, a.PractitionerID, a.StartTime, a.EndTime, a.Status,
		a.Notes, a.PractitionerNotes, a.ReminderSent, a.IntakeFormID, a.IntakeFormCompleted)

	err := row.Scan(&a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	r.watchers.notify(r.List)
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id)

	a, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// Update replaces every mutable column. The parties and created_at are fixed
// at booking time.
func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $2, end_time = $3, status = $4, notes = $5,
			practitioner_notes = $6, cancelled_by = $7, cancelled_at = $8,
			reminder_sent = $9, intake_form_id = $10, intake_form_completed = $11,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.StartTime, a.EndTime, a.Status, a.Notes,
		a.PractitionerNotes, a.CancelledBy, a.CancelledAt,
		a.ReminderSent, a.IntakeFormID, a.IntakeFormCompleted)

	err := row.Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	r.watchers.notify(r.List)
	return nil
}

func (r *repoPG) Cancel(ctx context.Context, id uuid.UUID, actor string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments
		SET status = $3, cancelled_by = $2, cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		id, actor, StatusCancelled)
	if err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	r.watchers.notify(r.List)
	return nil
}

func (r *repoPG) List(ctx context.Context, q Query) ([]*Appointment, pagination.Cursor, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + appointmentCols + ` FROM appointments WHERE 1=1`
	var args []interface{}
	idx := 1

	if q.ClientID != nil {
		query += fmt.Sprintf(` AND client_id = $%d`, idx)
		args = append(args, *q.ClientID)
		idx++
	}
	if q.PractitionerID != nil {
		query += fmt.Sprintf(` AND practitioner_id = $%d`, idx)
		args = append(args, *q.PractitionerID)
		idx++
	}
	if q.Status != nil {
		query += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, *q.Status)
		idx++
	}
	if q.From != nil {
		query += fmt.Sprintf(` AND start_time >= $%d`, idx)
		args = append(args, *q.From)
		idx++
	}
	if q.To != nil {
		query += fmt.Sprintf(` AND start_time <= $%d`, idx)
		args = append(args, *q.To)
		idx++
	}
	if !q.After.IsZero() {
		query += fmt.Sprintf(` AND (start_time, id) > ($%d, $%d)`, idx, idx+1)
		args = append(args, q.After.Key, q.After.ID)
		idx += 2
	}

	// One extra row decides whether a next page exists.
	query += fmt.Sprintf(` ORDER BY start_time ASC, id ASC LIMIT $%d`, idx)
	args = append(args, limit+1)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, pagination.Cursor{}, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, pagination.Cursor{}, fmt.Errorf("list appointments: %w", err)
		}
		items = append(items, a)
	}
	if rows.Err() != nil {
		return nil, pagination.Cursor{}, fmt.Errorf("list appointments: %w", rows.Err())
	}

	var next pagination.Cursor
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		next = pagination.Cursor{Key: last.StartTime, ID: last.ID}
	}
	return items, next, nil
}

func (r *repoPG) Watch(ctx context.Context, q Query, fn WatchFunc) (func(), error) {
	return r.watchers.add(ctx, q, fn, r.List), nil
}
