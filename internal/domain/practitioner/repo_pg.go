package practitioner

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/holisticconnect/holisticconnect/internal/platform/db"
	"github.com/holisticconnect/holisticconnect/pkg/pagination"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the PostgreSQL-backed practitioners repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

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

const practitionerCols = `uid, bio, specialties, pricing_initial, pricing_followup,
	pricing_currency, availability_timezone, availability, session_duration_minutes,
	active, created_at, updated_at`

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	err := row.Scan(&p.UID, &p.Bio, &p.Specialties, &p.PricingInitial, &p.PricingFollowup,
		&p.PricingCurrency, &p.AvailabilityTimezone, &p.Availability, &p.SessionDurationMinutes,
		&p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Practitioner) error {
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO practitioners (uid, bio, specialties, pricing_initial, pricing_followup,
			pricing_currency, availability_timezone, availability, session_duration_minutes, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		p.UID, p.Bio, p.Specialties, p.PricingInitial, p.PricingFollowup,
		p.PricingCurrency, p.AvailabilityTimezone, p.Availability, p.SessionDurationMinutes, p.Active)

	err := row.Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create practitioner: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, uid uuid.UUID) (*Practitioner, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+practitionerCols+` FROM practitioners WHERE uid = $1`, uid)

	p, err := scanPractitioner(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get practitioner: %w", err)
	}
	return p, nil
}

func (r *repoPG) Update(ctx context.Context, p *Practitioner) error {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE practitioners
		SET bio = $2, specialties = $3, pricing_initial = $4, pricing_followup = $5,
			pricing_currency = $6, availability_timezone = $7, availability = $8,
			session_duration_minutes = $9, active = $10, updated_at = NOW()
		WHERE uid = $1
		RETURNING updated_at`,
		p.UID, p.Bio, p.Specialties, p.PricingInitial, p.PricingFollowup,
		p.PricingCurrency, p.AvailabilityTimezone, p.Availability,
		p.SessionDurationMinutes, p.Active)

	err := row.Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update practitioner: %w", err)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, q Query) ([]*Practitioner, pagination.Cursor, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + practitionerCols + ` FROM practitioners WHERE 1=1`
	var args []interface{}
	idx := 1

	if q.Active != nil {
		query += fmt.Sprintf(` AND active = $%d`, idx)
		args = append(args, *q.Active)
		idx++
	}
	if !q.After.IsZero() {
		query += fmt.Sprintf(` AND (created_at, uid) < ($%d, $%d)`, idx, idx+1)
		args = append(args, q.After.Key, q.After.ID)
		idx += 2
	}

	// One extra row decides whether a next page exists.
	query += fmt.Sprintf(` ORDER BY created_at DESC, uid DESC LIMIT $%d`, idx)
	args = append(args, limit+1)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, pagination.Cursor{}, fmt.Errorf("list practitioners: %w", err)
	}
	defer rows.Close()

	var items []*Practitioner
	for rows.Next() {
		p, err := scanPractitioner(rows)
		if err != nil {
			return nil, pagination.Cursor{}, fmt.Errorf("list practitioners: %w", err)
		}
		items = append(items, p)
	}
	if rows.Err() != nil {
		return nil, pagination.Cursor{}, fmt.Errorf("list practitioners: %w", rows.Err())
	}

	var next pagination.Cursor
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		next = pagination.Cursor{Key: last.CreatedAt, ID: last.UID}
	}
	return items, next, nil
}
