package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

// DBConnKey carries a transaction-scoped connection through a context.
// Repositories prefer it over the shared pool when present.
const DBConnKey contextKey = "db_conn"

// Queryable is the subset of pgx operations repositories need, satisfied by
// *pgxpool.Pool, *pgxpool.Conn, and pgx.Tx alike.
type Queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// ConnFromContext retrieves the transaction-scoped connection from context,
// or nil when the caller is not inside WithTx.
func ConnFromContext(ctx context.Context) Queryable {
	q, _ := ctx.Value(DBConnKey).(Queryable)
	return q
}

// WithTx runs fn inside a transaction. The transaction is carried in fn's
// context so that repository calls within fn share it. Rollback on error,
// commit otherwise.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, DBConnKey, Queryable(tx))); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
