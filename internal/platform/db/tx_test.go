package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeQueryable struct{}

func (fakeQueryable) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, nil
}

func (fakeQueryable) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

func (fakeQueryable) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func TestConnFromContext_Empty(t *testing.T) {
	ctx := context.Background()
	if conn := ConnFromContext(ctx); conn != nil {
		t.Errorf("expected nil queryable from bare context, got %T", conn)
	}
}

func TestConnFromContext_Present(t *testing.T) {
	q := fakeQueryable{}
	ctx := context.WithValue(context.Background(), DBConnKey, Queryable(q))

	conn := ConnFromContext(ctx)
	if conn == nil {
		t.Fatal("expected queryable from context, got nil")
	}
	if _, ok := conn.(fakeQueryable); !ok {
		t.Errorf("expected fakeQueryable, got %T", conn)
	}
}

func TestConnFromContext_WrongType(t *testing.T) {
	// A value stored under a different key type must not be picked up.
	ctx := context.WithValue(context.Background(), "db_conn", fakeQueryable{}) //nolint:staticcheck

	if conn := ConnFromContext(ctx); conn != nil {
		t.Errorf("expected nil for string-keyed value, got %T", conn)
	}
}
