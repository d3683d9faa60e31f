package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapError_PG_UniqueViolation(t *testing.T) {
	dialect := &PostgresDialect{}
	pgErr := &pgconn.PgError{
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint \"devices_name_key\"",
		ConstraintName: "devices_name_key",
		Detail:         "Key (name)=(r1) already exists.",
	}
	wrapped := fmt.Errorf("exec: %w", pgErr)

	mapped := MapError(dialect, wrapped)

	if !errors.Is(mapped, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got: %v", mapped)
	}

	// Original pgconn.PgError should still be extractable
	var extracted *pgconn.PgError
	if !errors.As(mapped, &extracted) {
		t.Fatal("expected pgconn.PgError to still be extractable via errors.As")
	}
	if extracted.ConstraintName != "devices_name_key" {
		t.Fatalf("expected constraint name 'devices_name_key', got: %s", extracted.ConstraintName)
	}
}

func TestMapError_PG_OtherError(t *testing.T) {
	dialect := &PostgresDialect{}
	err := fmt.Errorf("some other error")
	mapped := MapError(dialect, err)
	if mapped != err {
		t.Fatalf("expected same error back, got: %v", mapped)
	}
}

func TestMapError_PG_Nil(t *testing.T) {
	dialect := &PostgresDialect{}
	mapped := MapError(dialect, nil)
	if mapped != nil {
		t.Fatalf("expected nil, got: %v", mapped)
	}
}

func TestPostgres_Expressions(t *testing.T) {
	d := &PostgresDialect{}
	pb := d.NewParamBuilder()
	ph := pb.Add(EscapeLike("r1"))
	if got := d.ContainsExpr("t.name", ph); got != "t.name ILIKE $1 ESCAPE '!'" {
		t.Fatalf("unexpected contains expr: %s", got)
	}
	if got := d.RegexExpr("t.name", pb.Add("^r")); got != "t.name ~ $2" {
		t.Fatalf("unexpected regex expr: %s", got)
	}
	if got := d.InExpr("t.id", pb, []any{int64(1), int64(2)}); got != "t.id IN ($3, $4)" {
		t.Fatalf("unexpected in expr: %s", got)
	}
	if got := d.LimitOffset(pb, 10, 20); got != " LIMIT $5 OFFSET $6" {
		t.Fatalf("unexpected limit clause: %s", got)
	}
	if pb.Count() != 6 {
		t.Fatalf("expected 6 params, got %d", pb.Count())
	}
}
