package store

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"

	"nms-backend/internal/config"
)

func TestMapError_MySQL_DuplicateEntry(t *testing.T) {
	dialect := &MySQLDialect{}
	myErr := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'r1' for key 'devices.name'"}

	mapped := MapError(dialect, fmt.Errorf("exec: %w", myErr))
	if !errors.Is(mapped, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got: %v", mapped)
	}

	other := &mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}
	if errors.Is(MapError(dialect, other), ErrUniqueViolation) {
		t.Fatal("1146 is not a uniqueness violation")
	}
}

func TestMySQL_Placeholders(t *testing.T) {
	d := &MySQLDialect{}
	pb := d.NewParamBuilder()
	expr := d.InExpr("t.id", pb, []any{1, 2, 3})
	if expr != "t.id IN (?, ?, ?)" {
		t.Fatalf("unexpected in expr: %s", expr)
	}
	if pb.Count() != 3 {
		t.Fatalf("expected 3 params, got %d", pb.Count())
	}
	if got := d.TextExpr("t.port"); got != "CAST(t.port AS CHAR)" {
		t.Fatalf("unexpected text expr: %s", got)
	}
}

func TestMySQL_DSN(t *testing.T) {
	dsn := mysqlDSN(config.DatabaseConfig{User: "nms", Password: "pw", Host: "db", Port: 3306, Name: "inventory"})
	if !strings.HasPrefix(dsn, "nms:pw@tcp(db:3306)/inventory") {
		t.Fatalf("unexpected dsn %q", dsn)
	}
}

func TestEscapeLike(t *testing.T) {
	cases := map[string]string{
		"r1":   "%r1%",
		"50%":  "%50!%%",
		"a_b":  "%a!_b%",
		"wow!": "%wow!!%",
	}
	for in, want := range cases {
		if got := EscapeLike(in); got != want {
			t.Fatalf("EscapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}
