package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"nms-backend/internal/config"
	"nms-backend/internal/metadata"
)

func testSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "test"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func testRegistry(t *testing.T) *metadata.Registry {
	t.Helper()
	reg := metadata.NewRegistry()
	if err := metadata.LoadFile("../../schema.yaml", reg); err != nil {
		t.Fatalf("load schema: %v", err)
	}
	return reg
}

func TestMigrateAll_CreatesTables(t *testing.T) {
	ctx := context.Background()
	s := testSQLite(t)
	reg := testRegistry(t)

	if err := NewMigrator(s).MigrateAll(ctx, reg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Second run only alters, and finds nothing missing.
	if err := NewMigrator(s).MigrateAll(ctx, reg); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}

	for _, table := range []string{"devices", "links", "pools", "pool_devices", "service_workflows", "user_roles"} {
		ok, err := s.Dialect.TableExists(ctx, s.DB, table)
		if err != nil || !ok {
			t.Fatalf("expected table %s to exist (err=%v)", table, err)
		}
	}

	cols, err := s.Dialect.GetColumns(ctx, s.DB, "links")
	if err != nil {
		t.Fatalf("columns: %v", err)
	}
	for _, c := range []string{"id", "name", "last_modified", "source_id", "destination_id"} {
		if _, ok := cols[c]; !ok {
			t.Fatalf("expected column links.%s, got %v", c, cols)
		}
	}
}

func TestMigrate_AddsMissingColumns(t *testing.T) {
	ctx := context.Background()
	s := testSQLite(t)
	if _, err := s.DB.ExecContext(ctx, "CREATE TABLE roles (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE)"); err != nil {
		t.Fatalf("seed table: %v", err)
	}
	reg := testRegistry(t)
	if err := NewMigrator(s).Migrate(ctx, reg.GetEntity("role")); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cols, _ := s.Dialect.GetColumns(ctx, s.DB, "roles")
	if _, ok := cols["permissions"]; !ok {
		t.Fatalf("expected permissions column to be added, got %v", cols)
	}
}

func TestSQLite_RegexpFunction(t *testing.T) {
	ctx := context.Background()
	s := testSQLite(t)
	if _, err := s.DB.ExecContext(ctx, "CREATE TABLE t (name TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, n := range []string{"r1", "r2", "switch1"} {
		if _, err := s.DB.ExecContext(ctx, "INSERT INTO t (name) VALUES (?1)", n); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	pb := s.Dialect.NewParamBuilder()
	where := s.Dialect.RegexExpr("name", pb.Add("^r[0-9]$"))
	n, err := Count(ctx, s.DB, "SELECT COUNT(*) FROM t WHERE "+where, pb.Params()...)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 regex matches, got %d", n)
	}
}

func TestSQLite_UniqueViolationAndInsertID(t *testing.T) {
	ctx := context.Background()
	s := testSQLite(t)
	if _, err := s.DB.ExecContext(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	id, err := s.Dialect.InsertReturningID(ctx, s.DB, "INSERT INTO t (name) VALUES (?1)", "r1")
	if err != nil || id != 1 {
		t.Fatalf("expected id 1, got %d (err=%v)", id, err)
	}
	_, err = s.Dialect.InsertReturningID(ctx, s.DB, "INSERT INTO t (name) VALUES (?1)", "r1")
	if !errors.Is(MapError(s.Dialect, err), ErrUniqueViolation) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestSavepoint_RollsBackOnlyFailedWork(t *testing.T) {
	ctx := context.Background()
	s := testSQLite(t)
	if _, err := s.DB.ExecContext(ctx, "CREATE TABLE t (name TEXT NOT NULL UNIQUE)"); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, n := range []string{"a", "a", "b"} {
			err := Savepoint(ctx, tx, "rec", func() error {
				_, err := Exec(ctx, tx, "INSERT INTO t (name) VALUES (?1)", n)
				return err
			})
			if err != nil && n != "a" {
				return fmt.Errorf("unexpected failure for %s: %w", n, err)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	n, err := Count(ctx, s.DB, "SELECT COUNT(*) FROM t")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows after isolated failure, got %d", n)
	}
}

func TestWithTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	s := testSQLite(t)
	if _, err := s.DB.ExecContext(ctx, "CREATE TABLE t (name TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := Exec(ctx, tx, "INSERT INTO t (name) VALUES (?1)", "x"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	n, _ := Count(ctx, s.DB, "SELECT COUNT(*) FROM t")
	if n != 0 {
		t.Fatalf("expected rollback, got %d rows", n)
	}
}

func TestNormalizeBooleans(t *testing.T) {
	rows := []map[string]any{{"flag": int64(1), "other": int64(1)}, {"flag": int64(0)}}
	NormalizeBooleans(rows, []string{"flag"})
	if rows[0]["flag"] != true || rows[1]["flag"] != false {
		t.Fatalf("expected booleans, got %v", rows)
	}
	if rows[0]["other"] != int64(1) {
		t.Fatal("non-boolean field must be untouched")
	}
}
