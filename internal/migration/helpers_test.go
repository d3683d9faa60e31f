package migration

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"nms-backend/internal/config"
	"nms-backend/internal/engine"
	"nms-backend/internal/metadata"
	"nms-backend/internal/secrets"
	"nms-backend/internal/store"
)

// newTestEngine returns an engine over a fresh sqlite database with the
// repository schema.
func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "migration"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(s.Close)

	reg := metadata.NewRegistry()
	if err := metadata.LoadFile("../../schema.yaml", reg); err != nil {
		t.Fatalf("load schema: %v", err)
	}
	if err := store.NewMigrator(s).MigrateAll(ctx, reg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	policy, err := secrets.GenerateAgePolicy()
	if err != nil {
		t.Fatalf("secrets: %v", err)
	}
	e, err := engine.New(s, reg, policy, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func newTestService(t *testing.T, e *engine.Engine, root string) *Service {
	t.Helper()
	return NewService(e, engine.Settings{
		MigrationPath: root + "/migrations",
		UnitsPath:     root + "/units",
	}, zap.NewNop().Sugar())
}

func mustUpdate(t *testing.T, e *engine.Engine, entity string, values map[string]any) int64 {
	t.Helper()
	row, err := e.Update(context.Background(), nil, entity, values, false)
	if err != nil {
		t.Fatalf("update %s %v: %v", entity, values, err)
	}
	id, ok := row["id"].(int64)
	if !ok {
		t.Fatalf("expected int64 id, got %T", row["id"])
	}
	return id
}

// recordsByName exports every instance of entity keyed by name.
func recordsByName(t *testing.T, e *engine.Engine, entity string, private bool) map[string]map[string]any {
	t.Helper()
	records, err := e.ExportRecords(context.Background(), entity, nil, private)
	if err != nil {
		t.Fatalf("export records %s: %v", entity, err)
	}
	out := make(map[string]map[string]any, len(records))
	for _, r := range records {
		out[r["name"].(string)] = r
	}
	return out
}

func namesOf(t *testing.T, v any) []string {
	t.Helper()
	names, ok := v.([]string)
	if !ok {
		t.Fatalf("expected []string, got %T (%v)", v, v)
	}
	return names
}
