package engine

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"nms-backend/internal/config"
	"nms-backend/internal/metadata"
	"nms-backend/internal/secrets"
	"nms-backend/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "engine"})
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
	e, err := New(s, reg, policy, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func mustUpdate(t *testing.T, e *Engine, entity string, values map[string]any) map[string]any {
	t.Helper()
	row, err := e.Update(context.Background(), nil, entity, values, false)
	if err != nil {
		t.Fatalf("update %s %v: %v", entity, values, err)
	}
	return row
}

func idOf(t *testing.T, row map[string]any) int64 {
	t.Helper()
	id, ok := row["id"].(int64)
	if !ok {
		t.Fatalf("expected int64 id, got %T in %v", row["id"], row)
	}
	return id
}

func expectAppError(t *testing.T, err error, code string) *AppError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	appErr, ok := AsAppError(err)
	if !ok {
		t.Fatalf("expected *AppError, got %T: %v", err, err)
	}
	if appErr.Code != code {
		t.Fatalf("expected code %s, got %s (%s)", code, appErr.Code, appErr.Message)
	}
	return appErr
}

// seedDevices creates devices with the given names and returns their ids.
func seedDevices(t *testing.T, e *Engine, names ...string) []int64 {
	t.Helper()
	ids := make([]int64, len(names))
	for i, name := range names {
		ids[i] = idOf(t, mustUpdate(t, e, "device", map[string]any{"name": name}))
	}
	return ids
}

func relatedNamesOf(t *testing.T, e *Engine, entity string, id int64, rel string) []string {
	t.Helper()
	ent := e.registry.GetEntity(entity)
	names, err := e.relatedNames(context.Background(), e.store.DB, ent.Relationship(rel), id)
	if err != nil {
		t.Fatalf("related names: %v", err)
	}
	return names
}
