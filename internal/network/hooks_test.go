package network

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

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Path: t.TempDir(), Name: "network"})
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
		t.Fatalf("engine: %v", err)
	}
	Register(e)
	return e
}

func create(t *testing.T, e *engine.Engine, entity string, values map[string]any) int64 {
	t.Helper()
	row, err := e.Update(context.Background(), nil, entity, values, false)
	if err != nil {
		t.Fatalf("create %s: %v", entity, err)
	}
	return row["id"].(int64)
}

func names(res *engine.FilterResult) []string {
	var out []string
	for _, row := range res.Data {
		out = append(out, row["name"].(string))
	}
	return out
}

func TestTopLevelServices(t *testing.T) {
	e := newEngine(t)
	w := create(t, e, "workflow", map[string]any{"name": "w"})
	create(t, e, "service", map[string]any{"name": "inner", "workflows": []int64{w}})
	create(t, e, "service", map[string]any{"name": "top"})

	ctx := context.Background()
	res, err := e.Filter(ctx, nil, "service", &engine.FilterRequest{Length: 10, Criteria: engine.Criteria{"parent-filtering": "true"}})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if got := names(res); len(got) != 1 || got[0] != "top" {
		t.Fatalf("expected only top, got %v", got)
	}

	res, err = e.Filter(ctx, nil, "service", &engine.FilterRequest{Length: 10})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if res.RecordsFiltered != 2 {
		t.Fatalf("expected both services without the flag, got %d", res.RecordsFiltered)
	}
}

func TestLinkEndpoint(t *testing.T) {
	e := newEngine(t)
	r1 := create(t, e, "device", map[string]any{"name": "paris-r1"})
	r2 := create(t, e, "device", map[string]any{"name": "london-r2"})
	r3 := create(t, e, "device", map[string]any{"name": "berlin-r3"})
	create(t, e, "link", map[string]any{"name": "a", "source": r1, "destination": r2})
	create(t, e, "link", map[string]any{"name": "b", "source": r2, "destination": r3})
	create(t, e, "link", map[string]any{"name": "c", "source": r3, "destination": r1})

	res, err := e.Filter(context.Background(), nil, "link", &engine.FilterRequest{
		Length:   10,
		Criteria: engine.Criteria{"device": "london", "name": "a", "name_filter": "equality"},
	})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if got := names(res); len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected a, got %v", got)
	}

	res, err = e.Filter(context.Background(), nil, "link", &engine.FilterRequest{
		Length:   10,
		Criteria: engine.Criteria{"device": "london"},
	})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if got := names(res); len(got) != 2 {
		t.Fatalf("expected a and b, got %v", got)
	}
}
