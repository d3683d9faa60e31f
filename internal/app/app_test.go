package app

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"nms-backend/internal/config"
)

func TestOpen_SQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Database:  config.DatabaseConfig{Driver: "sqlite", Path: dir, Name: "app"},
		Schema:    config.SchemaConfig{Path: "../../schema.yaml"},
		Migration: config.MigrationConfig{Path: dir + "/migrations", UnitsPath: dir + "/units", UpdatePoolsOnImport: true},
	}
	a, err := Open(context.Background(), cfg, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()

	if a.Registry.GetEntity("device") == nil {
		t.Fatal("expected device entity in registry")
	}
	caps, err := a.Engine.Capabilities("link")
	if err != nil {
		t.Fatalf("capabilities: %v", err)
	}
	if len(caps.Hooks) != 1 {
		t.Fatalf("expected the link endpoint hook to be registered, got %d hooks", len(caps.Hooks))
	}
	if s := Settings(cfg); !s.UpdatePoolsOnImport || s.UnitsPath != dir+"/units" {
		t.Fatalf("unexpected settings %+v", s)
	}
}
