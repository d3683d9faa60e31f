package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"nms-backend/internal/config"
	"nms-backend/internal/engine"
	"nms-backend/internal/metadata"
	"nms-backend/internal/migration"
	"nms-backend/internal/network"
	"nms-backend/internal/secrets"
	"nms-backend/internal/store"
)

// App holds the resources shared by the server and the CLI: database,
// schema registry, engine and migration service.
type App struct {
	Config     *config.Config
	Log        *zap.SugaredLogger
	Store      *store.Store
	Registry   *metadata.Registry
	Engine     *engine.Engine
	Migrations *migration.Service
}

// Settings derives the engine settings from configuration.
func Settings(cfg *config.Config) engine.Settings {
	return engine.Settings{
		MigrationPath:       cfg.Migration.Path,
		UnitsPath:           cfg.Migration.UnitsPath,
		UpdatePoolsOnImport: cfg.Migration.UpdatePoolsOnImport,
	}
}

// Open connects to the database, loads the schema, brings tables up to date
// and wires the engine.
func Open(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*App, error) {
	reg := metadata.NewRegistry()
	if err := metadata.LoadFile(cfg.Schema.Path, reg); err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	log.Infow("schema loaded", "path", cfg.Schema.Path, "entities", len(reg.AllEntities()))

	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Infow("database connected", "driver", db.Dialect.Name())

	if err := store.NewMigrator(db).MigrateAll(ctx, reg); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	policy, err := secrets.Load(cfg.Secrets, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	e, err := engine.New(db, reg, policy, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	network.Register(e)

	return &App{
		Config:     cfg,
		Log:        log,
		Store:      db,
		Registry:   reg,
		Engine:     e,
		Migrations: migration.NewService(e, Settings(cfg), log),
	}, nil
}

func (a *App) Close() {
	a.Store.Close()
}
