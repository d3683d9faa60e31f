package store

import (
	"context"
	"fmt"
	"strings"

	"nms-backend/internal/metadata"
)

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// MigrateAll brings every entity table and join table of the registry up to date.
func (m *Migrator) MigrateAll(ctx context.Context, reg *metadata.Registry) error {
	for _, entity := range reg.AllEntities() {
		if err := m.Migrate(ctx, entity); err != nil {
			return err
		}
	}
	for _, rel := range reg.AllRelations() {
		if !rel.IsManyToMany() {
			continue
		}
		if err := m.MigrateJoinTable(ctx, rel); err != nil {
			return err
		}
	}
	return nil
}

// Migrate ensures the table matches the entity metadata.
// Creates the table if it doesn't exist, or adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, entity *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return m.createTable(ctx, entity)
	}

	return m.alterTable(ctx, entity)
}

// MigrateJoinTable creates a join table for a many-to-many relation if it doesn't exist.
func (m *Migrator) MigrateJoinTable(ctx context.Context, rel *metadata.Relation) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, rel.JoinTable)
	if err != nil {
		return fmt.Errorf("check join table exists: %w", err)
	}
	if exists {
		return nil
	}

	idType := m.store.Dialect.IDColumnType()
	sql := fmt.Sprintf(
		`CREATE TABLE %s (
			%s %s NOT NULL,
			%s %s NOT NULL,
			PRIMARY KEY (%s, %s)
		)`,
		rel.JoinTable,
		rel.SourceKey, idType,
		rel.TargetKey, idType,
		rel.SourceKey, rel.TargetKey,
	)

	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create join table %s: %w", rel.JoinTable, err)
	}
	return nil
}

func (m *Migrator) createTable(ctx context.Context, entity *metadata.Entity) error {
	var cols []string
	for _, f := range entity.Fields {
		cols = append(cols, m.buildColumnDef(f))
	}
	for _, rel := range entity.LocalKeys() {
		cols = append(cols, rel.Column+" "+m.store.Dialect.IDColumnType())
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", entity.Table, strings.Join(cols, ",\n  "))

	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", entity.Table, err)
	}
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, entity *metadata.Entity) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", entity.Table, err)
	}

	var missing []string
	for _, f := range entity.Fields {
		if _, ok := existing[f.Name]; !ok {
			missing = append(missing, f.Name+" "+m.store.Dialect.ColumnType(f.Type))
		}
	}
	for _, rel := range entity.LocalKeys() {
		if _, ok := existing[rel.Column]; !ok {
			missing = append(missing, rel.Column+" "+m.store.Dialect.IDColumnType())
		}
	}

	for _, col := range missing {
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", entity.Table, col)
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", entity.Table, strings.Fields(col)[0], err)
		}
	}
	return nil
}

func (m *Migrator) buildColumnDef(f metadata.Field) string {
	switch f.Name {
	case metadata.FieldID:
		return m.store.Dialect.PrimaryKeySQL()
	case metadata.FieldName:
		return f.Name + " " + m.store.Dialect.KeyColumnType() + " NOT NULL UNIQUE"
	}
	return f.Name + " " + m.store.Dialect.ColumnType(f.Type)
}
