package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nms-backend/internal/metadata"
	"nms-backend/internal/store"
)

func (e *Engine) fetchByID(ctx context.Context, q store.Querier, entity *metadata.Entity, id int64) (map[string]any, error) {
	pb := e.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, q, fmt.Sprintf("SELECT * FROM %s WHERE id = %s", entity.Table, pb.Add(id)), pb.Params()...)
	if err != nil {
		return nil, err
	}
	decodeRows(entity, []map[string]any{row})
	return row, nil
}

func (e *Engine) fetchByName(ctx context.Context, q store.Querier, entity *metadata.Entity, name string) (map[string]any, error) {
	pb := e.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, q, fmt.Sprintf("SELECT * FROM %s WHERE name = %s", entity.Table, pb.Add(name)), pb.Params()...)
	if err != nil {
		return nil, err
	}
	decodeRows(entity, []map[string]any{row})
	return row, nil
}

// idsByName resolves names to ids. Names with no instance are absent from
// the result.
func (e *Engine) idsByName(ctx context.Context, q store.Querier, entity *metadata.Entity, names []string) (map[string]int64, error) {
	out := make(map[string]int64, len(names))
	if len(names) == 0 {
		return out, nil
	}
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	pb := e.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT id, name FROM %s WHERE %s", entity.Table, e.store.Dialect.InExpr("name", pb, args))
	rows, err := store.QueryRows(ctx, q, sql, pb.Params()...)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		name, _ := row["name"].(string)
		id, _ := toInt64(row["id"])
		out[name] = id
	}
	return out, nil
}

func (e *Engine) allIDs(ctx context.Context, q store.Querier, entity *metadata.Entity) ([]int64, error) {
	return store.QueryIDs(ctx, q, fmt.Sprintf("SELECT id FROM %s ORDER BY id", entity.Table))
}

// Get returns the serialized instance.
func (e *Engine) Get(ctx context.Context, user *metadata.UserContext, entityName string, id int64) (map[string]any, error) {
	entity, err := e.entity(entityName)
	if err != nil {
		return nil, err
	}
	if err := e.Authorize(user, entity.Name, "read"); err != nil {
		return nil, err
	}
	row, err := e.fetchByID(ctx, e.store.DB, entity, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFoundError(entity.Name, fmt.Sprint(id))
	}
	if err != nil {
		return nil, err
	}
	return serialize(entity, row), nil
}

// deleteInstance detaches and deletes one instance. Principals and computed
// instances related to it are recorded in touched before the associations
// disappear.
func (e *Engine) deleteInstance(ctx context.Context, tx *sql.Tx, entity *metadata.Entity, id int64, touched Touched) error {
	if err := e.collectDependents(ctx, tx, entity, []int64{id}, touched); err != nil {
		return err
	}
	if err := e.detachAll(ctx, tx, entity, id); err != nil {
		return err
	}
	pb := e.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, tx, fmt.Sprintf("DELETE FROM %s WHERE id = %s", entity.Table, pb.Add(id)), pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", entity.Name, id, err)
	}
	if n == 0 {
		return NotFoundError(entity.Name, fmt.Sprint(id))
	}
	touched.Remove(entity.Name, id)
	return nil
}

// Delete removes one instance, then refreshes the computed fields and the
// access of the instances it was related to.
func (e *Engine) Delete(ctx context.Context, user *metadata.UserContext, entityName string, id int64) error {
	entity, err := e.entity(entityName)
	if err != nil {
		return err
	}
	if err := e.Authorize(user, entity.Name, "delete"); err != nil {
		return err
	}
	touched := Touched{}
	if err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		return e.deleteInstance(ctx, tx, entity, id, touched)
	}); err != nil {
		return err
	}
	return e.settle(ctx, touched)
}

// DeleteAll removes every instance of each type together with its join
// rows and foreign key references.
func (e *Engine) DeleteAll(ctx context.Context, types ...string) error {
	for _, name := range types {
		entity, err := e.entity(name)
		if err != nil {
			return err
		}
		err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
			for _, rel := range entity.Relationships {
				var stmt string
				switch rel.Kind {
				case metadata.LocalKey:
					continue
				case metadata.RemoteKey:
					target, _ := e.entity(rel.Target)
					stmt = fmt.Sprintf("UPDATE %s SET %s = NULL", target.Table, rel.Column)
				default:
					stmt = "DELETE FROM " + rel.Table
				}
				if _, err := store.Exec(ctx, tx, stmt); err != nil {
					return fmt.Errorf("detach %s.%s: %w", entity.Name, rel.Name, err)
				}
			}
			_, err := store.Exec(ctx, tx, "DELETE FROM "+entity.Table)
			return err
		})
		if err != nil {
			return fmt.Errorf("delete all %s: %w", entity.Name, err)
		}
		e.log.Infow("deleted all instances", "type", entity.Name)
	}
	return nil
}
