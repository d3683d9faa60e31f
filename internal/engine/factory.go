package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"nms-backend/internal/metadata"
	"nms-backend/internal/store"
)

type saveOptions struct {
	mustBeNew bool
	// noFetch always inserts, skipping the lookup by name.
	noFetch bool
}

// existingID finds the instance values refer to, by id first and then by
// name.
func (e *Engine) existingID(ctx context.Context, q store.Querier, entity *metadata.Entity, values map[string]any, noFetch bool) (int64, bool, error) {
	if raw, ok := values[metadata.FieldID]; ok && !isEmpty(raw) {
		id, ok := toInt64(raw)
		if !ok {
			return 0, false, fieldError(metadata.FieldID, fmt.Sprintf("expected an integer, got %v", raw))
		}
		if _, err := e.fetchByID(ctx, q, entity, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return 0, false, NotFoundError(entity.Name, fmt.Sprint(id))
			}
			return 0, false, err
		}
		return id, true, nil
	}
	if noFetch {
		return 0, false, nil
	}
	name, _ := values[metadata.FieldName].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false, nil
	}
	ids, err := e.idsByName(ctx, q, entity, []string{name})
	if err != nil {
		return 0, false, err
	}
	id, ok := ids[name]
	return id, ok, nil
}

// save creates or updates one instance inside tx. Relationship values are
// lists of target ids and replace the current related set. Private values
// are sealed before they are stored.
func (e *Engine) save(ctx context.Context, tx *sql.Tx, entity *metadata.Entity, values map[string]any, opts saveOptions) (int64, bool, error) {
	id, exists, err := e.existingID(ctx, tx, entity, values, opts.noFetch)
	if err != nil {
		return 0, false, err
	}
	if exists && opts.mustBeNew {
		return 0, false, ConflictError(entity.Name)
	}

	var cols []string
	var args []any
	for i := range entity.Fields {
		f := &entity.Fields[i]
		if f.Name == metadata.FieldID {
			continue
		}
		raw, ok := values[f.Name]
		if !ok {
			if exists || f.Default == nil {
				continue
			}
			raw = f.Default
		}
		v, err := toDB(f, raw)
		if err != nil {
			return 0, false, fieldError(f.Name, err.Error())
		}
		if f.Name == metadata.FieldName {
			name, _ := v.(string)
			if name = strings.TrimSpace(name); name == "" {
				return 0, false, fieldError(f.Name, "is required")
			}
			v = name
		}
		if f.Private {
			if v, err = e.seal(v); err != nil {
				return 0, false, fmt.Errorf("seal %s.%s: %w", entity.Name, f.Name, err)
			}
		}
		cols = append(cols, f.Name)
		args = append(args, v)
	}
	if !exists {
		if _, ok := values[metadata.FieldName]; !ok {
			return 0, false, fieldError(metadata.FieldName, "is required")
		}
	}
	if _, ok := values[metadata.FieldLastModified]; !ok {
		cols = append(cols, metadata.FieldLastModified)
		args = append(args, e.stamp())
	}

	pending := make(map[*metadata.Relationship][]int64)
	for _, rel := range entity.Relationships {
		raw, ok := values[rel.Name]
		if !ok {
			continue
		}
		ids, err := toIDs(raw)
		if err != nil {
			return 0, false, fieldError(rel.Name, err.Error())
		}
		target, err := e.entity(rel.Target)
		if err != nil {
			return 0, false, err
		}
		if err := e.checkExisting(ctx, tx, target, ids); err != nil {
			return 0, false, err
		}
		if rel.Kind == metadata.LocalKey {
			var fk any
			if len(ids) > 0 {
				fk = ids[len(ids)-1]
			}
			cols = append(cols, rel.Column)
			args = append(args, fk)
			continue
		}
		pending[rel] = ids
	}

	pb := e.store.Dialect.NewParamBuilder()
	if exists {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = c + " = " + pb.Add(args[i])
		}
		stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s", entity.Table, strings.Join(sets, ", "), pb.Add(id))
		if _, err := tx.ExecContext(ctx, stmt, pb.Params()...); err != nil {
			return 0, false, e.writeError(entity, err)
		}
	} else {
		phs := make([]string, len(cols))
		for i := range cols {
			phs[i] = pb.Add(args[i])
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", entity.Table, strings.Join(cols, ", "), strings.Join(phs, ", "))
		id, err = e.store.Dialect.InsertReturningID(ctx, tx, stmt, pb.Params()...)
		if err != nil {
			return 0, false, e.writeError(entity, err)
		}
	}

	for rel, ids := range pending {
		if err := e.replaceRelated(ctx, tx, rel, id, ids); err != nil {
			return 0, false, err
		}
	}
	return id, !exists, nil
}

// writeError turns a uniqueness violation into the operator-facing alert.
func (e *Engine) writeError(entity *metadata.Entity, err error) error {
	if mapped := store.MapError(e.store.Dialect, err); errors.Is(mapped, store.ErrUniqueViolation) {
		return ConflictError(entity.Name)
	}
	return fmt.Errorf("write %s: %w", entity.Name, err)
}

func (e *Engine) seal(v any) (any, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return v, nil
	}
	if e.secrets == nil {
		return nil, errors.New("no secret policy configured")
	}
	return e.secrets.Seal(s)
}

// Update creates or updates one instance from flattened form values and
// returns it serialized. With mustBeNew an existing name is a conflict.
func (e *Engine) Update(ctx context.Context, user *metadata.UserContext, entityName string, values map[string]any, mustBeNew bool) (map[string]any, error) {
	entity, err := e.entity(entityName)
	if err != nil {
		return nil, err
	}
	if err := e.Authorize(user, entity.Name, "edit"); err != nil {
		return nil, err
	}
	ids, err := e.write(ctx, entity, []map[string]any{values}, mustBeNew)
	if err != nil {
		return nil, err
	}
	return e.Get(ctx, nil, entity.Name, ids[0])
}

// write saves every values map in one transaction. After commit, edited
// groupings recompute their members, computed fields are refreshed and
// affected principals are propagated.
func (e *Engine) write(ctx context.Context, entity *metadata.Entity, batch []map[string]any, mustBeNew bool) ([]int64, error) {
	stamp := e.stamp()
	touched := Touched{}
	ids := make([]int64, 0, len(batch))
	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, values := range batch {
			input := make(map[string]any, len(values)+1)
			for k, v := range values {
				input[k] = v
			}
			input[metadata.FieldLastModified] = stamp

			if prev, ok, err := e.existingID(ctx, tx, entity, input, false); err == nil && ok {
				if err := e.collectDependents(ctx, tx, entity, []int64{prev}, touched); err != nil {
					return err
				}
			}
			id, _, err := e.save(ctx, tx, entity, input, saveOptions{mustBeNew: mustBeNew})
			if err != nil {
				return err
			}
			if err := e.collectDependents(ctx, tx, entity, []int64{id}, touched); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if entity.Grouping != nil {
		for _, id := range ids {
			if _, err := e.ComputeGrouping(ctx, entity.Name, id); err != nil {
				return nil, err
			}
		}
	}
	if err := e.settle(ctx, touched); err != nil {
		return nil, err
	}
	return ids, nil
}

// collectDependents records the principals and the computed instances a
// mutation of ids may affect.
func (e *Engine) collectDependents(ctx context.Context, q store.Querier, entity *metadata.Entity, ids []int64, touched Touched) error {
	if err := e.collectPrincipals(ctx, q, entity, ids, touched); err != nil {
		return err
	}
	return e.collectDerived(ctx, q, entity, ids, touched)
}

// settle refreshes the computed fields and the access of everything a
// committed mutation touched.
func (e *Engine) settle(ctx context.Context, touched Touched) error {
	if err := e.recomputeTouched(ctx, touched); err != nil {
		return err
	}
	_, err := e.Propagate(ctx, touched)
	return err
}
