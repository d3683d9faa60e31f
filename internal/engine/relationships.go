package engine

import (
	"context"
	"fmt"

	"nms-backend/internal/metadata"
	"nms-backend/internal/store"
)

// relatedIDs returns the ids reached from instance id through rel.
func (e *Engine) relatedIDs(ctx context.Context, q store.Querier, rel *metadata.Relationship, id int64) ([]int64, error) {
	pb := e.store.Dialect.NewParamBuilder()
	var sql string
	switch rel.Kind {
	case metadata.LocalKey:
		owner, _ := e.entity(rel.Entity)
		sql = fmt.Sprintf("SELECT %s FROM %s WHERE id = %s", rel.Column, owner.Table, pb.Add(id))
	case metadata.RemoteKey:
		target, _ := e.entity(rel.Target)
		sql = fmt.Sprintf("SELECT id FROM %s WHERE %s = %s ORDER BY id", target.Table, rel.Column, pb.Add(id))
	default:
		sql = fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s ORDER BY %s", rel.OtherKey, rel.Table, rel.SelfKey, pb.Add(id), rel.OtherKey)
	}
	ids, err := store.QueryIDs(ctx, q, sql, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("related %s.%s: %w", rel.Entity, rel.Name, err)
	}
	return ids, nil
}

// relatedNames returns the names reached from instance id through rel.
func (e *Engine) relatedNames(ctx context.Context, q store.Querier, rel *metadata.Relationship, id int64) ([]string, error) {
	target, err := e.entity(rel.Target)
	if err != nil {
		return nil, err
	}
	pb := e.store.Dialect.NewParamBuilder()
	var sql string
	switch rel.Kind {
	case metadata.LocalKey:
		owner, _ := e.entity(rel.Entity)
		sql = fmt.Sprintf("SELECT r.name FROM %s r JOIN %s o ON o.%s = r.id WHERE o.id = %s",
			target.Table, owner.Table, rel.Column, pb.Add(id))
	case metadata.RemoteKey:
		sql = fmt.Sprintf("SELECT r.name FROM %s r WHERE r.%s = %s ORDER BY r.id", target.Table, rel.Column, pb.Add(id))
	default:
		sql = fmt.Sprintf("SELECT r.name FROM %s r JOIN %s j ON j.%s = r.id WHERE j.%s = %s ORDER BY r.id",
			target.Table, rel.Table, rel.OtherKey, rel.SelfKey, pb.Add(id))
	}
	rows, err := store.QueryRows(ctx, q, sql, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("related names %s.%s: %w", rel.Entity, rel.Name, err)
	}
	names := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, ok := row["name"].(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// linkRelated adds others to the instance's rel. A to-one relationship keeps
// only the last of others.
func (e *Engine) linkRelated(ctx context.Context, q store.Querier, rel *metadata.Relationship, id int64, others []int64) error {
	if len(others) == 0 {
		return nil
	}
	switch rel.Kind {
	case metadata.LocalKey:
		return e.setLocalKey(ctx, q, rel, id, &others[len(others)-1])
	case metadata.RemoteKey:
		target, _ := e.entity(rel.Target)
		if !rel.List {
			others = others[len(others)-1:]
			if err := e.clearRemoteKey(ctx, q, rel, id); err != nil {
				return err
			}
		}
		pb := e.store.Dialect.NewParamBuilder()
		sql := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s", target.Table, rel.Column, pb.Add(id),
			e.store.Dialect.InExpr("id", pb, int64Args(others)))
		if _, err := store.Exec(ctx, q, sql, pb.Params()...); err != nil {
			return fmt.Errorf("link %s.%s: %w", rel.Entity, rel.Name, err)
		}
		return nil
	default:
		current, err := e.relatedIDs(ctx, q, rel, id)
		if err != nil {
			return err
		}
		have := make(map[int64]bool, len(current))
		for _, c := range current {
			have[c] = true
		}
		for _, other := range others {
			if have[other] {
				continue
			}
			have[other] = true
			pb := e.store.Dialect.NewParamBuilder()
			sql := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)", rel.Table, rel.SelfKey, rel.OtherKey, pb.Add(id), pb.Add(other))
			if _, err := store.Exec(ctx, q, sql, pb.Params()...); err != nil {
				return fmt.Errorf("link %s.%s: %w", rel.Entity, rel.Name, err)
			}
		}
		return nil
	}
}

// unlinkRelated removes others from the instance's rel.
func (e *Engine) unlinkRelated(ctx context.Context, q store.Querier, rel *metadata.Relationship, id int64, others []int64) error {
	if len(others) == 0 {
		return nil
	}
	pb := e.store.Dialect.NewParamBuilder()
	var sql string
	switch rel.Kind {
	case metadata.LocalKey:
		owner, _ := e.entity(rel.Entity)
		sql = fmt.Sprintf("UPDATE %s SET %s = NULL WHERE id = %s AND %s", owner.Table, rel.Column, pb.Add(id),
			e.store.Dialect.InExpr(rel.Column, pb, int64Args(others)))
	case metadata.RemoteKey:
		target, _ := e.entity(rel.Target)
		sql = fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = %s AND %s", target.Table, rel.Column, rel.Column, pb.Add(id),
			e.store.Dialect.InExpr("id", pb, int64Args(others)))
	default:
		sql = fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s", rel.Table, rel.SelfKey, pb.Add(id),
			e.store.Dialect.InExpr(rel.OtherKey, pb, int64Args(others)))
	}
	if _, err := store.Exec(ctx, q, sql, pb.Params()...); err != nil {
		return fmt.Errorf("unlink %s.%s: %w", rel.Entity, rel.Name, err)
	}
	return nil
}

// replaceRelated makes others the complete related set of the instance.
func (e *Engine) replaceRelated(ctx context.Context, q store.Querier, rel *metadata.Relationship, id int64, others []int64) error {
	switch rel.Kind {
	case metadata.LocalKey:
		if len(others) == 0 {
			return e.setLocalKey(ctx, q, rel, id, nil)
		}
		return e.setLocalKey(ctx, q, rel, id, &others[len(others)-1])
	case metadata.RemoteKey:
		if err := e.clearRemoteKey(ctx, q, rel, id); err != nil {
			return err
		}
		return e.linkRelated(ctx, q, rel, id, others)
	default:
		pb := e.store.Dialect.NewParamBuilder()
		sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", rel.Table, rel.SelfKey, pb.Add(id))
		if _, err := store.Exec(ctx, q, sql, pb.Params()...); err != nil {
			return fmt.Errorf("clear %s.%s: %w", rel.Entity, rel.Name, err)
		}
		return e.linkRelated(ctx, q, rel, id, others)
	}
}

func (e *Engine) setLocalKey(ctx context.Context, q store.Querier, rel *metadata.Relationship, id int64, other *int64) error {
	owner, _ := e.entity(rel.Entity)
	pb := e.store.Dialect.NewParamBuilder()
	var value any
	if other != nil {
		value = *other
	}
	sql := fmt.Sprintf("UPDATE %s SET %s = %s WHERE id = %s", owner.Table, rel.Column, pb.Add(value), pb.Add(id))
	if _, err := store.Exec(ctx, q, sql, pb.Params()...); err != nil {
		return fmt.Errorf("set %s.%s: %w", rel.Entity, rel.Name, err)
	}
	return nil
}

func (e *Engine) clearRemoteKey(ctx context.Context, q store.Querier, rel *metadata.Relationship, id int64) error {
	target, _ := e.entity(rel.Target)
	pb := e.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = %s", target.Table, rel.Column, rel.Column, pb.Add(id))
	if _, err := store.Exec(ctx, q, sql, pb.Params()...); err != nil {
		return fmt.Errorf("clear %s.%s: %w", rel.Entity, rel.Name, err)
	}
	return nil
}

// detachAll removes every association of the instance before it is deleted.
func (e *Engine) detachAll(ctx context.Context, q store.Querier, entity *metadata.Entity, id int64) error {
	for _, rel := range entity.Relationships {
		switch rel.Kind {
		case metadata.LocalKey:
			continue
		case metadata.RemoteKey:
			if err := e.clearRemoteKey(ctx, q, rel, id); err != nil {
				return err
			}
		default:
			pb := e.store.Dialect.NewParamBuilder()
			sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", rel.Table, rel.SelfKey, pb.Add(id))
			if _, err := store.Exec(ctx, q, sql, pb.Params()...); err != nil {
				return fmt.Errorf("detach %s.%s: %w", rel.Entity, rel.Name, err)
			}
		}
	}
	return nil
}

// checkExisting fails with NotFoundError on the first id with no instance.
func (e *Engine) checkExisting(ctx context.Context, q store.Querier, entity *metadata.Entity, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	pb := e.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT id FROM %s WHERE %s", entity.Table, e.store.Dialect.InExpr("id", pb, int64Args(ids)))
	found, err := store.QueryIDs(ctx, q, sql, pb.Params()...)
	if err != nil {
		return err
	}
	have := make(map[int64]bool, len(found))
	for _, id := range found {
		have[id] = true
	}
	for _, id := range ids {
		if !have[id] {
			return NotFoundError(entity.Name, fmt.Sprint(id))
		}
	}
	return nil
}
