package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"nms-backend/internal/metadata"
	"nms-backend/internal/store"
)

// Touched collects the instances affected by one logical operation, keyed
// by entity name.
type Touched map[string]map[int64]bool

func (t Touched) Add(entity string, ids ...int64) {
	if len(ids) == 0 {
		return
	}
	set := t[entity]
	if set == nil {
		set = make(map[int64]bool, len(ids))
		t[entity] = set
	}
	for _, id := range ids {
		set[id] = true
	}
}

func (t Touched) Remove(entity string, id int64) {
	delete(t[entity], id)
}

// IDs returns the touched ids of entity in ascending order.
func (t Touched) IDs(entity string) []int64 {
	ids := make([]int64, 0, len(t[entity]))
	for id := range t[entity] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// collectPrincipals records ids when entity is a principal type, and
// otherwise the principals reaching these instances through one of their
// permission sources.
func (e *Engine) collectPrincipals(ctx context.Context, q store.Querier, entity *metadata.Entity, ids []int64, touched Touched) error {
	if entity.Principal != nil {
		touched.Add(entity.Name, ids...)
	}
	for _, principal := range e.registry.Principals() {
		for _, source := range principal.Principal.Sources {
			rel := principal.Relationship(source)
			if rel == nil || rel.Target != entity.Name {
				continue
			}
			back := entity.Relationship(rel.Inverse)
			if back == nil {
				continue
			}
			for _, id := range ids {
				users, err := e.relatedIDs(ctx, q, back, id)
				if err != nil {
					return err
				}
				touched.Add(principal.Name, users...)
			}
		}
	}
	return nil
}

// Propagate recomputes the effective permissions of every touched principal
// exactly once. Non-principal entries are ignored. It must be called after
// the mutation that touched them has committed.
func (e *Engine) Propagate(ctx context.Context, touched Touched) (int, error) {
	count := 0
	for _, principal := range e.registry.Principals() {
		ids := touched.IDs(principal.Name)
		if len(ids) == 0 {
			continue
		}
		err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
			for _, id := range ids {
				if err := e.recomputeAccess(ctx, tx, principal, id); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return count, fmt.Errorf("propagate %s: %w", principal.Name, err)
		}
		count += len(ids)
	}
	return count, nil
}

// PropagateAll recomputes every principal instance.
func (e *Engine) PropagateAll(ctx context.Context) (int, error) {
	touched := Touched{}
	for _, principal := range e.registry.Principals() {
		ids, err := e.allIDs(ctx, e.store.DB, principal)
		if err != nil {
			return 0, err
		}
		touched.Add(principal.Name, ids...)
	}
	return e.Propagate(ctx, touched)
}

func (e *Engine) recomputeAccess(ctx context.Context, tx *sql.Tx, principal *metadata.Entity, id int64) error {
	pc := principal.Principal
	granted := make(map[string]bool)
	for _, source := range pc.Sources {
		rel, target, err := e.relationship(principal, source)
		if err != nil {
			return err
		}
		related, err := e.relatedIDs(ctx, tx, rel, id)
		if err != nil {
			return err
		}
		for _, rid := range related {
			row, err := e.fetchByID(ctx, tx, target, rid)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			for _, p := range stringList(row[pc.SourceField]) {
				granted[p] = true
			}
		}
	}
	encoded, err := json.Marshal(sortedKeys(granted))
	if err != nil {
		return err
	}
	pb := e.store.Dialect.NewParamBuilder()
	stmt := fmt.Sprintf("UPDATE %s SET %s = %s WHERE id = %s", principal.Table, pc.AccessField, pb.Add(string(encoded)), pb.Add(id))
	_, err = store.Exec(ctx, tx, stmt, pb.Params()...)
	return err
}

// LoadPrincipal builds the access-control context of the named user.
func (e *Engine) LoadPrincipal(ctx context.Context, name string) (*metadata.UserContext, error) {
	principals := e.registry.Principals()
	if len(principals) == 0 {
		return nil, UnauthorizedError("No user type is declared")
	}
	entity := principals[0]
	row, err := e.fetchByName(ctx, e.store.DB, entity, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, UnauthorizedError(fmt.Sprintf("Unknown user %s", name))
	}
	if err != nil {
		return nil, err
	}
	id, _ := toInt64(row[metadata.FieldID])
	user := &metadata.UserContext{
		ID:          id,
		Name:        name,
		Permissions: stringList(row[entity.Principal.AccessField]),
		Related:     make(map[string][]int64),
	}
	if field := entity.Principal.AdminField; field != "" {
		user.Admin, _ = row[field].(bool)
	}
	for _, rel := range entity.Relationships {
		ids, err := e.relatedIDs(ctx, e.store.DB, rel, id)
		if err != nil {
			return nil, err
		}
		user.Related[rel.Target] = append(user.Related[rel.Target], ids...)
	}
	return user, nil
}
