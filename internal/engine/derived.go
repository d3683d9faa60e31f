package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"nms-backend/internal/metadata"
	"nms-backend/internal/store"
)

type derivedProgram struct {
	field   *metadata.Field
	program *vm.Program
}

func derivedEnv() map[string]any {
	return map[string]any{
		"record":  map[string]any{},
		"related": map[string]any{},
	}
}

func compileDerived(reg *metadata.Registry) (map[string][]derivedProgram, error) {
	out := make(map[string][]derivedProgram)
	for _, entity := range reg.AllEntities() {
		for _, c := range entity.Computed {
			f := entity.GetField(c.Field)
			if f == nil {
				return nil, fmt.Errorf("%s: computed field %s is not declared", entity.Name, c.Field)
			}
			program, err := expr.Compile(c.Expression, expr.Env(derivedEnv()))
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", entity.Name, c.Field, err)
			}
			out[entity.Name] = append(out[entity.Name], derivedProgram{field: f, program: program})
		}
	}
	return out, nil
}

// RecomputeDerived evaluates the computed fields of the given instances, or
// of every instance when ids is empty. It returns the number of instances
// updated.
func (e *Engine) RecomputeDerived(ctx context.Context, entityName string, ids ...int64) (int, error) {
	entity, err := e.entity(entityName)
	if err != nil {
		return 0, err
	}
	programs := e.derived[entity.Name]
	if len(programs) == 0 {
		return 0, nil
	}
	if len(ids) == 0 {
		if ids, err = e.allIDs(ctx, e.store.DB, entity); err != nil {
			return 0, err
		}
	}
	count := 0
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			env, err := e.derivedInput(ctx, tx, entity, id)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			pb := e.store.Dialect.NewParamBuilder()
			var sets []string
			for _, p := range programs {
				out, err := expr.Run(p.program, env)
				if err != nil {
					return fmt.Errorf("%s %d: %s: %w", entity.Name, id, p.field.Name, err)
				}
				v, err := toDB(p.field, out)
				if err != nil {
					return fieldError(p.field.Name, err.Error())
				}
				sets = append(sets, p.field.Name+" = "+pb.Add(v))
			}
			stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s", entity.Table, strings.Join(sets, ", "), pb.Add(id))
			if _, err := store.Exec(ctx, tx, stmt, pb.Params()...); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// collectDerived records in touched the instances whose computed fields read
// the given ones: the instances themselves and everything they relate to,
// for every type declaring computed fields. Call it before a mutation to
// catch the instances it detaches and after it to catch the ones it links.
func (e *Engine) collectDerived(ctx context.Context, q store.Querier, entity *metadata.Entity, ids []int64, touched Touched) error {
	if len(e.derived[entity.Name]) > 0 {
		touched.Add(entity.Name, ids...)
	}
	for _, rel := range entity.Relationships {
		if len(e.derived[rel.Target]) == 0 {
			continue
		}
		for _, id := range ids {
			related, err := e.relatedIDs(ctx, q, rel, id)
			if err != nil {
				return err
			}
			touched.Add(rel.Target, related...)
		}
	}
	return nil
}

// recomputeTouched refreshes the computed fields of every touched instance.
// It must run after the mutation has committed.
func (e *Engine) recomputeTouched(ctx context.Context, touched Touched) error {
	names := make([]string, 0, len(e.derived))
	for name := range e.derived {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ids := touched.IDs(name)
		if len(ids) == 0 {
			continue
		}
		if _, err := e.RecomputeDerived(ctx, name, ids...); err != nil {
			return err
		}
	}
	return nil
}

// derivedInput is the expression environment of one instance: its public
// properties as record and its related names as related.
func (e *Engine) derivedInput(ctx context.Context, tx *sql.Tx, entity *metadata.Entity, id int64) (map[string]any, error) {
	row, err := e.fetchByID(ctx, tx, entity, id)
	if err != nil {
		return nil, err
	}
	related := make(map[string]any, len(entity.Relationships))
	for _, rel := range entity.Relationships {
		names, err := e.relatedNames(ctx, tx, rel, id)
		if err != nil {
			return nil, err
		}
		switch {
		case rel.List:
			related[rel.Name] = names
		case len(names) > 0:
			related[rel.Name] = names[0]
		default:
			related[rel.Name] = nil
		}
	}
	return map[string]any{
		"record":  serialize(entity, row),
		"related": related,
	}, nil
}

// ComputeAllDerived refreshes every entity type that declares computed
// fields.
func (e *Engine) ComputeAllDerived(ctx context.Context) (int, error) {
	total := 0
	for _, entity := range e.registry.AllEntities() {
		n, err := e.RecomputeDerived(ctx, entity.Name)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
