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

// groupingCriteria reads the filter a grouping stores for one member
// relationship: every field under prefix, with the prefix stripped.
func groupingCriteria(entity *metadata.Entity, row map[string]any, prefix string) Criteria {
	criteria := Criteria{}
	for _, f := range entity.Fields {
		if !strings.HasPrefix(f.Name, prefix) {
			continue
		}
		criteria[strings.TrimPrefix(f.Name, prefix)] = row[f.Name]
	}
	return criteria
}

// ComputeGrouping replaces the members of a dynamic grouping instance with
// the target instances matching its stored criteria. Manually defined
// instances are left alone. It returns the resulting member count.
func (e *Engine) ComputeGrouping(ctx context.Context, entityName string, id int64) (int, error) {
	entity, err := e.entity(entityName)
	if err != nil {
		return 0, err
	}
	if entity.Grouping == nil {
		return 0, nil
	}
	count := 0
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		row, err := e.fetchByID(ctx, tx, entity, id)
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError(entity.Name, fmt.Sprint(id))
		}
		if err != nil {
			return err
		}
		if !entity.IsDynamic(row) {
			return nil
		}
		for _, member := range entity.Grouping.Members {
			rel, target, err := e.relationship(entity, member.Relationship)
			if err != nil {
				return err
			}
			ids, err := e.matchingIDs(ctx, tx, nil, target, groupingCriteria(entity, row, member.Prefix))
			if err != nil {
				return err
			}
			if err := e.replaceRelated(ctx, tx, rel, id, ids); err != nil {
				return err
			}
			count += len(ids)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ComputeGroupings recomputes every instance of a grouping type.
func (e *Engine) ComputeGroupings(ctx context.Context, entityName string) error {
	entity, err := e.entity(entityName)
	if err != nil {
		return err
	}
	ids, err := e.allIDs(ctx, e.store.DB, entity)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := e.ComputeGrouping(ctx, entity.Name, id); err != nil {
			return fmt.Errorf("compute %s %d: %w", entity.Name, id, err)
		}
	}
	return nil
}

// RefreshGroupingsOver recomputes the groupings whose members include any
// of the given entity types.
func (e *Engine) RefreshGroupingsOver(ctx context.Context, entityNames ...string) error {
	done := make(map[string]bool)
	for _, name := range entityNames {
		for _, grouping := range e.registry.GroupingsOver(name) {
			if done[grouping.Name] {
				continue
			}
			done[grouping.Name] = true
			if err := e.ComputeGroupings(ctx, grouping.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// ComputeAllGroupings recomputes every grouping type.
func (e *Engine) ComputeAllGroupings(ctx context.Context) error {
	for _, grouping := range e.registry.Groupings() {
		if err := e.ComputeGroupings(ctx, grouping.Name); err != nil {
			return err
		}
	}
	return nil
}
