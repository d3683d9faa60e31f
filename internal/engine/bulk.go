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

// BulkAddRequest adds instances to the Property relationship of the
// RelationType instance RelationID. Instances are ids, Names is a comma
// separated list of names.
type BulkAddRequest struct {
	RelationType string  `json:"relation_type"`
	RelationID   int64   `json:"relation_id"`
	Property     string  `json:"property"`
	Instances    []int64 `json:"instances"`
	Names        string  `json:"names"`
}

// BulkRemoveRequest detaches every instance matching Criteria from the
// Property relationship of the target. ConstraintProperty is the
// relationship on the instance side restricting the match to current
// members; it defaults to the inverse of Property.
type BulkRemoveRequest struct {
	RelationType       string   `json:"relation_type"`
	RelationID         int64    `json:"relation_id"`
	Property           string   `json:"property"`
	ConstraintProperty string   `json:"constraint_property"`
	Criteria           Criteria `json:"criteria"`
}

type BulkResult struct {
	Number int            `json:"number"`
	Target map[string]any `json:"target,omitempty"`
}

// loadTarget fetches the instance a membership edit applies to and refuses
// computed groupings.
func (e *Engine) loadTarget(ctx context.Context, tx *sql.Tx, entity *metadata.Entity, id int64, verb string) (map[string]any, error) {
	row, err := e.fetchByID(ctx, tx, entity, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFoundError(entity.Name, fmt.Sprint(id))
	}
	if err != nil {
		return nil, err
	}
	if entity.IsDynamic(row) {
		return nil, GuardError(verb, entity.Name)
	}
	return row, nil
}

func (e *Engine) touch(ctx context.Context, tx *sql.Tx, entity *metadata.Entity, id int64) (map[string]any, error) {
	pb := e.store.Dialect.NewParamBuilder()
	stmt := fmt.Sprintf("UPDATE %s SET %s = %s WHERE id = %s", entity.Table, metadata.FieldLastModified, pb.Add(e.stamp()), pb.Add(id))
	if _, err := store.Exec(ctx, tx, stmt, pb.Params()...); err != nil {
		return nil, err
	}
	row, err := e.fetchByID(ctx, tx, entity, id)
	if err != nil {
		return nil, err
	}
	return baseProperties(entity, row), nil
}

// AddInBulk appends the instances not already related to the target and
// propagates access control over them and the target.
func (e *Engine) AddInBulk(ctx context.Context, user *metadata.UserContext, req BulkAddRequest) (*BulkResult, error) {
	entity, err := e.entity(req.RelationType)
	if err != nil {
		return nil, err
	}
	if err := e.Authorize(user, entity.Name, "edit"); err != nil {
		return nil, err
	}
	rel, target, err := e.relationship(entity, req.Property)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{}
	touched := Touched{}
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.loadTarget(ctx, tx, entity, req.RelationID, "Adding objects to"); err != nil {
			return err
		}
		if err := e.checkExisting(ctx, tx, target, req.Instances); err != nil {
			return err
		}
		candidates := append([]int64{}, req.Instances...)
		var names []string
		for _, name := range strings.Split(req.Names, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
		resolved, err := e.idsByName(ctx, tx, target, names)
		if err != nil {
			return err
		}
		for _, name := range names {
			id, ok := resolved[name]
			if !ok {
				return NotFoundError(target.Name, name)
			}
			candidates = append(candidates, id)
		}

		current, err := e.relatedIDs(ctx, tx, rel, req.RelationID)
		if err != nil {
			return err
		}
		seen := make(map[int64]bool, len(current))
		for _, id := range current {
			seen[id] = true
		}
		var delta []int64
		for _, id := range candidates {
			if !seen[id] {
				seen[id] = true
				delta = append(delta, id)
			}
		}
		if err := e.linkRelated(ctx, tx, rel, req.RelationID, delta); err != nil {
			return err
		}
		if err := e.collectDependents(ctx, tx, target, delta, touched); err != nil {
			return err
		}
		if err := e.collectDependents(ctx, tx, entity, []int64{req.RelationID}, touched); err != nil {
			return err
		}
		result.Number = len(delta)
		result.Target, err = e.touch(ctx, tx, entity, req.RelationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := e.settle(ctx, touched); err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveInBulk detaches every instance of entityName that matches the
// criteria and is currently related to the target.
func (e *Engine) RemoveInBulk(ctx context.Context, user *metadata.UserContext, entityName string, req BulkRemoveRequest) (*BulkResult, error) {
	entity, err := e.entity(req.RelationType)
	if err != nil {
		return nil, err
	}
	if err := e.Authorize(user, entity.Name, "edit"); err != nil {
		return nil, err
	}
	rel, target, err := e.relationship(entity, req.Property)
	if err != nil {
		return nil, err
	}
	if target.Name != entityName {
		return nil, UnknownRelationshipError(entity.Name, req.Property)
	}
	constraint := req.ConstraintProperty
	if constraint == "" {
		constraint = rel.Inverse
	}
	criteria := Criteria{}
	for k, v := range req.Criteria {
		criteria[k] = v
	}
	criteria[constraint] = []int64{req.RelationID}

	result := &BulkResult{}
	touched := Touched{}
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.loadTarget(ctx, tx, entity, req.RelationID, "Removing objects from"); err != nil {
			return err
		}
		ids, err := e.matchingIDs(ctx, tx, user, target, criteria)
		if err != nil {
			return err
		}
		if err := e.collectDependents(ctx, tx, target, ids, touched); err != nil {
			return err
		}
		if err := e.collectDependents(ctx, tx, entity, []int64{req.RelationID}, touched); err != nil {
			return err
		}
		if err := e.unlinkRelated(ctx, tx, rel, req.RelationID, ids); err != nil {
			return err
		}
		result.Number = len(ids)
		result.Target, err = e.touch(ctx, tx, entity, req.RelationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := e.settle(ctx, touched); err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveInstance detaches a single instance from the target relationship.
func (e *Engine) RemoveInstance(ctx context.Context, user *metadata.UserContext, relationType string, relationID int64, instanceType string, instanceID int64, property string) (*BulkResult, error) {
	entity, err := e.entity(relationType)
	if err != nil {
		return nil, err
	}
	if err := e.Authorize(user, entity.Name, "edit"); err != nil {
		return nil, err
	}
	rel, target, err := e.relationship(entity, property)
	if err != nil {
		return nil, err
	}
	if target.Name != instanceType {
		return nil, UnknownRelationshipError(entity.Name, property)
	}

	result := &BulkResult{}
	touched := Touched{}
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.loadTarget(ctx, tx, entity, relationID, "Removing objects from"); err != nil {
			return err
		}
		if err := e.checkExisting(ctx, tx, target, []int64{instanceID}); err != nil {
			return err
		}
		if err := e.collectDependents(ctx, tx, target, []int64{instanceID}, touched); err != nil {
			return err
		}
		if err := e.collectDependents(ctx, tx, entity, []int64{relationID}, touched); err != nil {
			return err
		}
		if err := e.unlinkRelated(ctx, tx, rel, relationID, []int64{instanceID}); err != nil {
			return err
		}
		result.Number = 1
		result.Target, err = e.touch(ctx, tx, entity, relationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := e.settle(ctx, touched); err != nil {
		return nil, err
	}
	return result, nil
}

const bulkEditPrefix = "bulk-edit-"

// BulkEdit applies the properties flagged with "bulk-edit-<property>" to
// every instance of the dash separated id list in form["id"].
func (e *Engine) BulkEdit(ctx context.Context, user *metadata.UserContext, entityName string, form map[string]any) (int, error) {
	entity, err := e.entity(entityName)
	if err != nil {
		return 0, err
	}
	if err := e.Authorize(user, entity.Name, "edit"); err != nil {
		return 0, err
	}
	var rawIDs string
	if v, ok := form[metadata.FieldID]; ok && v != nil {
		rawIDs = fmt.Sprint(v)
	}
	var ids []int64
	for _, part := range strings.Split(rawIDs, "-") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		id, ok := toInt64(part)
		if !ok {
			return 0, fieldError(metadata.FieldID, fmt.Sprintf("invalid id %q", part))
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	props := make(map[string]any)
	for key, v := range form {
		if key == metadata.FieldID || strings.HasPrefix(key, bulkEditPrefix) {
			continue
		}
		if truthy(form[bulkEditPrefix+key]) {
			props[key] = v
		}
	}
	batch := make([]map[string]any, len(ids))
	for i, id := range ids {
		values := make(map[string]any, len(props)+1)
		for k, v := range props {
			values[k] = v
		}
		values[metadata.FieldID] = id
		batch[i] = values
	}
	if _, err := e.write(ctx, entity, batch, false); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// BulkDelete deletes every instance matched by the filter request.
func (e *Engine) BulkDelete(ctx context.Context, user *metadata.UserContext, entityName string, req *FilterRequest) (int, error) {
	entity, err := e.entity(entityName)
	if err != nil {
		return 0, err
	}
	if err := e.Authorize(user, entity.Name, "delete"); err != nil {
		return 0, err
	}
	bulk := *req
	bulk.Bulk = BulkIDs
	matched, err := e.Filter(ctx, user, entity.Name, &bulk)
	if err != nil {
		return 0, err
	}
	touched := Touched{}
	err = e.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, id := range matched.IDs {
			if err := e.deleteInstance(ctx, tx, entity, id, touched); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := e.settle(ctx, touched); err != nil {
		return 0, err
	}
	return len(matched.IDs), nil
}
