package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nms-backend/internal/metadata"
	"nms-backend/internal/store"
)

// ExportRecords flattens instances of entityName for a bundle: scalar
// properties plus relationship values as target names, a list for to-many
// and a single name for to-one. ids selects instances, nil means all.
// Private properties are omitted unless includePrivate is set, in which
// case they are opened to clear text.
func (e *Engine) ExportRecords(ctx context.Context, entityName string, ids []int64, includePrivate bool) ([]map[string]any, error) {
	entity, err := e.entity(entityName)
	if err != nil {
		return nil, err
	}
	db := e.store.DB
	if ids == nil {
		if ids, err = e.allIDs(ctx, db, entity); err != nil {
			return nil, err
		}
	}
	records := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		row, err := e.fetchByID(ctx, db, entity, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		record := make(map[string]any, len(entity.Fields)+len(entity.Relationships))
		for _, f := range entity.Fields {
			if f.Name == metadata.FieldID || row[f.Name] == nil {
				continue
			}
			if f.Private {
				if !includePrivate {
					continue
				}
				plain, err := e.open(row[f.Name])
				if err != nil {
					return nil, fmt.Errorf("open %s.%s of %v: %w", entity.Name, f.Name, row[metadata.FieldName], err)
				}
				record[f.Name] = plain
				continue
			}
			record[f.Name] = row[f.Name]
		}
		for _, rel := range entity.Relationships {
			names, err := e.relatedNames(ctx, db, rel, id)
			if err != nil {
				return nil, err
			}
			switch {
			case rel.List:
				record[rel.Name] = names
			case len(names) > 0:
				record[rel.Name] = names[0]
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func (e *Engine) open(v any) (any, error) {
	s, ok := v.(string)
	if !ok || s == "" {
		return v, nil
	}
	if e.secrets == nil {
		return nil, errors.New("no secret policy configured")
	}
	return e.secrets.Open(s)
}

// ImportInstance creates or updates one instance by name inside tx.
// Relationship keys must already have been split off; ids in values are
// ignored since they are not portable. With noFetch the instance is always
// inserted, for types emptied before the import.
func (e *Engine) ImportInstance(ctx context.Context, tx *sql.Tx, entityName string, values map[string]any, noFetch bool) (int64, error) {
	entity, err := e.entity(entityName)
	if err != nil {
		return 0, err
	}
	input := make(map[string]any, len(values))
	for k, v := range values {
		if k == metadata.FieldID {
			continue
		}
		if entity.Relationship(k) != nil {
			return 0, fmt.Errorf("%s: relationship %s must be deferred", entity.Name, k)
		}
		if !entity.HasField(k) {
			e.log.Debugw("ignoring unknown property", "type", entity.Name, "property", k)
			continue
		}
		input[k] = v
	}
	id, _, err := e.save(ctx, tx, entity, input, saveOptions{noFetch: noFetch})
	return id, err
}

// AssignRelationship resolves the target names of one deferred relationship
// value and makes them the complete related set of the named instance.
// Names with no matching target are skipped and returned.
func (e *Engine) AssignRelationship(ctx context.Context, tx *sql.Tx, entityName, name, relationship string, value any) ([]string, error) {
	entity, err := e.entity(entityName)
	if err != nil {
		return nil, err
	}
	rel, target, err := e.relationship(entity, relationship)
	if err != nil {
		return nil, err
	}
	owners, err := e.idsByName(ctx, tx, entity, []string{name})
	if err != nil {
		return nil, err
	}
	owner, ok := owners[name]
	if !ok {
		return nil, NotFoundError(entity.Name, name)
	}
	names := toNames(value)
	resolved, err := e.idsByName(ctx, tx, target, names)
	if err != nil {
		return nil, err
	}
	var ids []int64
	var missing []string
	for _, n := range names {
		if id, ok := resolved[n]; ok {
			ids = append(ids, id)
		} else {
			missing = append(missing, n)
		}
	}
	if err := e.replaceRelated(ctx, tx, rel, owner, ids); err != nil {
		return missing, err
	}
	return missing, nil
}

// LookupID returns the id of the named instance.
func (e *Engine) LookupID(ctx context.Context, entityName, name string) (int64, error) {
	entity, err := e.entity(entityName)
	if err != nil {
		return 0, err
	}
	ids, err := e.idsByName(ctx, e.store.DB, entity, []string{name})
	if err != nil {
		return 0, err
	}
	id, ok := ids[name]
	if !ok {
		return 0, NotFoundError(entity.Name, name)
	}
	return id, nil
}

// Related returns the target type and ids reached from an instance through
// the named relationship.
func (e *Engine) Related(ctx context.Context, entityName string, id int64, relationship string) (string, []int64, error) {
	entity, err := e.entity(entityName)
	if err != nil {
		return "", nil, err
	}
	rel, target, err := e.relationship(entity, relationship)
	if err != nil {
		return "", nil, err
	}
	ids, err := e.relatedIDs(ctx, e.store.DB, rel, id)
	if err != nil {
		return "", nil, err
	}
	return target.Name, ids, nil
}
