package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"nms-backend/internal/engine"
	"nms-backend/internal/store"
)

const (
	StatusSuccess = "Import successful."
	StatusPartial = "Partial import (see logs)."
)

// ImportRequest selects the entity types read from a bundle. When Types is
// empty the types listed in the bundle manifest are imported.
type ImportRequest struct {
	Name                      string   `json:"name"`
	Types                     []string `json:"import_export_types"`
	EmptyDatabaseBeforeImport bool     `json:"empty_database_before_import"`
	UpdatePools               bool     `json:"update_pools"`
	SkipModelUpdate           bool     `json:"skip_model_update"`
	SkipPoolUpdate            bool     `json:"skip_pool_update"`
}

// deferral holds the relationship values of one imported instance until
// every instance of the import exists.
type deferral struct {
	entity    string
	name      string
	relations map[string]any
}

// importRun is the state of a single import.
type importRun struct {
	svc       *Service
	dir       string
	manifest  *Manifest
	emptied   map[string]bool
	deferrals []deferral
	partial   bool
}

// Import reconstructs the requested types of the named bundle in two
// phases: instances first, committed once per type, then every deferred
// relationship in a single transaction. Per-record failures are logged and
// downgrade the status to StatusPartial without stopping the import.
func (s *Service) Import(ctx context.Context, req ImportRequest) (string, error) {
	if err := ValidateName(req.Name); err != nil {
		return "", err
	}
	unlock := s.locks.Lock(req.Name)
	defer unlock()

	dir, cleanup, err := s.openBundle(ctx, req.Name)
	if err != nil {
		return "", err
	}
	defer cleanup()
	return s.importDir(ctx, dir, req)
}

func (s *Service) importDir(ctx context.Context, dir string, req ImportRequest) (string, error) {
	manifest, err := readManifest(dir)
	if err != nil {
		return "", err
	}
	if manifest == nil {
		s.log.Warnw("bundle has no manifest, checksums not verified", "bundle", req.Name)
	}

	types := req.Types
	if len(types) == 0 && manifest != nil {
		types = manifest.Types
	}
	reg := s.engine.Registry()
	for _, t := range types {
		if reg.GetEntity(t) == nil {
			return "", engine.UnknownEntityError(t)
		}
	}

	run := &importRun{svc: s, dir: dir, manifest: manifest, emptied: make(map[string]bool)}
	if req.EmptyDatabaseBeforeImport {
		if err := s.engine.DeleteAll(ctx, types...); err != nil {
			return "", err
		}
		for _, t := range types {
			run.emptied[t] = true
		}
	}

	for _, entity := range types {
		if err := run.importType(ctx, entity); err != nil {
			return "", fmt.Errorf("import %s: %w", entity, err)
		}
	}
	if err := run.resolveRelationships(ctx); err != nil {
		return "", fmt.Errorf("import relationships: %w", err)
	}
	run.refresh(ctx, req, types)

	status := StatusSuccess
	if run.partial {
		status = StatusPartial
	}
	s.log.Infow("bundle imported", "bundle", req.Name, "types", types, "status", status)
	return status, nil
}

func (r *importRun) fail(msg string, keysAndValues ...any) {
	r.partial = true
	r.svc.log.Errorw(msg, keysAndValues...)
}

// importType creates or updates every record of one type file and commits
// once for the whole type.
func (r *importRun) importType(ctx context.Context, fileType string) error {
	records, err := readTypeFile(r.dir, r.manifest, fileType)
	if errors.Is(err, fs.ErrNotExist) {
		r.svc.log.Infow("type not present in bundle", "type", fileType)
		return nil
	}
	if err != nil {
		r.fail("cannot read type file", "type", fileType, "error", err)
		return nil
	}

	reg := r.svc.engine.Registry()
	var pending []deferral
	err = r.svc.engine.Store().WithTx(ctx, func(tx *sql.Tx) error {
		for _, record := range records {
			entityName := fileType
			if override, ok := record["type"].(string); ok && override != "" {
				entityName = override
			}
			delete(record, "type")
			name := strings.TrimSpace(fmt.Sprint(record["name"]))

			entity := reg.GetEntity(entityName)
			if entity == nil {
				r.fail("import failed", "type", entityName, "name", name, "error", engine.UnknownEntityError(entityName))
				continue
			}
			relations := make(map[string]any)
			for key, value := range record {
				if entity.Relationship(key) != nil {
					relations[key] = value
					delete(record, key)
				}
			}

			err := store.Savepoint(ctx, tx, "import_record", func() error {
				_, err := r.svc.engine.ImportInstance(ctx, tx, entityName, record, r.emptied[entityName])
				return err
			})
			if err != nil {
				r.fail("import failed", "type", entityName, "name", name, "error", err)
				continue
			}
			if len(relations) > 0 {
				pending = append(pending, deferral{entity: entityName, name: name, relations: relations})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.deferrals = append(r.deferrals, pending...)
	r.svc.log.Debugw("imported type", "type", fileType, "count", len(records))
	return nil
}

// resolveRelationships assigns every deferred relationship now that all
// instances exist. Targets that cannot be found are dropped.
func (r *importRun) resolveRelationships(ctx context.Context) error {
	if len(r.deferrals) == 0 {
		return nil
	}
	return r.svc.engine.Store().WithTx(ctx, func(tx *sql.Tx) error {
		for _, d := range r.deferrals {
			keys := make([]string, 0, len(d.relations))
			for key := range d.relations {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, rel := range keys {
				var missing []string
				err := store.Savepoint(ctx, tx, "import_relation", func() error {
					var err error
					missing, err = r.svc.engine.AssignRelationship(ctx, tx, d.entity, d.name, rel, d.relations[rel])
					return err
				})
				if err != nil {
					r.fail("relationship import failed", "type", d.entity, "name", d.name, "relationship", rel, "error", err)
					continue
				}
				if len(missing) > 0 {
					r.partial = true
					r.svc.log.Warnw("related instances not found", "type", d.entity, "name", d.name, "relationship", rel, "missing", missing)
				}
			}
		}
		return nil
	})
}

// refresh recomputes derived state and grouping membership once the
// imported graph is in place.
func (r *importRun) refresh(ctx context.Context, req ImportRequest, types []string) {
	e := r.svc.engine
	if !req.SkipModelUpdate {
		if _, err := e.ComputeAllDerived(ctx); err != nil {
			r.fail("derived state update failed", "error", err)
		}
		if _, err := e.PropagateAll(ctx); err != nil {
			r.fail("access propagation failed", "error", err)
		}
	}
	switch {
	case !req.SkipPoolUpdate:
		if err := e.ComputeAllGroupings(ctx); err != nil {
			r.fail("pool update failed", "error", err)
		}
	case req.UpdatePools || r.svc.settings.UpdatePoolsOnImport:
		if err := e.RefreshGroupingsOver(ctx, types...); err != nil {
			r.fail("pool update failed", "error", err)
		}
	}
}
