package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

type unitNode struct {
	entity string
	id     int64
}

// ExportUnit packages one instance and everything reachable from it through
// the unit traversal relationships of each visited type into <name>.tgz
// under the units root.
func (s *Service) ExportUnit(ctx context.Context, entityName, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	rootID, err := s.engine.LookupID(ctx, entityName, name)
	if err != nil {
		return "", err
	}
	selected, err := s.collectUnit(ctx, unitNode{entity: entityName, id: rootID})
	if err != nil {
		return "", err
	}

	staging := filepath.Join(os.TempDir(), "nms-unit-"+uuid.NewString())
	defer os.RemoveAll(staging)
	dir := filepath.Join(staging, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}

	types := make([]string, 0, len(selected))
	for t := range selected {
		types = append(types, t)
	}
	sort.Strings(types)

	manifest := newManifest(name, s.created())
	for _, t := range types {
		records, err := s.engine.ExportRecords(ctx, t, selected[t], false)
		if err != nil {
			return "", fmt.Errorf("export %s: %w", t, err)
		}
		if err := writeTypeFile(dir, manifest, t, records); err != nil {
			return "", err
		}
	}
	if err := writeManifest(dir, manifest); err != nil {
		return "", err
	}

	path, err := s.archive(ctx, s.units, dir, name)
	if err != nil {
		return "", err
	}
	s.log.Infow("unit exported", "type", entityName, "name", name, "path", path)
	return path, nil
}

// collectUnit walks the unit traversal relationships breadth first and
// returns the visited ids per type.
func (s *Service) collectUnit(ctx context.Context, root unitNode) (map[string][]int64, error) {
	reg := s.engine.Registry()
	seen := map[unitNode]bool{root: true}
	selected := make(map[string][]int64)
	queue := []unitNode{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		selected[node.entity] = append(selected[node.entity], node.id)

		entity := reg.GetEntity(node.entity)
		if entity == nil || entity.Unit == nil {
			continue
		}
		for _, rel := range entity.Unit.Traverse {
			target, ids, err := s.engine.Related(ctx, node.entity, node.id, rel)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				next := unitNode{entity: target, id: id}
				if !seen[next] {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}
	}
	return selected, nil
}

// ImportUnit imports a packaged unit stored under the units root.
func (s *Service) ImportUnit(ctx context.Context, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	rc, err := s.units.Open(ctx, name)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return s.ImportUnitFrom(ctx, name, rc)
}

// ImportUnitFrom imports a packaged unit read from r. Derived state and full
// grouping recomputation are skipped; only groupings over the imported
// types are refreshed.
func (s *Service) ImportUnitFrom(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	unlock := s.locks.Lock("unit/" + name)
	defer unlock()

	dir, cleanup, err := unpackTemp(r, name)
	if err != nil {
		return "", err
	}
	defer cleanup()

	manifest, err := readManifest(dir)
	if err != nil {
		return "", err
	}
	if manifest == nil {
		return "", fmt.Errorf("unit %s has no manifest", name)
	}
	return s.importDir(ctx, dir, ImportRequest{
		Name:            name,
		Types:           manifest.Types,
		SkipModelUpdate: true,
		SkipPoolUpdate:  true,
		UpdatePools:     true,
	})
}
