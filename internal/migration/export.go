package migration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ExportRequest selects the entity types written to a bundle.
type ExportRequest struct {
	Name                    string   `json:"name"`
	Types                   []string `json:"import_export_types"`
	ExportPrivateProperties bool     `json:"export_private_properties"`
}

// Export writes one file per requested type into a bundle directory, packs
// it into <name>.tgz under the migration root and removes the directory.
// Private properties are written in clear text only when requested.
func (s *Service) Export(ctx context.Context, req ExportRequest) (string, error) {
	if err := ValidateName(req.Name); err != nil {
		return "", err
	}
	if len(req.Types) == 0 {
		return "", fmt.Errorf("export %s: %w", req.Name, ErrNoTypes)
	}
	unlock := s.locks.Lock(req.Name)
	defer unlock()

	dir := filepath.Join(s.settings.MigrationPath, req.Name)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear bundle dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create bundle dir: %w", err)
	}
	defer os.RemoveAll(dir)

	manifest := newManifest(req.Name, s.created())
	for _, entity := range req.Types {
		records, err := s.engine.ExportRecords(ctx, entity, nil, req.ExportPrivateProperties)
		if err != nil {
			return "", fmt.Errorf("export %s: %w", entity, err)
		}
		if err := writeTypeFile(dir, manifest, entity, records); err != nil {
			return "", err
		}
		s.log.Debugw("exported type", "bundle", req.Name, "type", entity, "count", len(records))
	}
	if err := writeManifest(dir, manifest); err != nil {
		return "", err
	}

	path, err := s.archive(ctx, s.bundles, dir, req.Name)
	if err != nil {
		return "", err
	}
	if req.ExportPrivateProperties {
		s.log.Warnw("bundle contains private properties in clear text", "bundle", req.Name, "path", path)
	}
	s.log.Infow("bundle exported", "bundle", req.Name, "types", req.Types, "path", path)
	return path, nil
}
