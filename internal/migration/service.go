package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"nms-backend/internal/engine"
	"nms-backend/internal/storage"
)

// Service exports and imports migration bundles and packaged units.
type Service struct {
	engine   *engine.Engine
	settings engine.Settings
	bundles  storage.ArchiveStorage
	units    storage.ArchiveStorage
	locks    *Locker
	log      *zap.SugaredLogger
	now      func() time.Time
}

// NewService stores bundle archives under settings.MigrationPath and unit
// archives under settings.UnitsPath.
func NewService(e *engine.Engine, settings engine.Settings, log *zap.SugaredLogger) *Service {
	return &Service{
		engine:   e,
		settings: settings,
		bundles:  storage.NewLocalStorage(settings.MigrationPath),
		units:    storage.NewLocalStorage(settings.UnitsPath),
		locks:    NewLocker(),
		log:      log,
		now:      time.Now,
	}
}

// ListBundles returns the bundle archives available for import.
func (s *Service) ListBundles(ctx context.Context) ([]storage.ArchiveInfo, error) {
	return s.bundles.List(ctx)
}

// ListUnits returns the packaged units available for import.
func (s *Service) ListUnits(ctx context.Context) ([]storage.ArchiveInfo, error) {
	return s.units.List(ctx)
}

func (s *Service) created() string {
	return s.now().UTC().Format(time.RFC3339)
}

// archive packs dir and stores it under name.
func (s *Service) archive(ctx context.Context, store storage.ArchiveStorage, dir, name string) (string, error) {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(Pack(dir, pw))
	}()
	path, err := store.Save(ctx, name, pr)
	pr.Close()
	if err != nil {
		return "", fmt.Errorf("store archive %s: %w", name, err)
	}
	return path, nil
}

// openBundle returns the directory holding the named bundle. A loose
// directory under the migration root is used as is; otherwise the stored
// archive is unpacked to a temporary directory removed by cleanup.
func (s *Service) openBundle(ctx context.Context, name string) (dir string, cleanup func(), err error) {
	dir = filepath.Join(s.settings.MigrationPath, name)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir, func() {}, nil
	}
	rc, err := s.bundles.Open(ctx, name)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil, engine.NotFoundError("migration bundle", name)
	}
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()
	return unpackTemp(rc, name)
}

func unpackTemp(r io.Reader, name string) (string, func(), error) {
	tmp, err := os.MkdirTemp("", "nms-bundle-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(tmp) }
	if err := Unpack(r, tmp); err != nil {
		cleanup()
		return "", nil, err
	}
	dir := filepath.Join(tmp, name)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		cleanup()
		return "", nil, fmt.Errorf("archive does not contain a %s directory", name)
	}
	return dir, cleanup, nil
}
