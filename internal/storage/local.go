package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ArchiveExt is the suffix of every stored archive.
const ArchiveExt = ".tgz"

// LocalStorage stores archives as <basePath>/<name>.tgz.
type LocalStorage struct {
	basePath string
}

func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

func (s *LocalStorage) BasePath() string { return s.basePath }

// Path returns the storage path of the named archive.
func (s *LocalStorage) Path(name string) string {
	return filepath.Join(s.basePath, name+ArchiveExt)
}

func (s *LocalStorage) Save(_ context.Context, name string, reader io.Reader) (string, error) {
	if err := os.MkdirAll(s.basePath, 0755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	// Write next to the target and rename so readers never see a partial archive.
	tmp, err := os.CreateTemp(s.basePath, "."+name+"-*"+ArchiveExt)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}

	storagePath := s.Path(name)
	if err := os.Rename(tmp.Name(), storagePath); err != nil {
		return "", fmt.Errorf("rename file: %w", err)
	}
	return storagePath, nil
}

func (s *LocalStorage) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", name, err)
	}
	return f, nil
}

func (s *LocalStorage) Delete(_ context.Context, name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove archive: %w", err)
	}
	return nil
}

func (s *LocalStorage) List(_ context.Context) ([]ArchiveInfo, error) {
	entries, err := os.ReadDir(s.basePath)
	if errors.Is(err, fs.ErrNotExist) {
		return []ArchiveInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	archives := []ArchiveInfo{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ArchiveExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		archives = append(archives, ArchiveInfo{
			Name:     strings.TrimSuffix(name, ArchiveExt),
			Path:     filepath.Join(s.basePath, name),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(archives, func(i, j int) bool { return archives[i].Name < archives[j].Name })
	return archives, nil
}
