package migration

import (
	"archive/tar"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

const manifestFile = "MANIFEST.yaml"

var (
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrInvalidName      = errors.New("invalid bundle name")
	ErrNoTypes          = errors.New("no types selected")

	bundleName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

// Manifest is stored at the root of every bundle and lists the BLAKE3
// checksum of each type file.
type Manifest struct {
	Name    string            `yaml:"name"`
	Created string            `yaml:"created"`
	Types   []string          `yaml:"types"`
	Files   map[string]string `yaml:"files"`
}

func newManifest(name, created string) *Manifest {
	return &Manifest{Name: name, Created: created, Files: map[string]string{}}
}

// ValidateName rejects bundle names that could escape the bundle root.
func ValidateName(name string) error {
	if !bundleName.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func typeFile(entity string) string { return entity + ".yaml" }

// writeTypeFile serializes the records of one entity type into dir and
// registers the file in the manifest.
func writeTypeFile(dir string, m *Manifest, entity string, records []map[string]any) error {
	data, err := yaml.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", entity, err)
	}
	name := typeFile(entity)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	m.Files[name] = checksum(data)
	m.Types = append(m.Types, entity)
	return nil
}

// readTypeFile loads the records of one entity type. A missing file yields
// fs.ErrNotExist. When a manifest is given the file must match its checksum.
func readTypeFile(dir string, m *Manifest, entity string) ([]map[string]any, error) {
	name := typeFile(entity)
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	if m != nil {
		if want, ok := m.Files[name]; ok && want != checksum(data) {
			return nil, fmt.Errorf("%s: %w", name, ErrChecksumMismatch)
		}
	}
	var records []map[string]any
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return records, nil
}

func writeManifest(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, manifestFile), data, 0644)
}

// readManifest returns nil without error for bundles written before
// manifests existed.
func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// Pack writes dir as a gzip-compressed tar to w. Entries are rooted at the
// directory's base name.
func Pack(dir string, w io.Writer) error {
	zw := gzip.NewWriter(w)
	tw := tar.NewWriter(zw)
	root := filepath.Base(dir)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(root, rel))
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("pack %s: %w", dir, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}
	return nil
}

// Unpack extracts a gzip-compressed tar into dest. Entries that would land
// outside dest are rejected.
func Unpack(r io.Reader, dest string) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		target := filepath.Join(dest, filepath.FromSlash(hdr.Name))
		if target != filepath.Clean(dest) && !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return fmt.Errorf("extract %s: %w", hdr.Name, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
	}
}
