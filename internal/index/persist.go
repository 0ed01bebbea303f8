package index

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Two artifacts exist per model version: the vector file and the dense-id to
// passage-id mapping file.
const (
	indexFilePattern   = "index_%s.gob"
	mappingFilePattern = "mapping_%s.gob"
)

// indexFile is the on-disk form of the vector data.
type indexFile struct {
	Dim     int
	Vectors []float32
}

// mappingFile is the on-disk form of the dense-id mapping.
type mappingFile struct {
	ChunkIDs []string
}

// IndexPath returns the vector artifact path for a model version.
func IndexPath(dir, version string) string {
	return filepath.Join(dir, fmt.Sprintf(indexFilePattern, sanitizeVersion(version)))
}

// MappingPath returns the mapping artifact path for a model version.
func MappingPath(dir, version string) string {
	return filepath.Join(dir, fmt.Sprintf(mappingFilePattern, sanitizeVersion(version)))
}

// sanitizeVersion makes a model version safe to embed in a file name.
func sanitizeVersion(version string) string {
	out := []byte(version)
	for i, c := range out {
		switch c {
		case '/', '\\', ':', ' ':
			out[i] = '_'
		}
	}
	return string(out)
}

// Save writes both artifacts atomically (temp file plus rename), so a crash
// mid-write never corrupts a previously saved index.
func (f *Flat) Save(dir, version string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	f.mu.RLock()
	idx := indexFile{Dim: f.dim, Vectors: append([]float32(nil), f.vectors...)}
	mapping := mappingFile{ChunkIDs: append([]string(nil), f.chunkIDs...)}
	f.mu.RUnlock()

	if err := writeGob(IndexPath(dir, version), idx); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	if err := writeGob(MappingPath(dir, version), mapping); err != nil {
		return fmt.Errorf("saving mapping: %w", err)
	}
	return nil
}

// Load reads the artifacts for a model version. A missing index reports
// ErrNotLoaded so callers can fall back to an empty index.
func Load(dir, version string) (*Flat, error) {
	var idx indexFile
	if err := readGob(IndexPath(dir, version), &idx); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: version %q in %s", ErrNotLoaded, version, dir)
		}
		return nil, fmt.Errorf("loading index: %w", err)
	}

	var mapping mappingFile
	if err := readGob(MappingPath(dir, version), &mapping); err != nil {
		return nil, fmt.Errorf("loading mapping: %w", err)
	}

	if idx.Dim <= 0 {
		return nil, fmt.Errorf("loading index: invalid dimension %d", idx.Dim)
	}
	if len(idx.Vectors) != idx.Dim*len(mapping.ChunkIDs) {
		return nil, fmt.Errorf("loading index: %d floats do not fit %d entries of dimension %d",
			len(idx.Vectors), len(mapping.ChunkIDs), idx.Dim)
	}

	return &Flat{
		dim:      idx.Dim,
		vectors:  idx.Vectors,
		chunkIDs: mapping.ChunkIDs,
	}, nil
}

// DeleteArtifacts removes both on-disk artifacts for a model version.
// Missing files are not an error.
func DeleteArtifacts(dir, version string) error {
	for _, path := range []string{IndexPath(dir, version), MappingPath(dir, version)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}
	return nil
}

func writeGob(path string, v any) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if err := gob.NewEncoder(tmp).Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

func readGob(path string, v any) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if err := gob.NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
