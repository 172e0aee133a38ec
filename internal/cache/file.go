package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"
	"github.com/rs/zerolog"

	"github.com/naka-gawa/loc-stats/internal/domain"
)

const (
	lz4Extension = ".lz4"
	dirPerm      = 0o750
	filePerm     = 0o644
)

// FileStore keeps the cache in a JSON document. Paths ending in .lz4 are
// written as an lz4 frame.
type FileStore struct {
	Path   string
	logger zerolog.Logger
}

// NewFileStore creates a file-backed store.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{Path: path, logger: logger}
}

func (s *FileStore) compressed() bool {
	return strings.HasSuffix(s.Path, lz4Extension)
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context) (domain.Cache, error) {
	raw, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info().Str("path", s.Path).Msg("no cache file, starting empty")
		return domain.NewCache(), nil
	}
	if err != nil {
		return domain.NewCache(), fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var r io.Reader = bytes.NewReader(raw)
	if s.compressed() {
		r = lz4.NewReader(r)
	}

	var c domain.Cache
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		s.logger.Warn().Err(err).Str("path", s.Path).Msg("cache corrupt, starting empty")
		return domain.NewCache(), nil
	}
	return normalize(c), nil
}

// Save implements Store. The document is written to a temporary file in the
// same directory, synced and renamed over the target.
func (s *FileStore) Save(_ context.Context, c domain.Cache) (err error) {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := s.encode(tmp, c); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), filePerm); err != nil {
		return fmt.Errorf("chmod cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

func (s *FileStore) encode(w io.Writer, c domain.Cache) error {
	if s.compressed() {
		zw := lz4.NewWriter(w)
		if err := writeJSON(zw, c); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("lz4 close: %w", err)
		}
		return nil
	}
	return writeJSON(w, c)
}

func writeJSON(w io.Writer, c domain.Cache) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	return nil
}
