// Package snapshot stores terminal snapshots as gzip-compressed JSON files.
package snapshot

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"

	"github.com/xenking/oolio-pos/internal/domain/session"
)

const fileSuffix = ".json.gz"

var _ session.Repository = (*FileRepository)(nil)

// FileRepository keeps one file per terminal under a directory. Saves write
// a temporary file, fsync it and rename it over the previous snapshot, so a
// crash leaves either the old or the new snapshot, never a torn one.
type FileRepository struct {
	dir string
}

// NewFileRepository creates dir if needed.
func NewFileRepository(dir string) (*FileRepository, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrap(err, "create snapshot dir")
	}
	return &FileRepository{dir: dir}, nil
}

// Dir returns the snapshot directory.
func (r *FileRepository) Dir() string { return r.dir }

func (r *FileRepository) path(terminalID string) string {
	return filepath.Join(r.dir, terminalID+fileSuffix)
}

// Load reads the snapshot of terminalID.
func (r *FileRepository) Load(_ context.Context, terminalID string) (*session.Snapshot, error) {
	f, err := os.Open(r.path(terminalID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, session.ErrNoSnapshot
	}
	if err != nil {
		return nil, errors.Wrap(err, "open snapshot")
	}
	defer func() { _ = f.Close() }()

	zr, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = zr.Close() }()

	var dto fileDTO
	if err := json.NewDecoder(zr).Decode(&dto); err != nil {
		return nil, errors.Wrap(err, "decode snapshot")
	}
	return dto.snapshot()
}

// Save replaces the snapshot of s.TerminalID atomically.
func (r *FileRepository) Save(_ context.Context, s *session.Snapshot) (rerr error) {
	tmp, err := os.CreateTemp(r.dir, s.TerminalID+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() {
		if rerr != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	zw := pgzip.NewWriter(tmp)
	if err := json.NewEncoder(zw).Encode(toFile(s)); err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "flush gzip")
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrap(err, "fsync")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Rename(tmp.Name(), r.path(s.TerminalID)); err != nil {
		return errors.Wrap(err, "rename snapshot")
	}
	return nil
}

// Clear removes the snapshot of terminalID. A missing file is not an error.
func (r *FileRepository) Clear(_ context.Context, terminalID string) error {
	err := os.Remove(r.path(terminalID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "remove snapshot")
	}
	return nil
}
