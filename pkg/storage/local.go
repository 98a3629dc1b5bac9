package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local implements FileStore on the local filesystem. Writes go to a
// temporary file that is renamed into place on Close, so readers never see
// a half-written artifact.
type Local struct {
	root string
}

var _ FileStore = (*Local)(nil)

// NewLocal creates a Local store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute directory backing the store.
func (l *Local) Root() string { return l.root }

// Path returns the filesystem path for a store path.
func (l *Local) Path(name string) string {
	return filepath.Join(l.root, filepath.FromSlash(name))
}

// Read implements FileStore.
func (l *Local) Read(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(l.Path(name))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Write implements FileStore.
func (l *Local) Write(_ context.Context, name string) (io.WriteCloser, error) {
	full := l.Path(name)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".*")
	if err != nil {
		return nil, err
	}
	return &renameOnClose{File: tmp, target: full}, nil
}

// Delete implements FileStore.
func (l *Local) Delete(_ context.Context, name string) error {
	err := os.Remove(l.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Exists implements FileStore.
func (l *Local) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(l.Path(name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

type renameOnClose struct {
	*os.File
	target string
	closed bool
}

func (w *renameOnClose) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.File.Close(); err != nil {
		os.Remove(w.File.Name())
		return err
	}
	if err := os.Rename(w.File.Name(), w.target); err != nil {
		os.Remove(w.File.Name())
		return err
	}
	return nil
}
