package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/flemzord/sitterd/internal/blob"
)

// Store keeps objects as files below a root directory. Keys may contain
// slashes; they map to subdirectories.
type Store struct {
	root string
}

var _ blob.Store = (*Store)(nil)

// NewStore creates the root directory if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("blob.fs: create root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// path resolves key below root and rejects keys escaping it.
func (s *Store) path(key string) (string, error) {
	if key == "" {
		return "", errors.New("blob.fs: empty key")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("blob.fs: key %q escapes root", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put implements blob.Store. Content is written to a temp file and renamed
// into place.
func (s *Store) Put(_ context.Context, key string, r io.Reader) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("blob.fs: put %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("blob.fs: put %s: %w", key, err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("blob.fs: put %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("blob.fs: put %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("blob.fs: put %s: %w", key, err)
	}
	return nil
}

// Exists implements blob.Store.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, iofs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("blob.fs: stat %s: %w", key, err)
	}
}

// Delete implements blob.Store.
func (s *Store) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return fmt.Errorf("%w: %s", blob.ErrNotFound, key)
		}
		return fmt.Errorf("blob.fs: delete %s: %w", key, err)
	}
	return nil
}
