package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FSStore writes artifacts below a root directory on disk.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed.
func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Root returns the directory artifacts are written under.
func (s *FSStore) Root() string { return s.root }

func (s *FSStore) path(dir, name string) string {
	return filepath.Join(s.root, filepath.FromSlash(objectKey(dir, name)))
}

func (s *FSStore) Put(ctx context.Context, dir, name string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, name, err := validate(dir, name)
	if err != nil {
		return err
	}
	target := s.path(dir, name)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, dir, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, name, err := validate(dir, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *FSStore) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := filepath.Join(s.root, filepath.FromSlash(dir))
	var names []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
