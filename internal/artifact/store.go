// Package artifact persists the files a graph build produces: one PNG per
// visited node and the projected graph.json, grouped under a build directory.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned when an artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// Store defines operations for persisting build artifacts.
type Store interface {
	Put(ctx context.Context, dir, name string, content []byte) error
	Get(ctx context.Context, dir, name string) ([]byte, error)
	List(ctx context.Context, dir string) ([]string, error)
}

func validate(dir, name string) (string, string, error) {
	dir = strings.TrimSpace(dir)
	name = strings.TrimSpace(name)
	if dir == "" {
		return "", "", fmt.Errorf("artifact dir is required")
	}
	if name == "" {
		return "", "", fmt.Errorf("artifact name is required")
	}
	return dir, name, nil
}

func objectKey(dir, name string) string {
	clean := strings.TrimLeft(path.Clean("/"+strings.TrimSpace(name)), "/")
	return strings.TrimSpace(dir) + "/" + clean
}
