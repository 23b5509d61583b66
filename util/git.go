package util

import (
	"os"
	"path/filepath"
)

// DefaultRootMarkers are the files whose presence marks a workspace root.
var DefaultRootMarkers = []string{".git", "go.mod", "package.json", "pyproject.toml"}

// FindWorkspaceRoot walks up from start looking for one of the markers.
// Returns start itself (made absolute) if no marker is found.
func FindWorkspaceRoot(start string, markers ...string) (string, error) {
	if len(markers) == 0 {
		markers = DefaultRootMarkers
	}
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	origin := dir

	for {
		for _, m := range markers {
			if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return origin, nil
		}
		dir = parent
	}
}
