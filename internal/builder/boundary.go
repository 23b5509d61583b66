package builder

import (
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"codegraph/util"
)

// DefaultExcludes are the vendored or installed code locations a build never
// descends into.
var DefaultExcludes = []string{
	"node_modules/",
	"vendor/",
	".venv/",
	"venv/",
	"site-packages/",
	"dist-packages/",
}

// Boundary decides which definition targets are outside the code being
// graphed. Patterns use gitignore syntax relative to the workspace root.
type Boundary struct {
	root    string
	matcher *ignore.GitIgnore
}

// NewBoundary builds a boundary. An empty root disables the
// outside-the-workspace check.
func NewBoundary(root string, patterns ...string) *Boundary {
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	return &Boundary{
		root:    root,
		matcher: ignore.CompileIgnoreLines(patterns...),
	}
}

// Excluded reports whether the file behind uri must not be visited.
func (b *Boundary) Excluded(uri string) bool {
	if b == nil {
		return false
	}
	path := filepath.Clean(util.URIToPath(uri))
	rel := path
	if b.root != "" {
		r, err := filepath.Rel(b.root, path)
		if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			return true
		}
		rel = r
	}
	return b.matcher.MatchesPath(filepath.ToSlash(rel))
}
