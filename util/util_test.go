package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashValueIgnoresKeyOrder(t *testing.T) {
	a := map[string]any{"kind": "call_expression", "children": []any{"x", 1}}
	b := map[string]any{"children": []any{"x", 1}, "kind": "call_expression"}

	ha, err := HashValue(a)
	require.NoError(t, err)
	hb, err := HashValue(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)

	hc, err := HashValue(map[string]any{"kind": "identifier"})
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", ShortID("abc"))
	assert.Equal(t, "0123456789ab", ShortID("0123456789abcdef"))
}

func TestURIRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dir with space", "main.ts")
	uri := PathToURI(path)
	assert.Contains(t, uri, "file://")
	assert.Contains(t, uri, "dir%20with%20space")
	assert.Equal(t, path, URIToPath(uri))
}

func TestPathFragment(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"file:///repo/src/builder/index.ts", "builder-index"},
		{"file:///main.go", "main"},
		{"file:///a/b/c.d/e.py", "c.d-e"},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, PathFragment(tt.uri))
		})
	}
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "a_b-c", SanitizeName("a/b-c"))
	assert.Equal(t, "_", SanitizeName(""))
}

func TestFindWorkspaceRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "pkg", "inner")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o644))
	file := filepath.Join(nested, "f.go")
	require.NoError(t, os.WriteFile(file, []byte("package inner\n"), 0o644))

	got, err := FindWorkspaceRoot(file)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	got, err = FindWorkspaceRoot(nested, "does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, nested, got)
}
