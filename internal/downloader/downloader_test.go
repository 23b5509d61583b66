package downloader

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestGetServerMetadata(t *testing.T) {
	tests := []struct {
		name      string
		wantError bool
	}{
		{"gopls", false},
		{"pyright", false},
		{"typescript-language-server", false},
		{"unsupported", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := GetServerMetadata(tt.name)
			if tt.wantError {
				if !errors.Is(err, ErrUnknownServer) {
					t.Errorf("expected ErrUnknownServer, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if meta.Version == "" || meta.BinaryName == "" {
				t.Errorf("incomplete metadata: %+v", meta)
			}
			for platform, url := range meta.DownloadURLs {
				if strings.Contains(url, "{version}") {
					t.Errorf("URL still contains placeholder for %s: %s", platform, url)
				}
			}
		})
	}
}

func TestWithVersionDoesNotMutate(t *testing.T) {
	meta := serverMetadata["pyright"].WithVersion("9.9.9")
	url, ok := meta.DownloadURL()
	if !ok || !strings.Contains(url, "pyright-9.9.9.tgz") {
		t.Errorf("unexpected url %q", url)
	}
	if serverMetadata["pyright"].Version == "9.9.9" {
		t.Error("WithVersion modified the shared metadata")
	}
}

func TestServerForLanguage(t *testing.T) {
	for lang, want := range map[string]string{
		"go":         "gopls",
		"python":     "pyright",
		"tsx":        "typescript-language-server",
		"javascript": "typescript-language-server",
	} {
		got, err := ServerForLanguage(lang)
		if err != nil || got != want {
			t.Errorf("ServerForLanguage(%s) = %s, %v; want %s", lang, got, err, want)
		}
	}
	if _, err := ServerForLanguage("cobol"); err == nil {
		t.Error("expected error for unknown language")
	}
}

func TestGetPlatformKey(t *testing.T) {
	expected := runtime.GOOS + "-" + runtime.GOARCH
	if platform := GetPlatformKey(); platform != expected {
		t.Errorf("expected %s, got %s", expected, platform)
	}
}

func TestGetCacheDir(t *testing.T) {
	t.Setenv("CODEGRAPH_CACHE_DIR", "/tmp/cg")
	cacheDir, err := GetCacheDir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cacheDir != filepath.Join("/tmp/cg", "lsp") {
		t.Errorf("unexpected cache dir %s", cacheDir)
	}
}

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFindPriority(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits")
	}
	binDir := t.TempDir()
	t.Setenv("PATH", binDir)
	d, err := New(Options{CacheDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := d.Find("gopls", ""); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("expected ErrNotInstalled, got %v", err)
	}

	custom := writeExecutable(t, t.TempDir(), "my-gopls")
	cmd, err := d.Find("gopls", custom)
	if err != nil || cmd.Path != custom || cmd.Source != "custom" {
		t.Errorf("custom: got %+v, %v", cmd, err)
	}

	onPath := writeExecutable(t, binDir, "gopls")
	cmd, err = d.Find("gopls", "")
	if err != nil || cmd.Path != onPath || cmd.Source != "path" {
		t.Errorf("path: got %+v, %v", cmd, err)
	}

	cmd, err = d.Find("gopls", "/does/not/exist")
	if err != nil || cmd.Source != "path" {
		t.Errorf("missing custom path should fall back: %+v, %v", cmd, err)
	}
}

func TestFindCachedScriptUsesInterpreter(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	cache := t.TempDir()
	entry := filepath.Join(cache, "pyright", "1.0.0", "package", "langserver.index.js")
	if err := os.MkdirAll(filepath.Dir(entry), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(entry, []byte("//"), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := New(Options{CacheDir: cache})
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := d.Find("pyright", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Path != "node" || cmd.Source != "cache" {
		t.Errorf("unexpected command %+v", cmd)
	}
	if len(cmd.Args) != 2 || cmd.Args[0] != entry || cmd.Args[1] != "--stdio" {
		t.Errorf("unexpected args %v", cmd.Args)
	}
}

func npmTarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDownloadAndInstallExtractsPackage(t *testing.T) {
	archive := npmTarball(t, map[string]string{
		"package/langserver.index.js":      "require('./dist/pyright-langserver')",
		"package/dist/pyright-langserver.js": "// server",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	cache := t.TempDir()
	d, err := New(Options{CacheDir: cache, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatal(err)
	}
	meta := serverMetadata["pyright"].WithVersion("1.2.3")
	meta.DownloadURLs = map[string]string{platformAny: srv.URL + "/pyright-1.2.3.tgz"}

	entry, err := d.downloadAndInstall(context.Background(), meta)
	if err != nil {
		t.Fatalf("downloadAndInstall: %v", err)
	}
	if want := filepath.Join(cache, "pyright", "1.2.3", "package", "langserver.index.js"); entry != want {
		t.Errorf("entry = %s, want %s", entry, want)
	}
	if _, err := os.Stat(filepath.Join(cache, "pyright", "1.2.3", "package", "dist", "pyright-langserver.js")); err != nil {
		t.Errorf("sibling files should be extracted: %v", err)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	archive := npmTarball(t, map[string]string{"../evil.js": "x"})
	path := filepath.Join(t.TempDir(), "a.tgz")
	if err := os.WriteFile(path, archive, 0o644); err != nil {
		t.Fatal(err)
	}
	dest := t.TempDir()
	meta := serverMetadata["pyright"].WithVersion("1")
	if err := extractTarGz(path, dest, meta, filepath.Join(dest, "entry")); err == nil {
		t.Error("expected traversal error")
	}
}

func TestDownloadFileRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	d, err := New(Options{CacheDir: t.TempDir(), HTTPClient: srv.Client()})
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.CreateTemp(t.TempDir(), "dl")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := d.downloadFile(context.Background(), srv.URL, f); err != nil {
		t.Fatalf("downloadFile: %v", err)
	}
	data, _ := os.ReadFile(f.Name())
	if string(data) != "payload" || calls != 2 {
		t.Errorf("got %q after %d calls", data, calls)
	}
}

func TestEnsureWithoutDownloadReportsHint(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	d, err := New(Options{CacheDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	_, err = d.Ensure(context.Background(), "typescript-language-server", "")
	if !errors.Is(err, ErrNotInstalled) || !strings.Contains(err.Error(), "npm install") {
		t.Errorf("unexpected error: %v", err)
	}
}
