package downloader

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// ErrNotInstalled is returned when a server cannot be found or fetched.
var ErrNotInstalled = errors.New("language server not installed")

// Command is a resolved way to launch a server.
type Command struct {
	Path string
	Args []string
	// Source says where the server was found: custom, path, cache or download.
	Source string
}

// Options configures a Downloader.
type Options struct {
	CacheDir      string
	AllowDownload bool
	Logger        *slog.Logger
	HTTPClient    *http.Client
}

// Downloader finds language servers and caches downloaded ones.
type Downloader struct {
	cacheDir      string
	allowDownload bool
	client        *http.Client
	logger        *slog.Logger
}

// New creates a Downloader, defaulting to GetCacheDir.
func New(opts Options) (*Downloader, error) {
	cacheDir := opts.CacheDir
	if cacheDir == "" {
		dir, err := GetCacheDir()
		if err != nil {
			return nil, fmt.Errorf("get cache dir: %w", err)
		}
		cacheDir = dir
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{
		cacheDir:      cacheDir,
		allowDownload: opts.AllowDownload,
		client:        client,
		logger:        logger,
	}, nil
}

// CacheDir returns the directory downloads are kept in.
func (d *Downloader) CacheDir() string { return d.cacheDir }

// GetCacheDir returns the cache directory for language servers.
// Priority: $CODEGRAPH_CACHE_DIR -> $XDG_CACHE_HOME/codegraph/lsp -> ~/.cache/codegraph/lsp
func GetCacheDir() (string, error) {
	if dir := os.Getenv("CODEGRAPH_CACHE_DIR"); dir != "" {
		return filepath.Join(dir, "lsp"), nil
	}

	if runtime.GOOS != "windows" {
		if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
			return filepath.Join(xdgCache, "codegraph", "lsp"), nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(home, "AppData", "Local", "codegraph", "lsp"), nil
	}
	return filepath.Join(home, ".cache", "codegraph", "lsp"), nil
}

// Find looks for a server without downloading. Priority:
// 1. customPath (if provided and exists)
// 2. System PATH
// 3. Cache directory
func (d *Downloader) Find(name, customPath string) (Command, error) {
	meta, err := GetServerMetadata(name)
	if err != nil {
		return Command{}, err
	}
	log := d.logger.With(slog.String("server", name))

	if customPath != "" {
		if _, err := os.Stat(customPath); err == nil {
			log.Debug("using custom server path", slog.String("path", customPath))
			return d.command(meta, customPath, "custom"), nil
		}
		if p, err := findInPath(customPath); err == nil {
			return d.command(meta, p, "custom"), nil
		}
		log.Warn("custom server path not found, falling back", slog.String("path", customPath))
	}

	if systemPath, err := findInPath(meta.BinaryName); err == nil {
		log.Debug("using system server", slog.String("path", systemPath))
		return Command{Path: systemPath, Args: meta.Args, Source: "path"}, nil
	}

	if cached, ok := d.findCached(meta); ok {
		log.Debug("using cached server", slog.String("path", cached))
		return d.command(meta, cached, "cache"), nil
	}

	return Command{}, d.notInstalled(meta)
}

// Ensure is Find followed by a download into the cache when allowed.
func (d *Downloader) Ensure(ctx context.Context, name, customPath string) (Command, error) {
	cmd, err := d.Find(name, customPath)
	if err == nil || !errors.Is(err, ErrNotInstalled) || !d.allowDownload {
		return cmd, err
	}

	meta, _ := GetServerMetadata(name)
	if _, ok := meta.DownloadURL(); !ok {
		return Command{}, d.notInstalled(meta)
	}
	if meta.VersionResolver != nil {
		if v, err := meta.VersionResolver.ResolveLatestVersion(ctx); err == nil {
			meta = serverMetadata[name].WithVersion(v)
		} else {
			d.logger.Warn("version resolution failed, using fallback",
				slog.String("server", name), slog.String("version", meta.Version), slog.String("error", err.Error()))
		}
	}

	d.logger.Info("downloading language server", slog.String("server", name), slog.String("version", meta.Version))
	entry, err := d.downloadAndInstall(ctx, meta)
	if err != nil {
		return Command{}, fmt.Errorf("download %s: %w", meta.Name, err)
	}
	return d.command(meta, entry, "download"), nil
}

func (d *Downloader) notInstalled(meta *ServerMetadata) error {
	if meta.InstallHint != "" {
		return fmt.Errorf("%w: %s (install with: %s)", ErrNotInstalled, meta.Name, meta.InstallHint)
	}
	return fmt.Errorf("%w: %s", ErrNotInstalled, meta.Name)
}

// command wraps script entries in their interpreter.
func (d *Downloader) command(meta *ServerMetadata, path, source string) Command {
	if meta.Interpreter != "" && (strings.HasSuffix(path, ".js") || strings.HasSuffix(path, ".mjs")) {
		args := append([]string{path}, meta.Args...)
		return Command{Path: meta.Interpreter, Args: args, Source: source}
	}
	return Command{Path: path, Args: meta.Args, Source: source}
}

// entryPath is where the entry file of a version lives in the cache.
func (d *Downloader) entryPath(meta *ServerMetadata) string {
	versionDir := filepath.Join(d.cacheDir, meta.Name, meta.Version)
	if meta.IsArchive && meta.ExtractAll {
		return filepath.Join(versionDir, filepath.FromSlash(meta.ArchivePath))
	}
	binaryName := meta.BinaryName
	if runtime.GOOS == "windows" {
		binaryName += ".exe"
	}
	return filepath.Join(versionDir, binaryName)
}

// findCached returns the entry of the newest cached version.
func (d *Downloader) findCached(meta *ServerMetadata) (string, bool) {
	entries, err := os.ReadDir(filepath.Join(d.cacheDir, meta.Name))
	if err != nil {
		return "", false
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))
	for _, v := range versions {
		p := d.entryPath(serverMetadata[meta.Name].WithVersion(v))
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// downloadAndInstall downloads a server and returns its entry path.
func (d *Downloader) downloadAndInstall(ctx context.Context, meta *ServerMetadata) (string, error) {
	downloadURL, _ := meta.DownloadURL()
	versionDir := filepath.Join(d.cacheDir, meta.Name, meta.Version)
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return "", fmt.Errorf("create version dir: %w", err)
	}

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("codegraph-lsp-%s-*", meta.Name))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	if err := d.downloadFile(ctx, downloadURL, tmpFile); err != nil {
		return "", err
	}

	platform := GetPlatformKey()
	if checksum := meta.Checksums[platform]; checksum != "" {
		if err := verifyChecksum(tmpFile.Name(), checksum); err != nil {
			return "", fmt.Errorf("checksum verification failed: %w", err)
		}
	}

	entry := d.entryPath(meta)
	if !meta.IsArchive {
		if err := copyFile(tmpFile.Name(), entry); err != nil {
			return "", fmt.Errorf("copy binary: %w", err)
		}
		return entry, os.Chmod(entry, 0o755)
	}

	if strings.HasSuffix(downloadURL, ".zip") {
		err = extractZip(tmpFile.Name(), versionDir, meta, entry)
	} else {
		err = extractTarGz(tmpFile.Name(), versionDir, meta, entry)
	}
	if err != nil {
		return "", fmt.Errorf("extraction failed: %w", err)
	}
	return entry, nil
}

// downloadFile downloads a file with retries.
func (d *Downloader) downloadFile(ctx context.Context, url string, dest *os.File) error {
	const maxRetries = 3
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt*attempt) * 100 * time.Millisecond
			d.logger.Debug("retrying download", slog.Int("attempt", attempt), slog.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %s", resp.Status)
			continue
		}

		if _, err := dest.Seek(0, io.SeekStart); err != nil {
			resp.Body.Close()
			return err
		}
		if err := dest.Truncate(0); err != nil {
			resp.Body.Close()
			return err
		}
		_, err = io.Copy(dest, resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("download failed after %d attempts: %w", maxRetries, lastErr)
}

// safeJoin keeps archive entries inside dir.
func safeJoin(dir, name string) (string, error) {
	p := filepath.Join(dir, filepath.FromSlash(name))
	if p != dir && !strings.HasPrefix(p, dir+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry escapes destination: %s", name)
	}
	return p, nil
}

func matchesEntry(name string, meta *ServerMetadata) bool {
	return name == meta.ArchivePath || strings.HasSuffix(name, "/"+meta.ArchivePath)
}

// extractTarGz unpacks a .tar.gz archive, or only its entry file.
func extractTarGz(archivePath, destDir string, meta *ServerMetadata, entry string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	found := false
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("tar read error: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		if meta.ExtractAll {
			dest, err := safeJoin(destDir, header.Name)
			if err != nil {
				return err
			}
			if err := extractFile(tr, dest, header.FileInfo().Mode()); err != nil {
				return err
			}
			found = found || matchesEntry(header.Name, meta)
			continue
		}
		if matchesEntry(header.Name, meta) {
			return extractFile(tr, entry, header.FileInfo().Mode())
		}
	}
	if !found {
		return fmt.Errorf("entry not found in archive: %s", meta.ArchivePath)
	}
	return nil
}

// extractZip unpacks a .zip archive, or only its entry file.
func extractZip(archivePath, destDir string, meta *ServerMetadata, entry string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	found := false
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		dest := entry
		if meta.ExtractAll {
			if dest, err = safeJoin(destDir, f.Name); err != nil {
				return err
			}
		} else if !matchesEntry(f.Name, meta) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = extractFile(rc, dest, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
		found = found || matchesEntry(f.Name, meta)
		if !meta.ExtractAll {
			return nil
		}
	}
	if !found {
		return fmt.Errorf("entry not found in archive: %s", meta.ArchivePath)
	}
	return nil
}

// extractFile writes a single file from a reader.
func extractFile(r io.Reader, destPath string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode|0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if runtime.GOOS != "windows" {
		return os.Chmod(destPath, 0o755)
	}
	return nil
}

// verifyChecksum verifies the SHA256 checksum of a file.
func verifyChecksum(filePath, expectedChecksum string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	actual := hex.EncodeToString(h.Sum(nil))
	if actual != expectedChecksum {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expectedChecksum, actual)
	}
	return nil
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// findInPath searches for a binary in the system PATH.
func findInPath(binaryName string) (string, error) {
	if runtime.GOOS == "windows" && !strings.HasSuffix(binaryName, ".exe") {
		binaryName += ".exe"
	}

	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		fullPath := filepath.Join(dir, binaryName)
		if info, err := os.Stat(fullPath); err == nil && !info.IsDir() {
			if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
				continue
			}
			return fullPath, nil
		}
	}
	return "", fmt.Errorf("%s not found in PATH", binaryName)
}
