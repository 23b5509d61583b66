package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"codegraph/internal/graph"
	"codegraph/util"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrRangeNotFound     = errors.New("range not found")
	ErrFileTextNotFound  = errors.New("file text not found")
	defaultCacheCapacity = 256
)

// Source is the text of one function together with its containing file.
type Source struct {
	URI          string
	FunctionText string
	FileText     string
	Lines        *LineIndex
}

// Document is a cached file.
type Document struct {
	URI     string
	Path    string
	Lines   *LineIndex
	modTime time.Time
	size    int64
}

// FileExtractor reads function and file text from the local filesystem.
type FileExtractor struct {
	cache  *lru.Cache[string, *Document]
	logger *slog.Logger
}

// NewFileExtractor creates an extractor caching up to capacity documents.
func NewFileExtractor(capacity int, logger *slog.Logger) (*FileExtractor, error) {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, *Document](capacity)
	if err != nil {
		return nil, fmt.Errorf("create document cache: %w", err)
	}
	return &FileExtractor{cache: cache, logger: logger}, nil
}

// Document returns the file behind uri, re-reading it when it changed on disk.
func (e *FileExtractor) Document(ctx context.Context, uri string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := util.URIToPath(uri)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, uri)
	}

	if doc, ok := e.cache.Get(uri); ok && doc.modTime.Equal(info.ModTime()) && doc.size == info.Size() {
		return doc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDocumentNotFound, uri, err)
	}
	doc := &Document{
		URI:     uri,
		Path:    path,
		Lines:   NewLineIndex(string(data)),
		modTime: info.ModTime(),
		size:    info.Size(),
	}
	e.cache.Add(uri, doc)
	e.logger.Debug("document loaded", slog.String("uri", uri), slog.Int("bytes", len(data)))
	return doc, nil
}

// Extract returns the text of loc and of its whole file.
func (e *FileExtractor) Extract(ctx context.Context, loc graph.Locator) (*Source, error) {
	doc, err := e.Document(ctx, loc.URI)
	if err != nil {
		return nil, err
	}
	if doc.Lines.Text() == "" {
		return nil, fmt.Errorf("%w: %s", ErrFileTextNotFound, loc.URI)
	}
	text, err := doc.Lines.Slice(loc.Range)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", loc.URI, err)
	}
	return &Source{
		URI:          loc.URI,
		FunctionText: text,
		FileText:     doc.Lines.Text(),
		Lines:        doc.Lines,
	}, nil
}

// Invalidate drops a cached document.
func (e *FileExtractor) Invalidate(uri string) {
	e.cache.Remove(uri)
}
