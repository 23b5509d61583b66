// Package app wires configuration into a ready-to-use graph builder shared by
// the CLI and the MCP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"codegraph/internal/artifact"
	"codegraph/internal/builder"
	"codegraph/internal/config"
	"codegraph/internal/downloader"
	"codegraph/internal/graph"
	"codegraph/internal/logging"
	"codegraph/internal/lsp"
	"codegraph/internal/parser"
	"codegraph/internal/source"
	"codegraph/internal/store"
	"codegraph/internal/view"
	"codegraph/util"
)

// ErrNoEnclosingFunction is returned when an entry position is not inside a
// function.
var ErrNoEnclosingFunction = errors.New("no function encloses the position")

type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// Presenter replaces the panel or headless presenter picked from config.
	Presenter view.Presenter
	// Resolver replaces the language-server resolver.
	Resolver builder.Resolver
}

// App owns the long-lived collaborators of graph builds.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	extractor  *source.FileExtractor
	parser     *parser.Parser
	expander   *parser.Expander
	resolver   builder.Resolver
	lsp        *lsp.Resolver
	downloader *downloader.Downloader
	store      *store.Store
	artifacts  artifact.Store
	presenter  view.Presenter
	panel      *view.Panel
	root       string

	// Builds run one at a time: the presenter shows a single node.
	buildMu sync.Mutex
}

// BuildRequest names the entry function by a 1-based line and column inside
// it. A zero column means the first column.
type BuildRequest struct {
	FilePath string
	Line     int
	Column   int
}

func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		d := config.Default()
		cfg = &d
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	root := cfg.WorkspaceRoot
	if root == "" {
		root = "."
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}

	extractor, err := source.NewFileExtractor(0, logger)
	if err != nil {
		return nil, err
	}
	p := parser.New()

	a := &App{
		cfg:       cfg,
		logger:    logger,
		extractor: extractor,
		parser:    p,
		expander:  parser.NewExpander(p, extractor),
		root:      root,
	}

	a.store, err = store.Open(cfg.Store.Path)
	if err != nil {
		p.Close()
		return nil, err
	}

	if a.artifacts, err = newArtifactStore(cfg.Artifact); err != nil {
		a.store.Close()
		p.Close()
		return nil, err
	}

	switch {
	case opts.Presenter != nil:
		a.presenter = opts.Presenter
	case cfg.Panel.Enabled:
		a.panel = view.NewPanel(view.PanelConfig{
			SnapshotTimeout: cfg.Panel.SnapshotTimeout,
			Logger:          logging.Component(logger, "panel"),
		})
		a.presenter = a.panel
	default:
		a.presenter = view.NewHeadless()
	}

	a.resolver = opts.Resolver
	if a.resolver == nil {
		dl, err := downloader.New(downloader.Options{
			CacheDir:      cfg.Download.CacheDir,
			AllowDownload: cfg.Download.Allow,
			Logger:        logging.Component(logger, "downloader"),
		})
		if err != nil {
			a.store.Close()
			p.Close()
			return nil, err
		}
		a.downloader = dl
		a.lsp = lsp.NewResolver(lsp.ResolverConfig{
			Servers: a.serverConfigs(),
			Docs:    extractor,
			Locate:  a.locate,
			Logger:  logging.Component(logger, "lsp"),
		})
		a.resolver = a.lsp
	}
	return a, nil
}

func newArtifactStore(cfg config.ArtifactConfig) (artifact.Store, error) {
	if cfg.S3.Enabled {
		return artifact.NewS3Store(artifact.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.UseSSL,
		})
	}
	return artifact.NewFSStore(cfg.Dir)
}

// serverConfigs maps every parser language to the server that handles it.
func (a *App) serverConfigs() map[string]lsp.ServerConfig {
	out := make(map[string]lsp.ServerConfig)
	for _, lang := range parser.Languages() {
		name, err := downloader.ServerForLanguage(lang.Name)
		if err != nil {
			continue
		}
		meta, err := downloader.GetServerMetadata(name)
		if err != nil {
			continue
		}
		sc := lsp.ServerConfig{
			Name:           name,
			Command:        meta.BinaryName,
			Args:           meta.Args,
			RootDir:        a.root,
			StartTimeout:   a.cfg.Build.StartTimeout,
			RequestTimeout: a.cfg.Build.RequestTimeout,
		}
		if o, ok := a.cfg.Servers[lang.Name]; ok {
			if o.Command != "" {
				sc.Command = o.Command
			}
			if len(o.Args) > 0 {
				sc.Args = o.Args
			}
			sc.InitializationOptions = o.InitializationOptions
		}
		out[lang.Name] = sc
	}
	return out
}

// locate points a server config at an installed executable.
func (a *App) locate(ctx context.Context, sc lsp.ServerConfig) (lsp.ServerConfig, error) {
	meta, err := downloader.GetServerMetadata(sc.Name)
	if err != nil {
		return sc, nil
	}
	custom := ""
	if sc.Command != meta.BinaryName {
		custom = sc.Command
	}
	cmd, err := a.downloader.Ensure(ctx, sc.Name, custom)
	if err != nil {
		return sc, fmt.Errorf("%w: %v", lsp.ErrServerNotInstalled, err)
	}
	sc.Command = cmd.Path
	// A custom argument list wins unless the entry needs its interpreter.
	if len(cmd.Args) > len(meta.Args) || slices.Equal(sc.Args, meta.Args) {
		sc.Args = cmd.Args
	}
	return sc, nil
}

// Panel returns the browser panel, or nil when it is disabled.
func (a *App) Panel() *view.Panel { return a.panel }

// Root returns the absolute workspace root.
func (a *App) Root() string { return a.root }

// Entry resolves a file position to the innermost function around it.
func (a *App) Entry(ctx context.Context, req BuildRequest) (graph.Locator, error) {
	path := req.FilePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.root, path)
	}
	uri := util.PathToURI(path)
	lang, err := parser.ForPath(path)
	if err != nil {
		return graph.Locator{}, err
	}
	doc, err := a.extractor.Document(ctx, uri)
	if err != nil {
		return graph.Locator{}, err
	}
	if req.Line < 1 || req.Line > doc.Lines.LineCount() {
		return graph.Locator{}, fmt.Errorf("%w: line %d of %s", source.ErrRangeNotFound, req.Line, path)
	}
	col := req.Column - 1
	if col < 0 {
		col = 0
	}
	r, ok, err := a.expander.FunctionAt(lang, doc.Lines, graph.Position{Line: req.Line - 1, Character: col})
	if err != nil {
		return graph.Locator{}, err
	}
	if !ok {
		return graph.Locator{}, fmt.Errorf("%w: %s:%d:%d", ErrNoEnclosingFunction, path, req.Line, req.Column)
	}
	return graph.Locator{URI: uri, Range: r}, nil
}

// Build builds, stores and returns the call graph of the function at req.
func (a *App) Build(ctx context.Context, req BuildRequest) (*store.Build, error) {
	a.buildMu.Lock()
	defer a.buildMu.Unlock()

	entry, err := a.Entry(ctx, req)
	if err != nil {
		return nil, err
	}
	a.waitForPanel(ctx)

	b, err := builder.New(builder.Config{
		Extractor:           a.extractor,
		Resolver:            a.resolver,
		Expander:            a.expander,
		Presenter:           a.presenter,
		Artifacts:           a.artifacts,
		Boundary:            builder.NewBoundary(a.root, a.cfg.Build.Exclude...),
		Parser:              a.parser,
		MaxResolveAttempts:  a.cfg.Build.MaxResolveAttempts,
		ResolveRetryDelay:   a.cfg.Build.ResolveRetryDelay,
		ScopeIdentityToFile: a.cfg.Build.ScopeIdentityToFile,
		Logger:              logging.Component(a.logger, "builder"),
	})
	if err != nil {
		return nil, err
	}
	res, err := b.Build(ctx, entry)
	if err != nil {
		return nil, err
	}

	rec := &store.Build{
		EntryID:     res.EntryID,
		EntryName:   res.EntryName,
		Entry:       res.Entry,
		ArtifactDir: res.ArtifactDir,
		Nodes:       res.Nodes,
	}
	if err := a.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save build: %w", err)
	}
	if a.panel != nil {
		a.panel.Finish(rec.ID)
	}
	return rec, nil
}

func (a *App) waitForPanel(ctx context.Context) {
	if a.panel == nil || a.cfg.Panel.WaitForClient <= 0 || a.panel.Clients() > 0 {
		return
	}
	a.logger.Info("waiting for panel", slog.String("addr", a.cfg.Panel.Addr), slog.Duration("timeout", a.cfg.Panel.WaitForClient))
	wctx, cancel := context.WithTimeout(ctx, a.cfg.Panel.WaitForClient)
	defer cancel()
	if err := a.panel.WaitForClient(wctx); err != nil {
		a.logger.Warn("no panel connected, building without snapshots")
	}
}

// Graph loads a stored build and projects it from its entry.
func (a *App) Graph(ctx context.Context, buildID string) (*store.Build, *graph.GraphNode, error) {
	b, err := a.store.Get(ctx, buildID)
	if err != nil {
		return nil, nil, err
	}
	tree, err := b.Nodes.Project(b.EntryID)
	if err != nil {
		return nil, nil, err
	}
	return b, tree, nil
}

// Builds lists stored builds, newest first.
func (a *App) Builds(ctx context.Context, limit int) ([]store.Build, error) {
	return a.store.List(ctx, limit)
}

// Artifacts lists the files saved for a build.
func (a *App) Artifacts(ctx context.Context, b *store.Build) ([]string, error) {
	return a.artifacts.List(ctx, b.ArtifactDir)
}

// Close stops language servers and closes the store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.lsp != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		errs = append(errs, a.lsp.Close(shutdownCtx))
		cancel()
	}
	errs = append(errs, a.store.Close())
	a.parser.Close()
	return errors.Join(errs...)
}
