package lsp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"codegraph/internal/graph"
	"codegraph/internal/parser"
)

// Locate rewrites a server config to point at an installed executable,
// returning ErrServerNotInstalled when there is none.
type Locate func(ctx context.Context, cfg ServerConfig) (ServerConfig, error)

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// Servers maps a parser language name to its server. Languages that share
	// a command share one process.
	Servers map[string]ServerConfig
	Docs    parser.Documents
	Locate  Locate
	Logger  *slog.Logger
}

// Resolver resolves call sites through language servers, starting one server
// per distinct command on first use.
type Resolver struct {
	cfg    ResolverConfig
	logger *slog.Logger

	mu      sync.Mutex
	servers map[string]*Server
}

// NewResolver creates a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cfg: cfg, logger: logger, servers: make(map[string]*Server)}
}

// Definition resolves the call site in uri to candidate definitions.
func (r *Resolver) Definition(ctx context.Context, uri string, site graph.CallSite) ([]graph.Candidate, error) {
	lang, err := parser.ForPath(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, uri)
	}
	srv, err := r.server(ctx, lang)
	if err != nil {
		return nil, err
	}

	doc, err := r.cfg.Docs.Document(ctx, uri)
	if err != nil {
		return nil, err
	}
	if err := srv.Open(uri, lang.ID, doc.Lines.Text()); err != nil {
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}
	return srv.Definition(ctx, uri, PositionForCallSite(site))
}

func (r *Resolver) server(ctx context.Context, lang *parser.Language) (*Server, error) {
	cfg, ok := r.cfg.Servers[lang.Name]
	if !ok || cfg.Command == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang.Name)
	}
	key := cfg.Command + " " + strings.Join(cfg.Args, " ")

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.servers[key]; ok {
		if s.Alive() {
			return s, nil
		}
		r.logger.Warn("language server exited, restarting", slog.String("server", cfg.Name))
		delete(r.servers, key)
	}

	if r.cfg.Locate != nil {
		located, err := r.cfg.Locate(ctx, cfg)
		if err != nil {
			return nil, err
		}
		cfg = located
	}
	s, err := StartServer(ctx, cfg, r.logger)
	if err != nil {
		return nil, err
	}
	r.servers[key] = s
	return s, nil
}

// Close shuts down every started server.
func (r *Resolver) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for key, s := range r.servers {
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
		delete(r.servers, key)
	}
	return errors.Join(errs...)
}
