// Package server exposes graph builds to MCP clients over stdio.
package server

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"sync"
	"time"

	"codegraph/internal/app"
	"codegraph/internal/graph"
	"codegraph/internal/store"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

//go:embed guidelines.md
var usageGuidelines string

// Backend is the part of the application the tools call into.
type Backend interface {
	Build(ctx context.Context, req app.BuildRequest) (*store.Build, error)
	Graph(ctx context.Context, buildID string) (*store.Build, *graph.GraphNode, error)
	Builds(ctx context.Context, limit int) ([]store.Build, error)
}

type BuildStatus string

const (
	BuildStatusIdle       BuildStatus = "idle"
	BuildStatusInProgress BuildStatus = "in_progress"
	BuildStatusReady      BuildStatus = "ready"
	BuildStatusFailed     BuildStatus = "failed"
)

var errBuildInProgress = errors.New("build already in progress")

type Server struct {
	mcpServer    *mcp.Server
	backend      Backend
	logger       *slog.Logger
	systemPrompt string

	statusMu    sync.RWMutex
	status      BuildStatus
	statusErr   error
	lastBuildID string
	started     time.Time
	finished    time.Time
}

type Options struct {
	Name    string
	Version string
	Logger  *slog.Logger
}

func New(backend Backend, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "codegraph"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		backend:      backend,
		logger:       opts.Logger,
		systemPrompt: usageGuidelines,
		status:       BuildStatusIdle,
	}
	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    opts.Name,
		Version: opts.Version,
	}, &mcp.ServerOptions{
		Instructions: s.systemPrompt,
	})
	s.registerTools()
	s.registerResources()
	return s
}

// Run serves MCP over stdin and stdout until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio")
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// MCP returns the underlying server, for callers that bring their own
// transport.
func (s *Server) MCP() *mcp.Server { return s.mcpServer }

// beginBuild marks a build as running, or reports one already is.
func (s *Server) beginBuild() error {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if s.status == BuildStatusInProgress {
		return errBuildInProgress
	}
	s.status = BuildStatusInProgress
	s.statusErr = nil
	s.started = time.Now()
	s.finished = time.Time{}
	return nil
}

func (s *Server) endBuild(buildID string, err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.finished = time.Now()
	if err != nil {
		s.status = BuildStatusFailed
		s.statusErr = err
		return
	}
	s.status = BuildStatusReady
	s.lastBuildID = buildID
}

// StatusReport describes the most recent build.
type StatusReport struct {
	Status      BuildStatus `json:"status"`
	LastBuildID string      `json:"last_build_id,omitempty"`
	Error       string      `json:"error,omitempty"`
	// Duration is the running time so far while a build is in progress.
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

func (s *Server) Status() StatusReport {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	r := StatusReport{Status: s.status, LastBuildID: s.lastBuildID}
	if s.statusErr != nil {
		r.Error = s.statusErr.Error()
	}
	switch {
	case s.started.IsZero():
	case s.finished.IsZero():
		r.DurationSeconds = time.Since(s.started).Seconds()
	default:
		r.DurationSeconds = s.finished.Sub(s.started).Seconds()
	}
	return r
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
