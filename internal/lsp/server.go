package lsp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"codegraph/util"
)

// ServerConfig describes how to launch one language server.
type ServerConfig struct {
	Name    string
	Command string
	Args    []string
	// RootDir is the workspace root handed to initialize.
	RootDir               string
	InitializationOptions map[string]interface{}
	StartTimeout          time.Duration
	RequestTimeout        time.Duration
}

// Server is a running language server process.
type Server struct {
	cfg    ServerConfig
	cmd    *exec.Cmd
	conn   *Conn
	logger *slog.Logger

	mu     sync.Mutex
	opened map[string]int
	done   chan struct{}
	err    error
	info   *ServerInfo
}

// StartServer launches the process and completes the initialize handshake.
func StartServer(ctx context.Context, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 30 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	logger = logger.With(slog.String("server", cfg.Name))

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.RootDir
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		recordServerSpawn(ctx, cfg.Name, false)
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrServerNotInstalled, cfg.Command)
		}
		return nil, fmt.Errorf("start %s: %w", cfg.Command, err)
	}
	recordServerSpawn(ctx, cfg.Name, true)

	s := &Server{
		cfg:    cfg,
		cmd:    cmd,
		conn:   NewConn(stdout, stdin, logger),
		logger: logger,
		opened: make(map[string]int),
		done:   make(chan struct{}),
	}
	go s.drainStderr(stderr)
	go func() {
		err := s.conn.ReadLoop(context.Background())
		waitErr := cmd.Wait()
		s.mu.Lock()
		s.err = errors.Join(err, waitErr)
		s.mu.Unlock()
		close(s.done)
	}()

	initCtx, cancel := context.WithTimeout(ctx, cfg.StartTimeout)
	defer cancel()
	if err := s.initialize(initCtx); err != nil {
		_ = s.kill()
		return nil, fmt.Errorf("%w: %s: %v", ErrInitializeFailed, cfg.Name, err)
	}
	logger.Info("language server started", slog.String("command", cfg.Command))
	return s, nil
}

func (s *Server) initialize(ctx context.Context) error {
	root := s.cfg.RootDir
	params := InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   util.PathToURI(root),
		WorkspaceFolders: []WorkspaceFolder{
			{URI: util.PathToURI(root), Name: filepath.Base(root)},
		},
		Capabilities: ClientCapabilities{
			TextDocument: TextDocumentClientCapabilities{
				Definition: DefinitionClientCapabilities{LinkSupport: true},
			},
			Workspace: WorkspaceClientCapabilities{Configuration: true, WorkspaceFolders: true},
		},
		InitializationOptions: s.cfg.InitializationOptions,
	}
	var res InitializeResult
	if err := s.conn.Call(ctx, "initialize", params, &res); err != nil {
		return err
	}
	s.info = res.ServerInfo
	return s.conn.Notify("initialized", struct{}{})
}

func (s *Server) drainStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s.logger.Debug("lsp stderr", slog.String("line", sc.Text()))
	}
}

// Name returns the configured server name.
func (s *Server) Name() string { return s.cfg.Name }

// Info returns what the server reported about itself, if anything.
func (s *Server) Info() *ServerInfo { return s.info }

// Alive reports whether the process is still running.
func (s *Server) Alive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Open sends didOpen for uri once per server.
func (s *Server) Open(uri, languageID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.opened[uri]; ok {
		return nil
	}
	err := s.conn.Notify("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{URI: uri, LanguageID: languageID, Version: 1, Text: text},
	})
	if err != nil {
		return err
	}
	s.opened[uri] = 1
	return nil
}

// Shutdown asks the server to exit and waits for it, killing it when ctx
// ends first.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.Alive() {
		return nil
	}
	if err := s.conn.Call(ctx, "shutdown", nil, nil); err != nil {
		s.logger.Debug("shutdown request failed", slog.String("error", err.Error()))
	}
	_ = s.conn.Notify("exit", nil)

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return s.kill()
	}
}

func (s *Server) kill() error {
	s.conn.Close()
	if s.cmd.Process == nil {
		return nil
	}
	if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-s.done
	return nil
}
