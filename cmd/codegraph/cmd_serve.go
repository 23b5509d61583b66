package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"codegraph/internal/app"
	"codegraph/internal/logging"
	"codegraph/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve graph builds to MCP clients over stdio",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&panelFlag, "panel", false, "run the browser panel next to the MCP server")
	serveCmd.Flags().StringVar(&panelAddr, "panel-addr", "", "panel listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	applyPanelFlags(cmd)

	ctx, stop := signalContext()
	defer stop()

	a, err := app.New(app.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	s := server.New(a, server.Options{
		Version: version,
		Logger:  logging.Component(logger, "mcp"),
	})

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()
	if p := a.Panel(); p != nil {
		g.Go(func() error { return servePanel(runCtx, cfg.Panel.Addr, p) })
	}
	g.Go(func() error {
		// The client closing stdin ends the session and the panel with it.
		defer cancel()
		return s.Run(runCtx)
	})
	return g.Wait()
}
