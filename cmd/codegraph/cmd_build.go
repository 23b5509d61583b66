package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"codegraph/internal/app"
	"codegraph/internal/graph"
	"codegraph/internal/store"
)

var (
	panelFlag   bool
	panelAddr   string
	buildFormat string

	buildCmd = &cobra.Command{
		Use:   "build <file:line[:column]>",
		Short: "Build and store the call graph of the function at a position",
		Args:  cobra.ExactArgs(1),
		RunE:  runBuild,
	}
)

func init() {
	buildCmd.Flags().BoolVar(&panelFlag, "panel", false, "show each function in the browser panel and capture snapshots")
	buildCmd.Flags().StringVar(&panelAddr, "panel-addr", "", "panel listen address (default from config)")
	buildCmd.Flags().StringVarP(&buildFormat, "format", "f", "tree", "output: tree, json or map")
}

// applyPanelFlags turns the panel on when asked on the command line.
func applyPanelFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("panel") {
		cfg.Panel.Enabled = panelFlag
	}
	if panelAddr != "" {
		cfg.Panel.Addr = panelAddr
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runBuild(cmd *cobra.Command, args []string) error {
	req, err := parseTarget(args[0])
	if err != nil {
		return err
	}
	applyPanelFlags(cmd)

	ctx, stop := signalContext()
	defer stop()

	a, err := app.New(app.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	g, gctx := errgroup.WithContext(ctx)
	panelCtx, stopPanel := context.WithCancel(gctx)
	defer stopPanel()
	if p := a.Panel(); p != nil {
		g.Go(func() error { return servePanel(panelCtx, cfg.Panel.Addr, p) })
	}

	var b *store.Build
	g.Go(func() error {
		defer stopPanel()
		var err error
		b, err = a.Build(gctx, req)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	_, tree, err := a.Graph(ctx, b.ID)
	if err != nil {
		return err
	}
	return printBuild(cmd.OutOrStdout(), b, tree, buildFormat)
}

func printBuild(w io.Writer, b *store.Build, tree *graph.GraphNode, format string) error {
	switch format {
	case "tree":
		fmt.Fprintf(w, "build %s  %s  %d nodes\n", b.ID, b.EntryName, b.NodeCount)
		printTree(w, b.Nodes, tree)
		return nil
	case "json":
		return writeJSON(w, tree)
	case "map":
		return writeJSON(w, b.Nodes)
	default:
		return fmt.Errorf("unknown format %q, want tree, json or map", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
