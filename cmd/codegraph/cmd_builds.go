package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"codegraph/internal/app"
	"codegraph/util"
)

var (
	buildsLimit   int
	showFormat    string
	showArtifacts bool

	buildsCmd = &cobra.Command{
		Use:   "builds",
		Short: "List stored builds, newest first",
		Args:  cobra.NoArgs,
		RunE:  runBuilds,
	}

	showCmd = &cobra.Command{
		Use:   "show <build-id>",
		Short: "Print a stored build; the id may be any unique prefix",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
)

func init() {
	buildsCmd.Flags().IntVarP(&buildsLimit, "limit", "n", 20, "number of builds to list")
	showCmd.Flags().StringVarP(&showFormat, "format", "f", "tree", "output: tree, json or map")
	showCmd.Flags().BoolVar(&showArtifacts, "artifacts", false, "list the files saved for the build instead")
}

// openApp opens the application without a resolver; it only reads the store.
func openApp() (*app.App, error) {
	cfg.Panel.Enabled = false
	return app.New(app.Options{Config: cfg, Logger: logger, Resolver: noResolver{}})
}

func runBuilds(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	builds, err := a.Builds(cmd.Context(), buildsLimit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tENTRY\tNODES\tCREATED\tFILE")
	for _, b := range builds {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s:%d\n",
			util.ShortID(b.ID), b.EntryName, b.NodeCount,
			b.CreatedAt.Local().Format(time.DateTime),
			util.URIToPath(b.Entry.URI), b.Entry.Range.Start.Line+1)
	}
	return tw.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	b, tree, err := a.Graph(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if showArtifacts {
		files, err := a.Artifacts(cmd.Context(), b)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		return nil
	}
	return printBuild(cmd.OutOrStdout(), b, tree, showFormat)
}
