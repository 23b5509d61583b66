package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"codegraph/internal/app"
)

var (
	doctorLatest bool

	doctorCmd = &cobra.Command{
		Use:   "doctor",
		Short: "Report which language servers are installed",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}
)

func init() {
	doctorCmd.Flags().BoolVar(&doctorLatest, "latest", false, "also look up the latest released version of each server")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg.Panel.Enabled = false
	a, err := app.New(app.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	statuses, err := a.Doctor(cmd.Context(), doctorLatest)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVER\tLANGUAGES\tSOURCE\tPATH\tLATEST")
	for _, s := range statuses {
		path, source := s.Path, s.Source
		if s.Error != "" {
			path, source = s.Error, "missing"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Name, strings.Join(s.Languages, ","), source, path, s.Latest)
	}
	return tw.Flush()
}
