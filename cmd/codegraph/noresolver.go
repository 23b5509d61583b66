package main

import (
	"context"
	"errors"

	"codegraph/internal/graph"
)

// noResolver stands in for the language servers when a command only reads
// stored builds.
type noResolver struct{}

func (noResolver) Definition(context.Context, string, graph.CallSite) ([]graph.Candidate, error) {
	return nil, errors.New("no language servers in this command")
}
