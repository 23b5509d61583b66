package main

import (
	"fmt"
	"io"
	"strings"

	"codegraph/internal/graph"
	"codegraph/util"
)

// printTree writes one line per node, indented by depth.
func printTree(w io.Writer, nodes *graph.NodeMap, root *graph.GraphNode) {
	root.Walk(func(n *graph.GraphNode, depth int) {
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), describe(nodes, n))
	})
}

func describe(nodes *graph.NodeMap, n *graph.GraphNode) string {
	switch {
	case n.IsRecursion():
		name := n.RecursionID
		if nodes != nil {
			if target, ok := nodes.Get(n.RecursionID); ok {
				if m, ok := target.(*graph.MapNode); ok {
					name = m.Name
				}
			}
		}
		return "↻ " + name
	case n.Failure && n.CallExpressionLocation != nil:
		return fmt.Sprintf("✗ %s (call at %d:%d)", n.FailReason, n.CallExpressionLocation.Line, n.CallExpressionLocation.Column)
	case n.Failure:
		return fmt.Sprintf("✗ %s %s", n.FailReason, location(n))
	default:
		return fmt.Sprintf("%s %s", n.Name, location(n))
	}
}

func location(n *graph.GraphNode) string {
	if n.URI == "" {
		return ""
	}
	path := util.URIToPath(n.URI)
	if n.Range == nil {
		return path
	}
	return fmt.Sprintf("%s:%d", path, n.Range.Start.Line+1)
}
