package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph/internal/graph"
	"codegraph/internal/store"
)

func TestPrintTree(t *testing.T) {
	m := graph.NewNodeMap()
	a := &graph.MapNode{ID: "a", Name: "a", URI: "file:///src/a.js", Range: graph.Range{Start: graph.Position{Line: 0}}, IncomingCalls: []string{"b"}, OutgoingCalls: []string{"b"}}
	b := &graph.MapNode{ID: "b", Name: "b", URI: "file:///src/a.js", Range: graph.Range{Start: graph.Position{Line: 4}}, IncomingCalls: []string{"a"}}
	fail := graph.NewDefinitionFail(graph.CallSite{Line: 6, Column: 2}, "b")
	fail.IncomingCalls = []string{"b"}
	b.OutgoingCalls = []string{"a", fail.ID}
	m.Insert(a)
	m.Insert(b)
	m.Insert(fail)

	tree, err := m.Project("a")
	require.NoError(t, err)

	var buf bytes.Buffer
	printTree(&buf, m, tree)
	assert.Equal(t, "a /src/a.js:1\n  b /src/a.js:5\n    ↻ a\n    ✗ "+fail.FailReason+" (call at 6:2)\n", buf.String())

	buf.Reset()
	err = printBuild(&buf, &store.Build{ID: "x", EntryName: "a", NodeCount: 3, Nodes: m}, tree, "json")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"recursionId": "a"`)

	assert.Error(t, printBuild(&buf, &store.Build{Nodes: m}, tree, "yaml"))
}
