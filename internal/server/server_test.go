package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codegraph/internal/app"
	"codegraph/internal/graph"
	"codegraph/internal/logging"
	"codegraph/internal/store"
)

type fakeBackend struct {
	mu     sync.Mutex
	builds map[string]*store.Build
	order  []string
	err    error
}

func sampleNodes() (*graph.NodeMap, string) {
	m := graph.NewNodeMap()
	main := &graph.MapNode{
		ID:            "main-id",
		Name:          "main",
		URI:           "file:///src/app.js",
		Code:          "function main() { helper() }",
		IncomingCalls: []string{},
	}
	fail := graph.NewDefinitionFail(graph.CallSite{Line: 1, Column: 18}, "main-id")
	main.OutgoingCalls = []string{fail.ID}
	fail.IncomingCalls = []string{"main-id"}
	m.Insert(main)
	m.Insert(fail)
	return m, main.ID
}

func (f *fakeBackend) Build(_ context.Context, req app.BuildRequest) (*store.Build, error) {
	if f.err != nil {
		return nil, f.err
	}
	nodes, entry := sampleNodes()
	f.mu.Lock()
	defer f.mu.Unlock()
	b := &store.Build{
		ID:        fmt.Sprintf("build-%d", len(f.order)+1),
		EntryID:   entry,
		EntryName: "main",
		Entry:     graph.Locator{URI: "file:///" + req.FilePath},
		NodeCount: nodes.Len(),
		CreatedAt: time.Now(),
		Nodes:     nodes,
	}
	f.builds[b.ID] = b
	f.order = append(f.order, b.ID)
	return b, nil
}

func (f *fakeBackend) Graph(_ context.Context, id string) (*store.Build, *graph.GraphNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.builds[id]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	tree, err := b.Nodes.Project(b.EntryID)
	return b, tree, err
}

func (f *fakeBackend) Builds(_ context.Context, limit int) ([]store.Build, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Build
	for i := len(f.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *f.builds[f.order[i]])
	}
	return out, nil
}

func connect(t *testing.T, backend Backend) (*Server, *mcp.ClientSession) {
	t.Helper()
	ctx := context.Background()
	s := New(backend, Options{Logger: logging.Discard()})

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := s.MCP().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return s, cs
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestListTools(t *testing.T) {
	_, cs := connect(t, &fakeBackend{builds: map[string]*store.Build{}})
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"build_call_graph", "build_status", "get_call_graph", "get_node", "list_builds"}, names)
}

func TestBuildAndReadGraph(t *testing.T) {
	s, cs := connect(t, &fakeBackend{builds: map[string]*store.Build{}})

	text, isErr := call(t, cs, "build_call_graph", map[string]any{"file_path": "src/app.js", "line": 1})
	require.False(t, isErr, text)
	var sum buildSummary
	require.NoError(t, json.Unmarshal([]byte(text), &sum))
	assert.Equal(t, "build-1", sum.BuildID)
	assert.Equal(t, 2, sum.Nodes)
	assert.Equal(t, 1, sum.Failures)

	st := s.Status()
	assert.Equal(t, BuildStatusReady, st.Status)
	assert.Equal(t, "build-1", st.LastBuildID)

	text, isErr = call(t, cs, "get_call_graph", map[string]any{"build_id": "build-1"})
	require.False(t, isErr, text)
	var tree graph.GraphNode
	require.NoError(t, json.Unmarshal([]byte(text), &tree))
	assert.Equal(t, "main", tree.Name)
	assert.Empty(t, tree.Code)
	require.Len(t, tree.Children, 1)
	assert.Equal(t, graph.FailDefinition, tree.Children[0].Kind)

	text, _ = call(t, cs, "get_call_graph", map[string]any{"build_id": "build-1", "with_source": true})
	assert.Contains(t, text, "function main()")

	text, isErr = call(t, cs, "get_call_graph", map[string]any{"build_id": "build-1", "format": "map"})
	require.False(t, isErr, text)
	var flat map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(text), &flat))
	assert.Len(t, flat, 2)

	text, isErr = call(t, cs, "get_node", map[string]any{"build_id": "build-1", "node_id": "main-id"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "function main()")

	text, isErr = call(t, cs, "list_builds", map[string]any{})
	require.False(t, isErr, text)
	assert.Contains(t, text, "build-1")
}

func TestToolErrors(t *testing.T) {
	_, cs := connect(t, &fakeBackend{builds: map[string]*store.Build{}})

	text, isErr := call(t, cs, "get_call_graph", map[string]any{"build_id": "nope"})
	assert.True(t, isErr)
	assert.Contains(t, text, "not found")

	text, isErr = call(t, cs, "list_builds", map[string]any{})
	assert.False(t, isErr)
	assert.Equal(t, "No builds found.", text)

	_, isErr = call(t, cs, "build_call_graph", map[string]any{"file_path": "a.js", "line": 0})
	assert.True(t, isErr)
}

func TestBuildFailureIsReported(t *testing.T) {
	s, cs := connect(t, &fakeBackend{builds: map[string]*store.Build{}, err: app.ErrNoEnclosingFunction})

	text, isErr := call(t, cs, "build_call_graph", map[string]any{"file_path": "a.js", "line": 3})
	assert.True(t, isErr)
	assert.Contains(t, text, "No function at a.js:3")
	assert.Equal(t, BuildStatusFailed, s.Status().Status)
}

func TestConcurrentBuildIsRejected(t *testing.T) {
	s, cs := connect(t, &fakeBackend{builds: map[string]*store.Build{}})

	require.NoError(t, s.beginBuild())
	assert.ErrorIs(t, s.beginBuild(), errBuildInProgress)

	text, isErr := call(t, cs, "build_call_graph", map[string]any{"file_path": "a.js", "line": 1})
	assert.True(t, isErr)
	assert.Equal(t, "Build already in progress", text)

	text, _ = call(t, cs, "build_status", map[string]any{})
	assert.Contains(t, text, `"in_progress"`)

	s.endBuild("build-0", nil)
	_, isErr = call(t, cs, "build_call_graph", map[string]any{"file_path": "a.js", "line": 1})
	assert.False(t, isErr)
	assert.Equal(t, "build-1", s.Status().LastBuildID)
}

func TestResources(t *testing.T) {
	_, cs := connect(t, &fakeBackend{builds: map[string]*store.Build{}})
	ctx := context.Background()

	res, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: guidelinesURI})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Contains(t, res.Contents[0].Text, "build_call_graph")

	res, err = cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: schemaURIPrefix + "build_call_graph"})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &schema))
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "file_path")
	assert.Contains(t, props, "line")

	_, err = cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: schemaURIPrefix + "missing"})
	assert.Error(t, err)
}

func TestSchemaMapCoversTools(t *testing.T) {
	m := buildSchemaMap()
	for _, name := range []string{"build_call_graph", "build_status", "get_call_graph", "get_node", "list_builds"} {
		assert.True(t, strings.HasPrefix(strings.TrimSpace(m[name]), "{"), name)
	}
}
