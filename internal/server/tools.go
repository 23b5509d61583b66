package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"codegraph/internal/app"
	"codegraph/internal/graph"
	"codegraph/internal/store"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Arguments structs

type BuildCallGraphArgs struct {
	FilePath string `json:"file_path" jsonschema:"Path of the file holding the entry function, absolute or relative to the workspace root"`
	Line     int    `json:"line" jsonschema:"1-based line inside the entry function"`
	Column   int    `json:"column,omitempty" jsonschema:"1-based column on that line, defaults to the first column"`
}

type BuildStatusArgs struct{}

type GetCallGraphArgs struct {
	BuildID    string `json:"build_id" jsonschema:"Id of a stored build, or a unique prefix of one"`
	Format     string `json:"format,omitempty" jsonschema:"tree (default) projects the graph from its entry, map returns the flat node map"`
	WithSource bool   `json:"with_source,omitempty" jsonschema:"If true, includes each function's source code in the tree"`
}

type GetNodeArgs struct {
	BuildID string `json:"build_id" jsonschema:"Id of a stored build, or a unique prefix of one"`
	NodeID  string `json:"node_id" jsonschema:"Id of the node within the build"`
}

type ListBuildsArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of builds to return, newest first (default 20)"`
}

type buildSummary struct {
	BuildID     string        `json:"build_id"`
	EntryName   string        `json:"entry_name"`
	Entry       graph.Locator `json:"entry"`
	Nodes       int           `json:"nodes"`
	Failures    int           `json:"failures"`
	ArtifactDir string        `json:"artifact_dir"`
	CreatedAt   time.Time     `json:"created_at"`
}

func summarize(b *store.Build) buildSummary {
	s := buildSummary{
		BuildID:     b.ID,
		EntryName:   b.EntryName,
		Entry:       b.Entry,
		Nodes:       b.NodeCount,
		ArtifactDir: b.ArtifactDir,
		CreatedAt:   b.CreatedAt,
	}
	if b.Nodes != nil {
		for _, n := range b.Nodes.Nodes() {
			if _, ok := n.(*graph.FailNode); ok {
				s.Failures++
			}
		}
	}
	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "build_call_graph",
		Description: "Builds the call graph reachable from the function at a file position and stores it",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args BuildCallGraphArgs) (*mcp.CallToolResult, any, error) {
		if args.FilePath == "" || args.Line < 1 {
			return errorResult("file_path and a 1-based line are required"), nil, nil
		}
		if err := s.beginBuild(); err != nil {
			return errorResult("Build already in progress"), nil, nil
		}

		b, err := s.backend.Build(ctx, app.BuildRequest{
			FilePath: args.FilePath,
			Line:     args.Line,
			Column:   args.Column,
		})
		if err != nil {
			s.endBuild("", err)
			if errors.Is(err, app.ErrNoEnclosingFunction) {
				return errorResult(fmt.Sprintf("No function at %s:%d", args.FilePath, args.Line)), nil, nil
			}
			return errorResult(fmt.Sprintf("Build failed: %v", err)), nil, nil
		}
		s.endBuild(b.ID, nil)

		return jsonResult(summarize(b))
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "build_status",
		Description: "Returns whether a build is running and the id of the last finished one",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args BuildStatusArgs) (*mcp.CallToolResult, any, error) {
		return jsonResult(s.Status())
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_call_graph",
		Description: "Returns a stored call graph as a tree rooted at its entry function or as a flat node map",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GetCallGraphArgs) (*mcp.CallToolResult, any, error) {
		b, tree, err := s.backend.Graph(ctx, args.BuildID)
		if err != nil {
			return lookupError(args.BuildID, err), nil, nil
		}

		switch args.Format {
		case "", "tree":
			if !args.WithSource {
				tree.Walk(func(n *graph.GraphNode, _ int) { n.Code = "" })
			}
			return jsonResult(tree)
		case "map":
			return jsonResult(b.Nodes)
		default:
			return errorResult(fmt.Sprintf("Unknown format %q, want tree or map", args.Format)), nil, nil
		}
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_node",
		Description: "Returns one node of a stored call graph, including its source code",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GetNodeArgs) (*mcp.CallToolResult, any, error) {
		b, _, err := s.backend.Graph(ctx, args.BuildID)
		if err != nil {
			return lookupError(args.BuildID, err), nil, nil
		}
		n, ok := b.Nodes.Get(args.NodeID)
		if !ok {
			return errorResult(fmt.Sprintf("Node %s not found in build %s", args.NodeID, b.ID)), nil, nil
		}
		data, err := graph.MarshalNode(n)
		if err != nil {
			return errorResult(fmt.Sprintf("Encode failed: %v", err)), nil, nil
		}
		return textResult(string(data)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_builds",
		Description: "Lists stored builds, newest first",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ListBuildsArgs) (*mcp.CallToolResult, any, error) {
		limit := args.Limit
		if limit <= 0 {
			limit = 20
		}
		builds, err := s.backend.Builds(ctx, limit)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		if len(builds) == 0 {
			return textResult("No builds found."), nil, nil
		}
		out := make([]buildSummary, 0, len(builds))
		for i := range builds {
			out = append(out, summarize(&builds[i]))
		}
		return jsonResult(out)
	})
}

func lookupError(id string, err error) *mcp.CallToolResult {
	if errors.Is(err, store.ErrNotFound) {
		return errorResult(fmt.Sprintf("Build %s not found", id))
	}
	return errorResult(fmt.Sprintf("Query failed: %v", err))
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("Encode failed: %v", err)), nil, nil
	}
	return textResult(string(data)), nil, nil
}
