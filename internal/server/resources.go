package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	guidelinesURI   = "codegraph://usage-guidelines"
	schemaURIPrefix = "codegraph://schemas/"
	schemaMIME      = "application/schema+json"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         guidelinesURI,
		Name:        "Usage Guidelines",
		Description: "How to build and read call graphs with the codegraph MCP server",
		MIMEType:    "text/markdown",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      guidelinesURI,
					MIMEType: "text/markdown",
					Text:     s.systemPrompt,
				},
			},
		}, nil
	})

	schemaMap := buildSchemaMap()

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: schemaURIPrefix + "{tool_name}",
		Name:        "Tool Schema",
		Description: "JSON schema for the named tool's arguments",
		MIMEType:    schemaMIME,
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		toolName := strings.TrimPrefix(uri, schemaURIPrefix)
		schemaJSON, ok := schemaMap[toolName]
		if !ok {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: schemaMIME,
					Text:     schemaJSON,
				},
			},
		}, nil
	})
}

// buildSchemaMap maps each tool name to the JSON schema inferred from its
// arguments struct.
func buildSchemaMap() map[string]string {
	m := make(map[string]string)
	addSchema[BuildCallGraphArgs](m, "build_call_graph")
	addSchema[BuildStatusArgs](m, "build_status")
	addSchema[GetCallGraphArgs](m, "get_call_graph")
	addSchema[GetNodeArgs](m, "get_node")
	addSchema[ListBuildsArgs](m, "list_builds")
	return m
}

func addSchema[T any](m map[string]string, name string) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("schema for %s: %v", name, err))
	}
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("schema for %s: %v", name, err))
	}
	m[name] = string(schemaJSON)
}
