// Package mcp exposes the registered tools to MCP clients over stdio,
// so external assistants can introspect the schema, run bounded
// queries, and save KPIs and insights through the same tool surface the
// in-process agents use.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/metrikahq/metrika/pkg/agent"
)

// Server wraps the mcp-go server around the application tool set.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer creates an MCP server identifying itself with the given
// name and version.
func NewServer(name, version string) *Server {
	return &Server{
		mcpServer: server.NewMCPServer(name, version),
	}
}

// RegisterTool publishes one tool, reusing its LLM manifest as the MCP
// input schema.
func (s *Server) RegisterTool(t agent.Tool) error {
	def := t.Definition()
	schema, err := json.Marshal(def.Function.Parameters)
	if err != nil {
		return fmt.Errorf("failed to encode schema for tool %s: %w", t.Name(), err)
	}

	mcpTool := mcp.NewToolWithRawSchema(t.Name(), def.Function.Description, schema)
	s.mcpServer.AddTool(mcpTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := t.Call(ctx, request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(resultText(out)), nil
	})
	return nil
}

// RegisterTools publishes the whole tool set, stopping at the first
// failure.
func (s *Server) RegisterTools(tools ...agent.Tool) error {
	for _, t := range tools {
		if err := s.RegisterTool(t); err != nil {
			return err
		}
	}
	return nil
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// resultText renders a tool result for the text-based MCP content
// block: strings pass through, everything else is JSON.
func resultText(out any) string {
	switch v := out.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}
