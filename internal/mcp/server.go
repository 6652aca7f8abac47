// Package mcp exposes the dispatch facade over the Model Context
// Protocol. Every operation in the dispatch table becomes one MCP
// tool; tool results carry the same ToolEnvelope JSON the REST
// transport returns, so agents see identical semantics on either
// surface.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/planhub/planhub/internal/tools"
)

const serverName = "PlanHub"

// NewServer builds an MCP server whose tool list mirrors the
// dispatcher's operation catalog.
func NewServer(dispatcher *tools.Dispatcher, version string, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}

	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
	)

	catalog := dispatcher.Catalog()
	for i := range catalog {
		op := catalog[i]
		s.AddTool(buildTool(op), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			env := dispatcher.Dispatch(ctx, tools.Request{
				Operation: op.Name,
				Arguments: req.GetArguments(),
			})
			payload, err := json.MarshalIndent(env, "", "  ")
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("encoding result failed: %v", err)), nil
			}
			if !env.OK {
				return mcp.NewToolResultError(string(payload)), nil
			}
			return mcp.NewToolResultText(string(payload)), nil
		})
	}
	logger.Info("mcp server initialized", "tools", len(catalog))
	return s
}

// NewHTTPHandler wraps the MCP server in the streamable HTTP
// transport, suitable for mounting on an existing mux.
func NewHTTPHandler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s)
}

func buildTool(op tools.Operation) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(op.Description)}
	for _, arg := range op.Args {
		var propOpts []mcp.PropertyOption
		propOpts = append(propOpts, mcp.Description(arg.Description))
		if arg.Required {
			propOpts = append(propOpts, mcp.Required())
		}
		switch arg.Type {
		case tools.ArgInt:
			opts = append(opts, mcp.WithNumber(arg.Name, propOpts...))
		case tools.ArgStringMap:
			opts = append(opts, mcp.WithObject(arg.Name, propOpts...))
		default:
			opts = append(opts, mcp.WithString(arg.Name, propOpts...))
		}
	}
	if op.ReadOnly {
		opts = append(opts, mcp.WithReadOnlyHintAnnotation(true))
	}
	return mcp.NewTool(op.Name, opts...)
}
