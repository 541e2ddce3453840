package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewMCPServer creates an MCP server with slim_workbook and list_stages registered.
func NewMCPServer(svc *SlimService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "excelslim",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "slim_workbook",
		Description: "Shrink an Excel workbook by running the selected stages (clean, image, precision) in order. Writes a new file next to the input and returns its path, the run log and per-stage size metrics.",
	}, svc.SlimWorkbook)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_stages",
		Description: "List the available pipeline stages in execution order with their default selection.",
	}, svc.ListStages)

	return server
}

// NewHTTPHandler exposes server over the streamable HTTP transport.
func NewHTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)
}

// RunMCPServerStdio runs the MCP server on stdio transport, blocking until
// stdin is closed or the context is cancelled.
func RunMCPServerStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
