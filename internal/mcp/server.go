package mcp

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/docuchat/docuchat/internal/engine"
)

// Server wraps the MCP server with its tool dependencies.
type Server struct {
	server *mcp.Server
	engine *engine.Engine
}

// NewServer creates a configured MCP server with tools registered.
// defaultK is the retrieval depth used when a tool call leaves it unset.
func NewServer(eng *engine.Engine, defaultK int) *Server {
	impl := &mcp.Implementation{
		Name:    "docuchat-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_question",
		Description: "Answer a question from the session's uploaded documents. Returns a grounded answer with page-level citations.",
	}, makeAskHandler(eng, defaultK))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_passages",
		Description: "Semantically search the session's documents. Returns ranked passages without generating an answer.",
	}, makeSearchHandler(eng, defaultK))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List the documents uploaded to a session, with page and chunk counts.",
	}, makeListHandler(eng))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_status",
		Description: "Get session, document, and message counts for the whole engine.",
	}, makeStatusHandler(eng))

	return &Server{server: server, engine: eng}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler serves the tool set over the streamable HTTP transport,
// mountable on any router path. Stateless mode drops session tracking,
// which suits tool-only clients that never receive server-initiated
// requests.
func (s *Server) HTTPHandler(stateless bool) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, &mcp.StreamableHTTPOptions{Stateless: stateless})
}
