// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes read-only node tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/othala/internal/engine"
	"github.com/starford/othala/internal/index"
)

// Server wraps the MCP server with node tools.
type Server struct {
	mcp *server.MCPServer
	eng *engine.Engine
}

// New creates an MCP server with all tools registered.
func New(eng *engine.Engine) *Server {
	s := &Server{eng: eng}

	s.mcp = server.NewMCPServer(
		"Othala",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("query_records",
		mcp.WithDescription("List the current records of a tenant, optionally filtered."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Tenant DID")),
		mcp.WithString("recordId", mcp.Description("Filter by record id")),
		mcp.WithString("schema", mcp.Description("Filter by schema")),
		mcp.WithString("protocol", mcp.Description("Filter by protocol URI")),
	), s.queryRecords)

	s.mcp.AddTool(mcp.NewTool("read_record",
		mcp.WithDescription("Read the payload of a stored message by its content id."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Tenant DID")),
		mcp.WithString("cid", mcp.Required(), mcp.Description("Content id of the message")),
	), s.readRecord)

	s.mcp.AddTool(mcp.NewTool("list_events",
		mcp.WithDescription("Page a tenant's event log from a watermark sequence number."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Tenant DID")),
		mcp.WithString("since", mcp.Description("Watermark; entries with greater sequence are returned")),
	), s.listEvents)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) queryRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f := index.Filter{}
	if v, err := req.RequireString("recordId"); err == nil {
		f.RecordID = v
	}
	if v, err := req.RequireString("schema"); err == nil {
		f.Schema = v
	}
	if v, err := req.RequireString("protocol"); err == nil {
		f.Protocol = v
	}

	rows, err := s.eng.CurrentRecords(target, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(rows, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cid, err := req.RequireString("cid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.eng.RecordData(target, cid)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no payload for %s", cid)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) listEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var since int64
	if v, err := req.RequireString("since"); err == nil {
		since, _ = strconv.ParseInt(v, 10, 64)
	}
	events, err := s.eng.Events(target, since)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(events, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
