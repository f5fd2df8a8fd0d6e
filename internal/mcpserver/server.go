// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes limen tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/limen/internal/docservice"
	"github.com/starford/limen/internal/notation"
)

// ContractURI names the notation contract resource.
const ContractURI = "limen://contract"

// Server wraps the MCP server with limen tools.
type Server struct {
	mcp *server.MCPServer
	svc *docservice.Service

	// checkHost vets every host fetch_source connects to.
	checkHost func(host string) error
}

// New creates a new MCP server with all limen tools registered.
func New(svc *docservice.Service) *Server {
	s := &Server{svc: svc, checkHost: checkBlockedHost}

	s.mcp = server.NewMCPServer(
		"limen",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("import_document",
		mcp.WithDescription("Import a TAGML, TexMECS or LMNL document into the corpus. "+
			"The notation is taken from the path extension (.tagml, .texmecs, .lmnl). "+
			"Read the contract first via get_contract or the "+ContractURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Corpus path of the document (e.g. poems/frost.tagml)")),
		mcp.WithString("source", mcp.Required(), mcp.Description("Document source in the notation named by the extension")),
		mcp.WithBoolean("overwrite", mcp.Description("Replace an existing document at the same path")),
	), s.importDocument)

	s.mcp.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Get a stored document: metadata, plain text, layers and import diagnostics."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document ID")),
	), s.getDocument)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List stored documents, optionally restricted to one notation."),
		mcp.WithString("notation", mcp.Description("tagml, texmecs or lmnl (empty for all)")),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("list_markups",
		mcp.WithDescription("List the ranges of a document with their layers, text and annotations."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document ID")),
	), s.listMarkups)

	s.mcp.AddTool(mcp.NewTool("search_markup",
		mcp.WithDescription("Find ranges across all documents by tag, by text, or both."),
		mcp.WithString("tag", mcp.Description("Extended tag, e.g. l or l~1")),
		mcp.WithString("query", mcp.Description("Text the range must contain")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 20)")),
	), s.searchMarkup)

	s.mcp.AddTool(mcp.NewTool("export_tagml",
		mcp.WithDescription("Render a stored document as TAGML."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Document ID")),
	), s.exportTAGML)

	s.mcp.AddTool(mcp.NewTool("fetch_source",
		mcp.WithDescription("Download a notation file from an http(s) URL or a data: URI and import it. "+
			"Loopback and cloud metadata hosts are refused."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http, https or data: URI")),
		mcp.WithString("path", mcp.Description("Corpus path; defaults to the file name in the URL")),
		mcp.WithBoolean("overwrite", mcp.Description("Replace an existing document at the same path")),
	), s.fetchSource)

	s.mcp.AddTool(mcp.NewTool("get_contract",
		mcp.WithDescription("Returns the notation contract: supported syntaxes, layers, and how imports fail. "+
			"Call this before writing documents."),
	), s.getContract)

	s.mcp.AddResource(
		mcp.NewResource(ContractURI, "Notation Contract",
			mcp.WithResourceDescription("Supported markup notations and their import rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) importDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, created, err := s.svc.Import(ctx, path, "", []byte(source), req.GetBool("overwrite", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"document": rec, "created": created})
}

func (s *Server) getDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get %s: %v", id, err)), nil
	}
	return jsonResult(doc)
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, total, err := s.svc.List(ctx, req.GetInt("limit", 0), req.GetInt("offset", 0), req.GetString("notation", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"documents": docs, "total": total})
}

func (s *Server) listMarkups(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	views, err := s.svc.Markups(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("markups of %s: %v", id, err)), nil
	}
	return jsonResult(views)
}

func (s *Server) searchMarkup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hits, err := s.svc.SearchMarkup(ctx, req.GetString("tag", ""), req.GetString("query", ""), req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(hits)
}

func (s *Server) exportTAGML(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.svc.Export(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("export %s: %v", id, err)), nil
	}
	return mcp.NewToolResultText(out), nil
}

func (s *Server) getContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NotationContract), nil
}

func (s *Server) readContractResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ContractURI,
			MIMEType: "text/markdown",
			Text:     NotationContract,
		},
	}, nil
}

func supportedList() string {
	out := ""
	for i, k := range notation.Kinds() {
		if i > 0 {
			out += ", "
		}
		out += k.Extension()
	}
	return out
}
