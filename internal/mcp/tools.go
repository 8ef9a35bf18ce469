// Package mcp exposes the book corpus to LLM agents as Model Context Protocol tools
// served over stdio.
//
// Tools:
//   - search_books: ranked chapter passages for a query
//   - get_full_context: the corpus summary used as assistant grounding
//   - list_books: titles, chapter titles and entities per book
//   - read_chapter: one page of a chapter's text
//   - ask_books: a grounded answer, only when an assistant is configured
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

const (
	serverName    = "lorekeeper"
	serverVersion = "1.0.0"

	defaultSearchLimit = 5
)

// NewMCPServer builds a stdio-ready server with every tool registered.
func (s *Server) NewMCPServer() *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer(serverName, serverVersion,
		mcpserver.WithToolCapabilities(true),
	)

	srv.AddTool(mcp.NewTool("search_books",
		mcp.WithDescription("Search every chapter of the loaded books and return the passages most relevant to the query, best first."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Words or a question to look for"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of passages to return (default: 5)"),
			mcp.DefaultNumber(defaultSearchLimit),
		),
	), s.SearchBooks)

	srv.AddTool(mcp.NewTool("get_full_context",
		mcp.WithDescription("Return the corpus summary: per book, its main characters and a few important passages."),
	), s.GetFullContext)

	srv.AddTool(mcp.NewTool("list_books",
		mcp.WithDescription("List the loaded books with their chapter titles, characters, locations and spells."),
	), s.ListBooks)

	srv.AddTool(mcp.NewTool("read_chapter",
		mcp.WithDescription("Read one page of a chapter. Chapters are numbered from 1 in the order list_books reports them."),
		mcp.WithString("book",
			mcp.Required(),
			mcp.Description("Book title as reported by list_books"),
		),
		mcp.WithNumber("chapter",
			mcp.Required(),
			mcp.Description("1-based chapter number"),
		),
		mcp.WithNumber("page",
			mcp.Description("1-based page number (default: 1)"),
			mcp.DefaultNumber(1),
		),
	), s.ReadChapter)

	if s.assistant != nil {
		srv.AddTool(mcp.NewTool("ask_books",
			mcp.WithDescription("Ask a question about the books and get an answer grounded in matching passages."),
			mcp.WithString("message",
				mcp.Required(),
				mcp.Description("The question"),
			),
			mcp.WithString("session_id",
				mcp.Description("Conversation to continue; omit to start a new one"),
			),
			mcp.WithString("persona",
				mcp.Description("standard, dumbledore, dobby or snape"),
				mcp.DefaultString("standard"),
			),
			mcp.WithBoolean("structured",
				mcp.Description("Ask for headers and bullet points"),
			),
		), s.AskBooks)
	}

	return srv
}

// ServeStdio runs the server on stdin and stdout until the input closes.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.NewMCPServer())
}
