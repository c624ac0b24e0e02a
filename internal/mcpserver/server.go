// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes relnotes tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/relnotes/internal/models"
	"github.com/starford/relnotes/internal/noteservice"
)

const contractURI = "relnotes://note-format"

// Similarity is the search and embedding surface exposed as tools.
type Similarity interface {
	FindSimilar(ctx context.Context, queryText, excludeNoteID string) ([]models.SimilarNote, error)
	FindSimilarToNote(ctx context.Context, noteID string) ([]models.SimilarNote, error)
	GenerateEmbedding(ctx context.Context, noteID string) (*models.EmbeddingRecord, error)
}

// Server wraps the MCP server with relnotes tools.
type Server struct {
	mcp   *server.MCPServer
	notes *noteservice.Service
	sim   Similarity
}

// New creates a new MCP server with all relnotes tools registered.
func New(notes *noteservice.Service, sim Similarity, version string) *Server {
	s := &Server{notes: notes, sim: sim}

	s.mcp = server.NewMCPServer(
		"relnotes",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("find_similar_notes",
		mcp.WithDescription("Find the five notes whose embeddings are closest to the given text, best first. "+
			"Only notes with a stored embedding are considered."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free text to compare against")),
		mcp.WithString("exclude_note_id", mcp.Description("Optional note id to leave out of the results")),
	), s.findSimilarNotes)

	s.mcp.AddTool(mcp.NewTool("similar_to_note",
		mcp.WithDescription("Find the notes most related to an existing note, excluding the note itself."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Id of the reference note")),
	), s.similarToNote)

	s.mcp.AddTool(mcp.NewTool("generate_embedding",
		mcp.WithDescription("Compute and store the embedding of a note so it can take part in similarity search."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Id of the note to embed")),
	), s.generateEmbedding)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full record of a note as JSON."),
		mcp.WithString("note_id", mcp.Required(), mcp.Description("Id of the note")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. Read the contract first via the get_note_contract tool "+
			"or the "+contractURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Human-readable title")),
		mcp.WithString("content", mcp.Description("Note body; HTML is allowed")),
		mcp.WithString("dir", mcp.Description("Optional folder relative to the first mount")),
		mcp.WithString("tags", mcp.Description("Optional comma-separated tags")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List catalogued notes, most recently updated first."),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the note and embedding file format contract."),
	), s.getNoteContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Note Format Contract",
			mcp.WithResourceDescription("On-disk format of note records and embedding sidecars."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
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

func (s *Server) findSimilarNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	exclude := ""
	if v, err := req.RequireString("exclude_note_id"); err == nil {
		exclude = v
	}
	results, err := s.sim.FindSimilar(ctx, query, exclude)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) similarToNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.sim.FindSimilarToNote(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) generateEmbedding(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.sim.GenerateEmbedding(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("embedded %s with %s (%d dimensions)", rec.NoteID, rec.Model, rec.Dimensions)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.notes.GetNote(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(note)
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(title) == "" {
		return mcp.NewToolResultError("title cannot be blank"), nil
	}
	in := noteservice.CreateInput{Title: title}
	if v, err := req.RequireString("content"); err == nil {
		in.Content = v
	}
	if v, err := req.RequireString("dir"); err == nil {
		in.Dir = v
	}
	if v, err := req.RequireString("tags"); err == nil {
		in.Tags = splitTags(v)
	}

	note, err := s.notes.CreateNote(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", note.ID)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit, offset := 50, 0
	if v, err := req.RequireInt("limit"); err == nil && v > 0 {
		limit = v
	}
	if v, err := req.RequireInt("offset"); err == nil && v > 0 {
		offset = v
	}
	items, total, err := s.notes.ListNotes(ctx, limit, offset)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if total == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = it.ID + "\t" + it.Title
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.notes.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
