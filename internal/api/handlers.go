package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/relnotes/internal/models"
	"github.com/starford/relnotes/internal/noteservice"
)

// Similarity is the search and embedding surface the handlers need.
type Similarity interface {
	FindSimilar(ctx context.Context, queryText, excludeNoteID string) ([]models.SimilarNote, error)
	FindSimilarToNote(ctx context.Context, noteID string) ([]models.SimilarNote, error)
	GenerateEmbedding(ctx context.Context, noteID string) (*models.EmbeddingRecord, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
	sim Similarity
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service, sim Similarity) *Handler {
	return &Handler{svc: svc, sim: sim}
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes with pagination
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListNotes(r.Context(), limit, offset)
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note by id
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.svc.GetNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	w.Header().Set("ETag", `"`+note.Checksum+`"`)
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	note, err := h.svc.CreateNote(r.Context(), noteservice.CreateInput{
		Root:    req.Root,
		Dir:     req.Dir,
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
	})
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/{id}.
//
//	@Summary		Update a note with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"Note id"
//	@Param			If-Match	header		string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body		UpdateNoteRequest	true	"Fields to change"
//	@Success		200			{object}	NoteDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	note, err := h.svc.UpdateNote(r.Context(), chi.URLParam(r, "id"), noteservice.UpdateInput{
		Title:   req.Title,
		Content: req.Content,
		Tags:    req.Tags,
		IfMatch: ifMatch,
	})
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	w.Header().Set("ETag", `"`+note.Checksum+`"`)
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}. The embedding sidecar goes too.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Success		204	"Note deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteNote(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{ID: hit.ID, Path: hit.Path, Title: hit.Title, Snippet: hit.Snippet}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Tree handles GET /api/tree.
//
//	@Summary		Directory tree of every mount
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	TreeResponse
//	@Security		BearerAuth
//	@Router			/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	roots, err := h.svc.Tree(r.Context())
	if err != nil {
		writeError(w, "tree", err)
		return
	}
	writeJSON(w, http.StatusOK, TreeResponse{Roots: roots})
}

// ListMounts handles GET /api/mounts.
//
//	@Summary		List mount roots
//	@Tags			mounts
//	@Produce		json
//	@Success		200	{object}	MountsResponse
//	@Security		BearerAuth
//	@Router			/mounts [get]
func (h *Handler) ListMounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MountsResponse{Mounts: h.svc.Mounts(r.Context())})
}

// AddMount handles POST /api/mounts.
//
//	@Summary		Add a mount root
//	@Tags			mounts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MountRequest	true	"Directory to mount"
//	@Success		201		{object}	MountsResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/mounts [post]
func (h *Handler) AddMount(w http.ResponseWriter, r *http.Request) {
	var req MountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := h.svc.AddMount(r.Context(), req.Path); err != nil {
		writeError(w, "add mount", err)
		return
	}
	writeJSON(w, http.StatusCreated, MountsResponse{Mounts: h.svc.Mounts(r.Context())})
}

// RemoveMount handles DELETE /api/mounts?path=.
//
//	@Summary		Remove a mount root; files stay on disk
//	@Tags			mounts
//	@Param			path	query	string	true	"Mount root"
//	@Success		204		"Mount removed"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/mounts [delete]
func (h *Handler) RemoveMount(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	if err := h.svc.RemoveMount(r.Context(), path); err != nil {
		writeError(w, "remove mount", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateFolder handles POST /api/folders.
//
//	@Summary		Create a folder inside a mount
//	@Tags			notes
//	@Accept			json
//	@Param			body	body	FolderRequest	true	"Folder to create"
//	@Success		201		"Folder created"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders [post]
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req FolderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.CreateFolder(r.Context(), req.Root, req.Path); err != nil {
		writeError(w, "create folder", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// DeleteFolder handles DELETE /api/folders?path=&root=.
//
//	@Summary		Delete a folder with every note and embedding below it
//	@Tags			notes
//	@Param			path	query	string	true	"Folder relative to the mount"
//	@Param			root	query	string	false	"Mount root (first mount when empty)"
//	@Success		204		"Folder deleted"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders [delete]
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := FolderRequest{Root: q.Get("root"), Path: q.Get("path")}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.svc.DeleteFolder(r.Context(), req.Root, req.Path); err != nil {
		writeError(w, "delete folder", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
