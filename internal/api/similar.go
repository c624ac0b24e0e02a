package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GenerateEmbedding handles POST /api/notes/{id}/embedding.
//
//	@Summary		Compute and store the embedding of a note
//	@Tags			similarity
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		201	{object}	models.EmbeddingRecord
//	@Failure		404	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Failure		504	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/embedding [post]
func (h *Handler) GenerateEmbedding(w http.ResponseWriter, r *http.Request) {
	rec, err := h.sim.GenerateEmbedding(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "generate embedding", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// SimilarToNote handles GET /api/notes/{id}/similar.
//
//	@Summary		Notes related to a note, excluding itself
//	@Tags			similarity
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	SimilarResponse
//	@Failure		404	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/similar [get]
func (h *Handler) SimilarToNote(w http.ResponseWriter, r *http.Request) {
	results, err := h.sim.FindSimilarToNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "find similar", err)
		return
	}
	writeJSON(w, http.StatusOK, SimilarResponse{Results: results})
}

// FindSimilar handles POST /api/similar.
//
//	@Summary		Notes most similar to free text
//	@Tags			similarity
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SimilarRequest	true	"Query"
//	@Success		200		{object}	SimilarResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Failure		504		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/similar [post]
func (h *Handler) FindSimilar(w http.ResponseWriter, r *http.Request) {
	var req SimilarRequest
	if !decodeBody(w, r, &req) {
		return
	}
	results, err := h.sim.FindSimilar(r.Context(), req.Query, req.ExcludeNoteID)
	if err != nil {
		writeError(w, "find similar", err)
		return
	}
	writeJSON(w, http.StatusOK, SimilarResponse{Results: results})
}
