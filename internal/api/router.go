package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/relnotes/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events behind the same auth.
func NewRouter(svc *noteservice.Service, sim Similarity, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, sim)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Route("/notes/{id}", func(r chi.Router) {
		r.Get("/", h.GetNote)
		r.Put("/", h.UpdateNote)
		r.Delete("/", h.DeleteNote)

		// Related notes.
		r.Post("/embedding", h.GenerateEmbedding)
		r.Get("/similar", h.SimilarToNote)
	})

	r.Post("/similar", h.FindSimilar)
	r.Get("/search", h.Search)
	r.Get("/tree", h.Tree)
	r.Post("/folders", h.CreateFolder)
	r.Delete("/folders", h.DeleteFolder)

	// Mount roots.
	r.Get("/mounts", h.ListMounts)
	r.Post("/mounts", h.AddMount)
	r.Delete("/mounts", h.RemoveMount)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
