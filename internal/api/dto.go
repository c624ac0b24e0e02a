package api

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/relnotes/internal/models"
	"github.com/starford/relnotes/internal/noteservice"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Root    string   `json:"root,omitempty" example:"/home/me/notes"`
	Dir     string   `json:"dir,omitempty" example:"work/2024"`
	Title   string   `json:"title" example:"Meeting notes" validate:"required"`
	Content string   `json:"content" example:"<p>Agenda</p>"`
	Tags    []string `json:"tags,omitempty"`
}

// Validate validates the request.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.By(notBlank), validation.Length(1, 500)),
		validation.Field(&r.Dir, validation.Length(0, 1024)),
	)
}

// UpdateNoteRequest is the request body for updating a note. Omitted fields
// are kept.
type UpdateNoteRequest struct {
	Title   *string  `json:"title,omitempty" example:"Renamed"`
	Content *string  `json:"content,omitempty" example:"<p>Updated</p>"`
	Tags    []string `json:"tags,omitempty"`
}

// Validate validates the request.
func (r UpdateNoteRequest) Validate() error {
	if r.Title == nil && r.Content == nil && r.Tags == nil {
		return validation.NewError("validation_empty_update", "at least one of title, content or tags is required")
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.NilOrNotEmpty, validation.By(notBlank), validation.Length(1, 500)),
	)
}

// SimilarRequest is the request body for a free-text similarity search.
type SimilarRequest struct {
	Query         string `json:"query" example:"quarterly planning" validate:"required"`
	ExcludeNoteID string `json:"excludeNoteId,omitempty" example:"3f2c..."`
}

// Validate validates the request.
func (r SimilarRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Query, validation.By(notBlank)),
	)
}

// MountRequest names a mount root to add or remove.
type MountRequest struct {
	Path string `json:"path" example:"/home/me/notes" validate:"required"`
}

// Validate validates the request.
func (r MountRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
	)
}

// FolderRequest names a folder inside a mount. An empty root selects the
// first mount.
type FolderRequest struct {
	Root string `json:"root,omitempty" example:"/home/me/notes"`
	Path string `json:"path" example:"work/2024" validate:"required"`
}

// Validate validates the request.
func (r FolderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.By(notBlank), validation.Length(1, 1024)),
	)
}

func notBlank(value any) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case *string:
		if v == nil {
			return nil
		}
		s = *v
	}
	if strings.TrimSpace(s) == "" {
		return validation.NewError("validation_blank", "cannot be blank")
	}
	return nil
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single full-text search hit in the API response.
type SearchResult struct {
	ID      string `json:"id" example:"3f2c..." validate:"required"`
	Path    string `json:"path" example:"/home/me/notes/3f2c....json" validate:"required"`
	Title   string `json:"title" example:"Hello" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// SimilarResponse wraps similarity results, best first, at most five.
type SimilarResponse struct {
	Results []models.SimilarNote `json:"results" validate:"required"`
}

// TreeResponse holds one directory tree per mount, in mount order.
type TreeResponse struct {
	Roots []*models.DirectoryNode `json:"roots" validate:"required"`
}

// MountsResponse lists mount roots in declaration order.
type MountsResponse struct {
	Mounts []string `json:"mounts" validate:"required"`
}
