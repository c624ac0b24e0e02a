package index

// NoteIndex defines the catalog operations consumers depend on.
type NoteIndex interface {
	UpsertNote(n NoteRow, body string) error
	DeleteNote(id string) error
	DeleteByPath(path string) (string, error)
	GetNote(id string) (*NoteRow, error)
	GetByPath(path string) (*NoteRow, error)
	ListNotes(limit, offset int) ([]NoteRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllChecksums() (map[string]string, error)
	Mounts() ([]string, error)
	AddMount(path string) error
	RemoveMount(path string) (bool, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
