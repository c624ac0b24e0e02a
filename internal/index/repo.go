package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/relnotes/internal/apperr"
)

// NoteRow represents a row in the notes table. Path is the absolute path of
// the note record and Root the mount it was found under.
type NoteRow struct {
	ID        string
	Path      string
	Root      string
	Title     string
	Checksum  string
	Tags      []string
	UpdatedAt time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string
	Path    string
	Title   string
	Snippet string
}

const noteColumns = `id, path, root, title, checksum, tags, updated_at`

// UpsertNote inserts or replaces a note and its FTS entry within a transaction.
// A different note previously recorded at the same path is replaced.
func (db *DB) UpsertNote(n NoteRow, body string) error {
	if n.ID == "" || n.Path == "" {
		return fmt.Errorf("index: upsert note: id and path are required: %w", apperr.ErrInvalidInput)
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)

	var stale string
	err = tx.QueryRow(`SELECT id FROM notes WHERE path = ? AND id <> ?`, n.Path, n.ID).Scan(&stale)
	if err == nil {
		ftsDelete(tx, stale)
		if _, err := tx.Exec(`DELETE FROM notes WHERE id = ?`, stale); err != nil {
			return fmt.Errorf("index: replace stale note: %w", err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO notes (id, path, root, title, checksum, tags, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path       = excluded.path,
			root       = excluded.root,
			title      = excluded.title,
			checksum   = excluded.checksum,
			tags       = excluded.tags,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, n.ID, n.Path, n.Root, n.Title, n.Checksum, string(tagsJSON), body, n.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, n.ID, n.Title, body, n.Tags); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteNote removes a note and its FTS entry. Deleting an unknown id is a no-op.
func (db *DB) DeleteNote(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	if _, err := tx.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return tx.Commit()
}

// DeleteByPath removes the note recorded at path and returns its id, or ""
// when nothing was recorded there.
func (db *DB) DeleteByPath(path string) (string, error) {
	row, err := db.GetByPath(path)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.ID, db.DeleteNote(row.ID)
}

// GetNote returns the catalog row for id, or apperr.ErrNotFound.
func (db *DB) GetNote(id string) (*NoteRow, error) {
	return db.getOne(`SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
}

// GetByPath returns the catalog row for an absolute record path, or apperr.ErrNotFound.
func (db *DB) GetByPath(path string) (*NoteRow, error) {
	return db.getOne(`SELECT `+noteColumns+` FROM notes WHERE path = ?`, path)
}

func (db *DB) getOne(query string, arg string) (*NoteRow, error) {
	r, err := scanNote(db.conn.QueryRow(query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: note %s: %w", arg, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	return r, nil
}

// ListNotes returns a page of notes, most recently updated first, and the
// total count.
func (db *DB) ListNotes(limit, offset int) ([]NoteRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count notes: %w", err)
	}
	rows, err := db.conn.Query(`SELECT `+noteColumns+` FROM notes ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	out := []NoteRow{}
	for rows.Next() {
		r, err := scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

// AllChecksums returns the stored checksum of every note keyed by record path.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Mounts returns the persisted mount roots in declaration order.
func (db *DB) Mounts() ([]string, error) {
	rows, err := db.conn.Query(`SELECT path FROM mounts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("index: mounts: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AddMount appends a mount root. Adding an existing root keeps its position.
func (db *DB) AddMount(path string) error {
	_, err := db.conn.Exec(`
		INSERT INTO mounts (path, position)
		VALUES (?, (SELECT COALESCE(MAX(position), -1) + 1 FROM mounts))
		ON CONFLICT(path) DO NOTHING
	`, path)
	if err != nil {
		return fmt.Errorf("index: add mount: %w", err)
	}
	return nil
}

// RemoveMount drops a mount root and every note catalogued under it.
// It reports whether the root was present.
func (db *DB) RemoveMount(path string) (bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return false, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`DELETE FROM mounts WHERE path = ?`, path)
	if err != nil {
		return false, fmt.Errorf("index: remove mount: %w", err)
	}
	n, _ := res.RowsAffected()

	ids, err := tx.Query(`SELECT id FROM notes WHERE root = ?`, path)
	if err != nil {
		return false, fmt.Errorf("index: remove mount notes: %w", err)
	}
	var gone []string
	for ids.Next() {
		var id string
		if err := ids.Scan(&id); err != nil {
			ids.Close()
			return false, err
		}
		gone = append(gone, id)
	}
	ids.Close()
	for _, id := range gone {
		ftsDelete(tx, id)
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE root = ?`, path); err != nil {
		return false, fmt.Errorf("index: remove mount notes: %w", err)
	}
	return n > 0, tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(s rowScanner) (*NoteRow, error) {
	var r NoteRow
	var tags string
	if err := s.Scan(&r.ID, &r.Path, &r.Root, &r.Title, &r.Checksum, &tags, &r.UpdatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(tags), &r.Tags)
	return &r, nil
}
