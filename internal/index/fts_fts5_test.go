//go:build sqlite_fts5

package index

import (
	"testing"
	"time"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes_fts`).Scan(&count); err != nil {
		t.Fatalf("notes_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	r := NoteRow{
		ID:        "fts",
		Path:      "/root/fts.json",
		Title:     "FTS Note",
		Checksum:  "f1",
		Tags:      []string{"search"},
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertNote(r, "Related notes come with powerful full-text search."); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}

	results, err := db.Search("powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ID != "fts" || results[0].Path != "/root/fts.json" {
		t.Errorf("result = %+v", results[0])
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{ID: "gone", Path: "/root/gone.json", UpdatedAt: time.Now()}, "vanishing content")
	_ = db.DeleteNote("gone")

	results, err := db.Search("vanishing", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results after delete, got %d", len(results))
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{ID: "r", Path: "/root/r.json", UpdatedAt: time.Now()}, "original")
	_ = db.UpsertNote(NoteRow{ID: "r", Path: "/root/r.json", UpdatedAt: time.Now()}, "replacement")

	if results, _ := db.Search("original", 10); len(results) != 0 {
		t.Errorf("stale content still searchable: %+v", results)
	}
	if results, _ := db.Search("replacement", 10); len(results) != 1 {
		t.Errorf("new content not searchable: %+v", results)
	}
}

func TestFTS5_PrefixMatchOnLastTerm(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{ID: "p", Path: "/root/p.json", UpdatedAt: time.Now()}, "embedding sidecars everywhere")

	if results, _ := db.Search("embedding side", 10); len(results) != 1 {
		t.Errorf("prefix search = %+v", results)
	}
	if results, _ := db.Search("embed sidecars", 10); len(results) != 0 {
		t.Errorf("only the last term is a prefix: %+v", results)
	}
}

func TestMatchExpr(t *testing.T) {
	if got := matchExpr([]string{`say`, `"hi`}); got != `"say" """hi"*` {
		t.Errorf("matchExpr = %s", got)
	}
}
