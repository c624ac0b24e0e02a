package index

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/relnotes/internal/apperr"
	"github.com/starford/relnotes/internal/models"
	"github.com/starford/relnotes/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "relnotes-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func row(id, path string) NoteRow {
	return NoteRow{ID: id, Path: path, Root: "/root", Title: "T " + id, Checksum: "c-" + id, UpdatedAt: time.Now()}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&count); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM mounts`).Scan(&count); err != nil {
		t.Fatalf("mounts table missing: %v", err)
	}
}

func TestUpsertAndGetNote(t *testing.T) {
	db := testDB(t)
	r := row("n1", "/root/n1.json")
	r.Tags = []string{"go", "test"}
	if err := db.UpsertNote(r, "hello body"); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}
	got, err := db.GetNote("n1")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Path != "/root/n1.json" || got.Root != "/root" || got.Title != "T n1" || got.Checksum != "c-n1" {
		t.Errorf("row = %+v", got)
	}
	if strings.Join(got.Tags, ",") != "go,test" {
		t.Errorf("tags = %v", got.Tags)
	}
	byPath, err := db.GetByPath("/root/n1.json")
	if err != nil || byPath.ID != "n1" {
		t.Errorf("GetByPath = %+v, %v", byPath, err)
	}
}

func TestUpsertRequiresIDAndPath(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertNote(NoteRow{Path: "/x.json"}, ""); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(row("up", "/root/old/up.json"), "old body")
	moved := row("up", "/root/new/up.json")
	moved.Title = "New"
	moved.Checksum = "2"
	if err := db.UpsertNote(moved, "new body"); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetNote("up")
	if got.Path != "/root/new/up.json" || got.Title != "New" || got.Checksum != "2" {
		t.Errorf("row = %+v", got)
	}
	if _, err := db.GetByPath("/root/old/up.json"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("old path err = %v", err)
	}
}

func TestUpsertReplacesOtherNoteAtSamePath(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(row("first", "/root/x.json"), "")
	if err := db.UpsertNote(row("second", "/root/x.json"), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetNote("first"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("first err = %v", err)
	}
	if got, _ := db.GetByPath("/root/x.json"); got == nil || got.ID != "second" {
		t.Errorf("path owner = %+v", got)
	}
}

func TestDeleteNote(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(row("del", "/root/del.json"), "body")

	if err := db.DeleteNote("del"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if _, err := db.GetNote("del"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
	if err := db.DeleteNote("del"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestDeleteByPath(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(row("p", "/root/p.json"), "")
	id, err := db.DeleteByPath("/root/p.json")
	if err != nil || id != "p" {
		t.Fatalf("DeleteByPath = %q, %v", id, err)
	}
	id, err = db.DeleteByPath("/root/p.json")
	if err != nil || id != "" {
		t.Errorf("missing path = %q, %v", id, err)
	}
}

func TestListNotes(t *testing.T) {
	db := testDB(t)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		r := row(id, "/root/"+id+".json")
		r.UpdatedAt = base.Add(time.Duration(i) * time.Hour)
		_ = db.UpsertNote(r, "")
	}
	page, total, err := db.ListNotes(2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(page) != 2 || page[0].ID != "c" || page[1].ID != "b" {
		t.Errorf("page = %+v total = %d", page, total)
	}
	page, _, _ = db.ListNotes(2, 2)
	if len(page) != 1 || page[0].ID != "a" {
		t.Errorf("second page = %+v", page)
	}
	if !page[0].UpdatedAt.Equal(base) {
		t.Errorf("updated_at = %v", page[0].UpdatedAt)
	}
}

func TestAllChecksums(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(row("a", "/root/a.json"), "")
	_ = db.UpsertNote(row("b", "/root/b.json"), "")
	cs, err := db.AllChecksums()
	if err != nil {
		t.Fatal(err)
	}
	if len(cs) != 2 || cs["/root/a.json"] != "c-a" {
		t.Errorf("checksums = %v", cs)
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(row("s", "/root/s.json"), "uniqueword appears here")

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "s" || results[0].Path != "/root/s.json" {
		t.Errorf("search results = %+v, want 1 hit for s", results)
	}
}

func TestSearch_AllTermsMustMatch(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(row("both", "/root/both.json"), "Cosine similarity over note vectors")
	_ = db.UpsertNote(row("one", "/root/one.json"), "Cosine of an angle")

	results, err := db.Search("COSINE vectors", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "both" {
		t.Errorf("results = %+v, want only both", results)
	}
}

func TestSearch_BlankAndSyntaxQueries(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(row("q", "/root/q.json"), `He said "hello" (twice)`)

	results, err := db.Search("   ", 10)
	if err != nil || results == nil || len(results) != 0 {
		t.Errorf("blank query = %+v, %v", results, err)
	}
	for _, q := range []string{`"hello`, `(twice`, `hello AND`, `c++`} {
		if _, err := db.Search(q, 10); err != nil {
			t.Errorf("Search(%q): %v", q, err)
		}
	}
}

func TestMounts(t *testing.T) {
	db := testDB(t)
	for _, p := range []string{"/b", "/a", "/b", "/c"} {
		if err := db.AddMount(p); err != nil {
			t.Fatal(err)
		}
	}
	got, err := db.Mounts()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "/b,/a,/c" {
		t.Errorf("mounts = %v", got)
	}

	r := row("inA", "/a/x.json")
	r.Root = "/a"
	_ = db.UpsertNote(r, "")
	ok, err := db.RemoveMount("/a")
	if err != nil || !ok {
		t.Fatalf("RemoveMount = %v, %v", ok, err)
	}
	if _, err := db.GetNote("inA"); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("notes under a removed mount should leave the catalog")
	}
	if ok, _ := db.RemoveMount("/a"); ok {
		t.Error("second remove should report false")
	}
	got, _ = db.Mounts()
	if strings.Join(got, ",") != "/b,/c" {
		t.Errorf("mounts = %v", got)
	}
}

func TestSync(t *testing.T) {
	db := testDB(t)
	dirA, dirB := t.TempDir(), t.TempDir()
	mounts, err := storage.NewMounts(dirA, dirB)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := mounts.Get(dirA)
	b, _ := mounts.Get(dirB)
	a.WriteNote("", &models.Note{ID: "one", Title: "One", Content: "<p>alpha</p>"})
	b.WriteNote("nested", &models.Note{ID: "two", Title: "Two"})
	// Sidecars are not notes.
	os.WriteFile(filepath.Join(a.Root(), "one"+storage.EmbeddingExt), []byte(`{}`), 0o644)

	if err := Sync(db, mounts, discard()); err != nil {
		t.Fatal(err)
	}
	_, total, _ := db.ListNotes(10, 0)
	if total != 2 {
		t.Fatalf("total = %d", total)
	}
	two, err := db.GetNote("two")
	if err != nil {
		t.Fatal(err)
	}
	if two.Root != b.Root() || two.Path != filepath.Join(b.Root(), "nested", "two.json") {
		t.Errorf("two = %+v", two)
	}

	b.Delete(filepath.Join("nested", "two.json"))
	if err := Sync(db, mounts, discard()); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetNote("two"); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("removed record should leave the catalog")
	}
	if hits, _ := db.Search("alpha", 10); len(hits) != 1 {
		t.Errorf("plain text body should be searchable, hits = %+v", hits)
	}
}

func TestSync_FirstMountOwnsDuplicateID(t *testing.T) {
	db := testDB(t)
	dirA, dirB := t.TempDir(), t.TempDir()
	mounts, err := storage.NewMounts(dirA, dirB)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := mounts.Get(dirA)
	b, _ := mounts.Get(dirB)
	b.WriteNote("", &models.Note{ID: "dup", Title: "From B"})

	// Only the later mount has it: it is catalogued there.
	if err := Sync(db, mounts, discard()); err != nil {
		t.Fatal(err)
	}
	if r, _ := db.GetNote("dup"); r == nil || r.Root != b.Root() {
		t.Fatalf("dup = %+v, want root %s", r, b.Root())
	}

	// A copy in the earlier mount takes over.
	a.WriteNote("", &models.Note{ID: "dup", Title: "From A"})
	if err := Sync(db, mounts, discard()); err != nil {
		t.Fatal(err)
	}
	r, err := db.GetNote("dup")
	if err != nil || r.Root != a.Root() || r.Title != "From A" {
		t.Fatalf("dup = %+v, %v, want root %s", r, err, a.Root())
	}

	// Re-indexing the later copy does not steal the id back.
	bPath, _ := b.Abs("dup.json")
	if _, err := IndexFile(db, mounts, bPath); !errors.Is(err, ErrShadowed) {
		t.Errorf("IndexFile(later copy) err = %v, want ErrShadowed", err)
	}
	if r, _ := db.GetNote("dup"); r == nil || r.Root != a.Root() {
		t.Errorf("dup moved to %+v", r)
	}

	// Once the earlier copy is gone the later one is catalogued again.
	a.Delete("dup.json")
	if err := Sync(db, mounts, discard()); err != nil {
		t.Fatal(err)
	}
	if r, _ := db.GetNote("dup"); r == nil || r.Root != b.Root() {
		t.Errorf("dup = %+v, want root %s", r, b.Root())
	}
}
