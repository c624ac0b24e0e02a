package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/relnotes/internal/models"
)

func tempMount(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func note(id, title string) *models.Note {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &models.Note{ID: id, Title: title, Content: "<p>" + title + "</p>", CreatedAt: now, UpdatedAt: now}
}

func TestWriteAndReadNote(t *testing.T) {
	s := tempMount(t)
	rel, err := s.WriteNote("", note("n1", "Hello"))
	if err != nil {
		t.Fatalf("WriteNote: %v", err)
	}
	if rel != "n1.json" {
		t.Errorf("rel = %q", rel)
	}
	got, _, err := s.ReadNote(rel)
	if err != nil {
		t.Fatalf("ReadNote: %v", err)
	}
	if got.ID != "n1" || got.Title != "Hello" || got.Content != "<p>Hello</p>" {
		t.Errorf("note mismatch: %+v", got)
	}
}

func TestReadNote_ChecksumMatchesList(t *testing.T) {
	s := tempMount(t)
	rel, _ := s.WriteNote("", note("sum", "Sum"))
	_, cs, err := s.ReadNote(rel)
	if err != nil {
		t.Fatalf("ReadNote: %v", err)
	}
	metas, err := s.List("")
	if err != nil || len(metas) != 1 {
		t.Fatalf("List = %+v, %v", metas, err)
	}
	if cs == "" || cs != metas[0].Checksum {
		t.Errorf("ReadNote checksum %q, List checksum %q", cs, metas[0].Checksum)
	}

	_, _ = s.WriteNote("", note("sum", "Changed"))
	if _, cs2, _ := s.ReadNote(rel); cs2 == cs {
		t.Error("checksum did not change with content")
	}
}

func TestProvider_RoundTrip(t *testing.T) {
	var p Provider = tempMount(t)
	rel, err := p.WriteNote("sub", note("iface", "Via interface"))
	if err != nil {
		t.Fatalf("WriteNote: %v", err)
	}
	got, cs, err := p.ReadNote(rel)
	if err != nil {
		t.Fatalf("ReadNote: %v", err)
	}
	if got.ID != "iface" || cs == "" {
		t.Errorf("ReadNote = %+v, %q", got, cs)
	}
	metas, _ := p.List("sub")
	if len(metas) != 1 || metas[0].Checksum != cs {
		t.Errorf("List = %+v, want checksum %q", metas, cs)
	}
}

func TestWriteNoteCreatesSubdirs(t *testing.T) {
	s := tempMount(t)
	rel, err := s.WriteNote("a/b", note("deep", "Deep"))
	if err != nil {
		t.Fatalf("WriteNote: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), rel)); err != nil {
		t.Errorf("note file missing: %v", err)
	}
}

func TestReadNote_Missing(t *testing.T) {
	s := tempMount(t)
	_, _, err := s.ReadNote("nope.json")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
}

func TestReadNote_IDFallsBackToFileName(t *testing.T) {
	s := tempMount(t)
	_ = os.WriteFile(filepath.Join(s.Root(), "legacy.json"), []byte(`{"title":"Old"}`), 0o644)
	got, _, err := s.ReadNote("legacy.json")
	if err != nil {
		t.Fatalf("ReadNote: %v", err)
	}
	if got.ID != "legacy" {
		t.Errorf("id = %q, want legacy", got.ID)
	}
}

func TestDelete(t *testing.T) {
	s := tempMount(t)
	rel, _ := s.WriteNote("", note("del", "Bye"))
	if err := s.Delete(rel); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := s.ReadNote(rel); err == nil {
		t.Error("expected error reading deleted note")
	}
}

func TestList_SkipsSidecars(t *testing.T) {
	s := tempMount(t)
	_, _ = s.WriteNote("", note("a", "A"))
	_, _ = s.WriteNote("sub", note("b", "B"))
	_ = os.WriteFile(filepath.Join(s.Root(), "a.embedding.json"), []byte(`{}`), 0o644)
	_ = os.WriteFile(filepath.Join(s.Root(), "readme.txt"), []byte("not a note"), 0o644)

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(items), items)
	}
	for _, it := range items {
		if it.Checksum == "" || it.ID == "" {
			t.Errorf("incomplete meta: %+v", it)
		}
	}
}

func TestTree(t *testing.T) {
	s := tempMount(t)
	_, _ = s.WriteNote("", note("z", "Zed"))
	_, _ = s.WriteNote("", note("a", "Ay"))
	_, _ = s.WriteNote("folder", note("c", "Sea"))
	_ = os.WriteFile(filepath.Join(s.Root(), "a.embedding.json"), []byte(`{}`), 0o644)
	_ = os.WriteFile(filepath.Join(s.Root(), "broken.json"), []byte(`{not json`), 0o644)

	tree, err := s.Tree(nil)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if tree.Type != models.NodeFolder || tree.FullPath != s.Root() {
		t.Errorf("root node = %+v", tree)
	}

	var names []string
	for _, c := range tree.Children {
		names = append(names, c.Name)
	}
	want := []string{"a.json", "folder", "z.json"}
	if len(names) != len(want) {
		t.Fatalf("children = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("children = %v, want %v", names, want)
			break
		}
	}

	folder := tree.Children[1]
	if len(folder.Children) != 1 || !folder.Children[0].IsNote() || folder.Children[0].Note.ID != "c" {
		t.Errorf("folder children = %+v", folder.Children)
	}
}

func TestTree_UnreadableRoot(t *testing.T) {
	s := tempMount(t)
	if err := os.RemoveAll(s.Root()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Tree(nil); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestMkdirAndDeleteDir(t *testing.T) {
	s := tempMount(t)
	if err := s.Mkdir("x/y"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := s.DeleteDir("x"); err != nil {
		t.Fatalf("DeleteDir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "x")); !os.IsNotExist(err) {
		t.Errorf("dir still present: %v", err)
	}
	if err := s.DeleteDir(""); err == nil {
		t.Error("expected error deleting mount root")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempMount(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.json",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, _, err := s.ReadNote(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if _, err := s.WriteNote(p, note("x", "x")); err == nil {
			t.Errorf("expected error for write into %q", p)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempMount(t)
	_, _ = s.WriteNote("", note("atomic", "v1"))
	if _, err := s.WriteNote("", note("atomic", "v2")); err != nil {
		t.Fatalf("WriteNote: %v", err)
	}
	got, _, _ := s.ReadNote("atomic.json")
	if got.Title != "v2" {
		t.Errorf("expected updated title, got %q", got.Title)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), tmpPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/relnotes-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "relnotes-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestFileClassification(t *testing.T) {
	cases := []struct {
		name      string
		note, emb bool
		id        string
	}{
		{"abc.json", true, false, "abc"},
		{"abc.embedding.json", false, true, "abc"},
		{".relnotes-tmp-1.json", false, false, ".relnotes-tmp-1"},
		{"abc.txt", false, false, "abc.txt"},
	}
	for _, tc := range cases {
		if got := IsNoteFile(tc.name); got != tc.note {
			t.Errorf("IsNoteFile(%q) = %v", tc.name, got)
		}
		if got := IsEmbeddingFile(tc.name); got != tc.emb {
			t.Errorf("IsEmbeddingFile(%q) = %v", tc.name, got)
		}
		if got := NoteIDFromFile(tc.name); got != tc.id {
			t.Errorf("NoteIDFromFile(%q) = %q, want %q", tc.name, got, tc.id)
		}
	}
}

func TestMounts_OrderAndDedup(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	m, err := NewMounts(a, b, a)
	if err != nil {
		t.Fatalf("NewMounts: %v", err)
	}
	list := m.List()
	if len(list) != 2 || list[0].Root() != a || list[1].Root() != b {
		t.Fatalf("mounts = %v", list)
	}
	if !m.Remove(a) {
		t.Error("Remove reported missing")
	}
	if m.Remove(a) {
		t.Error("second Remove should report missing")
	}
	if len(m.List()) != 1 {
		t.Errorf("len = %d after remove", len(m.List()))
	}
}

func TestMounts_Locate(t *testing.T) {
	a := t.TempDir()
	nested := filepath.Join(a, "inner")
	_ = os.MkdirAll(nested, 0o755)
	m, _ := NewMounts(a, nested)

	fs, rel, ok := m.Locate(filepath.Join(nested, "x.json"))
	if !ok || fs.Root() != nested || rel != "x.json" {
		t.Errorf("Locate = %v %q %v", fs, rel, ok)
	}
	if _, _, ok := m.Locate("/definitely/elsewhere.json"); ok {
		t.Error("expected no mount for foreign path")
	}
}

func TestMounts_Trees(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	m, _ := NewMounts(a, b)
	trees, err := m.Trees(nil)
	if err != nil {
		t.Fatalf("Trees: %v", err)
	}
	if len(trees) != 2 || trees[0].FullPath != a || trees[1].FullPath != b {
		t.Errorf("trees out of order: %+v", trees)
	}

	_ = os.RemoveAll(b)
	if _, err := m.Trees(nil); err == nil {
		t.Error("expected error when a root disappears")
	}
}
