package scanner

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/starford/relnotes/internal/embedstore"
	"github.com/starford/relnotes/internal/models"
	"github.com/starford/relnotes/internal/storage"
)

func noteNode(dir, id string) *models.DirectoryNode {
	return &models.DirectoryNode{
		Name:     id + storage.NoteExt,
		Type:     models.NodeNote,
		FullPath: filepath.Join(dir, id+storage.NoteExt),
		Note:     &models.NoteMetadata{ID: id, Title: id},
	}
}

func folder(dir string, children ...*models.DirectoryNode) *models.DirectoryNode {
	return &models.DirectoryNode{Name: filepath.Base(dir), Type: models.NodeFolder, FullPath: dir, Children: children}
}

func ids(seq []Candidate) []string {
	out := make([]string, 0, len(seq))
	for _, c := range seq {
		out = append(out, c.NoteID)
	}
	return out
}

func TestScan_OrderAndFilter(t *testing.T) {
	embedded := map[string]bool{
		embedstore.PathFor("/a", "n1"):     true,
		embedstore.PathFor("/a/sub", "n3"): true,
		embedstore.PathFor("/b", "n4"):     true,
	}
	exists := func(p string) bool { return embedded[p] }

	roots := []*models.DirectoryNode{
		folder("/a", noteNode("/a", "n1"), noteNode("/a", "n2"), folder("/a/sub", noteNode("/a/sub", "n3"))),
		folder("/b", noteNode("/b", "n4")),
	}

	got := slices.Collect(Scan(roots, exists))
	if want := []string{"n1", "n3", "n4"}; !slices.Equal(ids(got), want) {
		t.Fatalf("ids = %v, want %v", ids(got), want)
	}
	if got[1].NotePath != "/a/sub/n3.json" || got[1].EmbeddingPath != "/a/sub/n3.embedding.json" {
		t.Errorf("candidate = %+v", got[1])
	}
}

func TestScan_SkipsPathLikeIDs(t *testing.T) {
	exists := func(string) bool { return true }
	roots := []*models.DirectoryNode{
		folder("/a", noteNode("/a", "ok"), noteNode("/a", "../../etc/x"), noteNode("/a", "sub/y"), noteNode("/a", "..")),
	}
	got := slices.Collect(Scan(roots, exists))
	if want := []string{"ok"}; !slices.Equal(ids(got), want) {
		t.Fatalf("ids = %v, want %v", ids(got), want)
	}
}

func TestScan_Restartable(t *testing.T) {
	roots := []*models.DirectoryNode{folder("/r", noteNode("/r", "x"), noteNode("/r", "y"))}
	calls := 0
	exists := func(string) bool { calls++; return true }

	seq := Scan(roots, exists)
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if !slices.Equal(ids(first), ids(second)) || len(first) != 2 {
		t.Fatalf("first=%v second=%v", ids(first), ids(second))
	}
	if calls != 4 {
		t.Errorf("exists called %d times, want a fresh check per walk", calls)
	}
}

func TestScan_EarlyBreak(t *testing.T) {
	roots := []*models.DirectoryNode{
		folder("/r", noteNode("/r", "a"), noteNode("/r", "b")),
		folder("/s", noteNode("/s", "c")),
	}
	var seen []string
	for c := range Scan(roots, func(string) bool { return true }) {
		seen = append(seen, c.NoteID)
		if len(seen) == 2 {
			break
		}
	}
	if !slices.Equal(seen, []string{"a", "b"}) {
		t.Errorf("seen = %v", seen)
	}
}

func TestScan_SkipsNodesWithoutMetadata(t *testing.T) {
	broken := &models.DirectoryNode{Name: "x.json", Type: models.NodeNote, FullPath: "/r/x.json"}
	roots := []*models.DirectoryNode{nil, folder("/r", broken)}
	if got := slices.Collect(Scan(roots, func(string) bool { return true })); len(got) != 0 {
		t.Errorf("got %v", got)
	}
}

func TestScan_RealTree(t *testing.T) {
	root := t.TempDir()
	fs, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"b", "a", "c"} {
		if _, err := fs.WriteNote("", &models.Note{ID: id, Title: id}); err != nil {
			t.Fatal(err)
		}
	}
	store := embedstore.New()
	for _, id := range []string{"a", "c"} {
		if _, err := store.Save(id, root, []float32{1}, "m"); err != nil {
			t.Fatal(err)
		}
	}
	// A stray sidecar without a note is never a candidate.
	os.WriteFile(filepath.Join(root, "orphan"+storage.EmbeddingExt), []byte("{}"), 0o644)

	tree, err := fs.Tree(nil)
	if err != nil {
		t.Fatal(err)
	}
	got := slices.Collect(Scan([]*models.DirectoryNode{tree}, store.Exists))
	if want := []string{"a", "c"}; !slices.Equal(ids(got), want) {
		t.Errorf("ids = %v, want %v", ids(got), want)
	}
}
