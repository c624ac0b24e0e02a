package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/starford/relnotes/internal/models"
)

// Mounts is the ordered set of mount roots folded into the corpus.
// Declaration order is preserved and is the scan order.
type Mounts struct {
	mu   sync.RWMutex
	list []*FS
}

// NewMounts opens every root in order. Duplicate roots are ignored.
func NewMounts(roots ...string) (*Mounts, error) {
	m := &Mounts{}
	for _, r := range roots {
		if _, err := m.Add(r); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add appends a mount root. Adding an existing root returns the existing mount.
func (m *Mounts) Add(root string) (*FS, error) {
	fs, err := NewFS(root)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.list {
		if existing.root == fs.root {
			return existing, nil
		}
	}
	m.list = append(m.list, fs)
	return fs, nil
}

// Remove drops a mount root. It reports whether the root was present.
func (m *Mounts) Remove(root string) bool {
	abs, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, fs := range m.list {
		if fs.root == abs {
			m.list = append(m.list[:i], m.list[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a snapshot of the mounts in declaration order.
func (m *Mounts) List() []*FS {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*FS, len(m.list))
	copy(out, m.list)
	return out
}

// Get returns the mount with the given absolute root.
func (m *Mounts) Get(root string) (*FS, bool) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, false
	}
	for _, fs := range m.List() {
		if fs.root == abs {
			return fs, true
		}
	}
	return nil, false
}

// Locate returns the mount containing abs and the path relative to it.
// Nested mounts resolve to the deepest root.
func (m *Mounts) Locate(abs string) (*FS, string, bool) {
	var best *FS
	var bestRel string
	for _, fs := range m.List() {
		rel, ok := fs.Rel(abs)
		if !ok {
			continue
		}
		if best == nil || len(fs.root) > len(best.root) {
			best, bestRel = fs, rel
		}
	}
	return best, bestRel, best != nil
}

// Trees builds one directory tree per mount, in declaration order.
// Any unreadable root fails the whole call.
func (m *Mounts) Trees(logger *slog.Logger) ([]*models.DirectoryNode, error) {
	mounts := m.List()
	out := make([]*models.DirectoryNode, 0, len(mounts))
	for _, fs := range mounts {
		tree, err := fs.Tree(logger)
		if err != nil {
			return nil, fmt.Errorf("storage: mount %s: %w", fs.root, err)
		}
		out = append(out, tree)
	}
	return out, nil
}
