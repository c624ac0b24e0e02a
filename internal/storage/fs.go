package storage

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/relnotes/internal/checksum"
	"github.com/starford/relnotes/internal/models"
)

// FileMeta describes one note record on disk.
type FileMeta struct {
	Path      string // relative to the mount root
	ID        string
	Checksum  string
	UpdatedAt time.Time
}

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the mount directory
}

var _ Provider = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute mount root.
func (f *FS) Root() string { return f.root }

// Abs resolves a mount-relative path to an absolute one.
func (f *FS) Abs(rel string) (string, error) { return f.safePath(rel) }

// Rel converts an absolute path under the mount to a mount-relative one.
func (f *FS) Rel(abs string) (string, bool) {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", false
	}
	if rel == "." {
		rel = ""
	}
	return rel, true
}

// safePath resolves a relative path against the mount root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes mount root: %s", rel)
	}
	return abs, nil
}

// Tree builds the directory tree for the mount. Entries are visited in
// lexicographic order by name. Unreadable subfolders and note records are
// logged and skipped; only an unreadable root is an error.
func (f *FS) Tree(logger *slog.Logger) (*models.DirectoryNode, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: read root %s: %w", f.root, err)
	}
	root := &models.DirectoryNode{
		Name:     filepath.Base(f.root),
		Type:     models.NodeFolder,
		FullPath: f.root,
	}
	root.Children = f.buildChildren(f.root, entries, logger)
	return root, nil
}

func (f *FS) buildChildren(dir string, entries []os.DirEntry, logger *slog.Logger) []*models.DirectoryNode {
	var out []*models.DirectoryNode
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(dir, name)

		if e.IsDir() {
			sub, err := os.ReadDir(full)
			if err != nil {
				logger.Warn("storage: skip unreadable folder", slog.String("path", full), slog.String("error", err.Error()))
				continue
			}
			out = append(out, &models.DirectoryNode{
				Name:     name,
				Type:     models.NodeFolder,
				FullPath: full,
				Children: f.buildChildren(full, sub, logger),
			})
			continue
		}

		if !IsNoteFile(name) {
			continue
		}
		note, err := ReadNoteFile(full)
		if err != nil {
			logger.Warn("storage: skip unreadable note", slog.String("path", full), slog.String("error", err.Error()))
			continue
		}
		out = append(out, &models.DirectoryNode{
			Name:     name,
			Type:     models.NodeNote,
			FullPath: full,
			Note:     &models.NoteMetadata{ID: note.ID, Title: note.Title},
		})
	}
	return out
}

// List walks dir and returns metadata for every note record.
func (f *FS) List(dir string) ([]FileMeta, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	var out []FileMeta
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != base && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !IsNoteFile(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		cs, err := checksum.File(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, FileMeta{
			Path:      rel,
			ID:        NoteIDFromFile(d.Name()),
			Checksum:  cs,
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

// ReadNote reads and decodes the note record at path and returns the
// checksum of the bytes it decoded.
func (f *FS) ReadNote(path string) (*models.Note, string, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, "", err
	}
	note, cs, err := ReadNoteSum(abs)
	if err != nil {
		return nil, "", fmt.Errorf("storage: read %s: %w", path, err)
	}
	return note, cs, nil
}

// WriteNote atomically writes note as {id}.json inside dir.
func (f *FS) WriteNote(dir string, note *models.Note) (string, error) {
	if note == nil || note.ID == "" {
		return "", fmt.Errorf("storage: note id is required")
	}
	rel := filepath.Join(dir, NoteFileName(note.ID))
	abs, err := f.safePath(rel)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(note, "", "  ")
	if err != nil {
		return "", fmt.Errorf("storage: encode note: %w", err)
	}
	if err := AtomicWrite(abs, data); err != nil {
		return "", err
	}
	return rel, nil
}

// Delete removes a file from the mount.
func (f *FS) Delete(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

// Mkdir creates dir and any missing parents.
func (f *FS) Mkdir(dir string) error {
	abs, err := f.safePath(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	return nil
}

// DeleteDir removes dir recursively.
func (f *FS) DeleteDir(dir string) error {
	abs, err := f.safePath(dir)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("storage: refusing to delete mount root")
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("storage: delete dir %s: %w", dir, err)
	}
	return nil
}

// AtomicWrite writes content to an absolute path: tmp file → fsync → rename.
// Parent directories are created as needed.
func AtomicWrite(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// ReadNoteFile decodes the note record at an absolute path. A record without
// an id takes it from the file name.
func ReadNoteFile(abs string) (*models.Note, error) {
	note, _, err := ReadNoteSum(abs)
	return note, err
}

// ReadNoteSum is ReadNoteFile plus the checksum of the decoded bytes. The
// file is read once, so the checksum always describes the returned note.
func ReadNoteSum(abs string) (*models.Note, string, error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, "", err
	}
	var note models.Note
	if err := json.Unmarshal(data, &note); err != nil {
		return nil, "", fmt.Errorf("decode note: %w", err)
	}
	if note.ID == "" {
		note.ID = NoteIDFromFile(filepath.Base(abs))
	}
	return &note, checksum.Sum(data), nil
}
