package index

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/relnotes/internal/parser"
	"github.com/starford/relnotes/internal/storage"
)

// Sync walks every mount and brings the catalog up to date:
//   - new/changed note records are read and upserted
//   - records removed from disk are deleted from the catalog
//
// When two records share an id the one in the earlier mount, in declaration
// order, is catalogued and the other is skipped.
func Sync(db NoteIndex, mounts *storage.Mounts, logger *slog.Logger) error {
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{})
	for _, fs := range mounts.List() {
		metas, err := fs.List("")
		if err != nil {
			return fmt.Errorf("index: sync %s: %w", fs.Root(), err)
		}
		for _, m := range metas {
			abs, err := fs.Abs(m.Path)
			if err != nil {
				continue
			}
			disk[abs] = struct{}{}
			if checksums[abs] == m.Checksum {
				continue
			}
			if _, err := indexFile(db, mounts, fs, abs); errors.Is(err, ErrShadowed) {
				logger.Debug("sync: duplicate id skipped", slog.String("path", abs))
			} else if err != nil {
				logger.Warn("sync: index failed", slog.String("path", abs), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: indexed", slog.String("path", abs))
			}
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if _, err := db.DeleteByPath(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("path", p))
		}
	}
	return nil
}

// ErrShadowed is returned for a record whose id is already catalogued from an
// earlier mount.
var ErrShadowed = errors.New("index: id owned by an earlier mount")

// indexFile reads the note record at abs and upserts it. The catalog keeps
// the plain text of the body for search.
func indexFile(db NoteIndex, mounts *storage.Mounts, fs *storage.FS, abs string) (*NoteRow, error) {
	note, cs, err := storage.ReadNoteSum(abs)
	if err != nil {
		return nil, err
	}
	if shadowed(db, mounts, note.ID, abs) {
		return nil, fmt.Errorf("%s: %w", abs, ErrShadowed)
	}
	row := NoteRow{
		ID:        note.ID,
		Path:      abs,
		Root:      fs.Root(),
		Title:     note.Title,
		Checksum:  cs,
		Tags:      note.Tags,
		UpdatedAt: note.UpdatedAt,
	}
	if err := db.UpsertNote(row, parser.PlainText(note.Content)); err != nil {
		return nil, err
	}
	return &row, nil
}

// IndexFile upserts the note record at abs, which must live under one of mounts.
func IndexFile(db NoteIndex, mounts *storage.Mounts, abs string) (*NoteRow, error) {
	fs, _, ok := mounts.Locate(abs)
	if !ok {
		return nil, fmt.Errorf("index: %s is outside every mount", abs)
	}
	return indexFile(db, mounts, fs, abs)
}

// shadowed reports whether id is catalogued at a record that still exists in
// a mount declared before the one holding abs.
func shadowed(db NoteIndex, mounts *storage.Mounts, id, abs string) bool {
	row, err := db.GetNote(id)
	if err != nil || row.Path == abs {
		return false
	}
	if _, err := os.Stat(row.Path); err != nil {
		return false
	}
	return mountRank(mounts, row.Path) < mountRank(mounts, abs)
}

func mountRank(mounts *storage.Mounts, abs string) int {
	list := mounts.List()
	fs, _, ok := mounts.Locate(abs)
	if !ok {
		return len(list)
	}
	for i, m := range list {
		if m == fs {
			return i
		}
	}
	return len(list)
}
