package writer

import (
	"fmt"
	"log"
	"os"

	pwerrors "github.com/matthewfeickert/parquet-writer/internal/errors"
	"github.com/matthewfeickert/parquet-writer/internal/journal"
)

// ReplayJournal rebuilds a writer session from a fill journal left behind by
// an interrupted session. The returned writer has every complete journaled
// row re-applied and is ready for further Fill/EndRow calls or Finish.
// Fills after the last journaled end_row are discarded: only complete rows
// are recoverable.
func ReplayJournal(journalPath string, cfg Config) (*Writer, error) {
	// Initialize opens a fresh journal at the same path, truncating whatever
	// is there. The interrupted session's log is set aside first and removed
	// only once every complete row has been re-applied, so a crash mid-replay
	// leaves it intact for another attempt.
	backup := journalPath + ".recovering"
	if err := os.Rename(journalPath, backup); err != nil {
		return nil, pwerrors.NewStorageError(pwerrors.CodeJournalFailed,
			fmt.Sprintf("set aside %s for recovery", journalPath), err)
	}

	entries, err := journal.Read(backup)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 || entries[0].Op != journal.OpLayout {
		return nil, pwerrors.NewStorageError(pwerrors.CodeJournalFailed,
			fmt.Sprintf("journal %s does not start with a layout entry", journalPath), nil)
	}
	head := entries[0]

	w := New(cfg)
	if err := w.SetLayout(head.Layout); err != nil {
		return nil, err
	}
	if err := w.SetDatasetName(head.Name); err != nil {
		return nil, err
	}
	if len(head.Metadata) > 0 {
		if err := w.SetMetadata(head.Metadata); err != nil {
			return nil, err
		}
	}
	if err := w.Initialize(); err != nil {
		return nil, err
	}

	rows, err := replayEntries(w, entries[1:])
	if err != nil {
		w.Abort()
		return nil, err
	}

	if err := os.Remove(backup); err != nil {
		log.Printf("writer: could not remove recovered journal %s: %v", backup, err)
	}
	log.Printf("writer: replayed %d rows for dataset %q from %s", rows, head.Name, journalPath)
	return w, nil
}

func replayEntries(w *Writer, entries []*journal.Entry) (int, error) {
	var pending []*journal.Entry
	rows := 0
	for _, e := range entries {
		switch e.Op {
		case journal.OpFill:
			pending = append(pending, e)
		case journal.OpEndRow:
			for _, f := range pending {
				spec, ok := w.tree.Spec(f.Path)
				if !ok {
					return rows, pwerrors.NewStorageError(pwerrors.CodeJournalFailed,
						fmt.Sprintf("journaled fill targets unknown column %q", f.Path), nil)
				}
				v, err := journal.DecodeValue(spec, f.Value)
				if err != nil {
					return rows, err
				}
				if err := w.Fill(f.Path, v); err != nil {
					return rows, err
				}
			}
			if err := w.EndRow(); err != nil {
				return rows, err
			}
			pending = pending[:0]
			rows++
		}
	}
	if len(pending) > 0 {
		log.Printf("writer: replay dropped %d fills from an incomplete trailing row", len(pending))
	}
	return rows, nil
}
