// Package journal provides an append-only operation journal for writer
// sessions. Every layout, fill and end-row operation is recorded as a
// length-prefixed, CRC-checked, snappy-compressed JSON frame so that an
// interrupted session can be re-driven into a fresh writer. Only complete
// rows are recoverable.
package journal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/golang/snappy"

	"github.com/matthewfeickert/parquet-writer/internal/errors"
	"github.com/matthewfeickert/parquet-writer/pkg/types"
)

// Entry operations.
const (
	OpLayout   = "layout"
	OpDataset  = "dataset"
	OpMetadata = "metadata"
	OpFill     = "fill"
	OpEndRow   = "end_row"
)

// Entry is a single journaled operation.
type Entry struct {
	Op        string          `json:"op"`
	Path      string          `json:"path,omitempty"`
	Value     any             `json:"value,omitempty"`
	Layout    json.RawMessage `json:"layout,omitempty"`
	Name      string          `json:"name,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Timestamp int64           `json:"ts"`
}

// Journal is an append-only operation log for one writer session. Opening a
// journal for a dataset truncates any previous session's log.
type Journal struct {
	path string
	f    *os.File
	mu   sync.Mutex
}

// Open creates the journal file for a dataset under dir.
func Open(dir, dataset string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.NewStorageError(errors.CodeJournalFailed, "create journal directory", err)
	}
	path := filepath.Join(dir, dataset+".journal")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeJournalFailed, fmt.Sprintf("open %s", path), err)
	}
	return &Journal{path: path, f: f}, nil
}

// Path returns the journal file location.
func (j *Journal) Path() string { return j.path }

// Append records one operation. Frames are [length:4 LE][crc32:4 LE][payload]
// where payload is the snappy-compressed JSON entry.
func (j *Journal) Append(e *Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.f == nil {
		return errors.NewStorageError(errors.CodeJournalFailed, "append to closed journal", nil)
	}

	e.Timestamp = time.Now().UnixNano()
	e.Value = normalizeValue(e.Value)
	raw, err := json.Marshal(e)
	if err != nil {
		return errors.NewStorageError(errors.CodeJournalFailed, "serialize entry", err)
	}
	payload := snappy.Encode(nil, raw)
	crc := crc32.ChecksumIEEE(payload)

	if err := binary.Write(j.f, binary.LittleEndian, uint32(len(payload))); err != nil {
		return errors.NewStorageError(errors.CodeJournalFailed, "write frame length", err)
	}
	if err := binary.Write(j.f, binary.LittleEndian, crc); err != nil {
		return errors.NewStorageError(errors.CodeJournalFailed, "write frame CRC", err)
	}
	if _, err := j.f.Write(payload); err != nil {
		return errors.NewStorageError(errors.CodeJournalFailed, "write frame payload", err)
	}
	return nil
}

// normalizeValue rewrites typed slices and struct values as []any before
// serialization. Go's JSON encoders render []uint8 as a base64 string, which
// would not survive the round trip back into a list fill; journaling every
// sequence as a plain JSON array keeps replay uniform.
func normalizeValue(v any) any {
	switch s := v.(type) {
	case nil:
		return nil
	case types.StructValue:
		return normalizeSlice([]any(s))
	case []any:
		return normalizeSlice(s)
	case []types.StructValue:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = normalizeValue(e)
		}
		return out
	case []bool:
		return toAny(s)
	case []int8:
		return toAny(s)
	case []int16:
		return toAny(s)
	case []int32:
		return toAny(s)
	case []int64:
		return toAny(s)
	case []uint8:
		return toAny(s)
	case []uint16:
		return toAny(s)
	case []uint32:
		return toAny(s)
	case []uint64:
		return toAny(s)
	case []float32:
		return toAny(s)
	case []float64:
		return toAny(s)
	default:
		return v
	}
}

func normalizeSlice(s []any) []any {
	out := make([]any, len(s))
	for i, e := range s {
		out[i] = normalizeValue(e)
	}
	return out
}

func toAny[T any](s []T) []any {
	out := make([]any, len(s))
	for i, e := range s {
		out[i] = e
	}
	return out
}

// Sync flushes buffered frames to disk. The writer calls this at row
// boundaries so that a crash loses at most the row in progress.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	if err := j.f.Sync(); err != nil {
		return errors.NewStorageError(errors.CodeJournalFailed, "fsync journal", err)
	}
	return nil
}

// Close fsyncs and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	if err := j.f.Sync(); err != nil {
		return errors.NewStorageError(errors.CodeJournalFailed, "fsync journal on close", err)
	}
	if err := j.f.Close(); err != nil {
		return errors.NewStorageError(errors.CodeJournalFailed, "close journal", err)
	}
	j.f = nil
	return nil
}

// Remove deletes the journal file, typically after a successful finish.
func (j *Journal) Remove() error {
	if err := j.Close(); err != nil {
		return err
	}
	if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return errors.NewStorageError(errors.CodeJournalFailed, fmt.Sprintf("remove %s", j.path), err)
	}
	return nil
}

// Read returns all intact entries from a journal file. A truncated final
// frame is tolerated; a frame failing its CRC is skipped with a warning.
func Read(path string) ([]*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewStorageError(errors.CodeJournalFailed, fmt.Sprintf("open %s", path), err)
	}
	defer f.Close()

	var entries []*Entry
	for {
		var length, crc uint32
		if err := binary.Read(f, binary.LittleEndian, &length); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.NewStorageError(errors.CodeJournalFailed, "read frame length", err)
		}
		if err := binary.Read(f, binary.LittleEndian, &crc); err != nil {
			break // truncated frame header
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(f, payload); err != nil {
			break // truncated write, stop reading
		}

		if computed := crc32.ChecksumIEEE(payload); computed != crc {
			log.Printf("journal: CRC mismatch in %s, skipping frame", path)
			continue
		}

		raw, err := snappy.Decode(nil, payload)
		if err != nil {
			log.Printf("journal: corrupt frame in %s, skipping: %v", path, err)
			continue
		}

		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}
