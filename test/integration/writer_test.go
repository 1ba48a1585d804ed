// Package integration provides end-to-end integration tests for the
// parquet-writer library.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/matthewfeickert/parquet-writer/internal/storage"
	"github.com/matthewfeickert/parquet-writer/pkg/types"
	"github.com/matthewfeickert/parquet-writer/pkg/writer"
)

const eventLayout = `{"fields": [
	{"name": "run", "type": "uint32"},
	{"name": "energy", "type": "double"},
	{"name": "hits", "type": "list", "contains": {"type": "uint32"}},
	{"name": "vtx", "type": "struct", "fields": [
		{"name": "x", "type": "float"},
		{"name": "y", "type": "float"},
		{"name": "z", "type": "float"}
	]},
	{"name": "jets", "type": "list", "contains": {"type": "struct", "fields": [
		{"name": "pt", "type": "double"},
		{"name": "ntrk", "type": "int32"}
	]}}
]}`

// TestWriteFlow drives the whole pipeline: layout → fills → row groups →
// sealed files → object storage → read back through the engine.
func TestWriteFlow(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()
	outputDir := filepath.Join(tempDir, "out")
	storageDir := filepath.Join(tempDir, "store")
	journalDir := filepath.Join(tempDir, "journal")

	store, err := storage.NewLocalStorage(storageDir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	cfg := writer.Config{
		OutputDir:    outputDir,
		RowGroupSize: 100,
		Compression:  "zstd",
		Journal:      writer.JournalConfig{Enabled: true, Dir: journalDir},
		Upload:       writer.UploadConfig{Prefix: "warehouse"},
	}

	w := writer.New(cfg)
	w.SetObjectStorage(store)
	if err := w.SetLayout([]byte(eventLayout)); err != nil {
		t.Fatalf("SetLayout failed: %v", err)
	}
	if err := w.SetDatasetName("events"); err != nil {
		t.Fatalf("SetDatasetName failed: %v", err)
	}
	if err := w.SetMetadata([]byte(`{"detector": "test-rig", "campaign": "2026a"}`)); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}
	if err := w.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	const totalRows = 250
	for i := 0; i < totalRows; i++ {
		if err := w.Fill("run", uint32(7)); err != nil {
			t.Fatalf("row %d: fill run: %v", i, err)
		}
		if err := w.Fill("energy", float64(i)*0.5); err != nil {
			t.Fatalf("row %d: fill energy: %v", i, err)
		}
		var hits []uint32
		for h := 0; h < i%4; h++ {
			hits = append(hits, uint32(i+h))
		}
		if err := w.Fill("hits", hits); err != nil {
			t.Fatalf("row %d: fill hits: %v", i, err)
		}
		if err := w.Fill("vtx", types.Struct(float32(0.1), float32(0.2), float32(0.3))); err != nil {
			t.Fatalf("row %d: fill vtx: %v", i, err)
		}
		jets := []types.StructValue{types.Struct(float64(i)+0.5, int32(i%5))}
		if i%3 == 0 {
			jets = nil
		}
		if err := w.Fill("jets", jets); err != nil {
			t.Fatalf("row %d: fill jets: %v", i, err)
		}
		if err := w.EndRow(); err != nil {
			t.Fatalf("row %d: EndRow: %v", i, err)
		}
	}
	if err := w.Finish(ctx); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	if w.Rows() != totalRows {
		t.Errorf("expected %d rows counted, got %d", totalRows, w.Rows())
	}
	files := w.Files()
	if len(files) != 1 {
		t.Fatalf("expected 1 sealed file, got %v", files)
	}

	// Flushes at 100, 200, and the trailing 50 on Finish.
	rdr, err := file.OpenParquetFile(files[0], false)
	if err != nil {
		t.Fatalf("open sealed file: %v", err)
	}
	if got := rdr.NumRowGroups(); got != 3 {
		t.Errorf("expected 3 row groups, got %d", got)
	}
	if got := rdr.NumRows(); got != totalRows {
		t.Errorf("expected %d rows on disk, got %d", totalRows, got)
	}
	md := rdr.MetaData().KeyValueMetadata().FindValue("metadata")
	if md == nil || *md != `{"detector": "test-rig", "campaign": "2026a"}` {
		t.Errorf("metadata not preserved verbatim: %v", md)
	}

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		t.Fatalf("NewFileReader failed: %v", err)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	energies := tbl.Column(1).Data().Chunk(0).(*array.Float64)
	if got := energies.Value(3); got != 1.5 {
		t.Errorf("energy of row 3: expected 1.5, got %v", got)
	}
	tbl.Release()
	rdr.Close()

	// Publication landed under prefix/dataset.
	published := filepath.Join(storageDir, "warehouse", "events", "events_0000.parquet")
	if _, err := os.Stat(published); err != nil {
		t.Errorf("published object missing: %v", err)
	}
	objects, err := store.ListObjects(ctx, "warehouse/events")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	if len(objects) != 1 {
		t.Errorf("expected 1 published object, got %v", objects)
	}

	// The journal is gone after a clean finish.
	if _, err := os.Stat(filepath.Join(journalDir, "events.journal")); !os.IsNotExist(err) {
		t.Error("journal should be removed after a successful finish")
	}
}

// TestCrashRecoveryFlow interrupts a journaled session and replays it.
func TestCrashRecoveryFlow(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()
	cfg := writer.Config{
		OutputDir: filepath.Join(tempDir, "out"),
		Journal:   writer.JournalConfig{Enabled: true, Dir: filepath.Join(tempDir, "journal")},
	}

	layout := `{"fields": [
		{"name": "n", "type": "int64"},
		{"name": "tags", "type": "list", "contains": {"type": "uint8"}}
	]}`

	w := writer.New(cfg)
	if err := w.SetLayout([]byte(layout)); err != nil {
		t.Fatalf("SetLayout failed: %v", err)
	}
	if err := w.SetDatasetName("unstable"); err != nil {
		t.Fatalf("SetDatasetName failed: %v", err)
	}
	if err := w.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := w.Fill("n", int64(i)); err != nil {
			t.Fatalf("fill n: %v", err)
		}
		if err := w.Fill("tags", []uint8{uint8(i)}); err != nil {
			t.Fatalf("fill tags: %v", err)
		}
		if err := w.EndRow(); err != nil {
			t.Fatalf("EndRow: %v", err)
		}
	}
	// Strand a half-filled row; the session never finishes.
	if err := w.Fill("n", int64(99)); err != nil {
		t.Fatalf("fill stranded row: %v", err)
	}

	journalPath := filepath.Join(tempDir, "journal", "unstable.journal")
	w2, err := writer.ReplayJournal(journalPath, cfg)
	if err != nil {
		t.Fatalf("ReplayJournal failed: %v", err)
	}
	if w2.Rows() != 10 {
		t.Fatalf("expected 10 recovered rows, got %d", w2.Rows())
	}

	// The recovered session keeps working.
	if err := w2.Fill("n", int64(10)); err != nil {
		t.Fatalf("fill after replay: %v", err)
	}
	if err := w2.Fill("tags", nil); err != nil {
		t.Fatalf("fill after replay: %v", err)
	}
	if err := w2.EndRow(); err != nil {
		t.Fatalf("EndRow after replay: %v", err)
	}
	if err := w2.Finish(ctx); err != nil {
		t.Fatalf("Finish after replay: %v", err)
	}

	rdr, err := file.OpenParquetFile(w2.Files()[0], false)
	if err != nil {
		t.Fatalf("open recovered file: %v", err)
	}
	defer rdr.Close()
	if got := rdr.NumRows(); got != 11 {
		t.Errorf("expected 11 rows after recovery plus one new row, got %d", got)
	}
}
