package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	pwerrors "github.com/matthewfeickert/parquet-writer/internal/errors"
)

func testSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Int32},
	}, nil)
}

func makeRecord(t *testing.T, sc *arrow.Schema, xs []int32) arrow.Record {
	t.Helper()
	rb := array.NewRecordBuilder(memory.NewGoAllocator(), sc)
	defer rb.Release()
	rb.Field(0).(*array.Int32Builder).AppendValues(xs, nil)
	return rb.NewRecord()
}

func openReader(t *testing.T, path string) *file.Reader {
	t.Helper()
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	return rdr
}

func TestSink_FileNamingAndRowGroups(t *testing.T) {
	dir := t.TempDir()
	sc := testSchema()

	s, err := New("physics", dir, sc, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		rec := makeRecord(t, sc, []int32{int32(i), int32(i + 1)})
		err := s.AppendRowGroup(rec)
		rec.Release()
		if err != nil {
			t.Fatalf("AppendRowGroup %d failed: %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	files := s.Files()
	if len(files) != 1 {
		t.Fatalf("expected 1 sealed file, got %v", files)
	}
	want := filepath.Join(dir, "physics_0000.parquet")
	if files[0] != want {
		t.Errorf("expected %s, got %s", want, files[0])
	}

	rdr := openReader(t, files[0])
	defer rdr.Close()
	if got := rdr.NumRowGroups(); got != 3 {
		t.Errorf("expected 3 row groups (one per flush), got %d", got)
	}
	if got := rdr.NumRows(); got != 6 {
		t.Errorf("expected 6 rows, got %d", got)
	}
}

func TestSink_RotationAtMaxRowGroups(t *testing.T) {
	dir := t.TempDir()
	sc := testSchema()

	s, err := New("run42", dir, sc, Options{MaxRowGroupsPerFile: 2})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		rec := makeRecord(t, sc, []int32{int32(i)})
		err := s.AppendRowGroup(rec)
		rec.Release()
		if err != nil {
			t.Fatalf("AppendRowGroup %d failed: %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	files := s.Files()
	wantNames := []string{"run42_0000.parquet", "run42_0001.parquet", "run42_0002.parquet"}
	if len(files) != len(wantNames) {
		t.Fatalf("expected %d sealed files, got %v", len(wantNames), files)
	}
	wantGroups := []int{2, 2, 1}
	for i, f := range files {
		if filepath.Base(f) != wantNames[i] {
			t.Errorf("file %d: expected %s, got %s", i, wantNames[i], filepath.Base(f))
		}
		rdr := openReader(t, f)
		if got := rdr.NumRowGroups(); got != wantGroups[i] {
			t.Errorf("%s: expected %d row groups, got %d", filepath.Base(f), wantGroups[i], got)
		}
		rdr.Close()
	}
}

func TestSink_MetadataWrittenVerbatim(t *testing.T) {
	dir := t.TempDir()
	sc := testSchema()

	s, err := New("meta", dir, sc, Options{
		Metadata: map[string]string{"metadata": `{"a": "b"}`},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	rec := makeRecord(t, sc, []int32{1})
	if err := s.AppendRowGroup(rec); err != nil {
		t.Fatalf("AppendRowGroup failed: %v", err)
	}
	rec.Release()
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	rdr := openReader(t, s.Files()[0])
	defer rdr.Close()
	got := rdr.MetaData().KeyValueMetadata().FindValue("metadata")
	if got == nil {
		t.Fatal("metadata key missing from file")
	}
	if *got != `{"a": "b"}` {
		t.Errorf("expected verbatim metadata, got %q", *got)
	}
}

func TestSink_DataSurvivesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sc := testSchema()

	s, err := New("rt", dir, sc, Options{Compression: "zstd"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	rec := makeRecord(t, sc, []int32{1, 2, 3})
	if err := s.AppendRowGroup(rec); err != nil {
		t.Fatalf("AppendRowGroup failed: %v", err)
	}
	rec.Release()
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	rdr := openReader(t, s.Files()[0])
	defer rdr.Close()
	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		t.Fatalf("NewFileReader failed: %v", err)
	}
	tbl, err := fr.ReadTable(context.Background())
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	defer tbl.Release()

	if tbl.NumRows() != 3 {
		t.Fatalf("expected 3 rows, got %d", tbl.NumRows())
	}
	col := tbl.Column(0).Data().Chunk(0).(*array.Int32)
	for i, want := range []int32{1, 2, 3} {
		if col.Value(i) != want {
			t.Errorf("row %d: expected %d, got %d", i, want, col.Value(i))
		}
	}
}

func TestSink_NoPartialFileVisible(t *testing.T) {
	dir := t.TempDir()
	sc := testSchema()

	s, err := New("tmp", dir, sc, Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Before Close, only a temp-suffixed file may exist.
	if _, err := os.Stat(filepath.Join(dir, "tmp_0000.parquet")); !os.IsNotExist(err) {
		t.Error("final file must not exist before Close")
	}

	rec := makeRecord(t, sc, []int32{9})
	if err := s.AppendRowGroup(rec); err != nil {
		t.Fatalf("AppendRowGroup failed: %v", err)
	}
	rec.Release()
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "tmp_0000.parquet")); err != nil {
		t.Errorf("final file missing after Close: %v", err)
	}
}

func TestSink_CloseTwice(t *testing.T) {
	dir := t.TempDir()
	s, err := New("twice", dir, testSchema(), Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	err = s.Close()
	if pwerrors.GetCode(err) != pwerrors.CodeAlreadyFinished {
		t.Errorf("expected ALREADY_FINISHED, got %v", err)
	}
}

func TestSink_AbortLeavesNoFinalFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New("abrt", dir, testSchema(), Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	rec := makeRecord(t, s.schema, []int32{1})
	if err := s.AppendRowGroup(rec); err != nil {
		t.Fatalf("AppendRowGroup failed: %v", err)
	}
	rec.Release()

	s.Abort()
	if _, err := os.Stat(filepath.Join(dir, "abrt_0000.parquet")); !os.IsNotExist(err) {
		t.Error("aborted sink must not publish a final file")
	}
	if len(s.Files()) != 0 {
		t.Errorf("aborted sink should report no sealed files, got %v", s.Files())
	}
}

func TestSink_UnknownCodecRejected(t *testing.T) {
	_, err := New("bad", t.TempDir(), testSchema(), Options{Compression: "xz"})
	if pwerrors.GetCode(err) != pwerrors.CodeSinkOpenFailed {
		t.Errorf("expected SINK_OPEN_FAILED, got %v", err)
	}
}
