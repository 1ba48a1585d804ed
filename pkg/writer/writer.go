// Package writer provides the public API of the parquet-writer library: a
// schema-driven, row-oriented buffering writer in front of a columnar
// storage engine.
//
// A session walks a fixed lifecycle: SetLayout, SetDatasetName (and
// optionally SetMetadata), Initialize, then a Fill/EndRow loop, then Finish.
// Fill routes one unit of data — a scalar, a whole nested list, or a
// struct_t — into the column at a dotted path; EndRow closes the logical row
// and enforces that every addressable column received exactly one unit.
//
// The writer is not safe for concurrent use; callers needing concurrency
// must synchronize externally.
package writer

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	json "github.com/goccy/go-json"

	"github.com/matthewfeickert/parquet-writer/internal/buffer"
	pwerrors "github.com/matthewfeickert/parquet-writer/internal/errors"
	"github.com/matthewfeickert/parquet-writer/internal/journal"
	"github.com/matthewfeickert/parquet-writer/internal/schema"
	"github.com/matthewfeickert/parquet-writer/internal/sink"
	"github.com/matthewfeickert/parquet-writer/internal/storage"
	"github.com/matthewfeickert/parquet-writer/pkg/types"
)

// state tracks the writer lifecycle.
type state int

const (
	stateUnconfigured state = iota
	stateLayoutSet
	stateInitialized
	stateFilling
	stateFinalized
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateUnconfigured:
		return "unconfigured"
	case stateLayoutSet:
		return "layout-set"
	case stateInitialized:
		return "initialized"
	case stateFilling:
		return "filling"
	case stateFinalized:
		return "finalized"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Writer accumulates rows against a declared layout and flushes them into
// parquet row groups.
type Writer struct {
	cfg   Config
	st    state
	alloc memory.Allocator

	dataset     string
	fields      []types.Field
	layoutRaw   []byte
	metadataRaw []byte

	tree   *buffer.Tree
	schema *arrow.Schema
	rb     *array.RecordBuilder
	snk    *sink.Sink
	jr     *journal.Journal
	store  storage.ObjectStorage

	rowsBuffered int
	rowsTotal    int64
}

// New creates an unconfigured writer. Zero-valued config fields fall back to
// the defaults.
func New(cfg Config) *Writer {
	def := DefaultConfig()
	if cfg.OutputDir == "" {
		cfg.OutputDir = def.OutputDir
	}
	if cfg.RowGroupSize <= 0 {
		cfg.RowGroupSize = def.RowGroupSize
	}
	if cfg.Compression == "" {
		cfg.Compression = def.Compression
	}
	return &Writer{cfg: cfg, st: stateUnconfigured, alloc: memory.DefaultAllocator}
}

// SetObjectStorage injects the publication backend, overriding the one the
// upload config would build. Must be called before Finish.
func (w *Writer) SetObjectStorage(store storage.ObjectStorage) {
	w.store = store
}

// SetLayout parses and validates the declarative JSON layout. Allowed before
// Initialize; a corrected layout may replace a previous one.
func (w *Writer) SetLayout(layout []byte) error {
	if w.st != stateUnconfigured && w.st != stateLayoutSet {
		return pwerrors.NewLifecycleError(pwerrors.CodeInvalidState,
			fmt.Sprintf("set_layout is not allowed in state %s", w.st))
	}
	fields, err := schema.Parse(layout)
	if err != nil {
		return err
	}
	w.fields = fields
	w.layoutRaw = append([]byte(nil), layout...)
	w.st = stateLayoutSet
	return nil
}

// SetDatasetName sets the name output files derive from.
func (w *Writer) SetDatasetName(name string) error {
	if w.st != stateUnconfigured && w.st != stateLayoutSet {
		return pwerrors.NewLifecycleError(pwerrors.CodeInvalidState,
			fmt.Sprintf("set_dataset_name is not allowed in state %s", w.st))
	}
	if name == "" {
		return pwerrors.NewLifecycleError(pwerrors.CodeInvalidState, "dataset name must not be empty")
	}
	w.dataset = name
	return nil
}

// SetMetadata stores an arbitrary JSON object verbatim for later passthrough
// into the output files' key-value metadata block.
func (w *Writer) SetMetadata(metadata []byte) error {
	if w.st != stateUnconfigured && w.st != stateLayoutSet {
		return pwerrors.NewLifecycleError(pwerrors.CodeInvalidState,
			fmt.Sprintf("set_metadata is not allowed in state %s", w.st))
	}
	var obj map[string]any
	if err := json.Unmarshal(metadata, &obj); err != nil {
		return pwerrors.Wrap(pwerrors.ErrCategorySchema, pwerrors.CodeInvalidLayout,
			"metadata is not a JSON object", err)
	}
	w.metadataRaw = append([]byte(nil), metadata...)
	return nil
}

// Initialize builds the buffer tree, translates the layout into the storage
// engine's schema, and opens the output sink. Requires a layout and a
// dataset name.
func (w *Writer) Initialize() error {
	if w.st != stateLayoutSet {
		return pwerrors.NewLifecycleError(pwerrors.CodeInvalidState,
			fmt.Sprintf("initialize requires a layout, writer is in state %s", w.st))
	}
	if w.dataset == "" {
		return pwerrors.NewLifecycleError(pwerrors.CodeInvalidState,
			"initialize requires a dataset name")
	}

	w.tree = buffer.NewTree(w.fields)
	w.schema = schema.ArrowSchema(w.fields)
	w.rb = array.NewRecordBuilder(w.alloc, w.schema)

	md := make(map[string]string, 1)
	if len(w.metadataRaw) > 0 {
		md["metadata"] = string(w.metadataRaw)
	}
	snk, err := sink.New(w.dataset, w.cfg.OutputDir, w.schema, sink.Options{
		Compression:         w.cfg.Compression,
		MaxRowGroupsPerFile: w.cfg.MaxRowGroupsPerFile,
		Metadata:            md,
	})
	if err != nil {
		return err
	}
	w.snk = snk

	if w.cfg.Journal.Enabled {
		dir := w.cfg.Journal.Dir
		if dir == "" {
			dir = w.cfg.OutputDir
		}
		jr, err := journal.Open(dir, w.dataset)
		if err != nil {
			w.snk.Abort()
			return err
		}
		w.jr = jr
		if err := jr.Append(&journal.Entry{
			Op:       journal.OpLayout,
			Name:     w.dataset,
			Layout:   json.RawMessage(w.layoutRaw),
			Metadata: json.RawMessage(w.metadataRaw),
		}); err != nil {
			w.abort()
			return err
		}
	}

	log.Printf("writer: initialized dataset %q with %d columns", w.dataset, len(w.fields))
	w.st = stateInitialized
	return nil
}

// Fill routes one unit of data into the column at the dotted path. A type or
// shape mismatch is fatal to the session.
func (w *Writer) Fill(path string, v any) error {
	if w.st != stateInitialized && w.st != stateFilling {
		return w.lifecycleError("fill")
	}
	if err := w.tree.Fill(path, v); err != nil {
		w.abort()
		return err
	}
	if w.jr != nil {
		if err := w.jr.Append(&journal.Entry{Op: journal.OpFill, Path: path, Value: v}); err != nil {
			w.abort()
			return err
		}
	}
	w.st = stateFilling
	return nil
}

// EndRow closes the current logical row. Every addressable column must have
// received exactly one unit since the previous EndRow; a mismatch is a fatal
// alignment error. Crossing the configured row-group size triggers a flush.
func (w *Writer) EndRow() error {
	if w.st != stateInitialized && w.st != stateFilling {
		return w.lifecycleError("end_row")
	}
	if err := w.tree.CompleteRow(); err != nil {
		w.abort()
		return err
	}
	if w.jr != nil {
		if err := w.jr.Append(&journal.Entry{Op: journal.OpEndRow}); err != nil {
			w.abort()
			return err
		}
		if err := w.jr.Sync(); err != nil {
			w.abort()
			return err
		}
	}

	w.st = stateFilling
	w.rowsBuffered++
	w.rowsTotal++
	if w.rowsBuffered >= w.cfg.RowGroupSize {
		return w.flush()
	}
	return nil
}

// flush drains every completed row into the engine's builders and appends
// one row group.
func (w *Writer) flush() error {
	if w.rowsBuffered == 0 {
		return nil
	}
	if err := w.tree.DrainInto(w.rb); err != nil {
		w.abort()
		return err
	}
	rec := w.rb.NewRecord()
	defer rec.Release()

	if err := w.snk.AppendRowGroup(rec); err != nil {
		w.abort()
		return err
	}
	log.Printf("writer: flushed row group of %d rows for dataset %q", w.rowsBuffered, w.dataset)
	w.rowsBuffered = 0
	return nil
}

// Finish flushes any remaining complete rows, writes the metadata block,
// seals the output, and publishes it if an upload backend is configured.
// Finishing twice is an error, as is finishing with a partially filled row.
func (w *Writer) Finish(ctx context.Context) error {
	switch w.st {
	case stateInitialized, stateFilling:
	default:
		return w.lifecycleError("finish")
	}
	if w.tree.Pending() {
		w.abort()
		return pwerrors.NewAlignmentError("finish called with a partially filled row; close it with end_row or restart the session")
	}

	if err := w.flush(); err != nil {
		return err
	}
	if err := w.snk.Close(); err != nil {
		w.st = stateFailed
		return err
	}

	if w.cfg.Upload.Enabled || w.store != nil {
		if err := w.publish(ctx); err != nil {
			w.st = stateFailed
			return err
		}
	}

	if w.jr != nil {
		if err := w.jr.Remove(); err != nil {
			log.Printf("writer: could not remove journal: %v", err)
		}
		w.jr = nil
	}

	log.Printf("writer: finished dataset %q, %d rows in %d files", w.dataset, w.rowsTotal, len(w.snk.Files()))
	w.st = stateFinalized
	return nil
}

// publish uploads every sealed file to the configured object storage.
func (w *Writer) publish(ctx context.Context) error {
	store := w.store
	if store == nil {
		var err error
		store, err = w.buildStore(ctx)
		if err != nil {
			return err
		}
	}
	for _, f := range w.snk.Files() {
		objectPath := path.Join(w.cfg.Upload.Prefix, w.dataset, filepath.Base(f))
		if err := store.Upload(ctx, f, objectPath); err != nil {
			return pwerrors.NewStorageError(pwerrors.CodeUploadFailed,
				fmt.Sprintf("upload %s", objectPath), err)
		}
		log.Printf("writer: published %s", objectPath)
	}
	return nil
}

func (w *Writer) buildStore(ctx context.Context) (storage.ObjectStorage, error) {
	switch w.cfg.Upload.Type {
	case "local":
		return storage.NewLocalStorage(w.cfg.Upload.LocalDir)
	case "s3":
		return storage.NewS3Storage(ctx, w.cfg.Upload.S3.Bucket, storage.S3Config{
			Region:       w.cfg.Upload.S3.Region,
			Endpoint:     w.cfg.Upload.S3.Endpoint,
			UsePathStyle: w.cfg.Upload.S3.UsePathStyle,
		})
	default:
		return nil, pwerrors.NewStorageError(pwerrors.CodeUploadFailed,
			fmt.Sprintf("no upload backend for type %q", w.cfg.Upload.Type), nil)
	}
}

// Rows returns the number of completed rows written this session, flushed or
// not.
func (w *Writer) Rows() int64 { return w.rowsTotal }

// ColumnSpec returns the declared type at a dotted path. Available after
// Initialize.
func (w *Writer) ColumnSpec(path string) (types.TypeSpec, bool) {
	if w.tree == nil {
		return types.TypeSpec{}, false
	}
	return w.tree.Spec(path)
}

// Files returns the sealed output file paths.
func (w *Writer) Files() []string {
	if w.snk == nil {
		return nil
	}
	return w.snk.Files()
}

// Abort releases the session's resources without sealing the current file.
// Safe to defer: a session that already finished or failed is left untouched.
// Like a fatal error, aborting keeps the journal on disk for replay.
func (w *Writer) Abort() {
	switch w.st {
	case stateFinalized, stateFailed:
		return
	}
	w.abort()
}

// abort tears the session down after a fatal error: the sink is closed
// without publishing the in-progress file, and the journal is kept on disk
// for replay.
func (w *Writer) abort() {
	if w.snk != nil {
		w.snk.Abort()
	}
	if w.jr != nil {
		w.jr.Close()
		w.jr = nil
	}
	w.st = stateFailed
}

func (w *Writer) lifecycleError(op string) error {
	switch w.st {
	case stateFinalized:
		return pwerrors.NewLifecycleError(pwerrors.CodeAlreadyFinished,
			fmt.Sprintf("%s called on a finished writer", op))
	case stateFailed:
		return pwerrors.NewLifecycleError(pwerrors.CodeSessionAborted,
			fmt.Sprintf("%s called on an aborted session", op))
	default:
		return pwerrors.NewLifecycleError(pwerrors.CodeInvalidState,
			fmt.Sprintf("%s is not allowed in state %s", op, w.st))
	}
}
