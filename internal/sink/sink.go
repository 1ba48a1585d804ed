// Package sink owns the boundary to the columnar storage engine: it feeds
// materialized arrow records into parquet files, one row group per flush.
package sink

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/google/uuid"

	"github.com/matthewfeickert/parquet-writer/internal/errors"
)

// Options tunes the physical output.
type Options struct {
	// Compression names the column compression codec: "snappy" (default),
	// "zstd", "gzip", "brotli", "lz4", or "uncompressed".
	Compression string

	// MaxRowGroupsPerFile rotates to a new file once a file holds this many
	// row groups. Zero keeps a single file.
	MaxRowGroupsPerFile int

	// Metadata holds key-value pairs written into every output file's
	// metadata block, verbatim.
	Metadata map[string]string
}

// Sink writes sealed parquet files named deterministically from the dataset
// name with sequential numeric suffixes. Data lands in a temporary file that
// is renamed only when the file is complete, so readers never observe a
// partially written artifact.
type Sink struct {
	dataset string
	dir     string
	schema  *arrow.Schema
	opts    Options
	props   *parquet.WriterProperties
	arProps pqarrow.ArrowWriterProperties

	fw        *pqarrow.FileWriter
	f         *os.File
	tmpPath   string
	finalPath string

	fileIndex int
	rowGroups int
	sealed    []string
	closed    bool
}

// New opens the sink's first output file under dir.
func New(dataset, dir string, schema *arrow.Schema, opts Options) (*Sink, error) {
	props, err := writerProperties(opts.Compression)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.NewStorageError(errors.CodeSinkOpenFailed, "create output directory", err)
	}

	s := &Sink{
		dataset: dataset,
		dir:     dir,
		schema:  schema,
		opts:    opts,
		props:   props,
		arProps: pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema()),
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func writerProperties(codec string) (*parquet.WriterProperties, error) {
	var c compress.Compression
	switch codec {
	case "", "snappy":
		c = compress.Codecs.Snappy
	case "zstd":
		c = compress.Codecs.Zstd
	case "gzip":
		c = compress.Codecs.Gzip
	case "brotli":
		c = compress.Codecs.Brotli
	case "lz4":
		c = compress.Codecs.Lz4Raw
	case "uncompressed":
		c = compress.Codecs.Uncompressed
	default:
		return nil, errors.New(errors.ErrCategoryStorage, errors.CodeSinkOpenFailed,
			fmt.Sprintf("unknown compression codec %q", codec))
	}
	return parquet.NewWriterProperties(parquet.WithCompression(c)), nil
}

// open starts the next sequentially named output file.
func (s *Sink) open() error {
	name := fmt.Sprintf("%s_%04d.parquet", s.dataset, s.fileIndex)
	s.finalPath = filepath.Join(s.dir, name)
	s.tmpPath = s.finalPath + ".tmp-" + uuid.New().String()[:8]

	f, err := os.Create(s.tmpPath)
	if err != nil {
		return errors.NewStorageError(errors.CodeSinkOpenFailed, fmt.Sprintf("create %s", s.tmpPath), err)
	}

	fw, err := pqarrow.NewFileWriter(s.schema, f, s.props, s.arProps)
	if err != nil {
		f.Close()
		os.Remove(s.tmpPath)
		return errors.NewStorageError(errors.CodeSinkOpenFailed, "open parquet writer", err)
	}

	s.f = f
	s.fw = fw
	s.rowGroups = 0
	return nil
}

// AppendRowGroup writes one materialized record as a complete row group,
// rotating files first if the current one is full.
func (s *Sink) AppendRowGroup(rec arrow.Record) error {
	if s.closed {
		return errors.NewLifecycleError(errors.CodeInvalidState, "append to a closed sink")
	}
	if s.opts.MaxRowGroupsPerFile > 0 && s.rowGroups >= s.opts.MaxRowGroupsPerFile {
		if err := s.seal(); err != nil {
			return err
		}
		s.fileIndex++
		if err := s.open(); err != nil {
			return err
		}
	}

	s.fw.NewBufferedRowGroup()
	if err := s.fw.WriteBuffered(rec); err != nil {
		return errors.NewStorageError(errors.CodeSinkWriteFailed,
			fmt.Sprintf("append row group %d to %s", s.rowGroups, s.finalPath), err)
	}
	s.rowGroups++
	return nil
}

// seal writes the metadata block and footer, then publishes the file under
// its final name.
func (s *Sink) seal() error {
	keys := make([]string, 0, len(s.opts.Metadata))
	for k := range s.opts.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.fw.AppendKeyValueMetadata(k, s.opts.Metadata[k]); err != nil {
			return errors.NewStorageError(errors.CodeSinkCloseFailed, "append key-value metadata", err)
		}
	}

	// Closing the parquet writer also closes the underlying file.
	if err := s.fw.Close(); err != nil {
		s.f.Close()
		return errors.NewStorageError(errors.CodeSinkCloseFailed, fmt.Sprintf("close parquet writer for %s", s.finalPath), err)
	}
	if err := os.Rename(s.tmpPath, s.finalPath); err != nil {
		return errors.NewStorageError(errors.CodeSinkCloseFailed, fmt.Sprintf("publish %s", s.finalPath), err)
	}

	s.sealed = append(s.sealed, s.finalPath)
	log.Printf("sink: sealed %s (%d row groups)", s.finalPath, s.rowGroups)
	s.fw = nil
	s.f = nil
	return nil
}

// Close seals the last output file. Closing twice is an error.
func (s *Sink) Close() error {
	if s.closed {
		return errors.NewLifecycleError(errors.CodeAlreadyFinished, "sink already closed")
	}
	s.closed = true
	return s.seal()
}

// Abort releases the file handle without publishing the current file. Already
// sealed files remain on disk; the in-progress temp file is left behind as a
// closed-but-incomplete artifact.
func (s *Sink) Abort() {
	if s.closed {
		return
	}
	s.closed = true
	if s.fw != nil {
		s.fw.Close() // also closes the file
		s.fw = nil
		s.f = nil
	} else if s.f != nil {
		s.f.Close()
		s.f = nil
	}
	log.Printf("sink: aborted %s, incomplete data left at %s", s.finalPath, s.tmpPath)
}

// Files returns the sealed output paths in write order.
func (s *Sink) Files() []string {
	out := make([]string, len(s.sealed))
	copy(out, s.sealed)
	return out
}
