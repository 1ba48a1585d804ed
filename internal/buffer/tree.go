package buffer

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/matthewfeickert/parquet-writer/internal/errors"
	"github.com/matthewfeickert/parquet-writer/pkg/types"
)

// Tree owns every column buffer for one dataset. It is built once from the
// parsed schema and never restructured: the dotted-path index is the single
// authoritative lookup table, with each path resolved at construction.
//
// Addressable paths are the top-level fields plus every struct field nested
// directly inside a struct ("outer.inner"). List elements are not
// addressable: a whole nested list arrives through one fill on its list path.
type Tree struct {
	fields []types.Field
	tops   []column
	paths  []string
	index  map[string]column
	specs  map[string]types.TypeSpec
	rows   int
}

// NewTree builds the buffer tree for a parser-validated column list.
// Construction cannot fail.
func NewTree(fields []types.Field) *Tree {
	t := &Tree{
		fields: fields,
		tops:   make([]column, len(fields)),
		index:  make(map[string]column),
		specs:  make(map[string]types.TypeSpec),
	}
	for i, f := range fields {
		col := newColumn(f.Type)
		t.tops[i] = col
		t.addPath(f.Name, col, f.Type)
		if sc, ok := col.(*structColumn); ok {
			for j, sub := range f.Type.Fields {
				if sub.Type.Kind == types.KindStruct {
					t.addPath(f.Name+"."+sub.Name, sc.children[j], sub.Type)
				}
			}
		}
	}
	return t
}

func (t *Tree) addPath(path string, col column, spec types.TypeSpec) {
	t.paths = append(t.paths, path)
	t.index[path] = col
	t.specs[path] = spec
}

// Fill routes one unit of data into the column buffer at the dotted path.
func (t *Tree) Fill(path string, v any) error {
	col, ok := t.index[path]
	if !ok {
		return errors.NewFillError(errors.CodeUnknownColumn,
			fmt.Sprintf("no column at path %q", path))
	}
	if err := col.Append(v); err != nil {
		return fmt.Errorf("buffer: fill %q: %w", path, err)
	}
	return nil
}

// CompleteRow enforces the row-alignment invariant: every addressable buffer
// must hold exactly one more unit than the number of completed rows. On
// success the row counter advances; on failure the tree is left as-is and the
// session is not recoverable.
func (t *Tree) CompleteRow() error {
	want := t.rows + 1
	for _, p := range t.paths {
		if got := t.index[p].Rows(); got != want {
			return errors.NewAlignmentError(fmt.Sprintf(
				"column %q holds %d units at the end of row %d, expected %d; every addressable column must be filled exactly once per row",
				p, got, t.rows, want))
		}
	}
	t.rows++
	return nil
}

// Rows returns the number of completed rows buffered since the last drain.
func (t *Tree) Rows() int { return t.rows }

// Pending reports whether any buffer holds data for the current, uncompleted
// row.
func (t *Tree) Pending() bool {
	for _, p := range t.paths {
		if t.index[p].Rows() != t.rows {
			return true
		}
	}
	return false
}

// DrainInto materializes every completed row into the engine's record
// builder, one top-level field per builder column, then clears the buffers.
// The tree shape survives for reuse by the next row group.
func (t *Tree) DrainInto(rb *array.RecordBuilder) error {
	for i, col := range t.tops {
		if err := col.DrainRange(rb.Field(i), 0, t.rows); err != nil {
			return fmt.Errorf("buffer: drain %q: %w", t.fields[i].Name, err)
		}
	}
	for _, col := range t.tops {
		col.Reset()
	}
	t.rows = 0
	return nil
}

// Spec returns the TypeSpec at a dotted path.
func (t *Tree) Spec(path string) (types.TypeSpec, bool) {
	s, ok := t.specs[path]
	return s, ok
}

// Paths returns every addressable dotted path in construction order.
func (t *Tree) Paths() []string {
	out := make([]string, len(t.paths))
	copy(out, t.paths)
	return out
}
