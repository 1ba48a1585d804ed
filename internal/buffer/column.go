// Package buffer implements the per-column accumulators and the buffer tree
// that sit between row-oriented fills and the storage engine's column arrays.
package buffer

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/matthewfeickert/parquet-writer/internal/errors"
	"github.com/matthewfeickert/parquet-writer/pkg/types"
)

// column is one in-memory accumulator whose shape mirrors a TypeSpec node.
// Append adds exactly one unit of data: one scalar, one (possibly empty)
// nested list, or one struct_t. DrainRange materializes buffered units
// [from,to) into a storage-engine builder without clearing them; Reset clears.
type column interface {
	Append(v any) error
	Rows() int
	DrainRange(b array.Builder, from, to int) error
	Reset()
}

// newColumn allocates the buffer shape for a validated TypeSpec. Construction
// is total: the parser has already rejected every illegal schema.
func newColumn(spec types.TypeSpec) column {
	switch spec.Kind {
	case types.KindList:
		return newListColumn(spec)
	case types.KindStruct:
		return newStructColumn(spec)
	default:
		return &scalarColumn{kind: spec.Prim}
	}
}

// scalarColumn buffers primitive values. Every fill is a definite value;
// validity is implied.
type scalarColumn struct {
	kind types.PrimitiveKind
	vals []any
}

func (c *scalarColumn) Append(v any) error {
	if err := checkScalar(c.kind, v); err != nil {
		return err
	}
	c.vals = append(c.vals, v)
	return nil
}

func (c *scalarColumn) Rows() int { return len(c.vals) }

func (c *scalarColumn) DrainRange(b array.Builder, from, to int) error {
	for _, v := range c.vals[from:to] {
		if err := appendScalar(b, v); err != nil {
			return err
		}
	}
	return nil
}

func (c *scalarColumn) Reset() { c.vals = c.vals[:0] }

// listColumn buffers one list field of dimension dim: a flat element store
// plus dim levels of cumulative offset sequences marking sub-list boundaries.
// offsets[0] is the outermost level and gains exactly one entry per Append.
type listColumn struct {
	elem    types.TypeSpec
	dim     int
	offsets [][]int32
	vals    []any         // innermost elements when elem is primitive
	elems   *structColumn // innermost elements when elem is a struct
}

func newListColumn(spec types.TypeSpec) *listColumn {
	c := &listColumn{
		elem:    *spec.Elem,
		dim:     spec.Dim,
		offsets: make([][]int32, spec.Dim),
	}
	if spec.Elem.Kind == types.KindStruct {
		c.elems = newStructColumn(*spec.Elem)
	}
	return c
}

// Append accepts one nested sequence of depth dim whose innermost elements
// match the element type. Intermediate levels must be []any; the innermost
// level may also be a typed slice ([]int32, []float64, ...). nil is an empty
// list at any level.
func (c *listColumn) Append(v any) error {
	return c.appendLevel(0, v)
}

func (c *listColumn) appendLevel(level int, v any) error {
	if level == c.dim-1 {
		items, ok := leafItems(v)
		if !ok {
			return errors.NewFillError(errors.CodeShapeMismatch,
				fmt.Sprintf("list level %d expects a sequence, got %T", level+1, v))
		}
		for _, it := range items {
			if c.elems != nil {
				if err := c.elems.Append(it); err != nil {
					return err
				}
			} else {
				if err := checkScalar(c.elem.Prim, it); err != nil {
					return err
				}
				c.vals = append(c.vals, it)
			}
		}
		c.pushOffset(level, len(items))
		return nil
	}

	var seq []any
	if v != nil {
		s, ok := v.([]any)
		if !ok {
			return errors.NewFillError(errors.CodeShapeMismatch,
				fmt.Sprintf("list level %d expects a nested sequence, got %T", level+1, v))
		}
		seq = s
	}
	for _, sub := range seq {
		if err := c.appendLevel(level+1, sub); err != nil {
			return err
		}
	}
	c.pushOffset(level, len(seq))
	return nil
}

// pushOffset records that n more entries now exist at the level below.
func (c *listColumn) pushOffset(level, n int) {
	offs := c.offsets[level]
	var prev int32
	if len(offs) > 0 {
		prev = offs[len(offs)-1]
	}
	c.offsets[level] = append(offs, prev+int32(n))
}

// bounds returns the half-open range of entries at the level below that
// belong to entry i of the given level.
func (c *listColumn) bounds(level, i int) (int, int) {
	offs := c.offsets[level]
	start := 0
	if i > 0 {
		start = int(offs[i-1])
	}
	return start, int(offs[i])
}

func (c *listColumn) Rows() int { return len(c.offsets[0]) }

func (c *listColumn) DrainRange(b array.Builder, from, to int) error {
	lb, ok := b.(*array.ListBuilder)
	if !ok {
		return errors.NewInternalError(fmt.Sprintf("list column drained into %T builder", b), nil)
	}
	return c.drainLevel(lb, 0, from, to)
}

func (c *listColumn) drainLevel(lb *array.ListBuilder, level, from, to int) error {
	for i := from; i < to; i++ {
		lb.Append(true)
		start, end := c.bounds(level, i)
		if level == c.dim-1 {
			if c.elems != nil {
				if err := c.elems.DrainRange(lb.ValueBuilder(), start, end); err != nil {
					return err
				}
				continue
			}
			vb := lb.ValueBuilder()
			for _, v := range c.vals[start:end] {
				if err := appendScalar(vb, v); err != nil {
					return err
				}
			}
			continue
		}
		inner, ok := lb.ValueBuilder().(*array.ListBuilder)
		if !ok {
			return errors.NewInternalError(fmt.Sprintf("list level %d drained into %T builder", level+2, lb.ValueBuilder()), nil)
		}
		if err := c.drainLevel(inner, level+1, start, end); err != nil {
			return err
		}
	}
	return nil
}

func (c *listColumn) Reset() {
	for i := range c.offsets {
		c.offsets[i] = c.offsets[i][:0]
	}
	c.vals = c.vals[:0]
	if c.elems != nil {
		c.elems.Reset()
	}
}

// structColumn buffers one struct field: a child column per declared field
// plus a row counter for the struct level itself. Struct-typed children are
// not covered by struct_t values; they are filled independently through their
// own dotted path and only share this node's materialization.
type structColumn struct {
	spec     types.TypeSpec
	children []column
	valueIdx []int // indices of non-struct-typed fields, declaration order
	rows     int
}

func newStructColumn(spec types.TypeSpec) *structColumn {
	c := &structColumn{
		spec:     spec,
		children: make([]column, len(spec.Fields)),
		valueIdx: spec.ValueFields(),
	}
	for i, f := range spec.Fields {
		c.children[i] = newColumn(f.Type)
	}
	return c
}

// Append accepts one struct_t covering the struct's non-struct-typed fields
// in declaration order. A positional type mismatch corrupts nothing the
// session can recover from: the writer treats it as fatal.
func (c *structColumn) Append(v any) error {
	sv, ok := v.(types.StructValue)
	if !ok {
		if s, isSlice := v.([]any); isSlice {
			sv = types.StructValue(s)
		} else {
			return errors.NewFillError(errors.CodeTypeMismatch,
				fmt.Sprintf("%s expects a struct_t, got %T", c.spec, v))
		}
	}
	if len(sv) != len(c.valueIdx) {
		return errors.NewFillError(errors.CodeFieldOrder,
			fmt.Sprintf("%s expects %d positional values, got %d", c.spec, len(c.valueIdx), len(sv)))
	}
	for k, idx := range c.valueIdx {
		if err := c.children[idx].Append(sv[k]); err != nil {
			return errors.Wrap(errors.ErrCategoryFill, errors.CodeFieldOrder,
				fmt.Sprintf("struct_t value %d does not match field %q of %s",
					k, c.spec.Fields[idx].Name, c.spec), err)
		}
	}
	c.rows++
	return nil
}

func (c *structColumn) Rows() int { return c.rows }

func (c *structColumn) DrainRange(b array.Builder, from, to int) error {
	sb, ok := b.(*array.StructBuilder)
	if !ok {
		return errors.NewInternalError(fmt.Sprintf("struct column drained into %T builder", b), nil)
	}
	for i := from; i < to; i++ {
		sb.Append(true)
	}
	for j, child := range c.children {
		if err := child.DrainRange(sb.FieldBuilder(j), from, to); err != nil {
			return err
		}
	}
	return nil
}

func (c *structColumn) Reset() {
	c.rows = 0
	for _, child := range c.children {
		child.Reset()
	}
}

// leafItems normalizes the innermost list level to []any. Typed slices are
// accepted for the common case of filling a flat run of primitives.
func leafItems(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil:
		return nil, true
	case []any:
		return s, true
	case []types.StructValue:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out, true
	case []bool:
		return anySlice(s), true
	case []int8:
		return anySlice(s), true
	case []int16:
		return anySlice(s), true
	case []int32:
		return anySlice(s), true
	case []int64:
		return anySlice(s), true
	case []uint8:
		return anySlice(s), true
	case []uint16:
		return anySlice(s), true
	case []uint32:
		return anySlice(s), true
	case []uint64:
		return anySlice(s), true
	case []float32:
		return anySlice(s), true
	case []float64:
		return anySlice(s), true
	default:
		return nil, false
	}
}

func anySlice[T any](s []T) []any {
	out := make([]any, len(s))
	for i, e := range s {
		out[i] = e
	}
	return out
}

// checkScalar enforces an exact kind match: no numeric coercion, so an int
// filled against a float column (or vice versa) is rejected.
func checkScalar(kind types.PrimitiveKind, v any) error {
	ok := false
	switch v.(type) {
	case bool:
		ok = kind == types.Bool
	case int8:
		ok = kind == types.Int8
	case int16:
		ok = kind == types.Int16
	case int32:
		ok = kind == types.Int32
	case int64:
		ok = kind == types.Int64
	case uint8:
		ok = kind == types.UInt8
	case uint16:
		ok = kind == types.UInt16
	case uint32:
		ok = kind == types.UInt32
	case uint64:
		ok = kind == types.UInt64
	case float32:
		ok = kind == types.Float32
	case float64:
		ok = kind == types.Float64
	}
	if !ok {
		return errors.NewFillError(errors.CodeTypeMismatch,
			fmt.Sprintf("value of type %T does not match declared type %s", v, kind))
	}
	return nil
}

// appendScalar pushes one checked value into the engine's builder.
func appendScalar(b array.Builder, v any) error {
	switch bb := b.(type) {
	case *array.BooleanBuilder:
		bb.Append(v.(bool))
	case *array.Int8Builder:
		bb.Append(v.(int8))
	case *array.Int16Builder:
		bb.Append(v.(int16))
	case *array.Int32Builder:
		bb.Append(v.(int32))
	case *array.Int64Builder:
		bb.Append(v.(int64))
	case *array.Uint8Builder:
		bb.Append(v.(uint8))
	case *array.Uint16Builder:
		bb.Append(v.(uint16))
	case *array.Uint32Builder:
		bb.Append(v.(uint32))
	case *array.Uint64Builder:
		bb.Append(v.(uint64))
	case *array.Float32Builder:
		bb.Append(v.(float32))
	case *array.Float64Builder:
		bb.Append(v.(float64))
	default:
		return errors.NewInternalError(fmt.Sprintf("scalar drained into %T builder", b), nil)
	}
	return nil
}
