package types

// StructValue is one struct_t: the ordered positional values for a single
// instance of a Struct's non-struct-typed fields. Values must appear in the
// Struct's declared field order; the buffer layer rejects positional type
// mismatches rather than reordering.
type StructValue []any

// Struct builds a StructValue from positional values.
func Struct(values ...any) StructValue {
	return StructValue(values)
}
