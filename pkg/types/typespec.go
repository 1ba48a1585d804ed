// Package types provides the core data model for the parquet-writer library.
package types

import (
	"fmt"
	"strings"
)

// PrimitiveKind identifies a primitive column type.
type PrimitiveKind int

const (
	PrimitiveInvalid PrimitiveKind = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	UInt8
	UInt16
	UInt32
	UInt64
	Float32
	Float64
)

// primitiveNames maps declared type names to primitive kinds.
// "float" and "double" are the canonical floating-point names;
// "float32" and "float64" are accepted as aliases.
var primitiveNames = map[string]PrimitiveKind{
	"bool":    Bool,
	"int8":    Int8,
	"int16":   Int16,
	"int32":   Int32,
	"int64":   Int64,
	"uint8":   UInt8,
	"uint16":  UInt16,
	"uint32":  UInt32,
	"uint64":  UInt64,
	"float":   Float32,
	"float32": Float32,
	"double":  Float64,
	"float64": Float64,
}

// ParsePrimitive resolves a declared type name to a PrimitiveKind.
func ParsePrimitive(name string) (PrimitiveKind, bool) {
	k, ok := primitiveNames[name]
	return k, ok
}

// String returns the canonical type name for the primitive kind.
func (k PrimitiveKind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case UInt8:
		return "uint8"
	case UInt16:
		return "uint16"
	case UInt32:
		return "uint32"
	case UInt64:
		return "uint64"
	case Float32:
		return "float"
	case Float64:
		return "double"
	default:
		return "invalid"
	}
}

// Kind identifies which variant of the TypeSpec sum a node is.
type Kind int

const (
	KindInvalid Kind = iota
	KindPrimitive
	KindList
	KindStruct
)

// MaxListDimension is the deepest supported list nesting.
const MaxListDimension = 3

// TypeSpec is the parsed, validated representation of one field's declared
// type: a closed sum over Primitive, List and Struct.
type TypeSpec struct {
	// Kind selects the variant.
	Kind Kind

	// Prim is the primitive kind when Kind == KindPrimitive.
	Prim PrimitiveKind

	// Elem is the element type when Kind == KindList. Nested list levels are
	// collapsed into a single node: Elem is never itself a list.
	Elem *TypeSpec

	// Dim is the list dimension (1..MaxListDimension) when Kind == KindList.
	Dim int

	// Fields are the declared fields, in order, when Kind == KindStruct.
	Fields []Field
}

// Field is one named column or struct member.
type Field struct {
	Name string
	Type TypeSpec
}

// Primitive returns a primitive TypeSpec.
func Primitive(k PrimitiveKind) TypeSpec {
	return TypeSpec{Kind: KindPrimitive, Prim: k}
}

// ListOf returns a list TypeSpec of the given dimension.
func ListOf(elem TypeSpec, dim int) TypeSpec {
	return TypeSpec{Kind: KindList, Elem: &elem, Dim: dim}
}

// StructOf returns a struct TypeSpec with the given ordered fields.
func StructOf(fields ...Field) TypeSpec {
	return TypeSpec{Kind: KindStruct, Fields: fields}
}

// ValueFields returns the indices of the struct's non-struct-typed fields,
// in declaration order. These are the fields covered by one struct_t.
func (t TypeSpec) ValueFields() []int {
	if t.Kind != KindStruct {
		return nil
	}
	idx := make([]int, 0, len(t.Fields))
	for i, f := range t.Fields {
		if f.Type.Kind != KindStruct {
			idx = append(idx, i)
		}
	}
	return idx
}

// String renders the type for error messages, e.g. "list3<uint32>" or
// "struct{a:int32,b:list<double>}".
func (t TypeSpec) String() string {
	switch t.Kind {
	case KindPrimitive:
		return t.Prim.String()
	case KindList:
		if t.Elem == nil {
			return "list<invalid>"
		}
		if t.Dim > 1 {
			return fmt.Sprintf("list%d<%s>", t.Dim, t.Elem.String())
		}
		return fmt.Sprintf("list<%s>", t.Elem.String())
	case KindStruct:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.Name + ":" + f.Type.String()
		}
		return "struct{" + strings.Join(parts, ",") + "}"
	default:
		return "invalid"
	}
}
