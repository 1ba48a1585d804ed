package schema

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/matthewfeickert/parquet-writer/pkg/types"
)

// ArrowSchema translates a validated column list into the storage engine's
// native schema. Construction is total for any parser-validated input.
func ArrowSchema(fields []types.Field) *arrow.Schema {
	return arrow.NewSchema(arrowFields(fields), nil)
}

func arrowFields(fields []types.Field) []arrow.Field {
	out := make([]arrow.Field, len(fields))
	for i, f := range fields {
		out[i] = arrow.Field{Name: f.Name, Type: ArrowType(f.Type)}
	}
	return out
}

// ArrowType maps one TypeSpec node to an arrow DataType. Every fill is a
// definite value, so nothing is marked nullable.
func ArrowType(t types.TypeSpec) arrow.DataType {
	switch t.Kind {
	case types.KindPrimitive:
		return arrowPrimitive(t.Prim)
	case types.KindList:
		dt := ArrowType(*t.Elem)
		for i := 0; i < t.Dim; i++ {
			dt = arrow.ListOf(dt)
		}
		return dt
	case types.KindStruct:
		return arrow.StructOf(arrowFields(t.Fields)...)
	default:
		return nil
	}
}

func arrowPrimitive(k types.PrimitiveKind) arrow.DataType {
	switch k {
	case types.Bool:
		return arrow.FixedWidthTypes.Boolean
	case types.Int8:
		return arrow.PrimitiveTypes.Int8
	case types.Int16:
		return arrow.PrimitiveTypes.Int16
	case types.Int32:
		return arrow.PrimitiveTypes.Int32
	case types.Int64:
		return arrow.PrimitiveTypes.Int64
	case types.UInt8:
		return arrow.PrimitiveTypes.Uint8
	case types.UInt16:
		return arrow.PrimitiveTypes.Uint16
	case types.UInt32:
		return arrow.PrimitiveTypes.Uint32
	case types.UInt64:
		return arrow.PrimitiveTypes.Uint64
	case types.Float32:
		return arrow.PrimitiveTypes.Float32
	case types.Float64:
		return arrow.PrimitiveTypes.Float64
	default:
		return nil
	}
}
