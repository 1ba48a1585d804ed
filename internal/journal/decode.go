package journal

import (
	"fmt"
	"math"

	"github.com/matthewfeickert/parquet-writer/internal/errors"
	"github.com/matthewfeickert/parquet-writer/pkg/types"
)

// DecodeValue converts a JSON-decoded journal value back into the exact
// representation the buffer layer expects for the given TypeSpec. JSON
// erases integer widths (every number decodes as float64) and struct_t
// wrappers (they decode as []any), so replay has to restore them.
func DecodeValue(spec types.TypeSpec, v any) (any, error) {
	switch spec.Kind {
	case types.KindPrimitive:
		return decodeScalar(spec.Prim, v)
	case types.KindList:
		return decodeList(spec, 1, v)
	case types.KindStruct:
		return decodeStruct(spec, v)
	default:
		return nil, errors.NewInternalError(fmt.Sprintf("decode value for invalid spec %s", spec), nil)
	}
}

func decodeList(spec types.TypeSpec, level int, v any) (any, error) {
	if v == nil {
		return []any{}, nil
	}
	seq, ok := v.([]any)
	if !ok {
		return nil, errors.NewFillError(errors.CodeShapeMismatch,
			fmt.Sprintf("journaled list level %d is %T, not a sequence", level, v))
	}
	out := make([]any, len(seq))
	for i, item := range seq {
		var (
			dec any
			err error
		)
		if level < spec.Dim {
			dec, err = decodeList(spec, level+1, item)
		} else if spec.Elem.Kind == types.KindStruct {
			dec, err = decodeStruct(*spec.Elem, item)
		} else {
			dec, err = decodeScalar(spec.Elem.Prim, item)
		}
		if err != nil {
			return nil, err
		}
		out[i] = dec
	}
	return out, nil
}

func decodeStruct(spec types.TypeSpec, v any) (any, error) {
	seq, ok := v.([]any)
	if !ok {
		return nil, errors.NewFillError(errors.CodeShapeMismatch,
			fmt.Sprintf("journaled struct_t is %T, not a sequence", v))
	}
	idx := spec.ValueFields()
	if len(seq) != len(idx) {
		return nil, errors.NewFillError(errors.CodeFieldOrder,
			fmt.Sprintf("journaled struct_t has %d values, %s expects %d", len(seq), spec, len(idx)))
	}
	out := make(types.StructValue, len(seq))
	for k, i := range idx {
		dec, err := DecodeValue(spec.Fields[i].Type, seq[k])
		if err != nil {
			return nil, err
		}
		out[k] = dec
	}
	return out, nil
}

func decodeScalar(kind types.PrimitiveKind, v any) (any, error) {
	if kind == types.Bool {
		b, ok := v.(bool)
		if !ok {
			return nil, scalarDecodeError(kind, v)
		}
		return b, nil
	}

	f, ok := v.(float64)
	if !ok {
		return nil, scalarDecodeError(kind, v)
	}

	switch kind {
	case types.Float64:
		return f, nil
	case types.Float32:
		return float32(f), nil
	}

	// Integer kinds: the journaled value must be integral and in range.
	if f != math.Trunc(f) {
		return nil, scalarDecodeError(kind, v)
	}
	switch kind {
	case types.Int8:
		if f < math.MinInt8 || f > math.MaxInt8 {
			return nil, scalarDecodeError(kind, v)
		}
		return int8(f), nil
	case types.Int16:
		if f < math.MinInt16 || f > math.MaxInt16 {
			return nil, scalarDecodeError(kind, v)
		}
		return int16(f), nil
	case types.Int32:
		if f < math.MinInt32 || f > math.MaxInt32 {
			return nil, scalarDecodeError(kind, v)
		}
		return int32(f), nil
	case types.Int64:
		return int64(f), nil
	case types.UInt8:
		if f < 0 || f > math.MaxUint8 {
			return nil, scalarDecodeError(kind, v)
		}
		return uint8(f), nil
	case types.UInt16:
		if f < 0 || f > math.MaxUint16 {
			return nil, scalarDecodeError(kind, v)
		}
		return uint16(f), nil
	case types.UInt32:
		if f < 0 || f > math.MaxUint32 {
			return nil, scalarDecodeError(kind, v)
		}
		return uint32(f), nil
	case types.UInt64:
		if f < 0 {
			return nil, scalarDecodeError(kind, v)
		}
		return uint64(f), nil
	}
	return nil, scalarDecodeError(kind, v)
}

func scalarDecodeError(kind types.PrimitiveKind, v any) error {
	return errors.NewFillError(errors.CodeTypeMismatch,
		fmt.Sprintf("journaled value %v cannot be decoded as %s", v, kind))
}
