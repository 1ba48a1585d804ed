// Package schema parses declarative JSON layouts into validated TypeSpec
// forests and translates them into the storage engine's native type system.
package schema

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/matthewfeickert/parquet-writer/internal/errors"
	"github.com/matthewfeickert/parquet-writer/pkg/types"
)

// Parse decodes and validates a JSON layout of the form
// {"fields": [{"name": ..., "type": ..., ...}]} into an ordered column list.
// Parsing is a pure function over the input: the same layout always yields a
// structurally equal result.
func Parse(layout []byte) ([]types.Field, error) {
	var obj map[string]any
	if err := json.Unmarshal(layout, &obj); err != nil {
		return nil, errors.Wrap(errors.ErrCategorySchema, errors.CodeInvalidLayout, "layout is not a JSON object", err)
	}
	return ParseObject(obj)
}

// ParseObject validates an already decoded layout value tree.
func ParseObject(layout map[string]any) ([]types.Field, error) {
	raw, ok := layout["fields"]
	if !ok {
		return nil, errors.NewSchemaError(errors.CodeMissingKey, `layout requires a "fields" array`)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, errors.NewSchemaError(errors.CodeInvalidLayout, `"fields" must be an array of field objects`)
	}
	return parseFields(list, "", 0, false)
}

// parseFields validates one ordered fields array. path is the dotted prefix
// of the enclosing field ("" at top level), depth counts enclosing structs,
// and inList marks fields that live inside a list element.
func parseFields(list []any, path string, depth int, inList bool) ([]types.Field, error) {
	if len(list) == 0 {
		return nil, errors.NewSchemaError(errors.CodeEmptyFields,
			fmt.Sprintf("empty fields array at %s", pathOrTop(path)))
	}

	fields := make([]types.Field, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for i, raw := range list {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, errors.NewSchemaError(errors.CodeInvalidLayout,
				fmt.Sprintf("field %d at %s is not an object", i, pathOrTop(path)))
		}

		name, ok := obj["name"].(string)
		if !ok || name == "" {
			return nil, errors.NewSchemaError(errors.CodeMissingKey,
				fmt.Sprintf("field %d at %s requires a non-empty \"name\"", i, pathOrTop(path)))
		}
		if _, dup := seen[name]; dup {
			return nil, errors.NewSchemaError(errors.CodeDuplicateField,
				fmt.Sprintf("duplicate field name %q at %s", name, pathOrTop(path)))
		}
		seen[name] = struct{}{}

		spec, err := parseType(obj, joinPath(path, name), depth, inList)
		if err != nil {
			return nil, err
		}
		fields = append(fields, types.Field{Name: name, Type: spec})
	}
	return fields, nil
}

// parseType validates the "type" of a single field object.
func parseType(obj map[string]any, path string, depth int, inList bool) (types.TypeSpec, error) {
	typeName, ok := obj["type"].(string)
	if !ok || typeName == "" {
		return types.TypeSpec{}, errors.NewSchemaError(errors.CodeMissingKey,
			fmt.Sprintf("field %s requires a \"type\" string", path))
	}

	switch typeName {
	case "list":
		return parseList(obj, path, depth, inList)
	case "struct":
		return parseStruct(obj, path, depth, inList)
	default:
		kind, ok := types.ParsePrimitive(typeName)
		if !ok {
			return types.TypeSpec{}, errors.NewSchemaError(errors.CodeUnknownType,
				fmt.Sprintf("field %s has unknown type %q", path, typeName))
		}
		return types.Primitive(kind), nil
	}
}

// parseList collapses nested "list" specs into a single node with a
// dimension, then validates the innermost element type.
func parseList(obj map[string]any, path string, depth int, inList bool) (types.TypeSpec, error) {
	dim := 0
	cur := obj
	for {
		raw, ok := cur["contains"]
		if !ok {
			return types.TypeSpec{}, errors.NewSchemaError(errors.CodeMissingKey,
				fmt.Sprintf("list field %s requires a \"contains\" object", path))
		}
		contains, ok := raw.(map[string]any)
		if !ok || len(contains) == 0 {
			return types.TypeSpec{}, errors.NewSchemaError(errors.CodeInvalidLayout,
				fmt.Sprintf("list field %s has an empty or malformed \"contains\"", path))
		}

		dim++
		if dim > types.MaxListDimension {
			return types.TypeSpec{}, errors.NewSchemaError(errors.CodeListDimension,
				fmt.Sprintf("list field %s exceeds the maximum nesting of %d", path, types.MaxListDimension))
		}

		if t, _ := contains["type"].(string); t == "list" {
			cur = contains
			continue
		}

		elem, err := parseType(contains, path, depth, true)
		if err != nil {
			return types.TypeSpec{}, err
		}
		return types.ListOf(elem, dim), nil
	}
}

// parseStruct validates a struct field, enforcing the nesting invariant: a
// struct may appear at most one level inside another struct, and a struct
// that is a list element may not itself declare struct-typed fields (a single
// fill call cannot address inner struct paths).
func parseStruct(obj map[string]any, path string, depth int, inList bool) (types.TypeSpec, error) {
	if depth >= 2 {
		return types.TypeSpec{}, errors.NewSchemaError(errors.CodeStructDepth,
			fmt.Sprintf("struct field %s exceeds the maximum struct nesting depth", path))
	}

	raw, ok := obj["fields"]
	if !ok {
		return types.TypeSpec{}, errors.NewSchemaError(errors.CodeMissingKey,
			fmt.Sprintf("struct field %s requires a \"fields\" array", path))
	}
	list, ok := raw.([]any)
	if !ok {
		return types.TypeSpec{}, errors.NewSchemaError(errors.CodeInvalidLayout,
			fmt.Sprintf("struct field %s has a malformed \"fields\" array", path))
	}

	childDepth := depth + 1
	if inList {
		// List-element structs are terminal: their fields may not be structs
		// at any remaining depth.
		childDepth = 2
	}

	fields, err := parseFields(list, path, childDepth, inList)
	if err != nil {
		return types.TypeSpec{}, err
	}
	return types.StructOf(fields...), nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func pathOrTop(path string) string {
	if path == "" {
		return "top level"
	}
	return path
}
