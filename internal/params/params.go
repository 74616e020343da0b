// Package params turns loosely-typed tool payloads into strictly-shaped values.
//
// MCP hosts are inconsistent about how they send arguments: the same batch of
// files may arrive as an object, as a bare array, or as a JSON document
// encoded inside a string. Normalize accepts all of those and either returns
// a typed value or a rejection naming the constraint that was violated.
//
// The order of attempts is fixed:
//
//  1. an object carrying the shape's field is validated and converted;
//  2. a string is JSON-decoded and normalized again; when it does not decode
//     and the shape accepts bare strings, the string itself is used;
//  3. an array is wrapped into {field: array} when the shape expects that;
//  4. an object missing the field gets one remap from a fixed alias list.
package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// maxDepth bounds how many layers of string-encoded JSON are unwrapped.
const maxDepth = 8

// Sentinel causes, inspectable with errors.Is on any rejection.
var (
	// ErrMissing means a required field is absent (or null).
	ErrMissing = errors.New("missing required parameter")

	// ErrEmpty means a required field is present but empty.
	ErrEmpty = errors.New("empty required parameter")

	// ErrInvalidType means a value has a type the shape cannot accept.
	ErrInvalidType = errors.New("invalid parameter type")

	// ErrInvalidValue means a value has the right type but is not allowed.
	ErrInvalidValue = errors.New("invalid parameter value")
)

// ParameterError is a rejection for a non-mutation payload.
type ParameterError struct {
	Param      string
	Constraint string
	Err        error
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("%s: %s", e.Param, e.Constraint)
}

func (e *ParameterError) Unwrap() error { return e.Err }

// MutationError is a rejection for a file-mutation payload. Index is the
// position of the offending mutation, or -1 for batch-level problems.
type MutationError struct {
	Index      int
	Field      string
	Constraint string
	Err        error
}

func (e *MutationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", e.Field, e.Constraint)
	}
	return fmt.Sprintf("files[%d].%s: %s", e.Index, e.Field, e.Constraint)
}

func (e *MutationError) Unwrap() error { return e.Err }

// RawParam is the closed set of forms an untyped payload can take.
// Exactly one of Object, Array, String or Primitive.
type RawParam interface {
	isRawParam()
}

// Object is a decoded JSON object.
type Object map[string]any

// Array is a decoded JSON array.
type Array []any

// String is a string payload, possibly holding encoded JSON.
type String string

// Primitive is a number, a boolean or null.
type Primitive struct {
	Value any
}

func (Object) isRawParam()    {}
func (Array) isRawParam()     {}
func (String) isRawParam()    {}
func (Primitive) isRawParam() {}

// Classify maps an arbitrary Go value onto RawParam. Typed Go values (structs,
// typed slices and maps) are brought to their JSON form first so that a value
// produced by Normalize classifies the same way as its encoded payload.
func Classify(v any) RawParam {
	switch x := v.(type) {
	case nil:
		return Primitive{}
	case map[string]any:
		return Object(x)
	case Object:
		return x
	case []any:
		return Array(x)
	case Array:
		return x
	case string:
		return String(x)
	case String:
		return x
	case json.RawMessage:
		return String(string(x))
	case []byte:
		return String(string(x))
	case bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return Primitive{Value: x}
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array, reflect.Pointer:
		data, err := json.Marshal(v)
		if err != nil {
			return Primitive{Value: v}
		}
		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return Primitive{Value: v}
		}
		if decoded == nil {
			return Primitive{}
		}
		return Classify(decoded)
	}
	return Primitive{Value: v}
}

// Shape describes the target of a normalization.
type Shape[T any] interface {
	// Field is the object key that carries the payload.
	Field() string
	// Aliases are alternate keys tried once when Field is absent.
	Aliases() []string
	// FromObject validates an object that carries Field.
	FromObject(obj Object) (T, error)
	// Reject builds the shape's error type.
	Reject(field, constraint string, cause error) error
}

// ArrayShape is implemented by shapes that accept a bare array directly.
type ArrayShape[T any] interface {
	FromArray(arr Array) (T, error)
}

// WrappingShape is implemented by shapes that wrap a bare array into
// {Field: array} before validating it as an object.
type WrappingShape interface {
	WrapsArray() bool
}

// BareStringShape is implemented by shapes that accept a non-JSON string.
type BareStringShape[T any] interface {
	FromString(s string) (T, error)
}

// Normalize converts raw into the shape's typed value.
func Normalize[T any](raw any, shape Shape[T]) (T, error) {
	return normalize(raw, shape, 0)
}

func normalize[T any](raw any, shape Shape[T], depth int) (T, error) {
	var zero T
	if depth > maxDepth {
		return zero, shape.Reject(shape.Field(), "payload nests encoded JSON too deeply", ErrInvalidType)
	}

	switch r := Classify(raw).(type) {
	case Object:
		if v, ok := r[shape.Field()]; ok && v != nil {
			return shape.FromObject(r)
		}
		if remapped, ok := remap(r, shape); ok {
			return shape.FromObject(remapped)
		}
		return zero, shape.Reject(shape.Field(), "is required", ErrMissing)

	case String:
		s := string(r)
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			if _, isPrimitive := Classify(decoded).(Primitive); !isPrimitive {
				return normalize(decoded, shape, depth+1)
			}
		}
		if bare, ok := any(shape).(BareStringShape[T]); ok {
			return bare.FromString(s)
		}
		if strings.TrimSpace(s) == "" {
			return zero, shape.Reject(shape.Field(), "is required", ErrMissing)
		}
		return zero, shape.Reject(shape.Field(), "must be a JSON object or array, got an undecodable string", ErrInvalidType)

	case Array:
		if w, ok := any(shape).(WrappingShape); ok && w.WrapsArray() {
			return normalize(map[string]any{shape.Field(): []any(r)}, shape, depth+1)
		}
		if as, ok := any(shape).(ArrayShape[T]); ok {
			return as.FromArray(r)
		}
		return zero, shape.Reject(shape.Field(), "arrays are not accepted here", ErrInvalidType)

	case Primitive:
		if r.Value == nil {
			return zero, shape.Reject(shape.Field(), "is required", ErrMissing)
		}
		return zero, shape.Reject(shape.Field(), fmt.Sprintf("unexpected %T value", r.Value), ErrInvalidType)
	}

	return zero, shape.Reject(shape.Field(), "unsupported payload", ErrInvalidType)
}

// PromotingShape is implemented by shapes that can lift an object which is
// itself a single element (e.g. one {path, content}) into a wrapped payload.
type PromotingShape interface {
	Promote(obj Object) (Object, bool)
}

// remap tries the shape's aliases in order and returns a copy of obj with the
// first present alias moved onto the primary field. Shapes that promote
// single elements get that chance after the aliases.
func remap[T any](obj Object, shape Shape[T]) (Object, bool) {
	for _, alias := range shape.Aliases() {
		v, ok := obj[alias]
		if !ok || v == nil {
			continue
		}
		out := make(Object, len(obj))
		for k, val := range obj {
			if k != alias {
				out[k] = val
			}
		}
		out[shape.Field()] = v
		return out, true
	}
	if p, ok := any(shape).(PromotingShape); ok {
		return p.Promote(obj)
	}
	return nil, false
}
