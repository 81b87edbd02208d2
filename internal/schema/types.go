// Package schema infers a column schema from heterogeneous directory records and converts
// record values to and from their stored column representation. It performs no I/O.
package schema

import (
	"encoding/json"
	"math"
	"reflect"
)

// ColumnType is the inferred storage type of a field.
type ColumnType int

const (
	// TypeNull is a field only ever seen as null; it is stored as TEXT.
	TypeNull ColumnType = iota
	TypeBoolean
	TypeInteger
	TypeReal
	TypeText
	// TypeJSON holds arrays and objects serialized as JSON text.
	TypeJSON
)

var columnTypeNames = map[ColumnType]string{
	TypeNull:    "null",
	TypeBoolean: "boolean",
	TypeInteger: "integer",
	TypeReal:    "real",
	TypeText:    "text",
	TypeJSON:    "json",
}

func (t ColumnType) String() string {
	if s, ok := columnTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParseColumnType is the inverse of String.
func ParseColumnType(s string) (ColumnType, bool) {
	for t, name := range columnTypeNames {
		if name == s {
			return t, true
		}
	}
	return TypeText, false
}

// SQLType is the SQLite declared type for the column. Booleans are integer-representable.
func (t ColumnType) SQLType() string {
	switch t {
	case TypeBoolean, TypeInteger:
		return "INTEGER"
	case TypeReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// InferType returns the column type for a single value.
// Numbers split into Integer and Real by a fractional-part test; strings (date-like included) are Text;
// arrays and objects are JSON; nil is Null.
func InferType(v any) ColumnType {
	switch x := v.(type) {
	case nil:
		return TypeNull
	case bool:
		return TypeBoolean
	case string:
		return TypeText
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	case float32:
		return floatType(float64(x))
	case float64:
		return floatType(x)
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return TypeInteger
		}
		f, err := x.Float64()
		if err != nil {
			return TypeText
		}
		return floatType(f)
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		return TypeJSON
	case reflect.Pointer:
		rv := reflect.ValueOf(v)
		if rv.IsNil() {
			return TypeNull
		}
		return InferType(rv.Elem().Interface())
	}
	return TypeText
}

func floatType(f float64) ColumnType {
	if isWhole(f) {
		return TypeInteger
	}
	return TypeReal
}

func isWhole(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f) &&
		f >= math.MinInt64 && f < math.MaxInt64
}

// widen merges two observed types for the same field.
// Nulls never vote; Integer and Real widen to Real; any other disagreement falls back to Text.
func widen(a, b ColumnType) ColumnType {
	switch {
	case a == b:
		return a
	case a == TypeNull:
		return b
	case b == TypeNull:
		return a
	case (a == TypeInteger && b == TypeReal) || (a == TypeReal && b == TypeInteger):
		return TypeReal
	}
	return TypeText
}

// Normalize converts a value to its canonical record form: whole numbers become int64, fractional
// numbers float64, arrays []any and objects map[string]any (recursively). Strings, bools and nil pass through.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return normalizeUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return normalizeUint(x)
	case float32:
		return normalizeFloat(float64(x))
	case float64:
		return normalizeFloat(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return normalizeFloat(f)
		}
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Normalize(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return roundTripJSON(v)
		}
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Struct:
		return roundTripJSON(v)
	}
	return v
}

func normalizeUint(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

func normalizeFloat(f float64) any {
	if isWhole(f) {
		return int64(f)
	}
	return f
}

// roundTripJSON canonicalizes values with no direct mapping by encoding and decoding them.
func roundTripJSON(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	decoded, err := decodeJSON(string(raw))
	if err != nil {
		return v
	}
	return decoded
}
