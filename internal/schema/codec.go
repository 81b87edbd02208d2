package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Serialize converts a record value to its stored form: booleans become 0/1, arrays and objects JSON text,
// nil stays nil, numbers and strings are stored unchanged (numbers in canonical int64/float64 form).
func Serialize(v any) (any, error) {
	v = Normalize(v)
	switch x := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case int64, float64, string:
		return x, nil
	case []any, map[string]any:
		raw, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("schema: serialize %T: %w", v, err)
		}
		return string(raw), nil
	}
	return fmt.Sprint(v), nil
}

// Deserialize converts a stored value back to its canonical record form using the column's type tag.
// Values that do not fit the tag are returned unchanged rather than failing the row.
func Deserialize(t ColumnType, raw any) any {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	if raw == nil {
		return nil
	}
	switch t {
	case TypeBoolean:
		return toBool(raw)
	case TypeInteger, TypeReal:
		if s, ok := raw.(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return normalizeFloat(f)
			}
			return s
		}
		return Normalize(raw)
	case TypeJSON:
		s, ok := raw.(string)
		if !ok {
			return Normalize(raw)
		}
		v, err := decodeJSON(s)
		if err != nil {
			return s
		}
		return v
	}
	return raw
}

// DeserializeColumn is Deserialize for a tagged column. In a Text column that also held arrays or
// objects, strings shaped like JSON are decoded back to their array or object form.
func DeserializeColumn(c Column, raw any) any {
	v := Deserialize(c.Type, raw)
	if c.Type != TypeText || !c.JSONValues {
		return v
	}
	if s, ok := v.(string); ok && LooksLikeJSON(s) {
		if decoded, err := decodeJSON(s); err == nil {
			return decoded
		}
	}
	return v
}

// DeserializeLegacy decodes a value from a table that has no recorded type tags: strings that look like
// JSON arrays or objects are parsed, and fields whose name contains "enabled" are coerced to booleans.
func DeserializeLegacy(field string, raw any) any {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	if raw == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(field), "enabled") {
		return toBool(raw)
	}
	if s, ok := raw.(string); ok && LooksLikeJSON(s) {
		if v, err := decodeJSON(s); err == nil {
			return v
		}
		return s
	}
	return Normalize(raw)
}

// LooksLikeJSON reports whether s is shaped like a JSON array or object literal.
func LooksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return false
	}
	return (s[0] == '[' && s[len(s)-1] == ']') || (s[0] == '{' && s[len(s)-1] == '}')
}

func toBool(raw any) any {
	switch x := raw.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true":
			return true
		case "0", "false", "":
			return false
		}
		return x
	}
	return raw
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return Normalize(v), nil
}
