// Package attr models custom attribute values as a tagged union keyed by the
// resolved scalar type, so the codec and the filter compiler can check value
// shape and comparator legality exhaustively.
package attr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Photoroom/dataroom/internal/domain/fields"
)

// Value is one attribute value together with its resolved scalar type and
// indexed flag. The zero Value is invalid.
type Value struct {
	name    string
	typ     fields.Type
	indexed bool
	val     any
}

// NewValue validates raw against the resolved scalar type and returns a
// typed Value. Booleans are coerced from the strings "true"/"false", numbers
// from numeric strings (filter values arrive as strings). Object values must
// be maps and can never be indexed.
func NewValue(name string, t fields.Type, indexed bool, raw any) (Value, error) {
	if !t.Valid() {
		return Value{}, fmt.Errorf("invalid scalar type %q for attribute %q", t, name)
	}
	if t == fields.TypeObject && indexed {
		return Value{}, fmt.Errorf("object attribute %q cannot be indexed", name)
	}
	if raw == nil {
		return Value{name: name, typ: t, indexed: indexed}, nil
	}
	coerced, err := coerce(t, raw)
	if err != nil {
		return Value{}, fmt.Errorf("attribute %q: %w", name, err)
	}
	return Value{name: name, typ: t, indexed: indexed, val: coerced}, nil
}

// Name returns the logical attribute name.
func (v Value) Name() string { return v.name }

// Type returns the resolved scalar type.
func (v Value) Type() fields.Type { return v.typ }

// Indexed reports whether the attribute is searchable.
func (v Value) Indexed() bool { return v.indexed }

// Any returns the coerced value, nil when unset.
func (v Value) Any() any { return v.val }

// PhysicalName returns the index key for this attribute.
func (v Value) PhysicalName() string {
	return fields.Attr(v.name, v.typ, v.indexed)
}

// KeywordName returns the exact-match index key for this attribute.
func (v Value) KeywordName() string {
	return fields.AttrKeyword(v.name, v.typ, v.indexed)
}

func coerce(t fields.Type, raw any) (any, error) {
	// Array values are encoded under the item type's key; validate each item.
	if items, ok := raw.([]any); ok && t != fields.TypeObject {
		out := make([]any, len(items))
		for i, item := range items {
			c, err := coerce(t, item)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	}

	switch t {
	case fields.TypeText, fields.TypeDate:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string for %s value, got %T", t, raw)
		}
		return s, nil
	case fields.TypeDouble:
		switch n := raw.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number value %q", n)
			}
			return f, nil
		}
		return nil, fmt.Errorf("expected number value, got %T", raw)
	case fields.TypeLong:
		switch n := raw.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != float64(int64(n)) {
				return nil, fmt.Errorf("expected integer value, got %v", n)
			}
			return int64(n), nil
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid integer value %q", n)
			}
			return i, nil
		}
		return nil, fmt.Errorf("expected integer value, got %T", raw)
	case fields.TypeBoolean:
		switch b := raw.(type) {
		case bool:
			return b, nil
		case string:
			switch strings.ToLower(b) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
			return nil, fmt.Errorf("invalid boolean value %q", b)
		}
		return nil, fmt.Errorf("expected boolean value, got %T", raw)
	case fields.TypeObject:
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("object attribute values must be objects, got %T", raw)
		}
		return m, nil
	}
	return nil, fmt.Errorf("unsupported scalar type %q", t)
}
