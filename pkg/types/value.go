// Package types defines the result and error types shared by every layer of
// the algebra workbench: the expression pipeline, the worksheet engine and
// the HTTP/gRPC surfaces.
package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueType represents the kind of result an operation produced.
type ValueType int

const (
	TypeNull       ValueType = iota
	TypeNumber               // float64
	TypeExpression           // expression tree, rendered as text
	TypeEquation             // equation tree, rendered as text
	TypeTokens               // token sequence, rendered as text
)

// String returns the type name used in JSON payloads.
func (t ValueType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeNumber:
		return "number"
	case TypeExpression:
		return "expression"
	case TypeEquation:
		return "equation"
	case TypeTokens:
		return "tokens"
	default:
		return "unknown"
	}
}

// ParseValueType is the inverse of ValueType.String.
func ParseValueType(s string) (ValueType, error) {
	switch s {
	case "null":
		return TypeNull, nil
	case "number":
		return TypeNumber, nil
	case "expression":
		return TypeExpression, nil
	case "equation":
		return TypeEquation, nil
	case "tokens":
		return TypeTokens, nil
	default:
		return TypeNull, fmt.Errorf("unknown value type %q", s)
	}
}

// Value is the outcome of a pipeline operation. It uses a tagged union
// approach: numbers keep their float64, trees are kept in rendered form.
type Value struct {
	typ    ValueType
	number float64
	text   string
}

// Null is the singleton null value.
var Null = Value{typ: TypeNull}

// NewNumber creates a numeric value.
func NewNumber(v float64) Value {
	return Value{typ: TypeNumber, number: v, text: FormatNumber(v)}
}

// NewExpression creates an expression value from its rendered form.
func NewExpression(text string) Value {
	return Value{typ: TypeExpression, text: text}
}

// NewEquation creates an equation value from its rendered form.
func NewEquation(text string) Value {
	return Value{typ: TypeEquation, text: text}
}

// NewTokens creates a token-sequence value from its rendered form.
func NewTokens(text string) Value {
	return Value{typ: TypeTokens, text: text}
}

// ValueFromParts rebuilds a value from its stored fields (used by caches).
func ValueFromParts(typ ValueType, number float64, text string) Value {
	if typ == TypeNumber {
		return NewNumber(number)
	}
	if typ == TypeNull {
		return Null
	}
	return Value{typ: typ, text: text}
}

// Type returns the value's type.
func (v Value) Type() ValueType {
	return v.typ
}

// IsNull returns true if the value is null.
func (v Value) IsNull() bool {
	return v.typ == TypeNull
}

// AsNumber returns the numeric value and whether the value is a number.
func (v Value) AsNumber() (float64, bool) {
	if v.typ != TypeNumber {
		return 0, false
	}
	return v.number, true
}

// Text returns the rendered form of the value.
func (v Value) Text() string {
	return v.text
}

// Equal compares two values. NaN numbers compare equal to each other.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeNull:
		return true
	case TypeNumber:
		if math.IsNaN(v.number) && math.IsNaN(other.number) {
			return true
		}
		return v.number == other.number
	default:
		return v.text == other.text
	}
}

// String returns the human-readable representation.
func (v Value) String() string {
	if v.typ == TypeNull {
		return "null"
	}
	return v.text
}

// MarshalJSON renders the value as {"type": ..., "value"|"text": ...}.
// Non-finite numbers are encoded as strings since JSON has no literal for them.
func (v Value) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{"type": v.typ.String()}
	switch v.typ {
	case TypeNull:
	case TypeNumber:
		if math.IsInf(v.number, 0) || math.IsNaN(v.number) {
			out["value"] = FormatNumber(v.number)
		} else {
			out["value"] = v.number
		}
	default:
		out["text"] = v.text
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
		Text  string          `json:"text"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	typ, err := ParseValueType(raw.Type)
	if err != nil {
		return err
	}
	if typ != TypeNumber {
		*v = ValueFromParts(typ, 0, raw.Text)
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw.Value, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw.Value, &s); err != nil {
			return fmt.Errorf("invalid number value: %s", raw.Value)
		}
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return fmt.Errorf("invalid number value %q: %w", s, err)
		}
	}
	*v = NewNumber(f)
	return nil
}

// ToGoValue converts the value to a plain Go value suitable for
// structpb.NewValue and template rendering.
func (v Value) ToGoValue() interface{} {
	switch v.typ {
	case TypeNull:
		return nil
	case TypeNumber:
		if math.IsInf(v.number, 0) || math.IsNaN(v.number) {
			return FormatNumber(v.number)
		}
		return v.number
	default:
		return v.text
	}
}

// FormatNumber renders a float64 in the shortest form that round-trips,
// with "+Inf", "-Inf" and "NaN" for the non-finite cases.
func FormatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "NaN"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
