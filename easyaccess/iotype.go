// © Copyright 2025-2026, EasyAPI Project
// SPDX-License-Identifier: Apache-2.0

package easyaccess

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
)

// MetaKind is the coarse value category of an IOType. It governs how raw
// values are coerced and which condition payloads are accepted.
type MetaKind int

const (
	// MetaString values coerce to text; the optional condition is a regular
	// expression the whole value must match.
	MetaString MetaKind = iota
	// MetaNumber values coerce to float64; the optional condition is a
	// {min, max} mapping with inclusive bounds.
	MetaNumber
	// MetaNumberArray values coerce to an ordered []float64; no condition is
	// supported in this protocol version.
	MetaNumberArray
)

// ParseMetaKind parses a wire kind tag. Unrecognized tags are rejected here,
// at IOType construction time, rather than at validation time.
func ParseMetaKind(s string) (MetaKind, error) {
	switch s {
	case "string":
		return MetaString, nil
	case "number":
		return MetaNumber, nil
	case "numarray":
		return MetaNumberArray, nil
	default:
		return 0, fmt.Errorf("unrecognized meta kind %q", s)
	}
}

// String returns the wire tag for the kind.
func (k MetaKind) String() string {
	switch k {
	case MetaString:
		return "string"
	case MetaNumber:
		return "number"
	case MetaNumberArray:
		return "numarray"
	default:
		return "unknown"
	}
}

// IOType is a named, versioned type definition for one input or output value.
// It is immutable after construction and cached by id in a Registry so it can
// be shared across parameters and entries.
type IOType struct {
	Meta      MetaKind
	ID        string
	Name      string
	Doc       string
	Condition any
	Version   string
}

// iotypeFields are the exact fields an imported record must carry.
var iotypeFields = []string{"id", "meta", "name", "doc", "version", "condition"}

// NewIOType builds an IOType from a flat wire record.
func NewIOType(rec map[string]any) (*IOType, error) {
	meta, _ := rec["meta"].(string)
	kind, err := ParseMetaKind(meta)
	if err != nil {
		return nil, err
	}
	asString := func(key string) string {
		s, _ := rec[key].(string)
		return s
	}
	return &IOType{
		Meta:      kind,
		ID:        asString("id"),
		Name:      asString("name"),
		Doc:       asString("doc"),
		Condition: rec["condition"],
		Version:   asString("version"),
	}, nil
}

// Schema returns the flat wire record for the IOType.
func (t *IOType) Schema() map[string]any {
	return map[string]any{
		"meta":      t.Meta.String(),
		"id":        t.ID,
		"name":      t.Name,
		"doc":       t.Doc,
		"condition": t.Condition,
		"version":   t.Version,
	}
}

func (t *IOType) String() string {
	return fmt.Sprintf("<%s(%s) %s:%s>", t.Name, t.Meta, t.ID, t.Version)
}

// Validate coerces a raw value to the declared kind and checks it against the
// condition. It runs the two phases in order and stops at the first failure;
// all failures are identified StackErrors.
func (t *IOType) Validate(v any) (any, error) {
	switch t.Meta {
	case MetaNumber:
		f, err := formatNumber(v)
		if err != nil {
			return nil, err
		}
		return checkNumber(f, t.Condition)
	case MetaNumberArray:
		arr, err := formatNumberArray(v)
		if err != nil {
			return nil, err
		}
		return checkNumberArray(arr, t.Condition)
	case MetaString:
		s, err := formatString(v)
		if err != nil {
			return nil, err
		}
		return checkString(s, t.Condition)
	default:
		return nil, ioErrors.New(unknownErrorCode)
	}
}

// formatNumber coerces a raw value to float64. Numeric strings are accepted;
// booleans are not.
func formatNumber(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, ioErrors.New(errNum)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, ioErrors.New(errNum)
		}
		return f, nil
	default:
		return 0, ioErrors.New(errNum)
	}
}

// checkNumber validates a coerced number against an optional {min, max}
// mapping. Bounds are inclusive: the value passes when min <= v <= max.
func checkNumber(v float64, condition any) (any, error) {
	if condition == nil {
		return v, nil
	}
	cond, ok := asConditionMap(condition)
	if !ok {
		return nil, ioErrors.New(errNumIrr)
	}
	minBound, hasMin, err := conditionBound(cond, "min")
	if err != nil {
		return nil, err
	}
	maxBound, hasMax, err := conditionBound(cond, "max")
	if err != nil {
		return nil, err
	}
	if hasMin && hasMax && minBound >= maxBound {
		return nil, ioErrors.New(errNumMinMax)
	}
	if hasMin && v < minBound {
		return nil, ioErrors.New(errNumMin)
	}
	if hasMax && v > maxBound {
		return nil, ioErrors.New(errNumMax)
	}
	return v, nil
}

// asConditionMap normalizes the decoded condition payload to a string map.
func asConditionMap(condition any) (map[string]any, bool) {
	switch m := condition.(type) {
	case map[string]any:
		return m, true
	case map[string]float64:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, true
	case map[string]int:
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out, true
	default:
		return nil, false
	}
}

// conditionBound extracts one numeric bound from a condition mapping. A bound
// that is present but non-numeric makes the whole condition irregular.
func conditionBound(cond map[string]any, key string) (float64, bool, error) {
	raw, ok := cond[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	f, err := formatNumber(raw)
	if err != nil {
		return 0, false, ioErrors.New(errNumIrr)
	}
	return f, true, nil
}

// formatNumberArray coerces an ordered sequence to []float64, preserving
// element order. Non-sequence values and uncoercible elements fail.
func formatNumberArray(v any) ([]float64, error) {
	if v == nil {
		return nil, ioErrors.New(errNumArr)
	}
	if arr, ok := v.([]float64); ok {
		out := make([]float64, len(arr))
		copy(out, arr)
		return out, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, ioErrors.New(errNumArr)
	}
	out := make([]float64, rv.Len())
	for i := range out {
		f, err := formatNumber(rv.Index(i).Interface())
		if err != nil {
			return nil, ioErrors.New(errNumArr)
		}
		out[i] = f
	}
	return out, nil
}

// checkNumberArray rejects any non-absent condition. Per-element bound
// checking is not part of this protocol version.
func checkNumberArray(v []float64, condition any) (any, error) {
	if condition != nil {
		return nil, ioErrors.New(errNumArrIrr)
	}
	return v, nil
}

// formatString coerces a raw value to text. Scalar values render the way the
// wire format renders them; composite values are not string data.
func formatString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return fmt.Sprintf("%v", x), nil
	default:
		return "", ioErrors.New(errStr)
	}
}

// checkString validates a coerced string against an optional regular
// expression pattern. The whole value must match; partial substring matches
// are rejected.
func checkString(s string, condition any) (any, error) {
	if condition == nil {
		return s, nil
	}
	pattern, ok := condition.(string)
	if !ok {
		return nil, ioErrors.New(errStrIrr)
	}
	re, err := regexp.Compile(`\A(?:` + pattern + `)\z`)
	if err != nil {
		return nil, ioErrors.New(errStrIrr)
	}
	if !re.MatchString(s) {
		return nil, ioErrors.New(errStrNM)
	}
	return s, nil
}
