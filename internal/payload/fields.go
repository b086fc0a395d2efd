package payload

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
)

var errNotObject = errors.New("payload is not a json object")

// field is one key/value pair of a structured payload, in document order
type field struct {
	key   string
	value any
}

type fields []field

// parseObject decodes a JSON object keeping key order, so fallbacks that
// scan "the first numeric value" stay deterministic.
func parseObject(raw string) (fields, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errNotObject
	}

	var out fields
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errNotObject
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, field{key: key, value: v})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after json object")
	}
	return out, nil
}

// get returns the value of the first alias present with a non-null value.
// Repeated keys resolve to the last occurrence.
func (fs fields) get(keys ...string) (any, bool) {
	for _, k := range keys {
		for i := len(fs) - 1; i >= 0; i-- {
			if fs[i].key == k && fs[i].value != nil {
				return fs[i].value, true
			}
		}
	}
	return nil, false
}

func (fs fields) has(keys ...string) bool {
	_, ok := fs.get(keys...)
	return ok
}

// int reads an integer under any alias. present is false when no alias
// holds a value; ok is false when the value is not an integer.
func (fs fields) int(keys ...string) (n int, present, ok bool) {
	v, present := fs.get(keys...)
	if !present {
		return 0, false, false
	}
	n, ok = toInt(v)
	return n, true, ok
}

func (fs fields) str(keys ...string) string {
	v, ok := fs.get(keys...)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i), true
		}
		f, err := x.Float64()
		if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, false
		}
		if i := int64(f); i < math.MinInt || i > math.MaxInt {
			return 0, false
		}
		return int(f), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}
