package storage

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/mmynk/larder/internal/apperrors"
)

// The helpers below implement field-level mutations on JSON-normalized
// documents. Both backends apply them so their semantics cannot diverge.

// Normalize round-trips v through JSON so it compares equal to stored values.
func Normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, apperrors.Validation("unencodable value: %v", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, apperrors.Validation("unencodable value: %v", err)
	}
	return out, nil
}

// CloneFields deep-copies document fields.
func CloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneFields(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// GetPath returns the value at a dotted path.
func GetPath(fields map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = fields
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetPath stores value at a dotted path, creating intermediate maps.
func SetPath(fields map[string]any, path string, value any) error {
	parts := strings.Split(path, ".")
	m := fields
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p]
		if !ok || next == nil {
			child := make(map[string]any)
			m[p] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return apperrors.Validation("field %q is not a map", p)
		}
		m = child
	}
	m[parts[len(parts)-1]] = value
	return nil
}

// ApplyUpdate applies a partial update of dotted paths to fields.
func ApplyUpdate(fields map[string]any, update map[string]any) error {
	for path, v := range update {
		nv, err := Normalize(v)
		if err != nil {
			return err
		}
		if err := SetPath(fields, path, nv); err != nil {
			return err
		}
	}
	return nil
}

// ApplyArrayUnion appends value to the array at path unless present.
func ApplyArrayUnion(fields map[string]any, path string, value any) error {
	nv, err := Normalize(value)
	if err != nil {
		return err
	}
	arr, err := arrayAt(fields, path)
	if err != nil {
		return err
	}
	for _, e := range arr {
		if reflect.DeepEqual(e, nv) {
			return nil
		}
	}
	return SetPath(fields, path, append(arr, nv))
}

// ApplyArrayRemove removes every occurrence of value from the array at path.
func ApplyArrayRemove(fields map[string]any, path string, value any) error {
	nv, err := Normalize(value)
	if err != nil {
		return err
	}
	arr, err := arrayAt(fields, path)
	if err != nil {
		return err
	}
	kept := make([]any, 0, len(arr))
	for _, e := range arr {
		if !reflect.DeepEqual(e, nv) {
			kept = append(kept, e)
		}
	}
	return SetPath(fields, path, kept)
}

// ApplyIncrement adds delta to the number at path, treating absent as zero.
func ApplyIncrement(fields map[string]any, path string, delta int64) error {
	cur, ok := GetPath(fields, path)
	var n float64
	if ok && cur != nil {
		f, isNum := cur.(float64)
		if !isNum {
			return apperrors.Validation("field %q is not numeric", path)
		}
		n = f
	}
	return SetPath(fields, path, n+float64(delta))
}

func arrayAt(fields map[string]any, path string) ([]any, error) {
	cur, ok := GetPath(fields, path)
	if !ok || cur == nil {
		return nil, nil
	}
	arr, ok := cur.([]any)
	if !ok {
		return nil, apperrors.Validation("field %q is not an array", path)
	}
	return arr, nil
}

// Matches reports whether fields satisfy filter.
func Matches(fields map[string]any, filter Filter) bool {
	if filter.Field == "" {
		return true
	}
	want, err := Normalize(filter.Value)
	if err != nil {
		return false
	}
	got, ok := GetPath(fields, filter.Field)
	if !ok {
		return false
	}
	switch filter.Op {
	case OpEqual:
		return reflect.DeepEqual(got, want)
	case OpArrayContains:
		arr, ok := got.([]any)
		if !ok {
			return false
		}
		for _, e := range arr {
			if reflect.DeepEqual(e, want) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// CheckBatch validates a GetBatch id list against the store cap.
func CheckBatch(ids []string, max int) error {
	if len(ids) > max {
		return apperrors.Validation("batch of %d ids exceeds max batch size %d", len(ids), max)
	}
	return nil
}
