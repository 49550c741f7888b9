package eventmap

import (
	"reflect"
	"slices"

	"github.com/samber/lo"
)

// Snapshot is an immutable-by-convention copy of a map's state at one instant.
type Snapshot map[string]any

// Keys returns the snapshot's keys in sorted order.
func (s Snapshot) Keys() []string {
	keys := lo.Keys(s)
	slices.Sort(keys)
	return keys
}

// Clone returns a shallow copy that callers may modify.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Normalize maps the "absent" spellings a value can arrive in (nil, and the
// strings "undefined" and "null") to the empty string, so repeated reads are
// stable and comparable. Slices are copied so the map never aliases caller
// memory.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		if val == "undefined" || val == "null" {
			return ""
		}
		return val
	case []string:
		return slices.Clone(val)
	case []any:
		return slices.Clone(val)
	}
	return v
}

// Equal reports whether two values are the same for change detection.
// Sequences compare element by element in order; everything else compares
// with ==, falling back to reflect.DeepEqual for non-comparable types.
func Equal(a, b any) bool {
	if IsSequence(a) || IsSequence(b) {
		return sequenceEqual(a, b)
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta == nil {
		return true
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// IsSequence reports whether v is a slice or array value.
func IsSequence(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func sequenceEqual(a, b any) bool {
	if !IsSequence(a) || !IsSequence(b) {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Len() != vb.Len() {
		return false
	}
	for i := 0; i < va.Len(); i++ {
		if !Equal(va.Index(i).Interface(), vb.Index(i).Interface()) {
			return false
		}
	}
	return true
}
