package audit

import (
	"reflect"
	"sort"
)

// Diff compares two field maps and returns only the fields whose value
// changed, as {field: {old, new}}. Fields present in next but absent from prev
// are recorded with a nil old value. Fields only in prev are ignored: an
// update never removes fields.
func Diff(prev, next map[string]any) Changes {
	out := Changes{}
	keys := make([]string, 0, len(next))
	for k := range next {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		newVal := next[k]
		oldVal, ok := prev[k]
		if ok && reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		out[k] = Change{Old: oldVal, New: newVal}
	}
	return out
}

// Snapshot copies fields into a change payload, used for creates.
func Snapshot(fields map[string]any) Changes {
	out := make(Changes, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Deleted wraps a snapshot of a removed resource under key.
func Deleted(key string, fields map[string]any) Changes {
	return Changes{key: Snapshot(fields)}
}
