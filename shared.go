package pocketflow

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
)

// Shared is the mutable context threaded through an entire run. The caller
// owns it; every node may read and write it.
type Shared map[string]any

// Params is a node parameter set. Traversal replaces it wholesale on every
// routing step, it is never merged into an existing set.
type Params map[string]any

// Get retrieves a value by key.
func (s Shared) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

// Set stores a value with the given key.
func (s Shared) Set(key string, value any) {
	s[key] = value
}

// Delete removes a key.
func (s Shared) Delete(key string) {
	delete(s, key)
}

// Isolate returns a copy for a concurrent worker: the top-level map is
// duplicated and so is one level of nested map and slice values. Deeper
// structures and scalars are shared by reference.
func (s Shared) Isolate() Shared {
	out := make(Shared, len(s))
	for k, v := range s {
		out[k] = copyLevel(v)
	}
	return out
}

// Merge folds a worker's context into s. Keys matched by skip are left
// untouched. When both sides hold maps the worker's keys are written over the
// existing ones, and when both hold lists the worker's items are appended.
// Values of the same type are merged in place; differing map types become a
// map[string]any and differing list types a []any. Anything else, byte
// slices included, is replaced by the worker's value.
func (s Shared) Merge(from Shared, skip SkipPolicy) {
	for k, v := range from {
		if skip != nil && skip(k) {
			continue
		}
		existing, ok := s[k]
		if !ok {
			s[k] = v
			continue
		}
		s[k] = mergeValue(existing, v)
	}
}

func copyLevel(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return maps.Clone(t)
	case []any:
		return slices.Clone(t)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out.Interface()
	case reflect.Slice:
		if rv.IsNil() {
			return v
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	}
	return v
}

func mergeValue(dst, src any) any {
	dv, sv := reflect.ValueOf(dst), reflect.ValueOf(src)
	if !dv.IsValid() || !sv.IsValid() {
		return src
	}

	switch {
	case dv.Kind() == reflect.Map && sv.Kind() == reflect.Map:
		if dv.Type() == sv.Type() {
			if dv.IsNil() {
				return src
			}
			iter := sv.MapRange()
			for iter.Next() {
				dv.SetMapIndex(iter.Key(), iter.Value())
			}
			return dst
		}
		if dv.Type().Key().Kind() != reflect.String || sv.Type().Key().Kind() != reflect.String {
			return src
		}
		out := make(map[string]any, dv.Len()+sv.Len())
		for _, m := range []reflect.Value{dv, sv} {
			iter := m.MapRange()
			for iter.Next() {
				out[iter.Key().String()] = iter.Value().Interface()
			}
		}
		return out

	case isSequence(dv) && isSequence(sv):
		if dv.Type() == sv.Type() && dv.Kind() == reflect.Slice {
			return reflect.AppendSlice(dv, sv).Interface()
		}
		out := make([]any, 0, dv.Len()+sv.Len())
		for _, seq := range []reflect.Value{dv, sv} {
			for i := 0; i < seq.Len(); i++ {
				out = append(out, seq.Index(i).Interface())
			}
		}
		return out
	}
	return src
}

// isSequence reports whether v is a list of items. Byte slices are data, not
// lists.
func isSequence(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return v.Type().Elem().Kind() != reflect.Uint8
	}
	return false
}

// SkipPolicy reports whether a shared-context key is excluded from the merge
// that follows a parallel batch flow.
type SkipPolicy func(key string) bool

// DefaultSkipPolicy skips any key ending in "_input" plus the literal key
// "batches".
func DefaultSkipPolicy(key string) bool {
	return strings.HasSuffix(key, "_input") || key == "batches"
}

// SkipKeys skips exactly the given keys. With no keys nothing is skipped.
func SkipKeys(keys ...string) SkipPolicy {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return func(key string) bool {
		_, ok := set[key]
		return ok
	}
}

// Lookup returns m[key] converted to T.
func Lookup[T any, M ~map[string]any](m M, key string) (T, bool) {
	var zero T
	v, ok := m[key]
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// MustLookup is like Lookup but returns an error describing a missing key or
// a type mismatch.
func MustLookup[T any, M ~map[string]any](m M, key string) (T, error) {
	var zero T
	v, ok := m[key]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("type mismatch for %q: expected %T, got %T", key, zero, v)
	}
	return typed, nil
}
