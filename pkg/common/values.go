package common

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// ErrKeyNotFound is returned by Values.Get for keys that were never set.
var ErrKeyNotFound = errors.New("key not found")

// Values is the request-scoped key-value registry.
type Values struct {
	m map[string]any
}

// NewValues creates an empty registry.
func NewValues() *Values {
	return &Values{m: make(map[string]any)}
}

// Set stores value under key, replacing any previous value.
func (v *Values) Set(key string, value any) {
	v.m[key] = value
}

// Has reports whether key was set.
func (v *Values) Has(key string) bool {
	_, ok := v.m[key]
	return ok
}

// Get returns the value stored under key, or an error wrapping ErrKeyNotFound.
func (v *Values) Get(key string) (any, error) {
	val, ok := v.m[key]
	if !ok {
		return nil, errors.Wrapf(ErrKeyNotFound, "values: %q", key)
	}
	return val, nil
}

// Keys returns the set keys in sorted order.
func (v *Values) Keys() []string {
	keys := lo.Keys(v.m)
	sort.Strings(keys)
	return keys
}

// Value returns the value under key converted to T. ok is false when the key is missing
// or holds a value of another type.
func Value[T any](v *Values, key string) (T, bool) {
	val, ok := v.m[key].(T)
	return val, ok
}
