// Package store gives middleware and handlers access to a lazily opened data handle.
package store

import (
	"context"
	"sync"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/cockroachdb/errors"
)

// DefaultKey is the registry key Inject uses when none is given.
const DefaultKey = "db"

// ErrNoHandle is returned by From when no handle was injected for a request.
var ErrNoHandle = errors.New("no data handle in request")

// Opener creates the data handle.
type Opener[T any] func(ctx context.Context) (T, error)

// Accessor opens its handle on first use and hands the same handle to every later
// caller. A failed open is remembered and returned to every caller.
type Accessor[T any] struct {
	open Opener[T]

	once   sync.Once
	handle T
	err    error
}

// NewAccessor creates an accessor around open.
func NewAccessor[T any](open Opener[T]) *Accessor[T] {
	return &Accessor[T]{open: open}
}

// Get returns the ready handle, opening it on the first call.
func (a *Accessor[T]) Get(ctx context.Context) (T, error) {
	a.once.Do(func() {
		a.handle, a.err = a.open(ctx)
		if a.err != nil {
			a.err = errors.Wrap(a.err, "open data handle")
		}
	})
	return a.handle, a.err
}

// Inject returns a hook that stores the accessor's handle in the request registry
// under key (DefaultKey when empty). When the handle cannot be opened the error is
// stored instead and From reports it.
func Inject[T any](a *Accessor[T], key string) common.Middleware {
	if key == "" {
		key = DefaultKey
	}
	return common.Hook(func(c *common.Context) {
		h, err := a.Get(c.Context())
		if err != nil {
			c.Values().Set(key, err)
			return
		}
		c.Values().Set(key, h)
	})
}

// From returns the handle Inject stored under key (DefaultKey when empty).
func From[T any](c *common.Context, key string) (T, error) {
	var zero T
	if key == "" {
		key = DefaultKey
	}
	v, err := c.Values().Get(key)
	if err != nil {
		return zero, errors.Mark(err, ErrNoHandle)
	}
	switch h := v.(type) {
	case T:
		return h, nil
	case error:
		return zero, h
	default:
		return zero, errors.Wrapf(ErrNoHandle, "%q holds %T", key, v)
	}
}
