// Package common provides shared types and utilities used across the SDispatch framework.
package common

import (
	"github.com/cockroachdb/errors"
)

// Handler serves a single request and returns what should be sent back.
type Handler func(c *Context) Result

// Next runs the remainder of a middleware chain and returns its result.
type Next func() Result

// HookFunc is a middleware that runs for its side effects only.
// It always passes control onward and cannot block the request.
type HookFunc func(c *Context)

// WrapFunc is a middleware that receives the rest of the chain as a continuation.
// Returning without calling next short-circuits the request: the handler and every
// middleware registered after this one are skipped.
type WrapFunc func(c *Context, next Next) Result

// Kind tells the two middleware shapes apart.
type Kind int

const (
	// KindHook identifies a HookFunc middleware.
	KindHook Kind = iota
	// KindWrap identifies a WrapFunc middleware.
	KindWrap
)

// String returns a readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindHook:
		return "hook"
	case KindWrap:
		return "wrap"
	default:
		return "unknown"
	}
}

// Middleware is a tagged variant holding either a hook or a wrapping function.
// The shape is fixed when the middleware is constructed, so the router never has to
// inspect a function at request time.
type Middleware struct {
	kind Kind
	hook HookFunc
	wrap WrapFunc
}

// Hook creates a hook middleware.
func Hook(fn HookFunc) Middleware {
	return Middleware{kind: KindHook, hook: fn}
}

// Wrap creates a wrapping middleware.
func Wrap(fn WrapFunc) Middleware {
	return Middleware{kind: KindWrap, wrap: fn}
}

// Kind reports which shape the middleware has.
func (m Middleware) Kind() Kind {
	return m.kind
}

// Invoke runs the middleware with the wrapping signature. A hook runs and then
// continues with next, so both shapes can be called the same way.
func (m Middleware) Invoke(c *Context, next Next) Result {
	if m.kind == KindHook {
		m.hook(c)
		return next()
	}
	return m.wrap(c, next)
}

// ErrUnsupportedMiddleware is returned by From for values that are not a known middleware shape.
var ErrUnsupportedMiddleware = errors.New("unsupported middleware signature")

// From classifies fn by its declared signature. Accepted shapes are:
//
//	Middleware
//	func()                               hook without context
//	func(*Context) / HookFunc            hook
//	func(Next) Result                    wrap without context
//	func(*Context, Next) Result / WrapFunc
//
// Nil functions are rejected.
func From(fn any) (Middleware, error) {
	if isNilFunc(fn) {
		return Middleware{}, errors.Wrap(ErrUnsupportedMiddleware, "nil middleware")
	}
	switch f := fn.(type) {
	case Middleware:
		return f, nil
	case func():
		return Hook(func(*Context) { f() }), nil
	case func(*Context):
		return Hook(f), nil
	case HookFunc:
		return Hook(f), nil
	case func(Next) Result:
		return Wrap(func(_ *Context, next Next) Result { return f(next) }), nil
	case func(*Context, Next) Result:
		return Wrap(f), nil
	case WrapFunc:
		return Wrap(f), nil
	default:
		return Middleware{}, errors.Wrapf(ErrUnsupportedMiddleware, "%T", fn)
	}
}

func isNilFunc(fn any) bool {
	switch f := fn.(type) {
	case nil:
		return true
	case func():
		return f == nil
	case func(*Context):
		return f == nil
	case HookFunc:
		return f == nil
	case func(Next) Result:
		return f == nil
	case func(*Context, Next) Result:
		return f == nil
	case WrapFunc:
		return f == nil
	case Middleware:
		return (f.kind == KindHook && f.hook == nil) || (f.kind == KindWrap && f.wrap == nil)
	}
	return false
}
