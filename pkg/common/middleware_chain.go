package common

// MiddlewareChain represents a chain of middleware
type MiddlewareChain []Middleware

// NewMiddlewareChain creates a new middleware chain
func NewMiddlewareChain(middlewares ...Middleware) MiddlewareChain {
	return middlewares
}

// Append adds middleware to the end of the chain
func (c MiddlewareChain) Append(middlewares ...Middleware) MiddlewareChain {
	result := make(MiddlewareChain, 0, len(c)+len(middlewares))
	result = append(result, c...)
	return append(result, middlewares...)
}

// Prepend adds middleware to the beginning of the chain
func (c MiddlewareChain) Prepend(middlewares ...Middleware) MiddlewareChain {
	result := make(MiddlewareChain, len(middlewares)+len(c))
	copy(result, middlewares)
	copy(result[len(middlewares):], c)
	return result
}

// Then composes the chain around h.
//
// Hooks run first, in registration order, before any wrapping middleware. Wrapping
// middleware are then nested so that the first one registered is the outermost. Each
// continuation runs at most once: calling next a second time returns the first result
// without executing the inner chain again.
func (c MiddlewareChain) Then(h Handler) Handler {
	var hooks []HookFunc
	for i := len(c) - 1; i >= 0; i-- {
		switch c[i].kind {
		case KindHook:
			hooks = append(hooks, c[i].hook)
		case KindWrap:
			h = around(c[i].wrap, h)
		}
	}

	if len(hooks) == 0 {
		return h
	}

	inner := h
	return func(ctx *Context) Result {
		// hooks were collected in reverse
		for i := len(hooks) - 1; i >= 0; i-- {
			hooks[i](ctx)
		}
		return inner(ctx)
	}
}

func around(wrap WrapFunc, inner Handler) Handler {
	return func(ctx *Context) Result {
		var (
			called bool
			res    Result
		)
		next := func() Result {
			if !called {
				called = true
				res = inner(ctx)
			}
			return res
		}
		return wrap(ctx, next)
	}
}
