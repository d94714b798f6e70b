package middleware

import (
	"strings"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/samber/lo"
)

// Middleware is the tagged hook/wrap variant from the common package.
type Middleware = common.Middleware

// Entry is one registered middleware. An empty Scope makes it global.
type Entry struct {
	Scope      string
	Middleware Middleware
}

// Global reports whether the entry applies to every request.
func (e Entry) Global() bool {
	return e.Scope == ""
}

// Matches reports whether the entry applies to path.
//
// A scope matches the path equal to it and every path below it on a segment
// boundary: "/admin" matches "/admin" and "/admin/users" but not "/administrator".
// A scope ending in "/" matches any path starting with it.
func (e Entry) Matches(path string) bool {
	if e.Scope == "" {
		return true
	}
	if path == e.Scope {
		return true
	}
	if strings.HasSuffix(e.Scope, "/") {
		return strings.HasPrefix(path, e.Scope)
	}
	return strings.HasPrefix(path, e.Scope+"/")
}

// Registry holds middleware in registration order. It is filled at boot and only
// read afterwards, so lookups take no lock.
type Registry struct {
	entries []Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a middleware under scope ("" for global).
func (r *Registry) Register(scope string, mw Middleware) {
	r.entries = append(r.entries, Entry{Scope: scope, Middleware: mw})
}

// Applicable returns the middleware that apply to path, in registration order.
func (r *Registry) Applicable(path string) common.MiddlewareChain {
	return lo.FilterMap(r.entries, func(e Entry, _ int) (Middleware, bool) {
		return e.Middleware, e.Matches(path)
	})
}

// Entries returns a copy of every registered entry.
func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	return len(r.entries)
}
