package router

import (
	"net/http"
	"sort"
	"strings"

	"github.com/Suhaibinator/SDispatch/pkg/common"
	"github.com/julienschmidt/httprouter"
	"github.com/samber/lo"
)

// RouteInfo describes one registered binding.
type RouteInfo struct {
	Method string
	Path   string
}

// String returns "METHOD /path".
func (ri RouteInfo) String() string {
	return ri.Method + " " + ri.Path
}

type binding struct {
	method  string
	path    string
	handler common.Handler
}

// Table maps a method and path to a handler.
//
// Static paths are matched with an exact lookup. Paths with ":name" or "*name" segments
// are matched by httprouter; static paths take precedence over parameterized ones.
// The table is filled at boot and only read afterwards, so lookups take no lock.
type Table struct {
	bindings map[string]*binding
	static   map[string]*binding
	patterns *httprouter.Router
}

// NewTable creates an empty route table.
func NewTable() *Table {
	return &Table{
		bindings: make(map[string]*binding),
		static:   make(map[string]*binding),
		patterns: httprouter.New(),
	}
}

func bindingKey(method, path string) string {
	return method + " " + path
}

func isPattern(path string) bool {
	return strings.ContainsAny(path, ":*")
}

// Handle stores handler for method and path. Registering the same pair again replaces
// the earlier handler. Conflicting parameter patterns (e.g. "/u/:id" and "/u/:name")
// panic, as they do in httprouter.
func (t *Table) Handle(method, path string, handler common.Handler) {
	method = strings.ToUpper(method)
	key := bindingKey(method, path)

	if b, ok := t.bindings[key]; ok {
		b.handler = handler
		return
	}

	b := &binding{method: method, path: path, handler: handler}
	t.bindings[key] = b

	if !isPattern(path) {
		t.static[key] = b
		return
	}
	t.patterns.Handle(method, path, func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		if p, ok := w.(*probe); ok {
			p.found = b
		}
	})
}

// probe is handed to the httprouter handle of a pattern binding to learn which
// binding a lookup resolved to.
type probe struct {
	http.ResponseWriter
	found *binding
}

// Resolve returns the handler registered for method and path, the matched route
// pattern and any path parameters. It returns ErrRouteNotFound when nothing matches.
func (t *Table) Resolve(method, path string) (common.Handler, string, common.Params, error) {
	method = strings.ToUpper(method)

	if b, ok := t.static[bindingKey(method, path)]; ok {
		return b.handler, b.path, nil, nil
	}

	handle, params, _ := t.patterns.Lookup(method, path)
	if handle != nil {
		p := &probe{}
		handle(p, nil, params)
		if p.found != nil {
			return p.found.handler, p.found.path, params, nil
		}
	}
	return nil, "", nil, ErrRouteNotFound
}

// Routes lists every binding, sorted by path and then method.
func (t *Table) Routes() []RouteInfo {
	routes := lo.MapToSlice(t.bindings, func(_ string, b *binding) RouteInfo {
		return RouteInfo{Method: b.method, Path: b.path}
	})
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})
	return routes
}

// Len returns the number of bindings.
func (t *Table) Len() int {
	return len(t.bindings)
}
