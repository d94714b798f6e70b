package common

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/tidwall/gjson"
)

// Params holds the path parameters extracted by the route table.
type Params = httprouter.Params

// Context carries one inbound request through the middleware chain and the handler.
//
// The request data (method, path, headers, body) is captured when the Context is created
// and must be treated as read-only. Values is the request-scoped registry middleware use to
// hand data to later middleware and the handler. A Context is never shared between
// requests and is not safe for concurrent use.
type Context struct {
	w      http.ResponseWriter
	r      *http.Request
	body   []byte
	route  string
	params Params
	values *Values
	start  time.Time
}

// NewContext creates the per-request context. route is the matched route pattern, or
// the empty string when no route matched.
func NewContext(w http.ResponseWriter, r *http.Request, body []byte, route string, params Params) *Context {
	return &Context{
		w:      w,
		r:      r,
		body:   body,
		route:  route,
		params: params,
		values: NewValues(),
		start:  time.Now(),
	}
}

// Method returns the request method.
func (c *Context) Method() string {
	return c.r.Method
}

// Path returns the request path.
func (c *Context) Path() string {
	return c.r.URL.Path
}

// Header returns the request headers.
func (c *Context) Header() http.Header {
	return c.r.Header
}

// Body returns the raw request body.
func (c *Context) Body() []byte {
	return c.body
}

// BodyField looks up a value in a JSON request body using gjson path syntax
// (e.g. "user.name", "items.0.id").
func (c *Context) BodyField(path string) gjson.Result {
	return gjson.GetBytes(c.body, path)
}

// Route returns the matched route pattern, or "" when the request matched no route.
func (c *Context) Route() string {
	return c.route
}

// Param returns the value of the named path parameter.
func (c *Context) Param(name string) string {
	return c.params.ByName(name)
}

// Query returns the first value of the named query parameter.
func (c *Context) Query(name string) string {
	return c.r.URL.Query().Get(name)
}

// Values returns the request-scoped registry.
func (c *Context) Values() *Values {
	return c.values
}

// Request returns the underlying *http.Request.
func (c *Context) Request() *http.Request {
	return c.r
}

// ResponseWriter returns the writer for handlers that produce their own output.
// Such handlers must return Written().
func (c *Context) ResponseWriter() http.ResponseWriter {
	return c.w
}

// Context returns the request's context.Context.
func (c *Context) Context() context.Context {
	return c.r.Context()
}

// StartTime returns the time the dispatch cycle started.
func (c *Context) StartTime() time.Time {
	return c.start
}
