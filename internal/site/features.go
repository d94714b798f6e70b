package site

import "github.com/Suhaibinator/SDispatch/pkg/codec"

// Feature is one entry of the feature list shown on the landing page and served by /api/features.
type Feature struct {
	Name        string
	Icon        string
	Description string
}

// Features lists what the framework offers.
var Features = []Feature{
	{Name: "Route Table", Icon: "🧭", Description: "Method and path bindings with exact and parameterized matching."},
	{Name: "Middleware Pipeline", Icon: "🔗", Description: "Global and path-scoped middleware composed in registration order."},
	{Name: "Short-Circuit Guards", Icon: "🛡️", Description: "Wrapping middleware can answer a request without reaching the handler."},
	{Name: "Lifecycle Hooks", Icon: "🪝", Description: "Side-effect hooks that run once for every request."},
	{Name: "Request Registry", Icon: "🗂️", Description: "A per-request key-value store for passing data between middleware."},
	{Name: "Result Inference", Icon: "✨", Description: "Return a mapping and it is encoded as JSON with the right status."},
	{Name: "Fault Containment", Icon: "🧯", Description: "Panics and errors become clean 500 responses and never crash the server."},
	{Name: "Observability", Icon: "📈", Description: "Structured logs, trace IDs and Prometheus metrics out of the box."},
}

func (f Feature) toMap() *codec.Map {
	return codec.NewMap(
		"name", f.Name,
		"icon", f.Icon,
		"description", f.Description,
	)
}
