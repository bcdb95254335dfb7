package router

import (
	"strings"

	"github.com/valyala/fasthttp"
)

// Router dispatches fasthttp requests by method and path. Paths may contain
// {name} segments whose values are stored as request user values.
type Router struct {
	routes   map[string][]route
	notFound fasthttp.RequestHandler
}

type route struct {
	segments []segment
	handler  fasthttp.RequestHandler
}

type segment struct {
	name    string
	isParam bool
}

func New() *Router {
	return &Router{routes: make(map[string][]route)}
}

// Handler satisfies the fasthttp.Server handler interface. A path that is
// registered under another method answers 405 with an Allow header.
func (r *Router) Handler(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	path := string(ctx.Path())
	if h, values, ok := r.lookup(method, path); ok {
		for k, v := range values {
			ctx.SetUserValue(k, v)
		}
		h(ctx)
		return
	}
	if allowed := r.allowed(path); len(allowed) > 0 {
		ctx.Response.Header.Set("Allow", strings.Join(allowed, ", "))
		WriteJSONError(ctx, fasthttp.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if r.notFound != nil {
		r.notFound(ctx)
		return
	}
	WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
}

func (r *Router) GET(path string, h fasthttp.RequestHandler) {
	r.add(fasthttp.MethodGet, path, h)
}

func (r *Router) POST(path string, h fasthttp.RequestHandler) {
	r.add(fasthttp.MethodPost, path, h)
}

func (r *Router) DELETE(path string, h fasthttp.RequestHandler) {
	r.add(fasthttp.MethodDelete, path, h)
}

// NotFound registers a handler for unmatched routes.
func (r *Router) NotFound(h fasthttp.RequestHandler) {
	r.notFound = h
}

func (r *Router) add(method, path string, h fasthttp.RequestHandler) {
	r.routes[method] = append(r.routes[method], route{segments: parse(path), handler: h})
}

func (r *Router) lookup(method, path string) (fasthttp.RequestHandler, map[string]string, bool) {
	for _, rt := range r.routes[method] {
		if values, ok := match(path, rt.segments); ok {
			return rt.handler, values, true
		}
	}
	return nil, nil, false
}

func (r *Router) allowed(path string) []string {
	var out []string
	for _, m := range []string{fasthttp.MethodGet, fasthttp.MethodPost, fasthttp.MethodDelete} {
		if _, _, ok := r.lookup(m, path); ok {
			out = append(out, m)
		}
	}
	return out
}

func parse(path string) []segment {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	segs := make([]segment, len(parts))
	for i, part := range parts {
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") && len(part) > 2 {
			segs[i] = segment{name: part[1 : len(part)-1], isParam: true}
		} else {
			segs[i] = segment{name: part}
		}
	}
	return segs
}

func match(path string, segs []segment) (map[string]string, bool) {
	path = strings.Trim(path, "/")
	var parts []string
	if path != "" {
		parts = strings.Split(path, "/")
	}
	if len(parts) != len(segs) {
		return nil, false
	}
	values := make(map[string]string)
	for i, seg := range segs {
		if seg.isParam {
			if parts[i] == "" {
				return nil, false
			}
			values[seg.name] = parts[i]
			continue
		}
		if seg.name != parts[i] {
			return nil, false
		}
	}
	return values, true
}
