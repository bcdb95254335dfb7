package api

import (
	"github.com/valyala/fasthttp"

	"nostrly/pkg/router"
)

// GetEvent serves GET /v1/events/{id}.
func (s *Server) GetEvent(ctx *fasthttp.RequestCtx) {
	id := router.PathParam(ctx, "id")
	if id == "" {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "id missing")
		return
	}
	rctx, cancel := s.requestContext()
	defer cancel()

	ev, ok := s.engine.GetEvent(rctx, id)
	if !ok {
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, "event not found")
		return
	}
	router.WriteJSONStatus(ctx, fasthttp.StatusOK, ev)
}

// GetThread serves GET /v1/threads/{root}. An unknown root yields an empty
// item list rather than 404.
func (s *Server) GetThread(ctx *fasthttp.RequestCtx) {
	root := router.PathParam(ctx, "root")
	if root == "" {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "root missing")
		return
	}
	rctx, cancel := s.requestContext()
	defer cancel()

	router.WriteJSONStatus(ctx, fasthttp.StatusOK, normalize(s.engine.GetThread(rctx, root)))
}
