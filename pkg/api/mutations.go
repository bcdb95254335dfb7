package api

import (
	"encoding/json"

	"github.com/nbd-wtf/go-nostr"
	"github.com/valyala/fasthttp"

	"nostrly/pkg/logger"
	"nostrly/pkg/models"
	"nostrly/pkg/router"
)

// StoreEvent serves POST /v1/events. The body is a single event.
func (s *Server) StoreEvent(ctx *fasthttp.RequestCtx) {
	var ev nostr.Event
	if err := json.Unmarshal(ctx.PostBody(), &ev); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "invalid event json")
		return
	}
	if err := models.Validate(&ev); err != nil {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	s.engine.StoreEvent(ev)
	logger.Debug("api_event_stored", "id", ev.ID, "kind", ev.Kind)
	router.WriteJSONStatus(ctx, fasthttp.StatusAccepted, map[string]string{"id": ev.ID})
}

// EnsureThread serves POST /v1/threads/{root}/ensure?opener=<id>.
func (s *Server) EnsureThread(ctx *fasthttp.RequestCtx) {
	root := router.PathParam(ctx, "root")
	if root == "" {
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, "root missing")
		return
	}
	opener := router.QueryParam(ctx, "opener")
	rctx, cancel := s.requestContext()
	defer cancel()

	router.WriteJSONStatus(ctx, fasthttp.StatusOK, normalize(s.engine.EnsureThread(rctx, root, opener)))
}

// normalize keeps items encoding as [] rather than null.
func normalize(td models.ThreadData) models.ThreadData {
	if td.Items == nil {
		td.Items = []nostr.Event{}
	}
	return td
}
