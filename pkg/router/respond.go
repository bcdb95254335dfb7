package router

import (
	"encoding/json"
	"fmt"

	"github.com/valyala/fasthttp"
)

// WriteJSON writes data as a JSON response with the current status code.
func WriteJSON(ctx *fasthttp.RequestCtx, data any) error {
	ctx.SetContentType("application/json")
	return json.NewEncoder(ctx).Encode(data)
}

// WriteJSONStatus sets status and writes data as JSON.
func WriteJSONStatus(ctx *fasthttp.RequestCtx, status int, data any) {
	ctx.SetStatusCode(status)
	_ = WriteJSON(ctx, data)
}

// WriteJSONError writes {"error": message} with the given status.
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	WriteJSONStatus(ctx, status, map[string]string{"error": message})
}

// PathParam returns the value captured for a {param} segment.
func PathParam(ctx *fasthttp.RequestCtx, param string) string {
	if v := ctx.UserValue(param); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

// QueryParam returns a query string value, or "" when absent.
func QueryParam(ctx *fasthttp.RequestCtx, name string) string {
	return string(ctx.QueryArgs().Peek(name))
}
