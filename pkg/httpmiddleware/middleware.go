// Package httpmiddleware provides net/http middleware used by the settlement
// server: panic recovery, CORS, rate limiting, request IDs, and request
// logging via zap loggers carried in the request context.
package httpmiddleware

import "net/http"

// Middleware wraps an http.Handler with additional behaviour.
type Middleware func(http.Handler) http.Handler

// Wrap applies the given middlewares to handler. The first middleware in the
// list becomes the outermost one, so requests pass through them in the order
// they are listed.
func Wrap(handler http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	return handler
}
