package middleware

import (
	"context"
	"time"

	"broker-rpc/message"
)

// TimeOutMiddleware bounds the context handed to the object. Handlers that
// watch ctx can stop early; nothing is abandoned behind their back, so the
// result is always the handler's own.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (*message.Output, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}
