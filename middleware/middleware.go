// Package middleware wraps object dispatch in an onion of cross-cutting steps.
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//	A.before → B.before → C.before → handler → C.after → B.after → A.after
//
// A returned *message.Output is the application result. A returned error is a
// framework failure and ends up in the outer Response error.
package middleware

import (
	"context"

	"broker-rpc/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) (*message.Output, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
