package middleware

import (
	"context"
	"errors"
	"fmt"

	"broker-rpc/message"

	"go.uber.org/zap"
)

var ErrPanic = errors.New("handler panicked")

// RecoverMiddleware turns a panicking handler into a framework error so the
// worker still replies and returns to the pool.
func RecoverMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (out *message.Output, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("recovered from handler panic",
						zap.String("id", req.ID),
						zap.Stringer("object", req.Object),
						zap.String("method", req.Method),
						zap.Any("panic", r),
						zap.Stack("stack"))
					out, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
				}
			}()
			return next(ctx, req)
		}
	}
}
