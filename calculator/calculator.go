// Package calculator is a small demo object, calculator@1.0, together with a
// typed client stub.
package calculator

import (
	"context"
	"errors"

	"broker-rpc/client"
	"broker-rpc/codec"
	"broker-rpc/message"
	"broker-rpc/server"
)

var ID = message.NewObjectID("calculator", "1.0")

var ErrDivideByZero = errors.New("divide by zero")

// Calculator implements the calculator methods. Each exported method is routed
// under its own name.
type Calculator struct{}

// New returns the calculator object routed with codec c.
func New(c codec.Codec) (*server.Router, error) {
	return server.NewService(ID, c, &Calculator{})
}

func (*Calculator) Add(ctx context.Context, args *server.Args) (any, error) {
	var a, b float64
	if err := args.Scan(&a, &b); err != nil {
		return nil, err
	}
	return a + b, nil
}

func (*Calculator) Divide(ctx context.Context, args *server.Args) (any, error) {
	var a, b float64
	if err := args.Scan(&a, &b); err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, ErrDivideByZero
	}
	return a / b, nil
}

func (*Calculator) Hello(ctx context.Context, args *server.Args) (any, error) {
	var name string
	if err := args.At(0, &name); err != nil {
		return nil, err
	}
	return "hello " + name, nil
}

// Stub calls a calculator hosted by module. An empty module resolves through
// the client's registry.
type Stub struct {
	client *client.Client
	module string
}

func NewStub(c *client.Client, module string) *Stub {
	return &Stub{client: c, module: module}
}

func (s *Stub) Add(ctx context.Context, a, b float64) (float64, error) {
	return call[float64](ctx, s, "Add", a, b)
}

func (s *Stub) Divide(ctx context.Context, a, b float64) (float64, error) {
	return call[float64](ctx, s, "Divide", a, b)
}

func (s *Stub) Hello(ctx context.Context, name string) (string, error) {
	return call[string](ctx, s, "Hello", name)
}

func call[T any](ctx context.Context, s *Stub, method string, args ...any) (T, error) {
	module := s.module
	if module == "" {
		var err error
		if module, err = s.client.Resolve(ctx, ID); err != nil {
			var zero T
			return zero, err
		}
	}
	return client.CallFor[T](ctx, s.client, module, ID, method, args...)
}
