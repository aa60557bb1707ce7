package server

import (
	"context"

	"broker-rpc/codec"
	"broker-rpc/message"
)

// MethodFunc handles one method. The returned value is encoded into
// Output.Data; a returned error becomes Output.Error.
type MethodFunc func(ctx context.Context, args *Args) (any, error)

// Args gives a method positional access to the request inputs.
type Args struct {
	codec  codec.Codec
	inputs message.Tuple
}

func (a *Args) Len() int {
	return a.inputs.Len()
}

// At decodes input i into v.
func (a *Args) At(i int, v any) error {
	return a.inputs.At(a.codec, i, v)
}

// Scan decodes the first len(dst) inputs in order.
func (a *Args) Scan(dst ...any) error {
	return a.inputs.Scan(a.codec, dst...)
}

// Returns packs several return values into a Tuple.
func (a *Args) Returns(vals ...any) (message.Tuple, error) {
	return message.NewTuple(a.codec, vals...)
}

// Router is an Object that routes on the request method name.
type Router struct {
	id      message.ObjectID
	codec   codec.Codec
	methods map[string]MethodFunc
}

func NewRouter(id message.ObjectID, c codec.Codec) *Router {
	if c == nil {
		c = codec.GetCodec(codec.CodecTypeMsgPack)
	}
	return &Router{
		id:      id,
		codec:   c,
		methods: make(map[string]MethodFunc),
	}
}

// Handle registers fn under method, replacing any previous handler.
func (r *Router) Handle(method string, fn MethodFunc) *Router {
	r.methods[method] = fn
	return r
}

func (r *Router) ID() message.ObjectID {
	return r.id
}

func (r *Router) Methods() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	return names
}

func (r *Router) Dispatch(ctx context.Context, req *message.Request) (*message.Output, error) {
	fn, ok := r.methods[req.Method]
	if !ok {
		return nil, message.UnknownMethod(req.Method)
	}
	v, err := fn(ctx, &Args{codec: r.codec, inputs: req.Inputs})
	return message.OutputOf(r.codec, v, err)
}
