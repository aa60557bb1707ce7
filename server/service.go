package server

import (
	"context"
	"fmt"
	"reflect"

	"broker-rpc/codec"
	"broker-rpc/message"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	argsType    = reflect.TypeOf((*Args)(nil))
	anyType     = reflect.TypeOf((*any)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// NewService builds a Router from the exported methods of rcvr that look like
//
//	func (s *T) Name(ctx context.Context, args *server.Args) (any, error)
//
// Each such method is routed under its Go name. Other methods are ignored.
func NewService(id message.ObjectID, c codec.Codec, rcvr any) (*Router, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("rpc: rcvr must be a pointer, got %T", rcvr)
	}
	val := reflect.ValueOf(rcvr)

	router := NewRouter(id, c)
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if !isMethodFunc(method.Type) {
			continue
		}
		fn := val.Method(i).Interface().(func(context.Context, *Args) (any, error))
		router.Handle(method.Name, fn)
	}
	if len(router.methods) == 0 {
		return nil, fmt.Errorf("rpc: %s has no exported method of the form func(context.Context, *server.Args) (any, error)", typ)
	}
	return router, nil
}

// isMethodFunc checks (receiver, ctx, *Args) → (any, error).
func isMethodFunc(t reflect.Type) bool {
	return t.NumIn() == 3 && t.NumOut() == 2 &&
		t.In(1) == contextType && t.In(2) == argsType &&
		t.Out(0) == anyType && t.Out(1) == errorType
}
