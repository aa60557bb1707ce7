package server

import (
	"context"
	"errors"
	"testing"

	"broker-rpc/codec"
	"broker-rpc/message"
)

func TestObjectRegistry(t *testing.T) {
	reg := NewObjectRegistry()
	if err := reg.Register(newArith(nil)); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(newArith(nil)); err == nil {
		t.Fatal("expect duplicate registration to fail")
	}
	reg.Register(NewRouter(message.NewObjectID("echo", ""), nil))

	if names := reg.Names(); len(names) != 2 || names[0] != "calculator@1.0" || names[1] != "echo" {
		t.Fatalf("unexpected names %v", names)
	}
	if _, err := reg.Lookup("calculator@1.0"); err != nil {
		t.Fatal(err)
	}
	_, err := reg.Lookup("calculator")
	if !errors.Is(err, message.ErrUnknownObject) || err.Error() != "unknown object 'calculator'" {
		t.Fatalf("expect unknown object error, got %v", err)
	}
}

func TestRouterReturnsTuple(t *testing.T) {
	c := codec.GetCodec(codec.CodecTypeCBOR)
	r := NewRouter(calcID, c).Handle("DivMod", func(ctx context.Context, args *Args) (any, error) {
		var a, b int
		if err := args.Scan(&a, &b); err != nil {
			return nil, err
		}
		return args.Returns(a/b, a%b)
	})

	req := message.NewRequest(calcID, "DivMod")
	req.Arg(c, 7)
	req.Arg(c, 2)

	out, err := r.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	var tuple message.Tuple
	if err := out.Decode(c, &tuple); err != nil {
		t.Fatal(err)
	}
	var q, m int
	if err := tuple.Scan(c, &q, &m); err != nil {
		t.Fatal(err)
	}
	if q != 3 || m != 1 {
		t.Fatalf("expect (3, 1), got (%d, %d)", q, m)
	}
}

func TestRouterUnencodableResult(t *testing.T) {
	r := NewRouter(calcID, codec.GetCodec(codec.CodecTypeJSON)).Handle("Chan", func(ctx context.Context, args *Args) (any, error) {
		return make(chan int), nil
	})
	_, err := r.Dispatch(context.Background(), message.NewRequest(calcID, "Chan"))
	if !errors.Is(err, message.ErrEncoding) {
		t.Fatalf("expect framework encoding error, got %v", err)
	}
}

type greeter struct{ greeting string }

func (g *greeter) Hello(ctx context.Context, args *Args) (any, error) {
	var name string
	if err := args.At(0, &name); err != nil {
		return nil, err
	}
	return g.greeting + " " + name, nil
}

// not routed: wrong signature
func (g *greeter) Reset() {}

func TestNewService(t *testing.T) {
	c := codec.GetCodec(codec.CodecTypeMsgPack)
	r, err := NewService(message.NewObjectID("greeter", ""), c, &greeter{greeting: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if methods := r.Methods(); len(methods) != 1 || methods[0] != "Hello" {
		t.Fatalf("expect only Hello routed, got %v", methods)
	}

	req := message.NewRequest(r.ID(), "Hello")
	req.Arg(c, "world")
	out, err := r.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	var s string
	out.Decode(c, &s)
	if s != "hello world" {
		t.Fatalf("expect 'hello world', got %q", s)
	}

	if _, err := NewService(r.ID(), c, greeter{}); err == nil {
		t.Fatal("expect error for non-pointer receiver")
	}
}
