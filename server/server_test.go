package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"broker-rpc/codec"
	"broker-rpc/message"
	"broker-rpc/middleware"
	"broker-rpc/protocol"
	"broker-rpc/registry"
	"broker-rpc/transport"
)

var calcID = message.NewObjectID("calculator", "1.0")

func newArith(c codec.Codec) *Router {
	return NewRouter(calcID, c).
		Handle("Add", func(ctx context.Context, args *Args) (any, error) {
			var a, b float64
			if err := args.Scan(&a, &b); err != nil {
				return nil, err
			}
			return a + b, nil
		}).
		Handle("Divide", func(ctx context.Context, args *Args) (any, error) {
			var a, b float64
			if err := args.Scan(&a, &b); err != nil {
				return nil, err
			}
			if b == 0 {
				return nil, errors.New("divide by zero")
			}
			return a / b, nil
		}).
		Handle("Panic", func(ctx context.Context, args *Args) (any, error) {
			panic("boom")
		})
}

type testServer struct {
	svr    *Server
	broker *transport.MemoryBroker
	cancel context.CancelFunc
	done   chan error
}

func startServer(t *testing.T, workers int, setup func(*Server), objs ...Object) *testServer {
	t.Helper()
	b := transport.NewMemoryBroker()
	svr, err := NewServer("srv", b, workers)
	if err != nil {
		t.Fatal(err)
	}
	for _, obj := range objs {
		if err := svr.Register(obj); err != nil {
			t.Fatal(err)
		}
	}
	if setup != nil {
		setup(svr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{svr: svr, broker: b, cancel: cancel, done: make(chan error, 1)}
	go func() { ts.done <- svr.Run(ctx) }()
	eventually(t, svr.running.Load)

	t.Cleanup(func() { ts.stop(t) })
	return ts
}

func (ts *testServer) stop(t *testing.T) {
	ts.cancel()
	select {
	case err := <-ts.done:
		if err != nil {
			t.Errorf("expect Run to return nil, got %v", err)
		}
		ts.done <- nil // later stops return immediately
	case <-time.After(5 * time.Second):
		t.Error("Run did not return after cancel")
	}
}

// send pushes req to the calculator queue without waiting for a reply.
func (ts *testServer) send(t *testing.T, req *message.Request) {
	t.Helper()
	data, err := protocol.EncodeRequest(ts.svr.codec, req)
	if err != nil {
		t.Fatal(err)
	}
	queue := protocol.RequestQueue("srv", calcID)
	if err := ts.broker.Push(context.Background(), queue, data); err != nil {
		t.Fatal(err)
	}
}

func (ts *testServer) call(t *testing.T, req *message.Request) *message.Response {
	t.Helper()
	ts.send(t, req)
	d, ok, err := ts.broker.PopAny(context.Background(), []string{req.ReplyTo}, 2*time.Second)
	if err != nil || !ok {
		t.Fatalf("expect reply on %s, got ok=%v err=%v", req.ReplyTo, ok, err)
	}
	resp, err := protocol.DecodeResponse(ts.svr.codec, d.Payload, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func newCall(t *testing.T, object message.ObjectID, method string, args ...any) *message.Request {
	t.Helper()
	req := message.NewRequest(object, method)
	for _, a := range args {
		if err := req.Arg(codec.GetCodec(codec.CodecTypeMsgPack), a); err != nil {
			t.Fatal(err)
		}
	}
	return req
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewServerInvalidWorkers(t *testing.T) {
	if _, err := NewServer("srv", transport.NewMemoryBroker(), 0); err == nil {
		t.Fatal("expect error for zero workers")
	}
}

func TestRunWithoutObjects(t *testing.T) {
	svr, _ := NewServer("srv", transport.NewMemoryBroker(), 1)
	if err := svr.Run(context.Background()); !errors.Is(err, ErrNoObjects) {
		t.Fatalf("expect ErrNoObjects, got %v", err)
	}
}

func TestServerAdd(t *testing.T) {
	ts := startServer(t, 2, nil, newArith(nil))

	resp := ts.call(t, newCall(t, calcID, "Add", 1.0, 2.0))
	if resp.Error != nil {
		t.Fatalf("expect no outer error, got %s", *resp.Error)
	}
	var sum float64
	if err := resp.Output.Decode(ts.svr.codec, &sum); err != nil {
		t.Fatal(err)
	}
	if sum != 3.0 {
		t.Fatalf("expect 3.0, got %v", sum)
	}
}

func TestServerHandlerError(t *testing.T) {
	ts := startServer(t, 1, nil, newArith(nil))

	resp := ts.call(t, newCall(t, calcID, "Divide", 1.0, 0.0))
	if resp.Error != nil {
		t.Fatalf("expect no outer error, got %s", *resp.Error)
	}
	if resp.Output.Error == nil || resp.Output.Error.Message != "divide by zero" {
		t.Fatalf("expect output error 'divide by zero', got %+v", resp.Output.Error)
	}
	if len(resp.Output.Data) != 0 {
		t.Fatalf("expect empty data with output error, got %v", resp.Output.Data)
	}
}

func TestServerUnknownObject(t *testing.T) {
	ts := startServer(t, 1, nil, newArith(nil))

	// routed to the calculator queue but naming another object
	resp := ts.call(t, newCall(t, message.NewObjectID("nope", ""), "Add", 1.0, 2.0))
	if resp.Error == nil || *resp.Error != "unknown object 'nope'" {
		t.Fatalf("expect unknown object error, got %v", resp.Error)
	}
	if resp.Output.Error != nil || len(resp.Output.Data) != 0 {
		t.Fatalf("expect empty output, got %+v", resp.Output)
	}
}

func TestServerUnknownMethod(t *testing.T) {
	ts := startServer(t, 1, nil, newArith(nil))

	resp := ts.call(t, newCall(t, calcID, "Mul", 1.0, 2.0))
	if resp.Error == nil || *resp.Error != "unknown method 'Mul'" {
		t.Fatalf("expect unknown method error, got %v", resp.Error)
	}
}

func TestServerBadArgumentsAreCallErrors(t *testing.T) {
	ts := startServer(t, 1, nil, newArith(nil))

	resp := ts.call(t, newCall(t, calcID, "Add", 1.0))
	if resp.Error != nil {
		t.Fatalf("expect no outer error, got %s", *resp.Error)
	}
	if resp.Output.Error == nil || resp.Output.Error.Message != "no argument found at index 1" {
		t.Fatalf("expect argument out of range, got %+v", resp.Output.Error)
	}

	resp = ts.call(t, newCall(t, calcID, "Add", "one", 2.0))
	if resp.Output.Error == nil || !strings.HasPrefix(resp.Output.Error.Message, "encoding error: ") {
		t.Fatalf("expect encoding error, got %+v", resp.Output.Error)
	}
}

func TestServerRecoversPanic(t *testing.T) {
	ts := startServer(t, 1, nil, newArith(nil))

	resp := ts.call(t, newCall(t, calcID, "Panic"))
	if resp.Error == nil || !strings.Contains(*resp.Error, "handler panicked") {
		t.Fatalf("expect panic as outer error, got %v", resp.Error)
	}

	// the unit is back in the pool
	resp = ts.call(t, newCall(t, calcID, "Add", 2.0, 2.0))
	if resp.Error != nil {
		t.Fatalf("expect server to keep serving, got %s", *resp.Error)
	}
}

func TestServerReplyTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ts := startServer(t, 1, nil, newArith(nil))
	ts.broker.SetClock(func() time.Time { return now })

	req := newCall(t, calcID, "Add", 1.0, 2.0)
	ts.send(t, req)

	eventually(t, func() bool {
		_, ok := ts.broker.TTL(req.ReplyTo)
		return ok
	})
	if ttl, _ := ts.broker.TTL(req.ReplyTo); ttl != 300*time.Second {
		t.Fatalf("expect reply ttl 300s, got %s", ttl)
	}
}

func TestServerDropsUndecodable(t *testing.T) {
	ts := startServer(t, 1, nil, newArith(nil))

	queue := protocol.RequestQueue("srv", calcID)
	ts.broker.Push(context.Background(), queue, []byte{0xc1})

	resp := ts.call(t, newCall(t, calcID, "Add", 1.0, 1.0))
	if resp.Error != nil {
		t.Fatalf("expect valid request served after a bad one, got %s", *resp.Error)
	}
	if ts.broker.Len(queue) != 0 {
		t.Fatal("expect undecodable payload consumed")
	}
}

func TestServerBackpressure(t *testing.T) {
	started := make(chan struct{}, 8)
	release := make(chan struct{})
	blocking := NewRouter(calcID, nil).Handle("Block", func(ctx context.Context, args *Args) (any, error) {
		started <- struct{}{}
		<-release
		return true, nil
	})
	ts := startServer(t, 2, nil, blocking)
	defer close(release)

	queue := protocol.RequestQueue("srv", calcID)
	for i := 0; i < 5; i++ {
		ts.send(t, newCall(t, calcID, "Block"))
	}

	<-started
	<-started
	time.Sleep(100 * time.Millisecond)
	if n := ts.broker.Len(queue); n != 3 {
		t.Fatalf("expect 3 requests left with 2 busy units, got %d", n)
	}

	release <- struct{}{}
	<-started
	time.Sleep(100 * time.Millisecond)
	if n := ts.broker.Len(queue); n != 2 {
		t.Fatalf("expect exactly one more pop after one unit freed, got %d left", n)
	}
}

func TestServerMiddleware(t *testing.T) {
	ts := startServer(t, 1, func(svr *Server) {
		svr.Use(middleware.RateLimitMiddleware(0.001, 1))
	}, newArith(nil))

	if resp := ts.call(t, newCall(t, calcID, "Add", 1.0, 2.0)); resp.Error != nil {
		t.Fatalf("expect first call allowed, got %s", *resp.Error)
	}
	resp := ts.call(t, newCall(t, calcID, "Add", 1.0, 2.0))
	if resp.Error == nil || *resp.Error != "rate limit exceeded" {
		t.Fatalf("expect rate limit outer error, got %v", resp.Error)
	}
}

func TestRegisterAfterRun(t *testing.T) {
	ts := startServer(t, 1, nil, newArith(nil))
	other := NewRouter(message.NewObjectID("other", ""), nil)
	if err := ts.svr.Register(other); !errors.Is(err, ErrServerRunning) {
		t.Fatalf("expect ErrServerRunning, got %v", err)
	}
}

func TestServerDiscovery(t *testing.T) {
	reg := registry.NewStaticRegistry()
	ts := startServer(t, 3, func(svr *Server) {
		svr.SetRegistry(reg, 10)
	}, newArith(nil))

	instances, _ := reg.Discover(context.Background(), "calculator@1.0")
	if len(instances) != 1 {
		t.Fatalf("expect 1 instance, got %d", len(instances))
	}
	if inst := instances[0]; inst.Module != "srv" || inst.Weight != 3 || inst.Version != "1.0" {
		t.Fatalf("unexpected instance %+v", inst)
	}

	ts.stop(t)
	instances, _ = reg.Discover(context.Background(), "calculator@1.0")
	if len(instances) != 0 {
		t.Fatalf("expect deregistration on shutdown, got %+v", instances)
	}
}

// cancelOnPopBroker cancels the server context from inside a pop and only then
// returns the queued delivery.
type cancelOnPopBroker struct {
	*transport.MemoryBroker
	cancel context.CancelFunc
	once   sync.Once
}

func (b *cancelOnPopBroker) PopAny(ctx context.Context, queues []string, timeout time.Duration) (transport.Delivery, bool, error) {
	d, ok, err := b.MemoryBroker.PopAny(ctx, queues, timeout)
	if ok {
		b.once.Do(func() {
			b.cancel()
			time.Sleep(50 * time.Millisecond)
		})
	}
	return d, ok, err
}

func TestServerRunsRequestPoppedDuringShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &cancelOnPopBroker{MemoryBroker: transport.NewMemoryBroker(), cancel: cancel}

	var ran atomic.Bool
	obj := NewRouter(calcID, nil).Handle("Add", func(ctx context.Context, args *Args) (any, error) {
		ran.Store(true)
		return 3.0, nil
	})
	svr, _ := NewServer("srv", b, 1)
	svr.Register(obj)

	req := newCall(t, calcID, "Add", 1.0, 2.0)
	data, _ := protocol.EncodeRequest(svr.codec, req)
	b.MemoryBroker.Push(context.Background(), protocol.RequestQueue("srv", calcID), data)

	done := make(chan error, 1)
	go func() { done <- svr.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if !ran.Load() {
		t.Fatal("expect handler to run for a request popped during shutdown")
	}
	if n := b.Len(req.ReplyTo); n != 1 {
		t.Fatalf("expect 1 reply queued before Run returned, got %d", n)
	}
}

// failingRegistry rejects every registration.
type failingRegistry struct {
	*registry.StaticRegistry
}

func (failingRegistry) Register(context.Context, string, registry.Instance, int64) error {
	return errors.New("etcd unavailable")
}

func TestRunRecoversFromRegistryFailure(t *testing.T) {
	svr, _ := NewServer("srv", transport.NewMemoryBroker(), 1)
	svr.Register(newArith(nil))
	svr.SetRegistry(failingRegistry{registry.NewStaticRegistry()}, 10)

	if err := svr.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "etcd unavailable") {
		t.Fatalf("expect registration error, got %v", err)
	}
	other := NewRouter(message.NewObjectID("other", ""), nil)
	if err := svr.Register(other); err != nil {
		t.Fatalf("expect Register to work after a failed Run, got %v", err)
	}

	svr.SetRegistry(nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svr.Run(ctx) }()
	eventually(t, svr.running.Load)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expect retried Run to serve and stop cleanly, got %v", err)
	}
}
