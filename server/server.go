// Package server hosts objects behind broker queues.
//
// Request processing pipeline:
//
//	dispatch loop: Pool.Get (wait for an idle unit)
//	  → PopAny(module.object..., 10s) → DecodeRequest (undecodable: log, drop, keep slot)
//	  → Slot.Send(req)
//	unit: Middleware Chain → ObjectRegistry.Lookup → Object.Dispatch
//	  → NewResponse → EncodeResponse → RPUSH reply_to → EXPIRE 300s → re-announce
//
// The loop never pops while it holds no slot, so a server never takes more
// requests off the broker than it has idle units for.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"broker-rpc/codec"
	"broker-rpc/message"
	"broker-rpc/middleware"
	"broker-rpc/protocol"
	"broker-rpc/registry"
	"broker-rpc/transport"
	"broker-rpc/worker"

	"go.uber.org/zap"
)

var (
	ErrServerRunning = errors.New("server already running")
	ErrNoObjects     = errors.New("no objects registered")
)

// Server is the RPC server that registers objects and handles incoming requests.
type Server struct {
	module      string
	broker      transport.Broker
	workers     int
	codec       codec.Codec
	logger      *zap.Logger
	objects     *ObjectRegistry
	middlewares []middleware.Middleware // applied in order, after panic recovery
	handler     middleware.HandlerFunc  // middleware(middleware(...(dispatch)))
	registry    registry.Registry       // nil if not using discovery
	registryTTL int64
	running     atomic.Bool

	pullTimeout time.Duration
	backoff     time.Duration
}

// NewServer creates a server for module that executes at most workers
// requests at a time.
func NewServer(module string, broker transport.Broker, workers int) (*Server, error) {
	if workers < 1 {
		return nil, fmt.Errorf("server: workers must be at least 1, got %d", workers)
	}
	if module == "" {
		return nil, errors.New("server: module name is empty")
	}
	return &Server{
		module:      module,
		broker:      broker,
		workers:     workers,
		codec:       codec.GetCodec(codec.CodecTypeMsgPack),
		logger:      zap.NewNop(),
		objects:     NewObjectRegistry(),
		registryTTL: 10,
		pullTimeout: protocol.PullTimeout,
		backoff:     protocol.RetryBackoff,
	}, nil
}

func (svr *Server) SetLogger(logger *zap.Logger) {
	svr.logger = logger.With(zap.String("module", svr.module))
}

// SetCodec selects the envelope codec. Clients must use the same one.
func (svr *Server) SetCodec(c codec.Codec) {
	svr.codec = c
}

// SetRegistry enables discovery: every object is registered under a lease of
// ttl seconds while Run is active.
func (svr *Server) SetRegistry(reg registry.Registry, ttl int64) {
	svr.registry = reg
	if ttl > 0 {
		svr.registryTTL = ttl
	}
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Register adds obj. It fails once the server runs.
func (svr *Server) Register(obj Object) error {
	if svr.running.Load() {
		return ErrServerRunning
	}
	return svr.objects.Register(obj)
}

func (svr *Server) Module() string {
	return svr.module
}

// Queues returns the broker queues this server consumes.
func (svr *Server) Queues() []string {
	names := svr.objects.Names()
	queues := make([]string, len(names))
	for i, name := range names {
		queues[i] = protocol.QueueFor(svr.module, name)
	}
	return queues
}

// Run consumes requests until ctx ends, then deregisters from discovery and
// waits for in-flight requests before returning.
func (svr *Server) Run(ctx context.Context) error {
	if svr.objects.Len() == 0 {
		return ErrNoObjects
	}
	if !svr.running.CompareAndSwap(false, true) {
		return ErrServerRunning
	}

	// Build the middleware chain once at startup (not per-request)
	mws := append([]middleware.Middleware{middleware.RecoverMiddleware(svr.logger)}, svr.middlewares...)
	svr.handler = middleware.Chain(mws...)(svr.dispatch)

	tr := transport.New(svr.broker, svr.logger)
	tr.SetBackoff(svr.backoff)

	pool, err := worker.NewPool(svr.workers, func(ctx context.Context, req *message.Request) {
		svr.handle(ctx, tr, req)
	})
	if err != nil {
		return err
	}

	if err := svr.announce(ctx); err != nil {
		svr.withdraw(ctx)
		svr.running.Store(false)
		return err
	}

	queues := svr.Queues()
	svr.logger.Info("server started", zap.Strings("queues", queues), zap.Int("workers", svr.workers))

	pool.Start(ctx)
	svr.loop(ctx, tr, pool, queues)

	// Deregister first so clients stop resolving to this module
	svr.withdraw(ctx)
	pool.Wait()

	svr.logger.Info("server stopped")
	return nil
}

// loop is the single dispatch loop: slot first, then pop. A payload popped
// while shutting down is still handed to the unit, which runs and answers it.
func (svr *Server) loop(ctx context.Context, tr *transport.Transport, pool *worker.Pool[*message.Request], queues []string) {
	for {
		slot, err := pool.Get(ctx)
		if err != nil {
			return
		}

		for {
			d, ok, err := tr.PopAny(ctx, queues, svr.pullTimeout)
			if err != nil {
				slot.Release()
				return
			}
			if !ok {
				if ctx.Err() != nil {
					slot.Release()
					return
				}
				continue
			}

			req, err := protocol.DecodeRequest(svr.codec, d.Payload)
			if err != nil {
				// no redelivery, the message is gone
				svr.logger.Warn("dropping undecodable request",
					zap.String("queue", d.Queue), zap.Int("size", len(d.Payload)), zap.Error(err))
				continue
			}
			slot.Send(req)
			break
		}
	}
}

// handle runs on a unit: dispatch, then always attempt a reply.
func (svr *Server) handle(ctx context.Context, tr *transport.Transport, req *message.Request) {
	out, err := svr.handler(ctx, req)
	resp := message.NewResponse(req.ID, out, err)

	payload, err := protocol.EncodeResponse(svr.codec, resp)
	if err != nil {
		svr.logger.Error("failed to encode response", zap.String("id", req.ID), zap.Error(err))
		return
	}
	if err := tr.Reply(ctx, req.ReplyTo, payload, protocol.ReplyTTL); err != nil {
		svr.logger.Error("failed to push response", zap.String("id", req.ID), zap.String("reply_to", req.ReplyTo), zap.Error(err))
	}
}

// dispatch is the innermost handler of the middleware chain.
func (svr *Server) dispatch(ctx context.Context, req *message.Request) (*message.Output, error) {
	obj, err := svr.objects.Lookup(req.Object.String())
	if err != nil {
		return nil, err
	}
	return obj.Dispatch(ctx, req)
}

func (svr *Server) announce(ctx context.Context) error {
	if svr.registry == nil {
		return nil
	}
	for _, name := range svr.objects.Names() {
		obj, _ := svr.objects.Lookup(name)
		inst := registry.Instance{
			Module:  svr.module,
			Weight:  svr.workers,
			Version: obj.ID().Version,
		}
		if err := svr.registry.Register(ctx, name, inst, svr.registryTTL); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}
	return nil
}

// withdraw deregisters every object. ctx has usually ended by now.
func (svr *Server) withdraw(ctx context.Context) {
	if svr.registry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, name := range svr.objects.Names() {
		if err := svr.registry.Deregister(ctx, name, svr.module); err != nil {
			svr.logger.Warn("failed to deregister object", zap.String("object", name), zap.Error(err))
		}
	}
}
