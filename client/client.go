// Package client sends calls to objects over the broker and waits for their
// replies.
//
//	Call → NewRequest (id = reply_to) → encode args → RPUSH module.object
//	     → BLPOP id (timeout) → DecodeResponse
//	     → outer error: Protocol | output error: Call | data: Result
//
// A timed-out call is not cancelled: the request may still run later and its
// reply expires on the broker.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"broker-rpc/codec"
	"broker-rpc/loadbalance"
	"broker-rpc/message"
	"broker-rpc/protocol"
	"broker-rpc/registry"
	"broker-rpc/transport"

	"go.uber.org/zap"
)

const DefaultTimeout = 30 * time.Second

var ErrNoResolver = errors.New("client: no registry configured for object resolution")

type Client struct {
	broker    transport.Broker
	transport *transport.Transport
	codec     codec.Codec
	timeout   time.Duration
	logger    *zap.Logger

	registry registry.Registry // find the module hosting an object
	balancer loadbalance.Balancer
}

func NewClient(broker transport.Broker) *Client {
	logger := zap.NewNop()
	return &Client{
		broker:    broker,
		transport: transport.New(broker, logger),
		codec:     codec.GetCodec(codec.CodecTypeMsgPack),
		timeout:   DefaultTimeout,
		logger:    logger,
	}
}

func (c *Client) SetLogger(logger *zap.Logger) {
	c.logger = logger
	c.transport = transport.New(c.broker, logger)
}

// SetCodec selects the codec for envelopes and arguments. Servers must use the
// same one.
func (c *Client) SetCodec(cd codec.Codec) {
	c.codec = cd
}

// SetTimeout bounds the wait for a reply.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// SetResolver enables CallObject. bal defaults to round robin.
func (c *Client) SetResolver(reg registry.Registry, bal loadbalance.Balancer) {
	if bal == nil {
		bal = &loadbalance.RoundRobinBalancer{}
	}
	c.registry = reg
	c.balancer = bal
}

func (c *Client) Codec() codec.Codec {
	return c.codec
}

// Request pushes req to module and waits for its response. Broker failures are
// retried until ctx ends; no reply within the timeout is a Timeout error.
func (c *Client) Request(ctx context.Context, module string, req *message.Request) (*message.Response, error) {
	data, err := protocol.EncodeRequest(c.codec, req)
	if err != nil {
		return nil, err
	}

	queue := protocol.RequestQueue(module, req.Object)
	if err := c.transport.Push(ctx, queue, data); err != nil {
		return nil, err
	}

	d, ok, err := c.transport.PopAny(ctx, []string{req.ReplyTo}, c.timeout)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.logger.Warn("call timed out",
			zap.String("id", req.ID),
			zap.String("queue", queue),
			zap.String("method", req.Method),
			zap.Duration("timeout", c.timeout))
		return nil, message.Timeout(req.ReplyTo)
	}

	return protocol.DecodeResponse(c.codec, d.Payload, req.ID)
}

// Call invokes method on object hosted by module.
func (c *Client) Call(ctx context.Context, module string, object message.ObjectID, method string, args ...any) (*Result, error) {
	req := message.NewRequest(object, method)
	for i, arg := range args {
		if err := req.Arg(c.codec, arg); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
	}

	resp, err := c.Request(ctx, module, req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, message.Protocol(*resp.Error)
	}
	if resp.Output.Error != nil {
		return nil, message.Call(resp.Output.Error)
	}
	return &Result{codec: c.codec, data: resp.Output.Data}, nil
}

// Resolve picks the module that should receive calls to object. The balancer
// is keyed by object, so consistent_hash returns the same module for every
// call to it while the module set is unchanged.
func (c *Client) Resolve(ctx context.Context, object message.ObjectID) (string, error) {
	if c.registry == nil {
		return "", ErrNoResolver
	}
	key := object.String()
	instances, err := c.registry.Discover(ctx, key)
	if err != nil {
		return "", fmt.Errorf("discover %s: %w", key, err)
	}
	inst, err := c.balancer.Pick(key, instances)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", key, err)
	}
	return inst.Module, nil
}

// CallObject is Call with the module chosen through the registry.
func (c *Client) CallObject(ctx context.Context, object message.ObjectID, method string, args ...any) (*Result, error) {
	module, err := c.Resolve(ctx, object)
	if err != nil {
		return nil, err
	}
	return c.Call(ctx, module, object, method, args...)
}

// CallFor calls method and decodes its result as T.
func CallFor[T any](ctx context.Context, c *Client, module string, object message.ObjectID, method string, args ...any) (T, error) {
	var v T
	res, err := c.Call(ctx, module, object, method, args...)
	if err != nil {
		return v, err
	}
	err = res.Decode(&v)
	return v, err
}
