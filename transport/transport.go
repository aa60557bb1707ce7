// Package transport moves opaque payloads through a list-oriented broker.
//
// Broker is the thin contract a store has to offer: a blocking pop over several
// lists, a push, and a key expiry. Transport sits on top of a Broker and owns
// the retry policy, so callers never see a broker outage except as latency:
//
//	PopAny / Push  ── error ──► log, sleep backoff, try again (until ctx ends)
//	Reply          ── push once, then EXPIRE best-effort (failure only logged)
package transport

import (
	"context"
	"fmt"
	"time"

	"broker-rpc/protocol"

	"go.uber.org/zap"
)

// Delivery is one payload popped from Queue.
type Delivery struct {
	Queue   string
	Payload []byte
}

// Broker is implemented by the external list store.
type Broker interface {
	// PopAny blocks until one of queues has an element or timeout elapses.
	// ok is false on timeout.
	PopAny(ctx context.Context, queues []string, timeout time.Duration) (d Delivery, ok bool, err error)
	Push(ctx context.Context, queue string, payload []byte) error
	Expire(ctx context.Context, queue string, ttl time.Duration) error
}

// Transport adds the fixed-backoff retry loop around a Broker.
type Transport struct {
	broker  Broker
	backoff time.Duration
	logger  *zap.Logger
}

func New(broker Broker, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		broker:  broker,
		backoff: protocol.RetryBackoff,
		logger:  logger,
	}
}

// SetBackoff changes the pause between attempts after a broker failure.
func (t *Transport) SetBackoff(d time.Duration) {
	t.backoff = d
}

func (t *Transport) Broker() Broker {
	return t.broker
}

// PopAny pops from the first non-empty queue, waiting at most timeout in total.
// Broker failures are retried while time remains; only ctx ending is returned
// as an error.
func (t *Transport) PopAny(ctx context.Context, queues []string, timeout time.Duration) (Delivery, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Delivery{}, false, nil
		}

		d, ok, err := t.broker.PopAny(ctx, queues, remaining)
		if err == nil {
			return d, ok, nil
		}
		if ctx.Err() != nil {
			return Delivery{}, false, ctx.Err()
		}

		t.logger.Error("failed to pop from broker", zap.Strings("queues", queues), zap.Error(err))
		if err := sleep(ctx, t.backoff); err != nil {
			return Delivery{}, false, err
		}
	}
}

// Push enqueues payload, retrying broker failures until ctx ends.
func (t *Transport) Push(ctx context.Context, queue string, payload []byte) error {
	for {
		err := t.broker.Push(ctx, queue, payload)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		t.logger.Error("failed to push to broker", zap.String("queue", queue), zap.Error(err))
		if err := sleep(ctx, t.backoff); err != nil {
			return err
		}
	}
}

// Reply pushes a response once and then bounds the reply queue's lifetime.
// An expiry failure is logged and not returned.
func (t *Transport) Reply(ctx context.Context, queue string, payload []byte, ttl time.Duration) error {
	if err := t.broker.Push(ctx, queue, payload); err != nil {
		return fmt.Errorf("push reply to %s: %w", queue, err)
	}
	if err := t.broker.Expire(ctx, queue, ttl); err != nil {
		t.logger.Warn("failed to set reply ttl", zap.String("queue", queue), zap.Duration("ttl", ttl), zap.Error(err))
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
