package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBroker maps the Broker operations onto BLPOP, RPUSH and EXPIRE.
//
// go-redis keeps its own connection pool: a blocking BLPOP holds one pooled
// connection for its duration, so concurrent pushes from other goroutines use
// different connections and never wait behind the pull.
type RedisBroker struct {
	client redis.UniversalClient
}

func NewRedisBroker(client redis.UniversalClient) *RedisBroker {
	return &RedisBroker{client: client}
}

// DialRedis builds a pooled client from a redis:// URL. poolSize <= 0 keeps the
// go-redis default.
func DialRedis(url string, poolSize int) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	opts.ContextTimeoutEnabled = true
	return NewRedisBroker(redis.NewClient(opts)), nil
}

func (b *RedisBroker) PopAny(ctx context.Context, queues []string, timeout time.Duration) (Delivery, bool, error) {
	res, err := b.client.BLPop(ctx, blockTimeout(timeout), queues...).Result()
	if errors.Is(err, redis.Nil) {
		return Delivery{}, false, nil
	}
	if err != nil {
		return Delivery{}, false, err
	}
	if len(res) != 2 {
		return Delivery{}, false, fmt.Errorf("unexpected BLPOP reply with %d elements", len(res))
	}
	return Delivery{Queue: res[0], Payload: []byte(res[1])}, true, nil
}

func (b *RedisBroker) Push(ctx context.Context, queue string, payload []byte) error {
	return b.client.RPush(ctx, queue, payload).Err()
}

func (b *RedisBroker) Expire(ctx context.Context, queue string, ttl time.Duration) error {
	return b.client.Expire(ctx, queue, ttl).Err()
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// blockTimeout rounds up to whole seconds. BLPOP treats 0 as "block forever".
func blockTimeout(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return (d + time.Second - 1).Truncate(time.Second)
}
