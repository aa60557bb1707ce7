package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryBroker is an in-process Broker with Redis list semantics: lists are
// created by the first push, disappear when emptied, and may carry a TTL.
// Expired lists are dropped lazily on access.
type MemoryBroker struct {
	mu     sync.Mutex
	lists  map[string]*memList
	signal chan struct{} // closed and replaced on every push
	nowFn  func() time.Time

	mPushes  atomic.Uint64
	mPops    atomic.Uint64
	mExpired atomic.Uint64
}

type memList struct {
	items    [][]byte
	expireAt time.Time // zero = no expiry
}

// MemoryStats is a snapshot of broker counters.
type MemoryStats struct {
	Pushes  uint64
	Pops    uint64
	Expired uint64
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		lists:  make(map[string]*memList),
		signal: make(chan struct{}),
		nowFn:  time.Now,
	}
}

// SetClock replaces the clock used for expiry.
func (b *MemoryBroker) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.nowFn = now
	b.mu.Unlock()
}

// live returns the list for key, dropping it first if it has expired.
// Caller holds b.mu.
func (b *MemoryBroker) live(key string) *memList {
	l, ok := b.lists[key]
	if !ok {
		return nil
	}
	if !l.expireAt.IsZero() && !b.nowFn().Before(l.expireAt) {
		delete(b.lists, key)
		b.mExpired.Add(1)
		return nil
	}
	return l
}

func (b *MemoryBroker) PopAny(ctx context.Context, queues []string, timeout time.Duration) (Delivery, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		b.mu.Lock()
		for _, q := range queues {
			l := b.live(q)
			if l == nil || len(l.items) == 0 {
				continue
			}
			payload := l.items[0]
			l.items[0] = nil
			l.items = l.items[1:]
			if len(l.items) == 0 {
				delete(b.lists, q)
			}
			b.mu.Unlock()
			b.mPops.Add(1)
			return Delivery{Queue: q, Payload: payload}, true, nil
		}
		wait := b.signal
		b.mu.Unlock()

		select {
		case <-wait:
		case <-timer.C:
			return Delivery{}, false, nil
		case <-ctx.Done():
			return Delivery{}, false, ctx.Err()
		}
	}
}

func (b *MemoryBroker) Push(ctx context.Context, queue string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := make([]byte, len(payload))
	copy(v, payload)

	b.mu.Lock()
	l := b.live(queue)
	if l == nil {
		l = &memList{}
		b.lists[queue] = l
	}
	l.items = append(l.items, v)
	close(b.signal)
	b.signal = make(chan struct{})
	b.mu.Unlock()

	b.mPushes.Add(1)
	return nil
}

// Expire sets the TTL of an existing list. Like Redis, expiring a missing key
// is not an error.
func (b *MemoryBroker) Expire(ctx context.Context, queue string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if l := b.live(queue); l != nil {
		l.expireAt = b.nowFn().Add(ttl)
	}
	return nil
}

// TTL returns the remaining lifetime of key. ok is false if the key is missing
// or has no expiry.
func (b *MemoryBroker) TTL(key string) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l := b.live(key)
	if l == nil || l.expireAt.IsZero() {
		return 0, false
	}
	return l.expireAt.Sub(b.nowFn()), true
}

// Len returns the number of elements queued under key.
func (b *MemoryBroker) Len(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l := b.live(key); l != nil {
		return len(l.items)
	}
	return 0
}

func (b *MemoryBroker) Stats() MemoryStats {
	return MemoryStats{
		Pushes:  b.mPushes.Load(),
		Pops:    b.mPops.Load(),
		Expired: b.mExpired.Load(),
	}
}
