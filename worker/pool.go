// Package worker implements a pull-based pool of processing units.
//
// Units are not fed from a shared queue. Each idle unit announces a one-shot
// acceptance slot, and the producer only takes work from upstream after it holds
// a slot:
//
//	unit i ──slot──► announce (cap 1) ──► Get() ──► producer pops one item
//	   ▲                                                 │
//	   └──────────── work(item), re-announce ◄── Send ◄──┘
//
// With every unit busy Get blocks, so nothing is pulled that no unit can take.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var ErrInvalidSize = errors.New("worker: pool size must be at least 1")

// Slot is the acceptance slot of one idle unit. It must end with exactly one
// Send or Release.
type Slot[T any] struct {
	ch chan<- T
}

// Send hands v to the unit owning the slot. It never blocks.
func (s Slot[T]) Send(v T) {
	s.ch <- v
}

// Release gives the slot back unused; the unit announces again or exits if
// the pool is stopping.
func (s Slot[T]) Release() {
	close(s.ch)
}

// Pool runs size units, each executing work for one value at a time.
type Pool[T any] struct {
	size     int
	work     func(ctx context.Context, v T)
	announce chan chan<- T
	busy     atomic.Int64
	started  atomic.Bool
	wg       sync.WaitGroup
}

func NewPool[T any](size int, work func(ctx context.Context, v T)) (*Pool[T], error) {
	if size < 1 {
		return nil, ErrInvalidSize
	}
	return &Pool[T]{
		size:     size,
		work:     work,
		announce: make(chan chan<- T, 1),
	}, nil
}

// Start launches the units. They stop announcing once ctx ends. A unit that
// already announced waits for its slot to be sent or released, so work handed
// over after ctx ends still runs, with a context that is never cancelled.
func (p *Pool[T]) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.unit(ctx)
	}
}

func (p *Pool[T]) unit(ctx context.Context) {
	defer p.wg.Done()
	workCtx := context.WithoutCancel(ctx)

	for {
		slot := make(chan T, 1)
		select {
		case p.announce <- slot:
		case <-ctx.Done():
			return
		}

		v, ok := <-slot
		if !ok {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		p.run(workCtx, v)
	}
}

func (p *Pool[T]) run(ctx context.Context, v T) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	p.work(ctx, v)
}

// Get blocks until a unit is idle and returns its slot.
func (p *Pool[T]) Get(ctx context.Context) (Slot[T], error) {
	select {
	case ch := <-p.announce:
		return Slot[T]{ch: ch}, nil
	case <-ctx.Done():
		return Slot[T]{}, ctx.Err()
	}
}

// Busy returns the number of units currently running work.
func (p *Pool[T]) Busy() int {
	return int(p.busy.Load())
}

func (p *Pool[T]) Size() int {
	return p.size
}

// Wait blocks until every unit has exited. Call it after the Start context
// ended and the producer released or sent its last slot; announcements nobody
// will take any more are released here.
func (p *Pool[T]) Wait() {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	for {
		select {
		case ch := <-p.announce:
			close(ch)
		case <-done:
			return
		}
	}
}
