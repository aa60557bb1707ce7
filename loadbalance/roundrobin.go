package loadbalance

import (
	"sync/atomic"

	"broker-rpc/registry"
)

// RoundRobinBalancer distributes calls evenly across all instances in order.
type RoundRobinBalancer struct {
	counter atomic.Uint64 // incremented on each Pick()
}

func (b *RoundRobinBalancer) Pick(_ string, instances []registry.Instance) (*registry.Instance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	index := (b.counter.Add(1) - 1) % uint64(len(instances))
	return &instances[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
