// Package loadbalance picks the module that receives a call when several
// modules host the same object.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity modules
//   - WeightedRandom:  modules with different worker counts
//   - ConsistentHash:  the same key always lands on the same module
//
// The client keys every Pick with the object name, so ConsistentHash gives
// object affinity, not spreading: all calls to one object go to one module,
// and only different objects are spread over the modules.
package loadbalance

import (
	"errors"
	"fmt"

	"broker-rpc/registry"
)

var ErrNoInstances = errors.New("no instances available")

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each resolved call; key is the object name
// (name@version), never anything per call.
type Balancer interface {
	// Pick selects one instance from the available list.
	// Called on every call — must be goroutine-safe.
	Pick(key string, instances []registry.Instance) (*registry.Instance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer registered under name.
func New(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	case "consistent_hash":
		return NewConsistentHashBalancer(), nil
	}
	return nil, fmt.Errorf("unknown balancer %q", name)
}
