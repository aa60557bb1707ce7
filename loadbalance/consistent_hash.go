package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"broker-rpc/registry"
)

// ConsistentHashBalancer maps keys to modules using a hash ring, so calls for
// the same object keep landing on the same module until the module set
// changes. Keyed by object name it pins each object to one module; use
// RoundRobin or WeightedRandom to spread calls to a single object. Each module
// gets replicas virtual nodes.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int

	mu    sync.Mutex
	sig   string                        // module set the ring was built from
	ring  []uint32                      // sorted hash values
	nodes map[uint32]*registry.Instance // hash value → instance
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes per module.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{replicas: 100}
}

// Pick hashes key and walks clockwise to the first virtual node. The ring is
// rebuilt only when the instance set differs from the previous call.
func (b *ConsistentHashBalancer) Pick(key string, instances []registry.Instance) (*registry.Instance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if sig := signature(instances); sig != b.sig {
		b.rebuild(instances)
		b.sig = sig
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	inst := *b.nodes[b.ring[idx]]
	return &inst, nil
}

func (b *ConsistentHashBalancer) rebuild(instances []registry.Instance) {
	b.ring = make([]uint32, 0, len(instances)*b.replicas)
	b.nodes = make(map[uint32]*registry.Instance, len(instances)*b.replicas)
	for i := range instances {
		inst := instances[i]
		for r := 0; r < b.replicas; r++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", inst.Module, r)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = &inst
		}
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}

func signature(instances []registry.Instance) string {
	modules := make([]string, len(instances))
	for i, inst := range instances {
		modules[i] = inst.Module
	}
	sort.Strings(modules)
	return strings.Join(modules, ",")
}
