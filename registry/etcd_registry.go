package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// EtcdRegistry implements Registry with etcd v3 leases: if a server dies, its
// lease expires and the entry disappears.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
	logger *zap.Logger

	mu     sync.Mutex
	leases map[string]registration // instance key → live lease
}

type registration struct {
	lease  clientv3.LeaseID
	cancel context.CancelFunc
}

// NewEtcdRegistry creates a new registry connected to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, logger *zap.Logger) (*EtcdRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
		Logger:      logger.Named("etcd"),
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{
		client: c,
		logger: logger,
		leases: make(map[string]registration),
	}, nil
}

// Register puts instance under a TTL lease and keeps the lease alive until
// Deregister or Close.
//
// Flow:
//  1. Grant a lease with the given TTL (seconds)
//  2. Put the key-value pair with the lease attached
//  3. KeepAlive renews the lease in the background
func (r *EtcdRegistry) Register(ctx context.Context, object string, instance Instance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	key := instanceKey(object, instance.Module)
	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	// KeepAlive must outlive the caller's ctx
	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := r.client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return err
	}
	go func() {
		for range ch {
		}
		r.logger.Debug("lease keepalive stopped", zap.String("key", key))
	}()

	r.mu.Lock()
	if old, ok := r.leases[key]; ok {
		old.cancel()
	}
	r.leases[key] = registration{lease: lease.ID, cancel: cancel}
	r.mu.Unlock()
	return nil
}

// Deregister stops the keepalive and removes the instance.
func (r *EtcdRegistry) Deregister(ctx context.Context, object string, module string) error {
	key := instanceKey(object, module)

	r.mu.Lock()
	reg, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if ok {
		reg.cancel()
		if _, err := r.client.Revoke(ctx, reg.lease); err == nil {
			return nil
		}
	}
	_, err := r.client.Delete(ctx, key)
	return err
}

// Watch emits the full instance list of object whenever it changes, until ctx
// ends.
func (r *EtcdRegistry) Watch(ctx context.Context, object string) <-chan []Instance {
	ch := make(chan []Instance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, objectPrefix(object), clientv3.WithPrefix())
		for range watchChan {
			// re-fetch the full list instead of applying events
			instances, err := r.Discover(ctx, object)
			if err != nil {
				r.logger.Warn("discover after watch event failed", zap.String("object", object), zap.Error(err))
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// Discover returns all currently registered instances for object.
func (r *EtcdRegistry) Discover(ctx context.Context, object string) ([]Instance, error) {
	resp, err := r.client.Get(ctx, objectPrefix(object), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance Instance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warn("skipping malformed instance", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Close stops all keepalives and closes the etcd client. Leases then expire
// on their own.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	for key, reg := range r.leases {
		reg.cancel()
		delete(r.leases, key)
	}
	r.mu.Unlock()
	return r.client.Close()
}
