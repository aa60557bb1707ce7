package server

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"broker-rpc/message"
)

// Object is a versioned service instance hosted by a server.
type Object interface {
	ID() message.ObjectID
	// Dispatch runs req. A returned error is a framework failure; a handler
	// failure belongs in Output.Error.
	Dispatch(ctx context.Context, req *message.Request) (*message.Output, error)
}

// ObjectRegistry maps the string form of an ObjectID to its Object.
// It is filled before the server runs and only read afterwards.
type ObjectRegistry struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewObjectRegistry() *ObjectRegistry {
	return &ObjectRegistry{objects: make(map[string]Object)}
}

func (r *ObjectRegistry) Register(obj Object) error {
	key := obj.ID().String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[key]; ok {
		return fmt.Errorf("object %s already registered", key)
	}
	r.objects[key] = obj
	return nil
}

// Lookup fails with an UnknownObject error when name is not registered.
func (r *ObjectRegistry) Lookup(name string) (Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.objects[name]
	if !ok {
		return nil, message.UnknownObject(name)
	}
	return obj, nil
}

// Names returns the registered object strings in sorted order.
func (r *ObjectRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.objects))
	for name := range r.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *ObjectRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}
