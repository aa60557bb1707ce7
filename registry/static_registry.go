package registry

import (
	"context"
	"sort"
	"sync"
)

// StaticRegistry is an in-process Registry. It ignores TTLs; entries live until
// deregistered. Useful for single-host deployments and tests.
type StaticRegistry struct {
	mu       sync.Mutex
	objects  map[string]map[string]Instance // object → module → instance
	watchers map[string][]chan []Instance
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		objects:  make(map[string]map[string]Instance),
		watchers: make(map[string][]chan []Instance),
	}
}

func (r *StaticRegistry) Register(_ context.Context, object string, instance Instance, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.objects[object] == nil {
		r.objects[object] = make(map[string]Instance)
	}
	r.objects[object][instance.Module] = instance
	r.notify(object)
	return nil
}

func (r *StaticRegistry) Deregister(_ context.Context, object string, module string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.objects[object], module)
	r.notify(object)
	return nil
}

func (r *StaticRegistry) Discover(_ context.Context, object string) ([]Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list(object), nil
}

func (r *StaticRegistry) Watch(ctx context.Context, object string) <-chan []Instance {
	ch := make(chan []Instance, 1)
	r.mu.Lock()
	r.watchers[object] = append(r.watchers[object], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		ws := r.watchers[object]
		for i, w := range ws {
			if w == ch {
				r.watchers[object] = append(ws[:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// list returns instances sorted by module. Caller holds r.mu.
func (r *StaticRegistry) list(object string) []Instance {
	instances := make([]Instance, 0, len(r.objects[object]))
	for _, inst := range r.objects[object] {
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Module < instances[j].Module
	})
	return instances
}

// notify pushes the latest list to watchers, replacing any unread one.
// Caller holds r.mu.
func (r *StaticRegistry) notify(object string) {
	instances := r.list(object)
	for _, ch := range r.watchers[object] {
		select {
		case <-ch:
		default:
		}
		ch <- instances
	}
}
