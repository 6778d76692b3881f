package watch

import (
	"sync"
)

// Resource is an owned value a Registry disposes on last release
type Resource interface {
	DisposeAll()
}

// Registry maps keys to owned resources with interest counting. The first
// Acquire of a key creates its resource and the last release disposes it.
type Registry[R Resource] struct {
	mu      sync.Mutex
	entries map[string]*entry[R]
	create  func(key string) (R, error)
	onSize  func(int)
}

type entry[R Resource] struct {
	res  R
	refs int
}

// NewRegistry creates a registry using create for new keys
func NewRegistry[R Resource](create func(key string) (R, error)) *Registry[R] {
	return &Registry[R]{
		entries: make(map[string]*entry[R]),
		create:  create,
	}
}

// OnSizeChange registers fn to observe the number of live resources
func (r *Registry[R]) OnSizeChange(fn func(int)) {
	r.mu.Lock()
	r.onSize = fn
	r.mu.Unlock()
}

// Acquire registers interest in key, creating its resource if needed. The
// returned release function is idempotent.
func (r *Registry[R]) Acquire(key string) (R, func(), error) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		res, err := r.create(key)
		if err != nil {
			r.mu.Unlock()
			var zero R
			return zero, nil, err
		}
		e = &entry[R]{res: res}
		r.entries[key] = e
		r.notifyLocked()
	}
	e.refs++
	r.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() { r.release(key, e) })
	}
	return e.res, release, nil
}

// Get returns the live resource for key
func (r *Registry[R]) Get(key string) (R, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		var zero R
		return zero, false
	}
	return e.res, true
}

// Len returns the number of live resources
func (r *Registry[R]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// DisposeAll disposes every live resource. Outstanding release functions
// become no-ops.
func (r *Registry[R]) DisposeAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry[R])
	r.notifyLocked()
	r.mu.Unlock()

	for _, e := range entries {
		e.res.DisposeAll()
	}
}

func (r *Registry[R]) release(key string, e *entry[R]) {
	r.mu.Lock()
	cur, ok := r.entries[key]
	if !ok || cur != e {
		r.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.entries, key)
	r.notifyLocked()
	r.mu.Unlock()

	e.res.DisposeAll()
}

func (r *Registry[R]) notifyLocked() {
	if r.onSize != nil {
		r.onSize(len(r.entries))
	}
}
