// Package registry provides a concurrent name-keyed registry.
package registry

import (
	"sync"

	"github.com/alphadose/haxmap"
)

type Registry[T any] interface {
	Get(name string) (T, bool)
	// GetOrAdd returns the value stored under name, creating it with value when
	// absent. Concurrent callers for the same name all receive the stored value.
	GetOrAdd(name string, value func() T) (T, bool)
	// Range calls fn for every entry until fn returns false. Entries added
	// while ranging may or may not be visited.
	Range(fn func(name string, value T) bool)
	Len() int
}

type registry[T any] struct {
	mu     sync.Mutex
	values *haxmap.Map[string, T]
}

func New[T any]() Registry[T] {
	return &registry[T]{
		values: haxmap.New[string, T](),
	}
}

func (r *registry[T]) Get(name string) (T, bool) {
	return r.values.Get(name)
}

func (r *registry[T]) GetOrAdd(name string, valueFn func() T) (T, bool) {
	if v, ok := r.values.Get(name); ok {
		return v, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.values.Get(name); ok {
		return v, true
	}
	v := valueFn()
	r.values.Set(name, v)
	return v, false
}

func (r *registry[T]) Range(fn func(name string, value T) bool) {
	r.values.ForEach(fn)
}

func (r *registry[T]) Len() int {
	return int(r.values.Len())
}
