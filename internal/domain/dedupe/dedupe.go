// Package dedupe remembers which grant keys were already applied.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

const defaultMaxSize = 100_000

// Deduper records keys so work keyed by them runs at most once.
type Deduper interface {
	// SeenAndRecord reports whether key was already recorded and records it if not.
	SeenAndRecord(ctx context.Context, key string) bool
	// Unrecord forgets key so a failed attempt can be retried.
	Unrecord(ctx context.Context, key string)
	Size() int64
}

// inMemoryDeduper keeps keys in insertion order and evicts the oldest once
// maxSize is reached. maxSize <= 0 disables eviction.
type inMemoryDeduper struct {
	mu      sync.Mutex
	keys    map[string]*list.Element
	order   *list.List
	maxSize int
}

// NewInMemoryDeduper creates a deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		keys:    make(map[string]*list.Element),
		order:   list.New(),
		maxSize: defaultMaxSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.keys[key]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		if oldest := d.order.Front(); oldest != nil {
			d.order.Remove(oldest)
			delete(d.keys, oldest.Value.(string))
		}
	}
	d.keys[key] = d.order.PushBack(key)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.keys[key]; ok {
		d.order.Remove(el)
		delete(d.keys, key)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}

// StarGrantKey is the key guarding the star grant of one performance.
func StarGrantKey(performanceID string) string {
	return "stars:" + performanceID
}
