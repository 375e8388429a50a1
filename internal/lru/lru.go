// Package lru provides a bounded, access-ordered key/value cache.
//
// Reads reorder entries, so every operation takes the same mutex. Structural
// changes are reported to an optional Observer after the lock is released.
package lru

import "sync"

// Observer receives structural change notifications.
type Observer[K comparable, V any] interface {
	Added(key K, value V)
	Removed(key K, value V)
	Evicted(key K, value V)
}

type node[K comparable, V any] struct {
	key        K
	value      V
	prev, next *node[K, V]
}

// Cache is a hash index over an intrusive doubly linked list. The head is the
// most recently touched entry.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	index    map[K]*node[K, V]
	head     *node[K, V]
	tail     *node[K, V]
	observer Observer[K, V]
}

// New creates a cache bounded to capacity entries. Capacity below one is treated as one.
func New[K comparable, V any](capacity int, observer Observer[K, V]) *Cache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache[K, V]{
		capacity: capacity,
		index:    make(map[K]*node[K, V]),
		observer: observer,
	}
}

type change[K comparable, V any] struct {
	kind  changeKind
	key   K
	value V
}

type changeKind int

const (
	changeAdded changeKind = iota
	changeRemoved
	changeEvicted
)

// Capacity reports the configured bound.
func (c *Cache[K, V]) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// Len reports the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Get returns the value for key and moves it to the front.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(n)
	return n.value, true
}

// Peek returns the value for key without touching recency.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.index[key]; ok {
		return n.value, true
	}
	var zero V
	return zero, false
}

// Set inserts or replaces key at the front, then evicts from the tail until
// the cache is within capacity.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	var changes []change[K, V]
	if n, ok := c.index[key]; ok {
		n.value = value
		c.moveToFront(n)
	} else {
		n := &node[K, V]{key: key, value: value}
		c.index[key] = n
		c.pushFront(n)
	}
	changes = append(changes, change[K, V]{kind: changeAdded, key: key, value: value})
	changes = append(changes, c.evictLocked()...)
	c.mu.Unlock()
	c.notify(changes)
}

// Remove deletes key. It reports whether the key was present.
func (c *Cache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	n, ok := c.index[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.unlink(n)
	delete(c.index, key)
	c.mu.Unlock()
	c.notify([]change[K, V]{{kind: changeRemoved, key: n.key, value: n.value}})
	return true
}

// Resize changes the bound, evicting tail entries when shrinking.
func (c *Cache[K, V]) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	c.mu.Lock()
	c.capacity = capacity
	changes := c.evictLocked()
	c.mu.Unlock()
	c.notify(changes)
}

// Keys returns keys from most to least recently used.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, len(c.index))
	for n := c.head; n != nil; n = n.next {
		keys = append(keys, n.key)
	}
	return keys
}

// Range calls fn from most to least recently used without touching recency.
// fn runs on a snapshot, outside the lock.
func (c *Cache[K, V]) Range(fn func(key K, value V) bool) {
	c.mu.Lock()
	snapshot := make([]node[K, V], 0, len(c.index))
	for n := c.head; n != nil; n = n.next {
		snapshot = append(snapshot, node[K, V]{key: n.key, value: n.value})
	}
	c.mu.Unlock()
	for _, n := range snapshot {
		if !fn(n.key, n.value) {
			return
		}
	}
}

func (c *Cache[K, V]) evictLocked() []change[K, V] {
	var evicted []change[K, V]
	for len(c.index) > c.capacity && c.tail != nil {
		n := c.tail
		c.unlink(n)
		delete(c.index, n.key)
		evicted = append(evicted, change[K, V]{kind: changeEvicted, key: n.key, value: n.value})
	}
	return evicted
}

func (c *Cache[K, V]) notify(changes []change[K, V]) {
	if c.observer == nil {
		return
	}
	for _, ch := range changes {
		switch ch.kind {
		case changeAdded:
			c.observer.Added(ch.key, ch.value)
		case changeRemoved:
			c.observer.Removed(ch.key, ch.value)
		case changeEvicted:
			c.observer.Evicted(ch.key, ch.value)
		}
	}
}

func (c *Cache[K, V]) moveToFront(n *node[K, V]) {
	if c.head == n {
		return
	}
	c.unlink(n)
	c.pushFront(n)
}

func (c *Cache[K, V]) pushFront(n *node[K, V]) {
	n.prev = nil
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *Cache[K, V]) unlink(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}
