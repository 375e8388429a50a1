// Package unison mirrors relative brightness changes across monitors that are
// flagged to move together.
//
// An origin publishes a delta normalized to its own effective range width.
// Every other unison-enabled subscriber scales that delta by its own width,
// clamps to its own range, and persists only when the message commits.
package unison

import (
	"sync"

	"lumen/internal/deviceid"
)

// Message is one published adjustment. Delta is relative to the origin's range
// width; a zero Delta with Commit set is a flush.
type Message struct {
	Origin string
	Delta  float64
	Commit bool
}

// IsFlush reports whether the message only asks subscribers to persist.
func (m Message) IsFlush() bool {
	return m.Delta == 0 && m.Commit
}

// Subscriber receives messages. ApplyUnison runs synchronously on the
// publisher's goroutine and must not block or perform I/O inline.
type Subscriber interface {
	Unison() bool
	ApplyUnison(Message)
}

type subscription struct {
	id    uint64
	key   string
	value Subscriber
}

// Broadcaster owns the subscriber list. The mutex only guards list changes;
// handlers run on a snapshot outside it.
type Broadcaster struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription
}

// New returns an empty broadcaster.
func New() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers s under the monitor id it controls and returns a
// function that removes it again. Calling the function twice is harmless.
func (b *Broadcaster) Subscribe(id string, s Subscriber) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	handle := b.nextID
	b.subs = append(b.subs, subscription{id: handle, key: deviceid.Fold(id), value: s})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(handle) })
	}
}

func (b *Broadcaster) remove(handle uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == handle {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Len reports the number of subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers msg to every unison-enabled subscriber other than the origin
// and returns how many received it.
func (b *Broadcaster) Publish(msg Message) int {
	b.mu.Lock()
	snapshot := make([]subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	origin := deviceid.Fold(msg.Origin)
	delivered := 0
	for _, sub := range snapshot {
		if sub.key == origin || !sub.value.Unison() {
			continue
		}
		sub.value.ApplyUnison(msg)
		delivered++
	}
	return delivered
}

// NormalizedDelta converts a raw change on a range of the given width into the
// published delta. A non-positive width yields zero.
func NormalizedDelta(oldValue, newValue float64, width int) float64 {
	if width <= 0 {
		return 0
	}
	return (newValue - oldValue) / float64(width)
}

// Apply scales delta by the receiver's range width, adds it to last, and
// clamps the result to [lowest, highest].
func Apply(last, delta float64, lowest, highest uint8) float64 {
	width := float64(int(highest) - int(lowest))
	next := last + delta*width
	if next < float64(lowest) {
		return float64(lowest)
	}
	if next > float64(highest) {
		return float64(highest)
	}
	return next
}
