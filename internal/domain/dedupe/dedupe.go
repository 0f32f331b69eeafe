// Package dedupe tracks which runners have already been announced for
// their current qualifying run.
package dedupe

import "container/list"

// Announced is the set of runner identities already notified.
//
// It is owned by a single goroutine (the feed receive loop) and is not safe
// for concurrent use.
type Announced struct {
	maxSize int // 0 or negative = unbounded
	entries map[string]*list.Element
	order   *list.List // least recently observed at the front
}

// New creates an empty set with configuration options.
func New(opts ...Option) *Announced {
	a := &Announced{
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ShouldAnnounce reports whether id has not been announced yet.
func (a *Announced) ShouldAnnounce(id string) bool {
	_, marked := a.entries[id]
	return !marked
}

// MarkAnnounced records id. In bounded mode the least recently observed
// identity is evicted once the cap is reached; if it is still live, its next
// qualifying frame is announced again.
func (a *Announced) MarkAnnounced(id string) {
	if _, marked := a.entries[id]; marked {
		return
	}
	if a.maxSize > 0 && len(a.entries) >= a.maxSize {
		if oldest := a.order.Front(); oldest != nil {
			delete(a.entries, oldest.Value.(string))
			a.order.Remove(oldest)
		}
	}
	a.entries[id] = a.order.PushBack(id)
}

// Clear forgets id so its next qualifying run is announced again.
func (a *Announced) Clear(id string) {
	if el, marked := a.entries[id]; marked {
		delete(a.entries, id)
		a.order.Remove(el)
	}
}

// Observe applies one evaluated frame for id and reports whether a report
// should be sent. A qualifying frame for an unmarked id marks it and returns
// true; a qualifying frame for a marked id is suppressed; a non-qualifying
// frame clears id. A suppressed frame refreshes id so runners still sending
// frames are the last to be evicted.
func (a *Announced) Observe(id string, qualifies bool) bool {
	if !qualifies {
		a.Clear(id)
		return false
	}
	if el, marked := a.entries[id]; marked {
		a.order.MoveToBack(el)
		return false
	}
	a.MarkAnnounced(id)
	return true
}

// Size returns the number of marked identities.
func (a *Announced) Size() int {
	return len(a.entries)
}
