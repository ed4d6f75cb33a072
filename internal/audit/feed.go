package audit

import (
	"context"
	"sync"
)

// Feed fans out freshly recorded entries to live subscribers. Each subscriber
// is bound to one organization and never sees another tenant's entries.
type Feed struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

type subscriber struct {
	organizationID string
	ch             chan Entry
}

// NewFeed returns a feed with no subscribers.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]subscriber)}
}

// Subscribe registers for organizationID's entries. The channel is closed
// when ctx ends.
func (f *Feed) Subscribe(ctx context.Context, organizationID string) <-chan Entry {
	ch := make(chan Entry, 16)

	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = subscriber{organizationID: organizationID, ch: ch}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, id)
		close(ch)
		f.mu.Unlock()
	}()

	return ch
}

// Publish delivers e to subscribers of its organization. A subscriber that is
// not keeping up misses the event.
func (f *Feed) Publish(e Entry) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.subs {
		if s.organizationID == "" || s.organizationID != e.OrganizationID {
			continue
		}
		select {
		case s.ch <- e:
		default:
		}
	}
}

// Subscribers reports the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
