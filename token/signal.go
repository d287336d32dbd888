package token

import "sync"

// Subscription receives logout events on C. Each subscription holds at most
// one undelivered event; further publishes coalesce into it.
type Subscription struct {
	C  <-chan struct{}
	ch chan struct{}
}

// Signal is a broadcast with no replay: only subscribers registered at the
// time of Publish observe the event.
type Signal struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewSignal returns a signal with no subscribers.
func NewSignal() *Signal {
	return &Signal{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber.
func (s *Signal) Subscribe() *Subscription {
	ch := make(chan struct{}, 1)
	sub := &Subscription{C: ch, ch: ch}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

// Unsubscribe removes sub. Pending events on sub are left in its channel.
func (s *Signal) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// Publish delivers one event to every current subscriber without blocking.
func (s *Signal) Publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		select {
		case sub.ch <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of current subscribers.
func (s *Signal) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
