package session

import "sync"

type Listener func(Event)

// Subscription is the release half of a Subscribe call. Unsubscribe is safe
// to call more than once.
type Subscription struct {
	once    sync.Once
	release func()
}

func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

type listenerEntry struct {
	id       uint64
	listener Listener
}

type registry struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []listenerEntry
}

func (r *registry) add(listener Listener) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.listeners = append(r.listeners, listenerEntry{id: id, listener: listener})
	return &Subscription{release: func() { r.remove(id) }}
}

func (r *registry) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, entry := range r.listeners {
		if entry.id == id {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = nil
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// dispatch delivers events in order to a snapshot of the listeners, so a
// listener may unsubscribe itself without deadlocking.
func (r *registry) dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	r.mu.Lock()
	listeners := make([]Listener, 0, len(r.listeners))
	for _, entry := range r.listeners {
		listeners = append(listeners, entry.listener)
	}
	r.mu.Unlock()

	for _, event := range events {
		for _, listener := range listeners {
			listener(event)
		}
	}
}
