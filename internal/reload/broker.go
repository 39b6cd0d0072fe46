package reload

import "sync"

// Broker fans reload signals out to subscribers. Each subscriber gets at
// most one pending signal: a slow client is told the strongest request it
// missed, not every one of them.
type Broker struct {
	mu     sync.Mutex
	subs   map[chan Kind]struct{}
	closed bool
}

func NewBroker() *Broker {
	return &Broker{subs: map[chan Kind]struct{}{}}
}

func (b *Broker) Subscribe() chan Kind {
	ch := make(chan Kind, 1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

func (b *Broker) Unsubscribe(ch chan Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of connected subscribers.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Reload publishes k. None is ignored.
func (b *Broker) Reload(k Kind) {
	if k == None {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- k:
		default:
			// keep the strongest pending request
			select {
			case prev := <-ch:
				ch <- Max(prev, k)
			default:
				ch <- k
			}
		}
	}
}

// Close disconnects every subscriber.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
