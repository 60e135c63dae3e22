// Package notifier wakes live event-stream connections when the
// transition journal grows. Signals are edge-triggered and coalesce: a
// subscriber that has not drained its channel yet will see one wake-up
// for any number of notifications.
package notifier

import "sync"

type Notifier struct {
	mu      sync.Mutex
	next    int
	waiters map[int]chan struct{}
}

func New() *Notifier {
	return &Notifier{waiters: make(map[int]chan struct{})}
}

// Subscribe registers a waiter and returns its wake-up channel along
// with a cancel function. Cancel is safe to call more than once.
func (n *Notifier) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	id := n.next
	n.next++
	n.waiters[id] = ch
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.waiters, id)
			n.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (n *Notifier) NotifyAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.waiters {
		select {
		case ch <- struct{}{}:
		default:
			// waiter already has a pending wake-up
		}
	}
}
