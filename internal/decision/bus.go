// Package decision delivers accept/reject signals to the review that is
// waiting for them. Listeners are registered through explicit handles so a
// review can always tear down exactly what it armed.
package decision

import (
	"sync"

	"github.com/sprite-ai/agstage/internal/model"
)

// Handle identifies one armed listener. The zero Handle is never issued.
type Handle uint64

type listener struct {
	onAccept func()
	onReject func()
}

// Bus is a process-wide registry of decision listeners.
type Bus struct {
	mu        sync.Mutex
	next      Handle
	listeners map[Handle]listener
	order     []Handle
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[Handle]listener)}
}

// Arm registers a listener and returns its handle.
func (b *Bus) Arm(onAccept, onReject func()) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	h := b.next
	b.listeners[h] = listener{onAccept: onAccept, onReject: onReject}
	b.order = append(b.order, h)
	return h
}

// Disarm removes the listener for h. It reports whether h was armed.
func (b *Bus) Disarm(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.listeners[h]; !ok {
		return false
	}
	delete(b.listeners, h)
	for i, o := range b.order {
		if o == h {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true
}

// Armed returns the number of armed listeners.
func (b *Bus) Armed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Fire delivers d to every armed listener in arming order and returns how
// many were invoked. Callbacks run without the lock held, so they may Disarm.
func (b *Bus) Fire(d model.Decision) int {
	b.mu.Lock()
	targets := make([]listener, 0, len(b.order))
	for _, h := range b.order {
		targets = append(targets, b.listeners[h])
	}
	b.mu.Unlock()

	n := 0
	for _, l := range targets {
		var fn func()
		switch d {
		case model.DecisionAccept:
			fn = l.onAccept
		case model.DecisionReject:
			fn = l.onReject
		}
		if fn != nil {
			fn()
			n++
		}
	}
	return n
}
