package stream

import (
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
)

// Link carries messages between a stream worker and its manager: a bounded
// status channel and a bounded notification channel, both dropping their
// oldest entry when full, plus an unbounded priority queue for operator
// commands that is always drained first.
type Link struct {
	status chan packet.Status
	notify chan packet.Notification

	mu       sync.Mutex
	priority []packet.Notification

	droppedStatus atomic.Int64
	droppedNotify atomic.Int64
}

// NewLink creates a link with the given channel capacities.
func NewLink(statusQueue, notificationQueue int) *Link {
	return &Link{
		status: make(chan packet.Status, max(statusQueue, 1)),
		notify: make(chan packet.Notification, max(notificationQueue, 1)),
	}
}

// Publish sends a status toward the manager. A nil link discards it.
func (l *Link) Publish(s packet.Status) {
	if l == nil {
		return
	}
	if pushDropOldest(l.status, s) {
		l.droppedStatus.Add(1)
	}
}

// Statuses drains every buffered status, oldest first.
func (l *Link) Statuses() []packet.Status {
	return drain(l.status)
}

// Notify queues a routed notification for the stream.
func (l *Link) Notify(n packet.Notification) {
	if pushDropOldest(l.notify, n) {
		l.droppedNotify.Add(1)
	}
}

// NotifyPriority queues an operator notification ahead of routed traffic.
func (l *Link) NotifyPriority(n packet.Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.priority = append(l.priority, n)
}

// Notifications drains the priority queue, then the regular channel.
func (l *Link) Notifications() packet.Notifications {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	out := packet.Notifications(l.priority)
	l.priority = nil
	l.mu.Unlock()

	return append(out, drain(l.notify)...)
}

// Dropped returns how many statuses and notifications were discarded.
func (l *Link) Dropped() (status, notifications int64) {
	return l.droppedStatus.Load(), l.droppedNotify.Load()
}

// pushDropOldest never blocks; it reports whether an entry was discarded.
func pushDropOldest[T any](ch chan T, v T) bool {
	dropped := false
	for {
		select {
		case ch <- v:
			return dropped
		default:
		}
		select {
		case <-ch:
			dropped = true
		default:
		}
	}
}

func drain[T any](ch chan T) []T {
	var out []T
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}
