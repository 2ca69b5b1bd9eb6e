package session

import (
	"sync"
	"time"
)

// Notification is a user-visible report of a failed operation
type Notification struct {
	SessionID  string    `json:"session_id"`
	Generation uint64    `json:"generation"`
	Op         string    `json:"op"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
}

// Notifier receives notifications. Notify must not block.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// NotificationLog keeps the most recent notifications in a ring
type NotificationLog struct {
	mu    sync.RWMutex
	items []Notification
	next  int
	full  bool
	total uint64
}

// NewNotificationLog creates a log holding up to size entries
func NewNotificationLog(size int) *NotificationLog {
	if size <= 0 {
		size = 50
	}
	return &NotificationLog{items: make([]Notification, size)}
}

func (l *NotificationLog) Notify(n Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items[l.next] = n
	l.next = (l.next + 1) % len(l.items)
	if l.next == 0 {
		l.full = true
	}
	l.total++
}

// Recent returns the kept notifications, oldest first
func (l *NotificationLog) Recent() []Notification {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.full {
		return append([]Notification(nil), l.items[:l.next]...)
	}
	out := make([]Notification, 0, len(l.items))
	out = append(out, l.items[l.next:]...)
	return append(out, l.items[:l.next]...)
}

// Total returns how many notifications were ever received
func (l *NotificationLog) Total() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// multiNotifier fans out to several notifiers
type multiNotifier []Notifier

func (m multiNotifier) Notify(n Notification) {
	for _, nt := range m {
		nt.Notify(n)
	}
}

// Tee returns a Notifier delivering to every non-nil notifier
func Tee(notifiers ...Notifier) Notifier {
	var out multiNotifier
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}
