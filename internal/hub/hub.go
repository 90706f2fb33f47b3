// Package hub fans out registry state-change events to connected admin
// review sessions. Publishing never blocks: a session whose queue is full is
// dropped, because stalling the approval path for a lagging admin feed is
// worse than losing that feed. A reconnecting admin re-fetches current state
// from storage rather than relying on the stream for history.
package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kitemc/verifyd/internal/models"
	"github.com/kitemc/verifyd/pkg/metrics"
)

const defaultQueueSize = 64

// Event types pushed to review sessions.
const (
	EventRegistered = "registered"
	EventConfirmed  = "confirmed"
	EventApproved   = "approved"
	EventRejected   = "rejected"
	EventRemoved    = "removed"
)

// Event is a structured state-change notification.
type Event struct {
	Type      string        `json:"type"`
	AccountID string        `json:"account_id"`
	Username  string        `json:"username,omitempty"`
	OldStatus models.Status `json:"old_status,omitempty"`
	NewStatus models.Status `json:"new_status,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Session is a live subscriber handle owned by the Hub. The transport layer
// drains Events until the channel closes.
type Session struct {
	hub  *Hub
	id   string
	send chan Event

	mu     sync.Mutex
	closed bool
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// Events exposes the session's outbound queue. The channel is closed when
// the session is unsubscribed or dropped for backpressure.
func (s *Session) Events() <-chan Event { return s.send }

// enqueue offers an event without ever blocking. It reports false when the
// queue is full; a session that is already closed swallows the event.
func (s *Session) enqueue(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}
	select {
	case s.send <- event:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.hub.remove(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// Option customises the Hub.
type Option func(*Hub)

// WithQueueSize sets the per-session outbound queue depth.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// Hub maintains the set of connected review sessions.
type Hub struct {
	mu        sync.RWMutex
	sessions  map[*Session]struct{}
	queueSize int
	closed    bool
}

// NewHub constructs a review hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		sessions:  make(map[*Session]struct{}),
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new session with its own bounded queue. Subscribing
// to a closed hub returns an already-drained session.
func (h *Hub) Subscribe() *Session {
	s := &Session{
		hub:  h,
		id:   uuid.NewString(),
		send: make(chan Event, h.queueSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		s.mu.Lock()
		s.closed = true
		close(s.send)
		s.mu.Unlock()
		return s
	}
	h.sessions[s] = struct{}{}
	h.mu.Unlock()

	metrics.ReviewSessions.Inc()
	return s
}

// Unsubscribe detaches a session. Idempotent; safe after a backpressure drop.
func (h *Hub) Unsubscribe(s *Session) {
	if s == nil {
		return
	}
	s.close()
}

// Publish enqueues the event on every live session. Order is preserved per
// still-connected session; sessions that cannot keep up are dropped, never
// waited on, so the caller returns without ever blocking on a subscriber.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.enqueue(event) {
			metrics.EventsDropped.Inc()
			s.close()
		}
	}
}

// Len reports the number of connected sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close drops every session and refuses new subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.close()
	}
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	_, present := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()

	if present {
		metrics.ReviewSessions.Dec()
	}
}
