// Package stream fan-outs store activity events to back-office dashboard
// subscribers (SSE clients).
package stream

import (
	"context"
	"sync"
	"time"
)

// Event types published by the API layer.
const (
	EventInviteIssued   = "invite.issued"
	EventInviteRedeemed = "invite.redeemed"
	EventMemberRemoved  = "member.removed"
	EventStoreCreated   = "store.created"
)

// StoreEvent describes one piece of store activity.
type StoreEvent struct {
	LojaID    string    `json:"loja_id"`
	Type      string    `json:"type"`
	ActorID   string    `json:"actor_id,omitempty"`
	SubjectID string    `json:"subject_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan StoreEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan StoreEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan StoreEvent {
	ch := make(chan StoreEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt StoreEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
