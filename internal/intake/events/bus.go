// Package events fans session notifications out to in-process subscribers.
package events

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/pricewatch/intake-core/internal/intake/model"
	logx "github.com/pricewatch/intake-core/pkg/logger"
)

const DefaultBuffer = 16

// Bus delivers events per session. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	buffer int
	closed bool
	log    zerolog.Logger
}

type subscription struct {
	ch   chan model.SessionEvent
	once sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		subs:   make(map[string]map[*subscription]struct{}),
		buffer: buffer,
		log:    logx.Component("events"),
	}
}

// Subscribe returns a channel of events for the session and a function that
// cancels the subscription. The channel is closed on cancel or Close.
func (b *Bus) Subscribe(sessionID string) (<-chan model.SessionEvent, func()) {
	sub := &subscription{ch: make(chan model.SessionEvent, b.buffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*subscription]struct{})
	}
	b.subs[sessionID][sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[sessionID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, sessionID)
			}
		}
		b.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// Publish delivers ev to every subscriber of ev.SessionID.
func (b *Bus) Publish(ev model.SessionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs[ev.SessionID] {
		select {
		case sub.ch <- ev:
		default:
			b.log.Warn().
				Str("session_id", ev.SessionID).
				Str("event", string(ev.Kind)).
				Msg("subscriber buffer full, event dropped")
		}
	}
}

// Close ends every subscription. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, set := range b.subs {
		for sub := range set {
			sub.close()
		}
		delete(b.subs, id)
	}
}
