package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// FavoritesChanged is published after every successful favorites mutation.
// It carries no payload; listeners re-query the store.
const FavoritesChanged = "favorites-changed"

// FavoritesChangedFor names the channel that only carries the changes of
// one backend, so listeners of other users are not woken up.
func FavoritesChangedFor(scope string) string {
	return FavoritesChanged + ":" + scope
}

type Handler func()

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an in-process publish/subscribe channel registry. Handlers run
// synchronously on the publisher's goroutine, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
	logger *logrus.Logger
}

func NewBus(logger *logrus.Logger) *Bus {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bus{
		subs:   make(map[string][]subscription),
		logger: logger,
	}
}

// Subscribe registers handler on channel and returns a function removing it.
// The returned function is safe to call more than once.
func (b *Bus) Subscribe(channel string, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[channel] = append(b.subs[channel], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(channel, id) })
	}
}

func (b *Bus) remove(channel string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[channel]
	for i, s := range subs {
		if s.id == id {
			// copy so an in-flight Publish keeps iterating its own snapshot
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, channel)
			} else {
				b.subs[channel] = next
			}
			return
		}
	}
}

// Publish notifies every handler subscribed to channel at the time of the
// call. Handlers may subscribe, unsubscribe or publish again.
func (b *Bus) Publish(channel string) {
	b.mu.RLock()
	subs := b.subs[channel]
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(channel, s)
	}
}

func (b *Bus) deliver(channel string, s subscription) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"channel":      channel,
				"subscription": s.id,
				"panic":        r,
			}).Error("Event handler panicked")
		}
	}()
	s.handler()
}

func (b *Bus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Clear drops every subscription on every channel.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.subs = make(map[string][]subscription)
	b.mu.Unlock()
}
