// Package events is the in-process notification channel. Publishing is
// fire-and-forget: handlers run synchronously in subscription order, and a
// subscriber only sees events published while it is subscribed.
package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"solarcore/internal/domain"
)

// Topic is a typed event name. The type parameter fixes the payload carried on
// the topic so publishers and subscribers cannot disagree about it.
type Topic[T any] struct {
	name string
}

func (t Topic[T]) Name() string { return t.name }

// DeviceUpdated is published after a room document changed.
type DeviceUpdated struct {
	RoomID       string   `json:"room_id"`
	ApplianceIDs []string `json:"appliance_ids"`
	Origin       string   `json:"origin"`
}

// SecurityChanged carries the state after a security transition.
type SecurityChanged struct {
	State domain.SecurityState `json:"state"`
}

// AutoShutdown is published when an away countdown expires.
type AutoShutdown struct {
	SessionID string   `json:"session_id"`
	Except    []string `json:"except"`
}

// CanonicalChanged is published when a canonical record changed outside this
// process (gateway webhook). It is never published for our own writes.
type CanonicalChanged struct {
	DeviceID string `json:"device_id"`
}

var (
	TopicDeviceUpdated       = Topic[DeviceUpdated]{name: "device-updated"}
	TopicDoorLocked          = Topic[SecurityChanged]{name: "door-locked"}
	TopicDoorUnlocked        = Topic[SecurityChanged]{name: "door-unlocked"}
	TopicSecurityModeChanged = Topic[SecurityChanged]{name: "security-mode-changed"}
	TopicAutoShutdown        = Topic[AutoShutdown]{name: "auto-shutdown"}
	TopicCanonicalChanged    = Topic[CanonicalChanged]{name: "canonical-changed"}
)

// Envelope is the untyped view of an event, used by consumers that forward
// every topic (the SSE stream).
type Envelope struct {
	Topic   string    `json:"topic"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

type subscriber struct {
	id    uint64
	topic string
	fn    func(Envelope)
}

// Bus is an in-process publish/subscribe hub. Late subscribers miss
// earlier events.
type Bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber
}

// NewBus returns an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers fn for topic and returns a function that removes it.
func Subscribe[T any](b *Bus, topic Topic[T], fn func(T)) (unsubscribe func()) {
	return b.add(topic.name, func(e Envelope) {
		payload, ok := e.Payload.(T)
		if !ok {
			return
		}
		fn(payload)
	})
}

// SubscribeAll registers fn for every topic.
func (b *Bus) SubscribeAll(fn func(Envelope)) (unsubscribe func()) {
	return b.add("", fn)
}

// Publish delivers payload to the current subscribers of topic, in
// subscription order, before returning.
func Publish[T any](b *Bus, topic Topic[T], payload T) {
	b.publish(Envelope{Topic: topic.name, At: time.Now().UTC(), Payload: payload})
}

func (b *Bus) add(topic string, fn func(Envelope)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscriber{id: id, topic: topic, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) publish(e Envelope) {
	b.mu.RLock()
	targets := make([]subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.topic == "" || s.topic == e.Topic {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range targets {
		b.deliver(s, e)
	}
}

func (b *Bus) deliver(s subscriber, e Envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "topic", e.Topic, "panic", fmt.Sprint(r))
		}
	}()
	s.fn(e)
}
