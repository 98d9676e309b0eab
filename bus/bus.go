// Package bus is the agent's in-process event hub. Components publish state
// changes (interval updates, restarts, samples) and others subscribe without
// holding references to each other.
//
// Topics are slash-separated. A subscription topic ending in "/#" matches the
// prefix and everything below it. Retained messages are replayed to new
// subscribers; a retained message with a nil payload clears the slot.
package bus

import (
	"strings"
	"sync"
)

type Topic string

// T joins tokens into a topic.
func T(tokens ...string) Topic { return Topic(strings.Join(tokens, "/")) }

func (t Topic) match(pattern Topic) bool {
	if t == pattern {
		return true
	}
	p := string(pattern)
	if p == "#" {
		return true
	}
	if !strings.HasSuffix(p, "/#") {
		return false
	}
	prefix := p[:len(p)-2]
	s := string(t)
	return s == prefix || strings.HasPrefix(s, prefix+"/")
}

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

type Subscription struct {
	topic Topic
	ch    chan *Message
	bus   *Bus
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.bus.unsubscribe(s) }

type Bus struct {
	mu       sync.Mutex
	subs     []*Subscription
	retained map[Topic]*Message
	qLen     int
}

// NewBus creates a bus with the given per-subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{retained: make(map[Topic]*Message), qLen: queueLen}
}

// Publish never blocks. A full subscriber queue loses its oldest message.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		if msg.Payload == nil {
			delete(b.retained, msg.Topic)
		} else {
			b.retained[msg.Topic] = msg
		}
	}
	for _, sub := range b.subs {
		if msg.Topic.match(sub.topic) {
			deliver(sub.ch, msg)
		}
	}
}

func deliver(ch chan *Message, msg *Message) {
	for {
		select {
		case ch <- msg:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe registers interest in topic, replaying matching retained
// messages first.
func (b *Bus) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{topic: topic, ch: make(chan *Message, b.qLen), bus: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
	for t, m := range b.retained {
		if t.match(topic) {
			deliver(sub.ch, m)
		}
	}
	return sub
}

// Retained returns the retained message for an exact topic.
func (b *Bus) Retained(topic Topic) (*Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.retained[topic]
	return m, ok
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}
