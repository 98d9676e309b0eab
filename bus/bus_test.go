package bus

import (
	"sort"
	"testing"
	"time"
)

const (
	TopicInterval = "interval"
	TopicAgent    = "agent"
)

func TestBasicPubSub(t *testing.T) {
	b := NewBus(4)
	sub := b.Subscribe(T(TopicAgent, TopicInterval))

	b.Publish(&Message{Topic: T(TopicAgent, TopicInterval), Payload: "hello"})
	expectOneOf(t, sub, "hello")
}

func TestRetainedMessage(t *testing.T) {
	b := NewBus(2)
	b.Publish(&Message{Topic: "agent/interval", Payload: "persist", Retained: true})

	sub := b.Subscribe("agent/interval")
	expectOneOf(t, sub, "persist")

	if m, ok := b.Retained("agent/interval"); !ok || m.Payload != "persist" {
		t.Fatalf("Retained = %v, %v", m, ok)
	}
}

func TestRetainedClear(t *testing.T) {
	b := NewBus(2)
	b.Publish(&Message{Topic: "agent/sample", Payload: "x", Retained: true})
	b.Publish(&Message{Topic: "agent/sample", Retained: true})

	sub := b.Subscribe("agent/sample")
	expectNoMessage(t, sub)
	if _, ok := b.Retained("agent/sample"); ok {
		t.Fatal("retained slot not cleared")
	}
}

func TestWildcard_MultiLevel(t *testing.T) {
	b := NewBus(16)
	s := b.Subscribe("agent/#")

	b.Publish(&Message{Topic: "agent", Payload: "root"})
	b.Publish(&Message{Topic: "agent/interval", Payload: "one"})
	b.Publish(&Message{Topic: "agent/sample/x", Payload: "two"})
	got := drainPayloads(t, s, 3)
	assertUnorderedEqual(t, got, []string{"root", "one", "two"})

	b.Publish(&Message{Topic: "agentx/interval", Payload: "no"})
	b.Publish(&Message{Topic: "other", Payload: "no"})
	expectNoMessage(t, s)
}

func TestWildcard_RetainedDelivery(t *testing.T) {
	b := NewBus(8)
	b.Publish(&Message{Topic: "agent/interval", Payload: "a", Retained: true})
	b.Publish(&Message{Topic: "agent/sample", Payload: "b", Retained: true})
	b.Publish(&Message{Topic: "uart/rx", Payload: "c", Retained: true})

	s := b.Subscribe("agent/#")
	got := drainPayloads(t, s, 2)
	assertUnorderedEqual(t, got, []string{"a", "b"})
}

func TestFullQueueKeepsNewest(t *testing.T) {
	b := NewBus(2)
	s := b.Subscribe("agent/interval")
	for _, p := range []string{"1", "2", "3"} {
		b.Publish(&Message{Topic: "agent/interval", Payload: p})
	}
	got := drainPayloads(t, s, 2)
	if got[0] != "2" || got[1] != "3" {
		t.Fatalf("got %v, want [2 3]", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus(2)
	s := b.Subscribe("agent/interval")
	s.Unsubscribe()
	if _, ok := <-s.Channel(); ok {
		t.Fatal("channel still open")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(&Message{Topic: "agent/interval", Payload: "x"})
	s.Unsubscribe()
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func expectOneOf(t *testing.T, sub *Subscription, want string) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		s, ok := got.Payload.(string)
		if !ok || s != want {
			t.Fatalf("unexpected payload: %v (want %q)", got.Payload, want)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func expectNoMessage(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message: %#v", got)
	case <-time.After(60 * time.Millisecond):
	}
}

func drainPayloads(t *testing.T, sub *Subscription, n int) []string {
	t.Helper()
	var out []string
	deadline := time.Now().Add(300 * time.Millisecond)
	for len(out) < n && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if s, ok := m.Payload.(string); ok {
				out = append(out, s)
			} else {
				t.Fatalf("non-string payload in drain: %#v", m.Payload)
			}
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(out) != n {
		t.Fatalf("drainPayloads: expected %d messages, got %d (%v)", n, len(out), out)
	}
	return out
}

func assertUnorderedEqual(t *testing.T, got, want []string) {
	t.Helper()
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d (%v vs %v)", len(got), len(want), got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("mismatch at %d: got %q, want %q (got=%v want=%v)", i, got[i], want[i], got, want)
		}
	}
}
