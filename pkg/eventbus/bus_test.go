package eventbus

import (
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	b := New()
	events, unsub := b.Subscribe(4)
	defer unsub()

	b.Publish(Event{Type: "x.one", Data: 1})
	b.Publish(Event{Type: "x.two", Data: 2})

	for i, want := range []string{"x.one", "x.two"} {
		select {
		case e := <-events:
			if e.Type != want {
				t.Fatalf("event %d: type = %q, want %q", i, e.Type, want)
			}
			if e.Time.IsZero() {
				t.Fatalf("event %d: zero time not stamped", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d never arrived", i)
		}
	}
}

func TestSlowSubscriberDropsNewestEvents(t *testing.T) {
	b := New()
	events, unsub := b.Subscribe(1)
	defer unsub()

	// Publish must never block; past the buffer, events are dropped.
	for i := 0; i < 3; i++ {
		b.Publish(Event{Type: "x"})
	}
	if got := len(events); got != 1 {
		t.Fatalf("buffered events = %d, want 1", got)
	}
}

func TestUnsubscribeStopsDeliveryAndClosesChannel(t *testing.T) {
	b := New()
	events, unsub := b.Subscribe(4)

	unsub()
	unsub() // idempotent

	// Publishing after unsubscribe must not panic on the closed channel.
	b.Publish(Event{Type: "x"})

	if _, ok := <-events; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
}

func TestSubscribersAreIndependent(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	unsubA()
	b.Publish(Event{Type: "x"})

	if _, ok := <-a; ok {
		t.Fatal("unsubscribed channel received an event")
	}
	select {
	case e := <-c:
		if e.Type != "x" {
			t.Fatalf("type = %q", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("remaining subscriber never received the event")
	}
}
