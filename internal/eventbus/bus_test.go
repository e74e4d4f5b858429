package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	a, ua := b.Subscribe(4)
	c, uc := b.Subscribe(4)
	defer ua()
	defer uc()

	b.Publish(Event{Type: DispatchSent, Data: int64(3)})
	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != DispatchSent || e.Time.IsZero() {
				t.Fatalf("unexpected event %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if e := <-ch; e.Type != "a" {
		t.Fatalf("first event = %q, want a", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected buffered event %q", e.Type)
	default:
	}
	unsub()
	unsub()
	b.Publish(Event{Type: "after"})
	if _, ok := <-ch; ok {
		t.Fatal("channel open after unsubscribe")
	}
}

func TestSubscribePrefixFilter(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4, "dispatch.")
	defer unsub()

	b.Publish(Event{Type: SchedulerCycle})
	b.Publish(Event{Type: DispatchFailed})
	b.Publish(Event{Type: NotifierSent})

	if e := <-ch; e.Type != DispatchFailed {
		t.Fatalf("got %q, want %q", e.Type, DispatchFailed)
	}
	select {
	case e := <-ch:
		t.Fatalf("filtered event delivered: %q", e.Type)
	default:
	}
	if n := b.Dropped(); n != 0 {
		t.Fatalf("dropped = %d, want 0", n)
	}
}

func TestDroppedCounts(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()
	for range 3 {
		b.Publish(Event{Type: DispatchSent})
	}
	if n := b.Dropped(); n != 2 {
		t.Fatalf("dropped = %d, want 2", n)
	}
}
