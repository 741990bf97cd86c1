package eventbus

import "testing"

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Kind: CycleBacklog, Tick: 42})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Kind != CycleBacklog || e.Tick != 42 {
			t.Fatalf("unexpected event %+v", e)
		}
		if e.Time.IsZero() {
			t.Fatal("Publish should stamp Time")
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Kind: RunStarted})
	b.Publish(Event{Kind: RunStopped}) // dropped, must not block

	if e := <-ch; e.Kind != RunStarted {
		t.Fatalf("got %s, want %s", e.Kind, RunStarted)
	}
	select {
	case e := <-ch:
		t.Fatalf("expected drop, got %+v", e)
	default:
	}
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	b.Publish(Event{Kind: RunStopped})
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	Discard.Publish(Event{Kind: RunStarted})
	ch, unsub := Discard.Subscribe(1)
	defer unsub()
	if _, ok := <-ch; ok {
		t.Fatal("discard subscription should be closed")
	}
}
