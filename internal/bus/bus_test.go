package bus

import "testing"

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := NewEventBus()
	var got []string
	b.Subscribe("a", func(e Event) { got = append(got, "a:"+e.Name) })
	b.Subscribe("b", func(e Event) { got = append(got, "b:"+e.Name) })

	b.Broadcast(Event{Name: "sessions.updated"})
	if len(got) != 2 {
		t.Fatalf("deliveries = %d, want 2", len(got))
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewEventBus()
	n := 0
	b.Subscribe("a", func(Event) { n++ })
	b.Broadcast(Event{Name: "x"})
	b.Unsubscribe("a")
	b.Broadcast(Event{Name: "x"})
	if n != 1 {
		t.Fatalf("deliveries = %d, want 1", n)
	}
}

func TestResubscribeReplacesHandler(t *testing.T) {
	b := NewEventBus()
	var last string
	b.Subscribe("a", func(Event) { last = "old" })
	b.Subscribe("a", func(Event) { last = "new" })
	b.Broadcast(Event{Name: "x"})
	if last != "new" {
		t.Fatalf("handler = %q, want new", last)
	}
}
