package metrics

import (
	"testing"
	"time"
)

func TestEventBroadcasterPublishDeliversToSubscribers(t *testing.T) {
	b := NewEventBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(Event{Type: "eviction", Time: time.Now()})

	select {
	case evt := <-ch:
		if evt.Type != "eviction" {
			t.Fatalf("evt.Type = %q, want eviction", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the published event")
	}
}

func TestEventBroadcasterCancelStopsDelivery(t *testing.T) {
	b := NewEventBroadcaster()
	_, cancel := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", b.SubscriberCount())
	}
	cancel()
	if b.SubscriberCount() != 0 {
		t.Fatalf("SubscriberCount() = %d after cancel, want 0", b.SubscriberCount())
	}
}

func TestEventBroadcasterFullChannelDropsRatherThanBlocks(t *testing.T) {
	b := NewEventBroadcaster()
	_, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: "eviction", Time: time.Now()})
	}
	// Publish must never block regardless of how full the subscriber's
	// channel gets; reaching this point is the assertion.
}

func TestPollEventsFirstCallNeverPublishesBaseline(t *testing.T) {
	b := NewEventBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	pool := &fakeStatsSource{stats: map[string]any{"instances": []map[string]any{{"evictions": uint64(5)}}}}
	table := &fakeStatsSource{stats: map[string]any{"splits": uint64(3), "merges": uint64(1)}}
	locks := &fakeStatsSource{stats: map[string]any{"wounds": uint64(2)}}

	snap := b.PollEvents(pool, table, locks, countersSnapshot{})

	select {
	case evt := <-ch:
		t.Fatalf("baseline poll must not publish, got %v", evt)
	case <-time.After(50 * time.Millisecond):
	}

	pool.stats["instances"] = []map[string]any{{"evictions": uint64(6)}}
	b.PollEvents(pool, table, locks, snap)

	select {
	case evt := <-ch:
		if evt.Type != "eviction" {
			t.Fatalf("evt.Type = %q, want eviction", evt.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an eviction event after the counter increased")
	}
}
