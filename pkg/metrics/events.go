package metrics

import (
	"sync"
	"time"
)

// Event is one lifecycle notification pushed onto the admin surface's
// WebSocket feed: a page eviction, a bucket split/merge, or a Wound-Wait
// wound. Purely observational — nothing downstream of the buffer pool,
// hash index, or lock manager ever blocks on a subscriber draining these.
type Event struct {
	Type   string         `json:"type"`
	Detail map[string]any `json:"detail,omitempty"`
	Time   time.Time      `json:"time"`
}

// EventBroadcaster fans Publish calls out to every live subscriber. A slow
// or gone subscriber never blocks a publish: its channel is buffered and a
// full channel just drops the event rather than stalling the publisher,
// the same non-blocking-fanout shape this codebase's change-stream
// connections use for their own per-client channel.
type EventBroadcaster struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

// NewEventBroadcaster creates an empty broadcaster.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{subscribers: make(map[chan Event]struct{})}
}

// Subscribe registers a new listener, returning its event channel and an
// unsubscribe function the caller must invoke when done.
func (b *EventBroadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish sends evt to every current subscriber, dropping it for any
// subscriber whose channel is full.
func (b *EventBroadcaster) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscribers, consumed by the
// admin /_stats route.
func (b *EventBroadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// countersSnapshot is the subset of Stats() fields the poller diffs to
// derive discrete eviction/split/merge/wound events from otherwise
// monotonic counters.
type countersSnapshot struct {
	primed        bool
	poolEvictions uint64
	hashSplits    uint64
	hashMerges    uint64
	lockWounds    uint64
}

// PollEvents reads the current counters off pool/table/locks and publishes
// one event per counter that increased since the last call, carrying the
// size of the increase as the event's "count" detail, and returns the new
// snapshot to pass back in on the next call. The zero value of
// countersSnapshot is a valid starting point: its first call only primes
// the baseline and never publishes, since counters that are already
// nonzero when polling starts didn't "just happen".
func (b *EventBroadcaster) PollEvents(pool, table, locks statsSource, prev countersSnapshot) countersSnapshot {
	cur := countersSnapshot{
		primed:        true,
		poolEvictions: sumInstanceField(pool.Stats(), "evictions"),
		hashSplits:    uint64Field(table.Stats(), "splits"),
		hashMerges:    uint64Field(table.Stats(), "merges"),
		lockWounds:    uint64Field(locks.Stats(), "wounds"),
	}
	if !prev.primed {
		return cur
	}

	if d := cur.poolEvictions - prev.poolEvictions; d > 0 {
		b.Publish(Event{Type: "eviction", Detail: map[string]any{"count": d}, Time: time.Now()})
	}
	if d := cur.hashSplits - prev.hashSplits; d > 0 {
		b.Publish(Event{Type: "split", Detail: map[string]any{"count": d}, Time: time.Now()})
	}
	if d := cur.hashMerges - prev.hashMerges; d > 0 {
		b.Publish(Event{Type: "merge", Detail: map[string]any{"count": d}, Time: time.Now()})
	}
	if d := cur.lockWounds - prev.lockWounds; d > 0 {
		b.Publish(Event{Type: "wound", Detail: map[string]any{"count": d}, Time: time.Now()})
	}
	return cur
}

// Run polls pool/table/locks every interval and publishes events for any
// newly observed counter deltas until stop is closed. Callers outside this
// package (the admin server's background poller) drive the feed through
// Run rather than PollEvents directly, since countersSnapshot has no
// exported zero value to thread across calls themselves.
func (b *EventBroadcaster) Run(pool, table, locks statsSource, interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var snap countersSnapshot
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap = b.PollEvents(pool, table, locks, snap)
		}
	}
}

func uint64Field(stats map[string]any, key string) uint64 {
	v, _ := stats[key].(uint64)
	return v
}

func sumInstanceField(poolStats map[string]any, key string) uint64 {
	instances, _ := poolStats["instances"].([]map[string]any)
	var total uint64
	for _, inst := range instances {
		total += uint64Field(inst, key)
	}
	return total
}
