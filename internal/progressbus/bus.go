package progressbus

import "sync"

// DefaultBufferSize is the per-subscriber channel capacity, per spec
// §9's "per-subscriber bounded buffers".
const DefaultBufferSize = 256

// allSyncs is the filter value a subscriber passes to receive events for
// every sync run, per spec §6.3's `syncId=*`.
const allSyncs = "*"

// Bus is the ProgressBus. The zero value is not usable; use New.
type Bus struct {
	bufferSize int

	mu   sync.RWMutex
	subs map[uint64]*subscriber
	next uint64
}

// New creates a Bus. bufferSize <= 0 uses DefaultBufferSize.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Bus{bufferSize: bufferSize, subs: make(map[uint64]*subscriber)}
}

// Subscribe attaches a new subscriber filtered to syncID ("*" for every
// sync). The returned channel delivers events in this subscriber's
// per-sync order until the returned unsubscribe func is called; the
// caller must call it exactly once to release resources.
func (b *Bus) Subscribe(syncID string) (<-chan Event, func()) {
	if syncID == "" {
		syncID = allSyncs
	}

	s := &subscriber{syncID: syncID, ch: make(chan Event, b.bufferSize)}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = s
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}

	return s.ch, unsubscribe
}

// Publish fans event out to every matching subscriber. Never blocks: a
// subscriber that cannot keep up has its oldest buffered event dropped and
// a consolidated Lagged marker queued in its place (spec §4.5).
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subs))

	for _, s := range b.subs {
		if s.syncID == allSyncs || s.syncID == event.SyncID {
			targets = append(targets, s)
		}
	}

	b.mu.RUnlock()

	for _, s := range targets {
		s.send(event)
	}
}

// SubscriberCount reports how many subscribers are currently attached,
// for health reporting and tests.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

// subscriber owns one bounded event channel. sendMu serializes the
// drop-oldest dance below so concurrent publishers never race on which
// event gets dropped.
type subscriber struct {
	syncID string
	ch     chan Event

	sendMu  sync.Mutex
	dropped int
}

func (s *subscriber) send(event Event) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	select {
	case s.ch <- event:
		return
	default:
	}

	// Full: drop the oldest buffered events until the Lagged marker and the
	// new event both fit. A dropped Lagged marker's count is carried over.
	for len(s.ch) > 0 && cap(s.ch)-len(s.ch) < 2 {
		select {
		case old := <-s.ch:
			if old.Type == EventLagged && old.Lagged != nil {
				s.dropped += old.Lagged.Dropped
			} else {
				s.dropped++
			}
		default:
		}
	}

	if s.dropped > 0 {
		lagged := Event{Type: EventLagged, SyncID: event.SyncID, Lagged: &LaggedData{Dropped: s.dropped}}

		select {
		case s.ch <- lagged:
			s.dropped = 0
		default:
		}
	}

	select {
	case s.ch <- event:
	default:
		s.dropped++
	}
}
