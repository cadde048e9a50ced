// Package bus implements the in-process event bus: durable publish into the
// event log, single-ingest total ordering, per-subscriber serial dispatch,
// and deterministic replay from the store.
package bus

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"ampere/pkg/eventlog"
	"ampere/pkg/logx"
	"ampere/pkg/persistence"
	"ampere/pkg/proto"
)

// Sentinel errors for errors.Is checks across the public boundary.
var (
	// ErrPersistence indicates the durable write failed; no fan-out occurred.
	ErrPersistence = errors.New("event persistence failed")

	// ErrClosed indicates the bus no longer accepts publishes.
	ErrClosed = errors.New("bus is closed")

	// ErrValidation indicates a malformed event.
	ErrValidation = errors.New("invalid event")
)

// Handler processes one event. Returned errors are logged and isolated;
// they never affect the publisher or other subscribers.
type Handler func(event *proto.Event) error

// Options tunes queue depths and replay batching.
type Options struct {
	QueueSize           int
	SubscriberQueueSize int
	ReplayBatchSize     int
	AuditLog            *eventlog.Writer
}

const (
	defaultQueueSize           = 256
	defaultSubscriberQueueSize = 64
	defaultReplayBatchSize     = 500
)

// Bus is the single-process publish/subscribe hub. Publish persists the
// event before returning; fan-out runs asynchronously through one dispatch
// goroutine so every subscriber observes the same total order.
type Bus struct {
	db       *sql.DB
	audit    *eventlog.Writer
	ingest   chan *proto.Event
	logger   *logx.Logger
	clock    proto.Clock
	replayBS int
	subQS    int

	mu          sync.RWMutex
	subscribers map[string]*subscriber

	// pubMu serializes publishes against Close: Publish holds the read side
	// across the closed-check and the ingest send, so Close cannot close the
	// channel mid-publish. Kept separate from mu because the dispatch loop
	// takes mu while draining ingest; sharing one lock would deadlock a full
	// queue against a pending Close.
	pubMu  sync.RWMutex
	closed bool

	dispatchDone chan struct{}
	subWG        sync.WaitGroup
}

type subscriber struct {
	id       string
	agentID  string
	selector Selector
	handler  Handler
	ch       chan *proto.Event
	done     chan struct{}
	once     sync.Once
}

// Subscription is a cancellable handle returned by Subscribe.
type Subscription struct {
	bus *Bus
	sub *subscriber
}

// NewBus creates a bus over an initialized database.
func NewBus(db *sql.DB, opts Options) *Bus {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.SubscriberQueueSize <= 0 {
		opts.SubscriberQueueSize = defaultSubscriberQueueSize
	}
	if opts.ReplayBatchSize <= 0 {
		opts.ReplayBatchSize = defaultReplayBatchSize
	}

	b := &Bus{
		db:           db,
		audit:        opts.AuditLog,
		ingest:       make(chan *proto.Event, opts.QueueSize),
		logger:       logx.NewLogger("bus"),
		clock:        proto.SystemClock,
		replayBS:     opts.ReplayBatchSize,
		subQS:        opts.SubscriberQueueSize,
		subscribers:  make(map[string]*subscriber),
		dispatchDone: make(chan struct{}),
	}
	go b.dispatchLoop()
	return b
}

// Publish durably writes the event, then hands it to the dispatch loop. It
// returns only after the event is persisted; if persistence fails there is
// no fan-out.
func (b *Bus) Publish(event *proto.Event) error {
	if event == nil {
		return fmt.Errorf("%w: nil event", ErrValidation)
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	b.pubMu.RLock()
	defer b.pubMu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	if err := b.persist(event); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if b.audit != nil {
		if err := b.audit.Append(event); err != nil {
			// The relational log is the source of truth; audit trail loss is
			// tolerated with a warning.
			b.logger.Warn("Audit log append failed for %s: %v", event.ID, err)
		}
	}

	publishedTotal.WithLabelValues(string(event.Type)).Inc()
	b.logger.Debug("Published %s (%s) from %s", event.Type, event.ID, event.Source)

	b.ingest <- event.Clone()
	return nil
}

func (b *Bus) persist(event *proto.Event) error {
	payload, err := event.ToJSON()
	if err != nil {
		return err
	}

	var sourceID *string
	if event.Source.Kind != proto.SourceSystem {
		sourceID = &event.Source.ID
	}

	_, err = b.db.Exec(`
		INSERT INTO event_log (event_id, event_type, event_class_type, timestamp,
			urgency, source_kind, source_id, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, string(event.Type), string(event.Class),
		persistence.ToMillis(event.Timestamp), string(event.Urgency),
		string(event.Source.Kind), sourceID, payload)
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", event.ID, err)
	}
	return nil
}

// Subscribe registers a handler for events matching the selector. Handler
// invocations for one subscription never overlap.
func (b *Bus) Subscribe(agentID string, selector Selector, handler Handler) *Subscription {
	sub := &subscriber{
		id:       proto.NewID(),
		agentID:  agentID,
		selector: selector,
		handler:  handler,
		ch:       make(chan *proto.Event, b.subQS),
		done:     make(chan struct{}),
	}

	b.mu.Lock()
	b.subscribers[sub.id] = sub
	b.mu.Unlock()
	subscriberGauge.Inc()

	b.subWG.Add(1)
	go b.subscriberLoop(sub)

	b.logger.Debug("Subscribed %s (%s) for agent %s", sub.id, selector, agentID)
	return &Subscription{bus: b, sub: sub}
}

// Cancel removes the subscription. In-flight handler invocations finish;
// queued events for this subscription are dropped.
func (s *Subscription) Cancel() {
	s.bus.mu.Lock()
	_, exists := s.bus.subscribers[s.sub.id]
	delete(s.bus.subscribers, s.sub.id)
	s.bus.mu.Unlock()

	s.sub.once.Do(func() { close(s.sub.done) })
	if exists {
		subscriberGauge.Dec()
	}
}

// dispatchLoop serializes fan-out: every subscriber sees the same order.
func (b *Bus) dispatchLoop() {
	defer close(b.dispatchDone)
	for event := range b.ingest {
		b.mu.RLock()
		subs := make([]*subscriber, 0, len(b.subscribers))
		for _, sub := range b.subscribers {
			subs = append(subs, sub)
		}
		b.mu.RUnlock()

		for _, sub := range subs {
			if !sub.selector.Matches(event) {
				continue
			}
			select {
			case sub.ch <- event:
				deliveredTotal.Inc()
			case <-sub.done:
				// Cancelled mid-dispatch; skip.
			}
		}
	}
}

// subscriberLoop drains one subscription's queue serially.
func (b *Bus) subscriberLoop(sub *subscriber) {
	defer b.subWG.Done()
	for {
		select {
		case event := <-sub.ch:
			b.invoke(sub, event)
		case <-sub.done:
			return
		}
	}
}

// invoke runs one handler call with panic isolation. Failures are logged
// and swallowed; they never suppress delivery to other subscribers.
func (b *Bus) invoke(sub *subscriber, event *proto.Event) {
	defer func() {
		if r := recover(); r != nil {
			handlerFailures.Inc()
			b.logger.Error("Handler panic in subscription %s (agent %s) on %s: %v",
				sub.id, sub.agentID, event.Type, r)
		}
	}()

	if err := sub.handler(event); err != nil {
		handlerFailures.Inc()
		b.logger.Error("Handler error in subscription %s (agent %s) on %s: %v",
			sub.id, sub.agentID, event.Type, err)
	}
}

// Replay invokes the handler synchronously for every persisted event in
// [since, until] matching the selector, in monotonic timestamp order.
// Anything published before Replay is called is visible to it.
func (b *Bus) Replay(since, until time.Time, selector Selector, handler Handler) error {
	lastTimestamp := persistence.ToMillis(since)
	lastID := ""

	for {
		rows, err := b.db.Query(`
			SELECT payload FROM event_log
			WHERE timestamp >= ? AND timestamp <= ? AND (timestamp > ? OR event_id > ?)
			ORDER BY timestamp, event_id
			LIMIT ?`,
			persistence.ToMillis(since), persistence.ToMillis(until),
			lastTimestamp, lastID, b.replayBS)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}

		var batch []*proto.Event
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				_ = rows.Close()
				return fmt.Errorf("%w: %w", ErrPersistence, err)
			}
			event, err := proto.EventFromJSON(payload)
			if err != nil {
				_ = rows.Close()
				return fmt.Errorf("failed to decode persisted event: %w", err)
			}
			batch = append(batch, event)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
		_ = rows.Close()

		if len(batch) == 0 {
			return nil
		}
		for _, event := range batch {
			lastTimestamp = persistence.ToMillis(event.Timestamp)
			lastID = event.ID
			if !selector.Matches(event) {
				continue
			}
			if err := handler(event); err != nil {
				return fmt.Errorf("replay handler failed on %s: %w", event.ID, err)
			}
		}
		if len(batch) < b.replayBS {
			return nil
		}
	}
}

// PendingEventCount reports events accepted but not yet handed to a
// subscriber queue, plus events sitting in subscriber queues.
func (b *Bus) PendingEventCount() int {
	pending := len(b.ingest)
	b.mu.RLock()
	for _, sub := range b.subscribers {
		pending += len(sub.ch)
	}
	b.mu.RUnlock()
	return pending
}

// Stats is a point-in-time snapshot for diagnostics.
type Stats struct {
	Subscribers   int `json:"subscribers"`
	PendingEvents int `json:"pending_events"`
}

// GetStats returns current bus statistics.
func (b *Bus) GetStats() Stats {
	b.mu.RLock()
	subscribers := len(b.subscribers)
	b.mu.RUnlock()
	return Stats{
		Subscribers:   subscribers,
		PendingEvents: b.PendingEventCount(),
	}
}

// Close stops accepting publishes, drains the dispatch queue, and stops all
// subscriber loops after their queued events are delivered.
func (b *Bus) Close() error {
	b.pubMu.Lock()
	if b.closed {
		b.pubMu.Unlock()
		return nil
	}
	b.closed = true
	// No publisher holds the read side here, so none is in the send window.
	close(b.ingest)
	b.pubMu.Unlock()
	<-b.dispatchDone

	// Let subscriber queues drain before signalling done.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && b.PendingEventCount() > 0 {
		time.Sleep(5 * time.Millisecond)
	}

	b.mu.Lock()
	for id, sub := range b.subscribers {
		sub.once.Do(func() { close(sub.done) })
		delete(b.subscribers, id)
		subscriberGauge.Dec()
	}
	b.mu.Unlock()

	b.subWG.Wait()
	b.logger.Info("Bus closed")
	return nil
}
