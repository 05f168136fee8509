// Package events provides the typed in-process event bus.
//
// The sync engine publishes events here instead of calling into UI code;
// subscribers (dashboard, CLI, tests) receive them over channels. Publish
// never blocks: a subscriber that falls behind loses events rather than
// stalling the sync cycle.
package events

import (
	"log"
	"sync"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	TypeTaskCreated     Type = "task_created"
	TypeTaskUpdated     Type = "task_updated"
	TypeTaskDeleted     Type = "task_deleted"
	TypeCategoryCreated Type = "category_created"
	TypeCategoryUpdated Type = "category_updated"
	TypeCategoryDeleted Type = "category_deleted"

	TypeSyncStarted   Type = "sync_started"
	TypeSyncCompleted Type = "sync_completed"
	TypeSyncFailed    Type = "sync_failed"

	// TypeConflictResolved is emitted whenever conflict resolution picks a
	// winner during a pull. Not an error; an observability event.
	TypeConflictResolved Type = "conflict_resolved"

	TypeOperationEnqueued Type = "operation_enqueued"
	TypeOperationSynced   Type = "operation_synced"
	TypeOperationFailed   Type = "operation_failed"

	TypeOnline  Type = "online"
	TypeOffline Type = "offline"
)

// Resolution values carried by conflict events.
const (
	ResolutionLocal  = "local"
	ResolutionRemote = "remote"
)

// Event is one bus message.
type Event struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// EntityType and EntityID identify the affected record, when any.
	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`

	// Resolution is set on conflict_resolved events: "local" or "remote".
	Resolution string `json:"resolution,omitempty"`

	// Error carries the failure message on *_failed events.
	Error string `json:"error,omitempty"`
}

const subscriberBuffer = 64

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	logger *log.Logger
}

// NewBus creates an event bus. A nil logger suppresses drop warnings.
func NewBus(logger *log.Logger) *Bus {
	return &Bus{
		subs:   make(map[int]chan Event),
		logger: logger,
	}
}

// Subscribe registers a new subscriber. The returned cancel func removes
// the subscription and closes the channel; it is safe to call twice.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers the event to all subscribers without blocking.
// The timestamp is stamped if unset.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			if b.logger != nil {
				b.logger.Printf("Warning: subscriber full, dropping %s event", evt.Type)
			}
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
