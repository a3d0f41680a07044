/*
Package eventbus is the Epoch Engine's commit-notification broker: every
successful pkg/core.Delegate/Invoke publishes one Event per touched space
after its transaction commits, so a caller (a websocket gateway, a replication
sidecar, an audit sink) can subscribe without pkg/core knowing who is
listening.

Adapted from the teacher's pkg/events.Broker — same buffered fan-out
shape (one internal channel plus one buffered channel per subscriber,
dropping on a full subscriber rather than blocking the publisher) — with
the warren cluster-event taxonomy (service/task/node/secret/volume)
replaced by TinyCloud's own (space/delegation/revocation/invocation).
*/
package eventbus

import (
	"sync"
	"time"

	"github.com/TinyCloudLabs/tinycloud-node/pkg/tctypes"
)

// Type names the kind of a committed event.
type Type string

const (
	SpaceCreated        Type = "space.created"
	DelegationCommitted Type = "delegation.committed"
	RevocationCommitted Type = "revocation.committed"
	InvocationCommitted Type = "invocation.committed"
)

// Event is one committed fact, published after its metadb transaction
// has already succeeded — a subscriber never sees an event for a write
// that didn't durably commit.
type Event struct {
	Type      Type
	Timestamp time.Time
	Space     tctypes.SpaceID // zero value for space.created's own announcement target
	EventCID  string          // the committed delegation/revocation/invocation's hash
	Actor     tctypes.DID
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker manages event subscriptions and distribution.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers. Safe to call on a nil
// *Broker — callers that never configured a bus still get to call
// Publish unconditionally.
func (b *Broker) Publish(event *Event) {
	if b == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
