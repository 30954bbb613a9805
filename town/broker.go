package town

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/ksuid"
)

// subscriberBufferSize bounds each subscriber's outbound queue. A subscriber
// that falls this far behind starts losing events; the next full sync on
// reconnect repairs it, since the store stays the single source of truth.
const subscriberBufferSize = 64

// Subscription is one live client's private event feed.
type Subscription struct {
	ID     ksuid.KSUID
	Events <-chan Event

	events chan Event
	broker *Broker
	closed bool
}

// Close releases the subscription. Safe to call from any exit path; the
// broker ignores repeated closes.
func (s *Subscription) Close() {
	select {
	case s.broker.closingClients <- s:
	case <-s.broker.done:
	}
}

// Broker fans every published event out to all live subscriptions. Events
// travel through the backing's pub/sub channel so every process sees them;
// if the backing cannot deliver, the event is fanned out locally instead and
// the failure is logged, never surfaced to the mutation caller.
type Broker struct {
	backing  Backing
	store    *Store
	presence *Presence

	newClients     chan *Subscription
	closingClients chan *Subscription
	local          chan Event
	subscribers    map[*Subscription]struct{}

	cancelPump func()
	done       chan struct{}
}

func NewBroker(backing Backing, store *Store, presence *Presence) *Broker {
	broker := &Broker{
		backing:        backing,
		store:          store,
		presence:       presence,
		newClients:     make(chan *Subscription),
		closingClients: make(chan *Subscription),
		local:          make(chan Event, subscriberBufferSize),
		subscribers:    make(map[*Subscription]struct{}),
		done:           make(chan struct{}),
	}

	pump, cancel := backing.Subscribe(context.Background(), eventsChannel)
	broker.cancelPump = cancel

	go broker.listen(pump)

	return broker
}

// Subscribe registers a new client feed. The feed immediately receives a
// synthetic full event with the current state and a users event with the
// current roster, so late joiners reconcile without delta replay.
func (b *Broker) Subscribe() *Subscription {
	sub := &Subscription{
		ID:     ksuid.New(),
		events: make(chan Event, subscriberBufferSize),
		broker: b,
	}
	sub.Events = sub.events
	select {
	case b.newClients <- sub:
	case <-b.done:
		sub.closed = true
		close(sub.events)
	}
	return sub
}

// Publish broadcasts an event to every subscriber, in every process sharing
// the backing. Fire-and-forget.
func (b *Broker) Publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal failed, dropping broadcast: %v", err)
		return
	}
	if err := b.backing.Publish(context.Background(), eventsChannel, payload); err != nil {
		log.Printf("backing publish failed, delivering locally: %v", err)
		select {
		case b.local <- event:
		case <-b.done:
		}
	}
}

// PublishUsers broadcasts the current online roster.
func (b *Broker) PublishUsers() {
	b.Publish(UsersEvent(b.presence.List()))
}

// Close tears down the pump and every live subscription.
func (b *Broker) Close() {
	b.cancelPump()
	close(b.done)
}

func (b *Broker) listen(pump <-chan []byte) {
	for {
		select {
		case sub := <-b.newClients:
			b.subscribers[sub] = struct{}{}
			sub.events <- FullEvent(b.store.Get())
			sub.events <- UsersEvent(b.presence.List())
			log.Printf("subscriber %s added, %d live", sub.ID, len(b.subscribers))

		case sub := <-b.closingClients:
			if sub.closed {
				continue
			}
			sub.closed = true
			delete(b.subscribers, sub)
			close(sub.events)
			log.Printf("subscriber %s removed, %d live", sub.ID, len(b.subscribers))

		case payload, ok := <-pump:
			if !ok {
				b.closeAll()
				return
			}
			var event Event
			if err := json.Unmarshal(payload, &event); err != nil {
				log.Printf("unreadable event on %s, skipping: %v", eventsChannel, err)
				continue
			}
			b.fanOut(event)

		case event := <-b.local:
			b.fanOut(event)

		case <-b.done:
			b.closeAll()
			return
		}
	}
}

func (b *Broker) fanOut(event Event) {
	for sub := range b.subscribers {
		select {
		case sub.events <- event:
		default:
			log.Printf("subscriber %s not draining, dropped %s event", sub.ID, event.Type)
		}
	}
}

func (b *Broker) closeAll() {
	for sub := range b.subscribers {
		sub.closed = true
		delete(b.subscribers, sub)
		close(sub.events)
	}
}
