package chat

import (
	"sync"

	"go.uber.org/zap"

	"github.com/pocketchat/pocketchat-go/pkg/domain"
)

// EventType identifies an engine event
type EventType string

const (
	EventStateChanged        EventType = "state_changed"
	EventUserMessage         EventType = "user_message"
	EventAssistantDelta      EventType = "assistant_delta"
	EventAssistantMessage    EventType = "assistant_message"
	EventSuggestions         EventType = "suggestions"
	EventTurnFailed          EventType = "turn_failed"
	EventConversationRenewed EventType = "conversation_renewed"
	EventMessagesCleared     EventType = "messages_cleared"
	EventOpenRequested       EventType = "open_requested"
)

// Event is one engine notification. Fields beyond Type are populated
// per event type: State for state changes, Message for message appends,
// Delta for live draft text, Replies/Products for suggestion commits,
// Err for failed turns, ConversationID for renewals.
type Event struct {
	Type           EventType
	State          State
	Message        *domain.Message
	Delta          string
	Replies        []string
	Products       []domain.ProductSuggestion
	Err            *Error
	ConversationID string
}

const subscriberBuffer = 64

// emitter fans engine events out to subscribers. Delivery is
// non-blocking: a subscriber that stops draining loses events rather
// than stalling the engine.
type emitter struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
	log    *zap.Logger
}

func newEmitter(log *zap.Logger) *emitter {
	return &emitter{
		subs: make(map[int]chan Event),
		log:  log,
	}
}

func (em *emitter) subscribe() (<-chan Event, func()) {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	id := em.nextID
	em.nextID++
	ch := make(chan Event, subscriberBuffer)
	em.subs[id] = ch

	return ch, func() { em.unsubscribe(id) }
}

func (em *emitter) unsubscribe(id int) {
	em.mu.Lock()
	defer em.mu.Unlock()

	if ch, ok := em.subs[id]; ok {
		delete(em.subs, id)
		close(ch)
	}
}

func (em *emitter) publish(ev Event) {
	em.mu.Lock()
	defer em.mu.Unlock()

	for _, ch := range em.subs {
		select {
		case ch <- ev:
		default:
			em.log.Debug("dropping event for slow subscriber",
				zap.String("type", string(ev.Type)))
		}
	}
}

func (em *emitter) close() {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.closed {
		return
	}
	em.closed = true
	for id, ch := range em.subs {
		delete(em.subs, id)
		close(ch)
	}
}
