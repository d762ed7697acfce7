package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pocketchat/pocketchat-go/pkg/domain"
	"github.com/pocketchat/pocketchat-go/pkg/extract"
	"github.com/pocketchat/pocketchat-go/pkg/session"
	"github.com/pocketchat/pocketchat-go/pkg/sse"
)

// State is the engine's lifecycle position. An error leaves the engine
// idle with LastError set.
type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateStreaming State = "streaming"
)

// Config carries the engine's connection settings
type Config struct {
	// APIURL is the chat endpoint messages are posted to
	APIURL string
	// Headers are merged verbatim into every request (auth tokens etc.)
	Headers map[string]string
	// Params are merged verbatim into every request body, after the
	// standard fields, so they may override them
	Params map[string]any
	// Client overrides the default HTTP client when set
	Client *resty.Client
}

// Engine owns one conversation: the request/stream lifecycle, the
// assistant draft, suggestion arbitration, and snapshot persistence
// after every state change. It is the single writer of the identity
// store and the conversation cache; hosts observe it through Subscribe
// and the read-only accessors.
type Engine struct {
	cfg    Config
	ids    *session.Identity
	cache  *session.Cache
	client *resty.Client
	log    *zap.Logger

	mu         sync.Mutex
	state      State
	lastErr    *Error
	messages   []domain.Message
	replies    []string
	products   []domain.ProductSuggestion
	draft      strings.Builder
	convID     string
	generation uint64
	cancel     context.CancelFunc
	closed     bool

	emitter *emitter
}

// New creates an engine and restores the current conversation's
// snapshot, when a valid one exists
func New(cfg Config, ids *session.Identity, cache *session.Cache, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	client := cfg.Client
	if client == nil {
		client = resty.New()
	}

	e := &Engine{
		cfg:     cfg,
		ids:     ids,
		cache:   cache,
		client:  client,
		log:     log,
		state:   StateIdle,
		emitter: newEmitter(log),
	}

	e.convID = ids.ConversationID()
	if snap := cache.Load(e.convID); snap != nil {
		e.messages = snap.Messages
		e.replies = snap.SuggestedReplies
		e.products = snap.ProductSuggestions
		log.Info("conversation restored",
			zap.String("conversation_id", e.convID),
			zap.Int("messages", len(e.messages)))
	}

	return e
}

// Send posts a user message and blocks through the full turn: request,
// stream, commit. It returns nil on success and on silent cancellation
// (explicit abort or a superseding Send), domain.ErrBlankMessage for
// blank text, and a *Error for failed turns. A Send entering while
// another turn is in flight cancels that turn and takes over.
func (e *Engine) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return domain.ErrBlankMessage
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.ErrEngineClosed
	}

	// Supersede any in-flight turn before starting this one
	e.abortLocked()
	gen := e.generation

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.lastErr = nil

	userMsg := domain.Message{
		ID:        uuid.New().String(),
		Role:      domain.RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	}
	e.messages = append(e.messages, userMsg)
	e.emitter.publish(Event{Type: EventUserMessage, Message: &userMsg})

	if len(e.replies) > 0 || len(e.products) > 0 {
		e.replies = nil
		e.products = nil
		e.emitter.publish(Event{Type: EventSuggestions})
	}

	e.setStateLocked(StateSending)
	e.persistLocked()
	body := e.requestBodyLocked()
	e.mu.Unlock()

	return e.run(ctx, gen, body)
}

// Abort cancels any in-flight turn, discarding its draft. Not an error:
// the engine just returns to idle.
func (e *Engine) Abort() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.abortLocked()
	e.setStateLocked(StateIdle)
}

// StartNewChat renews the conversation id and empties the live state.
// The old conversation's cache record is left in place, orphaned; the
// next state change writes a fresh snapshot under the new id.
func (e *Engine) StartNewChat() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return e.convID
	}

	e.abortLocked()
	e.convID = e.ids.RenewConversation()
	e.messages = nil
	e.replies = nil
	e.products = nil
	e.lastErr = nil
	e.setStateLocked(StateIdle)
	e.emitter.publish(Event{Type: EventConversationRenewed, ConversationID: e.convID})

	e.log.Info("conversation renewed", zap.String("conversation_id", e.convID))
	return e.convID
}

// ClearMessages empties the live state and deletes the cache record.
// The conversation id is kept.
func (e *Engine) ClearMessages() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}

	e.abortLocked()
	e.messages = nil
	e.replies = nil
	e.products = nil
	e.lastErr = nil
	e.cache.Clear()
	e.setStateLocked(StateIdle)
	e.emitter.publish(Event{Type: EventMessagesCleared})
}

// RequestOpen signals subscribers to surface the chat UI. Any host
// component may call it from anywhere; the widget shell decides what
// opening means.
func (e *Engine) RequestOpen() {
	e.emitter.publish(Event{Type: EventOpenRequested})
}

// Subscribe registers an event consumer. The returned function
// unsubscribes and closes the channel.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	return e.emitter.subscribe()
}

// Close aborts in-flight work and closes all subscriber channels.
// Subsequent Sends return domain.ErrEngineClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.abortLocked()
	e.mu.Unlock()

	e.emitter.close()
}

// State returns the current lifecycle position
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastError returns the previous turn's failure, nil when it succeeded.
// Cleared when the next Send is accepted.
func (e *Engine) LastError() *Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Messages returns a copy of the conversation history
func (e *Engine) Messages() []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// SuggestedReplies returns a copy of the current one-tap replies
func (e *Engine) SuggestedReplies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, len(e.replies))
	copy(out, e.replies)
	return out
}

// ProductSuggestions returns a copy of the current product references
func (e *Engine) ProductSuggestions() []domain.ProductSuggestion {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.ProductSuggestion, len(e.products))
	copy(out, e.products)
	return out
}

// Draft returns the assistant text accumulated so far for the in-flight
// turn, empty when idle
func (e *Engine) Draft() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft.String()
}

// ConversationID returns the id of the live conversation
func (e *Engine) ConversationID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.convID
}

// SessionID returns the durable visitor id
func (e *Engine) SessionID() string {
	return e.ids.SessionID()
}

// run drives one turn from request to commit. gen ties it to its right
// to mutate terminal state: once the engine moves past this generation
// (supersede, abort, renew, clear) every outcome here becomes a no-op.
func (e *Engine) run(ctx context.Context, gen uint64, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return e.fail(gen, &Error{Category: CategoryUnknown, Message: "failed to encode request", Err: err})
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "text/event-stream").
		SetHeaders(e.cfg.Headers).
		SetBody(payload).
		SetDoNotParseResponse(true).
		Post(e.cfg.APIURL)
	if err != nil {
		if ctx.Err() != nil {
			return e.finishCancelled(gen, ctx.Err())
		}
		return e.fail(gen, &Error{Category: CategoryNetwork, Message: err.Error(), Err: err})
	}

	raw := resp.RawBody()
	defer raw.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		status := resp.StatusCode()
		return e.fail(gen, &Error{
			Category: CategoryAPI,
			Status:   status,
			Message:  apiErrorMessage(raw, status),
		})
	}

	if !e.transition(gen, StateStreaming) {
		return nil
	}

	var (
		replies      []string
		products     []domain.ProductSuggestion
		repliesSeen  bool
		productsSeen bool
	)

	reader := bufio.NewReader(raw)
	done := false
	for !done {
		if cerr := ctx.Err(); cerr != nil {
			return e.finishCancelled(gen, cerr)
		}

		line, rerr := reader.ReadString('\n')
		if line != "" {
			// A trailing unterminated line at EOF still counts
			if ev, ok := sse.ParseLine(strings.TrimRight(line, "\r\n")); ok {
				switch ev.Type {
				case sse.EventTextChunk:
					e.appendDelta(gen, ev.Text)
				case sse.EventSuggestedReplies:
					replies, repliesSeen = ev.Replies, true
				case sse.EventProductSuggestions:
					products, productsSeen = ev.Products, true
				case sse.EventError:
					return e.fail(gen, &Error{Category: CategoryAPI, Message: ev.Message})
				case sse.EventDone:
					done = true
				}
			}
		}
		if rerr != nil {
			if cerr := ctx.Err(); cerr != nil {
				return e.finishCancelled(gen, cerr)
			}
			// Closure without a done frame, clean or abrupt, is a
			// normal end of stream
			done = true
		}
	}

	return e.commit(gen, repliesSeen, replies, productsSeen, products)
}

// appendDelta grows the draft and notifies subscribers, unless this
// turn has been superseded
func (e *Engine) appendDelta(gen uint64, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation {
		return
	}
	e.draft.WriteString(text)
	e.emitter.publish(Event{Type: EventAssistantDelta, Delta: text})
}

// commit finishes a successful turn: extractor fallback for whichever
// suggestion category the stream did not populate, then exactly one
// assistant message, then the suggestions, each change persisted in
// order.
func (e *Engine) commit(gen uint64, repliesSeen bool, replies []string, productsSeen bool, products []domain.ProductSuggestion) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation || e.closed {
		return nil
	}

	content := e.draft.String()
	if !repliesSeen {
		if clean, extracted, ok := extract.SuggestedReplies(content); ok {
			content, replies = clean, extracted
		}
	}
	if !productsSeen {
		if clean, extracted, ok := extract.ProductSuggestions(content); ok {
			content, products = clean, extracted
		}
	}

	assistant := domain.Message{
		ID:        uuid.New().String(),
		Role:      domain.RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	}
	e.messages = append(e.messages, assistant)
	e.persistLocked()
	e.emitter.publish(Event{Type: EventAssistantMessage, Message: &assistant})

	e.replies = replies
	e.products = products
	e.persistLocked()
	e.emitter.publish(Event{
		Type:     EventSuggestions,
		Replies:  append([]string(nil), replies...),
		Products: append([]domain.ProductSuggestion(nil), products...),
	})

	e.draft.Reset()
	e.releaseLocked()
	e.setStateLocked(StateIdle)
	return nil
}

// fail ends a turn in idle with LastError set. History is never rolled
// back; the user message stays with no assistant reply.
func (e *Engine) fail(gen uint64, turnErr *Error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation || e.closed {
		return nil
	}

	e.lastErr = turnErr
	e.draft.Reset()
	e.releaseLocked()
	e.setStateLocked(StateIdle)
	e.emitter.publish(Event{Type: EventTurnFailed, Err: turnErr})

	e.log.Warn("chat turn failed",
		zap.String("category", string(turnErr.Category)),
		zap.String("message", turnErr.Message),
		zap.Error(turnErr.Err))
	return turnErr
}

// finishCancelled absorbs a cancellation silently, or classifies a
// caller-imposed deadline as a timeout failure
func (e *Engine) finishCancelled(gen uint64, cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return e.fail(gen, &Error{Category: CategoryTimeout, Message: "request deadline exceeded", Err: cause})
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation || e.closed {
		return nil
	}

	e.draft.Reset()
	e.releaseLocked()
	e.setStateLocked(StateIdle)
	return nil
}

func (e *Engine) transition(gen uint64, s State) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.generation || e.closed {
		return false
	}
	e.setStateLocked(s)
	return true
}

// abortLocked cancels the in-flight turn and advances the generation,
// orphaning any of its pending commits
func (e *Engine) abortLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.generation++
	e.draft.Reset()
}

func (e *Engine) releaseLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *Engine) setStateLocked(s State) {
	if e.state == s {
		return
	}
	e.state = s
	e.emitter.publish(Event{Type: EventStateChanged, State: s})
}

func (e *Engine) persistLocked() {
	e.cache.Save(&domain.Snapshot{
		ConversationID:     e.convID,
		Messages:           e.messages,
		SuggestedReplies:   e.replies,
		ProductSuggestions: e.products,
	})
}

// requestBodyLocked assembles the POST body: identifiers, the full
// history including the new user turn, then caller params
func (e *Engine) requestBodyLocked() map[string]any {
	wire := make([]domain.WireMessage, 0, len(e.messages))
	for _, m := range e.messages {
		wire = append(wire, domain.WireMessage{Role: m.Role, Content: m.Content})
	}

	body := map[string]any{
		"session_id":      e.ids.SessionID(),
		"chat_session_id": e.convID,
		"messages":        wire,
	}
	for k, v := range e.cfg.Params {
		body[k] = v
	}
	return body
}

// apiErrorMessage prefers the body's detail field, falling back to a
// status-derived message
func apiErrorMessage(r io.Reader, status int) string {
	body, _ := io.ReadAll(io.LimitReader(r, 64<<10))

	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return fmt.Sprintf("chat API returned status %d", status)
}
