package session

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pocketchat/pocketchat-go/pkg/storage"
)

// Storage key suffixes. The three keys live in different scopes: the
// session id is durable across restarts, the conversation id lasts one
// visit, the message snapshot is durable but keyed to the conversation.
const (
	keySessionID    = "_session_id"
	keyConversation = "_chat_session_id"
	keyMessages     = "_chat_messages"
)

// DefaultPrefix namespaces storage keys when the host does not choose one
const DefaultPrefix = "pocketchat"

// Identity owns the visitor's identifiers: a durable session id and a
// visit-scoped conversation id. Storage failures degrade to ephemeral
// ids instead of surfacing errors, so the chat keeps working without
// persistence.
type Identity struct {
	mu      sync.Mutex
	durable storage.Store
	visit   storage.Store
	prefix  string
	log     *zap.Logger
}

// NewIdentity creates an identity store over the two storage scopes
func NewIdentity(durable, visit storage.Store, prefix string, log *zap.Logger) *Identity {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Identity{
		durable: durable,
		visit:   visit,
		prefix:  prefix,
		log:     log,
	}
}

// SessionID returns the durable visitor id, creating it on first use
func (i *Identity) SessionID() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.getOrCreate(i.durable, i.prefix+keySessionID)
}

// ConversationID returns the current conversation id, creating it on
// first use within the visit scope
func (i *Identity) ConversationID() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.getOrCreate(i.visit, i.prefix+keyConversation)
}

// RenewConversation mints a fresh conversation id, replacing the current
// one. Used by "new chat".
func (i *Identity) RenewConversation() string {
	i.mu.Lock()
	defer i.mu.Unlock()

	id := uuid.New().String()
	if err := i.visit.Set(i.prefix+keyConversation, []byte(id)); err != nil {
		i.log.Warn("conversation id write failed, id will not persist",
			zap.Error(err))
	}
	return id
}

func (i *Identity) getOrCreate(store storage.Store, key string) string {
	existing, err := store.Get(key)
	if err != nil {
		i.log.Warn("identity store unavailable, using ephemeral id",
			zap.String("key", key), zap.Error(err))
		return uuid.New().String()
	}
	if len(existing) > 0 {
		return string(existing)
	}

	id := uuid.New().String()
	if err := store.Set(key, []byte(id)); err != nil {
		i.log.Warn("identity store write failed, id will not persist",
			zap.String("key", key), zap.Error(err))
	}
	return id
}
