package session

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/pocketchat/pocketchat-go/pkg/domain"
	"github.com/pocketchat/pocketchat-go/pkg/storage"
)

// Cache persists one conversation snapshot per host. A snapshot is only
// valid for the conversation id it was written under; anything else
// (missing record, stale id, corrupt data, storage failure) reads as
// absent. No operation returns an error.
type Cache struct {
	store  storage.Store
	prefix string
	log    *zap.Logger
}

// NewCache creates a conversation cache over a durable store
func NewCache(store storage.Store, prefix string, log *zap.Logger) *Cache {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		store:  store,
		prefix: prefix,
		log:    log,
	}
}

// Load returns the snapshot for a conversation id, or nil if no valid
// record exists
func (c *Cache) Load(conversationID string) *domain.Snapshot {
	data, err := c.store.Get(c.key())
	if err != nil {
		c.log.Warn("conversation cache read failed", zap.Error(err))
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.log.Warn("conversation cache corrupt, treating as absent", zap.Error(err))
		return nil
	}

	if snap.ConversationID != conversationID {
		c.log.Debug("conversation cache stale, discarding",
			zap.String("cached", snap.ConversationID),
			zap.String("current", conversationID))
		return nil
	}

	return &snap
}

// Save overwrites the whole record with the given snapshot. The write
// time is stamped on the stored copy; the caller's snapshot is left
// untouched.
func (c *Cache) Save(snap *domain.Snapshot) {
	record := *snap
	record.UpdatedAt = time.Now()

	data, err := json.Marshal(&record)
	if err != nil {
		c.log.Warn("conversation snapshot marshal failed", zap.Error(err))
		return
	}
	if err := c.store.Set(c.key(), data); err != nil {
		c.log.Warn("conversation snapshot write failed", zap.Error(err))
	}
}

// Clear deletes the record unconditionally
func (c *Cache) Clear() {
	if err := c.store.Delete(c.key()); err != nil {
		c.log.Warn("conversation cache delete failed", zap.Error(err))
	}
}

func (c *Cache) key() string {
	return c.prefix + keyMessages
}
