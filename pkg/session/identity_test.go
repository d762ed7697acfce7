package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketchat/pocketchat-go/pkg/storage"
)

// brokenStore fails every operation, standing in for an unavailable backend
type brokenStore struct{}

func (brokenStore) Get(string) ([]byte, error) { return nil, errors.New("storage offline") }
func (brokenStore) Set(string, []byte) error   { return errors.New("storage offline") }
func (brokenStore) Delete(string) error        { return errors.New("storage offline") }
func (brokenStore) Close() error               { return nil }

func TestIdentity_SessionID(t *testing.T) {
	durable := storage.NewMemory()
	ids := NewIdentity(durable, storage.NewMemory(), "", nil)

	t.Run("Idempotent", func(t *testing.T) {
		first := ids.SessionID()
		require.NotEmpty(t, first)
		assert.Equal(t, first, ids.SessionID())
	})

	t.Run("SurvivesNewInstance", func(t *testing.T) {
		first := ids.SessionID()

		fresh := NewIdentity(durable, storage.NewMemory(), "", nil)
		assert.Equal(t, first, fresh.SessionID())
	})

	t.Run("StoredUnderPrefixedKey", func(t *testing.T) {
		ids.SessionID()

		v, err := durable.Get(DefaultPrefix + "_session_id")
		require.NoError(t, err)
		assert.NotEmpty(t, v)
	})
}

func TestIdentity_ConversationID(t *testing.T) {
	visit := storage.NewMemory()
	ids := NewIdentity(storage.NewMemory(), visit, "", nil)

	t.Run("Idempotent", func(t *testing.T) {
		first := ids.ConversationID()
		require.NotEmpty(t, first)
		assert.Equal(t, first, ids.ConversationID())
	})

	t.Run("DistinctFromSessionID", func(t *testing.T) {
		assert.NotEqual(t, ids.SessionID(), ids.ConversationID())
	})

	t.Run("Renew", func(t *testing.T) {
		before := ids.ConversationID()

		renewed := ids.RenewConversation()
		assert.NotEqual(t, before, renewed)
		assert.Equal(t, renewed, ids.ConversationID())
	})
}

func TestIdentity_DegradesWithoutStorage(t *testing.T) {
	ids := NewIdentity(brokenStore{}, brokenStore{}, "", nil)

	// Ids keep flowing, they just don't persist
	first := ids.SessionID()
	second := ids.SessionID()
	assert.NotEmpty(t, first)
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)

	assert.NotEmpty(t, ids.ConversationID())
	assert.NotEmpty(t, ids.RenewConversation())
}

func TestIdentity_CustomPrefix(t *testing.T) {
	durable := storage.NewMemory()
	ids := NewIdentity(durable, storage.NewMemory(), "acme", nil)

	ids.SessionID()

	v, err := durable.Get("acme_session_id")
	require.NoError(t, err)
	assert.NotEmpty(t, v)
}
