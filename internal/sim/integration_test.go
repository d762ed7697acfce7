package sim

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketchat/pocketchat-go/pkg/chat"
	"github.com/pocketchat/pocketchat-go/pkg/session"
	"github.com/pocketchat/pocketchat-go/pkg/storage"
)

// TestSimWithEngine drives the real client engine against the simulator
// in every dialect and suggestion mode. The committed message must come
// out clean and the suggestions identical regardless of how they were
// delivered.
func TestSimWithEngine(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name        string
		dialect     string
		suggestions string
	}{
		{"DataFrames", DialectData, SuggestionsFrames},
		{"DataInline", DialectData, SuggestionsInline},
		{"DataNone", DialectData, SuggestionsNone},
		{"Indexed", DialectIndexed, SuggestionsFrames},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(NewResponder(DefaultProducts()), tc.dialect, tc.suggestions, 0, nil)
			router := SetupRouter(h, RouterConfig{APIKey: "secret", AllowOrigins: []string{"*"}})
			srv := httptest.NewServer(router)
			t.Cleanup(srv.Close)

			durable := storage.NewMemory()
			ids := session.NewIdentity(durable, storage.NewMemory(), "", nil)
			cache := session.NewCache(durable, "", nil)
			engine := chat.New(chat.Config{
				APIURL:  srv.URL + "/api/chat",
				Headers: map[string]string{"Authorization": "Bearer secret"},
			}, ids, cache, nil)
			t.Cleanup(engine.Close)

			require.NoError(t, engine.Send(context.Background(), "Hello!"))

			msgs := engine.Messages()
			require.Len(t, msgs, 2)
			assert.Contains(t, msgs[1].Content, "shop assistant")
			assert.NotContains(t, msgs[1].Content, "```")

			if tc.suggestions == SuggestionsNone {
				assert.Empty(t, engine.SuggestedReplies())
			} else {
				assert.Equal(t, []string{"What's new this week?", "Help me find a jacket"}, engine.SuggestedReplies())
			}
			assert.Equal(t, chat.StateIdle, engine.State())
			assert.Nil(t, engine.LastError())
		})
	}
}
