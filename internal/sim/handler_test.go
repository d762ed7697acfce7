package sim

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketchat/pocketchat-go/pkg/domain"
	"github.com/pocketchat/pocketchat-go/pkg/extract"
	"github.com/pocketchat/pocketchat-go/pkg/sse"
)

func newSimServer(t *testing.T, dialect, suggestions, apiKey string) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewHandler(NewResponder(DefaultProducts()), dialect, suggestions, 0, nil)
	r := SetupRouter(h, RouterConfig{APIKey: apiKey, AllowOrigins: []string{"*"}})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postChat(t *testing.T, srv *httptest.Server, text string, headers map[string]string) *http.Response {
	t.Helper()

	body, err := json.Marshal(domain.ChatRequest{
		SessionID:     "sess-1",
		ChatSessionID: "conv-1",
		Messages:      []domain.WireMessage{{Role: domain.RoleUser, Content: text}},
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/chat", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// collectEvents decodes a streamed response with the same parser the
// client uses
func collectEvents(t *testing.T, resp *http.Response) []sse.Event {
	t.Helper()
	defer resp.Body.Close()

	var events []sse.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if ev, ok := sse.ParseLine(scanner.Text()); ok {
			events = append(events, ev)
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

func assembleText(events []sse.Event) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == sse.EventTextChunk {
			b.WriteString(ev.Text)
		}
	}
	return b.String()
}

func TestHandler_DataDialect(t *testing.T) {
	srv := newSimServer(t, DialectData, SuggestionsFrames, "")

	resp := postChat(t, srv, "Hello!", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := collectEvents(t, resp)
	require.NotEmpty(t, events)

	text := assembleText(events)
	assert.Contains(t, text, "shop assistant")

	var replies []string
	doneSeen := false
	for _, ev := range events {
		switch ev.Type {
		case sse.EventSuggestedReplies:
			replies = ev.Replies
		case sse.EventDone:
			doneSeen = true
		}
	}
	assert.Equal(t, []string{"What's new this week?", "Help me find a jacket"}, replies)
	assert.True(t, doneSeen)
}

func TestHandler_IndexedDialect(t *testing.T) {
	srv := newSimServer(t, DialectIndexed, SuggestionsFrames, "")

	resp := postChat(t, srv, "Hello!", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := collectEvents(t, resp)
	require.NotEmpty(t, events)
	assert.Equal(t, sse.EventDone, events[len(events)-1].Type)

	// No suggestion frames exist in this dialect: they ride in the text
	for _, ev := range events {
		assert.NotEqual(t, sse.EventSuggestedReplies, ev.Type)
	}

	text := assembleText(events)
	clean, replies, ok := extract.SuggestedReplies(text)
	require.True(t, ok)
	assert.Equal(t, []string{"What's new this week?", "Help me find a jacket"}, replies)
	assert.Contains(t, clean, "shop assistant")
	assert.NotContains(t, clean, "```")
}

func TestHandler_InlineSuggestions(t *testing.T) {
	srv := newSimServer(t, DialectData, SuggestionsInline, "")

	resp := postChat(t, srv, "What size should I get for the denim jacket?", nil)
	events := collectEvents(t, resp)

	for _, ev := range events {
		assert.NotEqual(t, sse.EventSuggestedReplies, ev.Type)
		assert.NotEqual(t, sse.EventProductSuggestions, ev.Type)
	}

	text := assembleText(events)
	_, replies, ok := extract.SuggestedReplies(text)
	require.True(t, ok)
	assert.NotEmpty(t, replies)

	_, products, ok := extract.ProductSuggestions(text)
	require.True(t, ok)
	require.Len(t, products, 1)
	assert.Equal(t, "jacket-001", products[0].ProductID)
	assert.Equal(t, "M", products[0].SuggestedSize)
}

func TestHandler_ProductFrames(t *testing.T) {
	srv := newSimServer(t, DialectData, SuggestionsFrames, "")

	resp := postChat(t, srv, "Does the wool sweater fit true to size?", nil)
	events := collectEvents(t, resp)

	var products []domain.ProductSuggestion
	for _, ev := range events {
		if ev.Type == sse.EventProductSuggestions {
			products = ev.Products
		}
	}
	require.Len(t, products, 1)
	assert.Equal(t, "sweater-007", products[0].ProductID)
	assert.Equal(t, "M", products[0].SuggestedSize)
}

func TestHandler_Auth(t *testing.T) {
	srv := newSimServer(t, DialectData, SuggestionsFrames, "secret")

	t.Run("MissingKey", func(t *testing.T) {
		resp := postChat(t, srv, "Hello!", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "unauthorized", body["detail"])
	})

	t.Run("BearerToken", func(t *testing.T) {
		resp := postChat(t, srv, "Hello!", map[string]string{"Authorization": "Bearer secret"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("APIKeyHeader", func(t *testing.T) {
		resp := postChat(t, srv, "Hello!", map[string]string{"X-API-Key": "secret"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestHandler_BadRequest(t *testing.T) {
	srv := newSimServer(t, DialectData, SuggestionsFrames, "")

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body["detail"])
}

func TestHandler_Health(t *testing.T) {
	srv := newSimServer(t, DialectData, SuggestionsFrames, "secret")

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
