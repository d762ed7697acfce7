package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pocketchat/pocketchat-go/pkg/domain"
)

// Stream dialects the simulator can speak
const (
	DialectData    = "data"
	DialectIndexed = "indexed"
)

// Suggestion delivery modes. The indexed dialect has no suggestion
// frames, so it embeds them in the text whenever they are enabled.
const (
	SuggestionsFrames = "frames"
	SuggestionsInline = "inline"
	SuggestionsNone   = "none"
)

// Handler serves the simulated chat endpoint
type Handler struct {
	responder   *Responder
	dialect     string
	suggestions string
	delay       time.Duration
	log         *zap.Logger
}

// NewHandler creates a chat handler streaming in the given dialect
func NewHandler(responder *Responder, dialect, suggestions string, delay time.Duration, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		responder:   responder,
		dialect:     dialect,
		suggestions: suggestions,
		delay:       delay,
		log:         log,
	}
}

// RegisterRoutes registers chat routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chat", h.Chat)
}

// Chat answers one turn as a flushed frame stream
func (h *Handler) Chat(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	h.log.Info("chat turn",
		zap.String("chat_session_id", req.ChatSessionID),
		zap.Int("messages", len(req.Messages)))

	script := h.responder.Reply(req)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	frames := make(chan string)
	go h.produce(c.Request.Context(), script, frames)

	c.Stream(func(w io.Writer) bool {
		frame, ok := <-frames
		if !ok {
			return false
		}
		fmt.Fprint(w, frame)
		return true
	})
}

// produce feeds one scripted turn into the frame channel, word by word
func (h *Handler) produce(ctx context.Context, script Script, frames chan<- string) {
	defer close(frames)

	text := script.Text
	if h.inlineSuggestions() {
		text += inlineIslands(script)
	}

	for _, chunk := range splitChunks(text) {
		if !h.send(ctx, frames, h.chunkFrame(chunk)) {
			return
		}
		if h.delay > 0 {
			time.Sleep(h.delay)
		}
	}

	if h.dialect == DialectData && h.suggestions == SuggestionsFrames {
		if len(script.Replies) > 0 {
			if !h.send(ctx, frames, dataFrame(repliesFrame{Type: domain.TagSuggestedResponses, Replies: script.Replies})) {
				return
			}
		}
		if len(script.Products) > 0 {
			if !h.send(ctx, frames, dataFrame(productsFrame{Type: domain.TagProductSuggestions, Products: script.Products})) {
				return
			}
		}
	}

	for _, frame := range h.endFrames() {
		if !h.send(ctx, frames, frame) {
			return
		}
	}
}

// inlineSuggestions reports whether suggestions ride in the text:
// always for the indexed dialect unless disabled, and for the data
// dialect when configured inline
func (h *Handler) inlineSuggestions() bool {
	if h.suggestions == SuggestionsNone {
		return false
	}
	if h.dialect == DialectIndexed {
		return true
	}
	return h.suggestions == SuggestionsInline
}

func (h *Handler) send(ctx context.Context, frames chan<- string, frame string) bool {
	select {
	case frames <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *Handler) chunkFrame(chunk string) string {
	if h.dialect == DialectIndexed {
		encoded, _ := json.Marshal(chunk)
		return fmt.Sprintf("0:%s\n", encoded)
	}
	return dataFrame(chunkPayload{Chunk: chunk})
}

func (h *Handler) endFrames() []string {
	if h.dialect == DialectIndexed {
		return []string{
			"e:{\"finishReason\":\"stop\"}\n",
			"d:{\"finishReason\":\"stop\"}\n",
		}
	}
	return []string{dataFrame(donePayload{Done: true})}
}

type chunkPayload struct {
	Chunk string `json:"chunk"`
}

type donePayload struct {
	Done bool `json:"done"`
}

type repliesFrame struct {
	Type    string   `json:"type"`
	Replies []string `json:"suggested_responses"`
}

type productsFrame struct {
	Type     string                     `json:"type"`
	Products []domain.ProductSuggestion `json:"products"`
}

func dataFrame(v any) string {
	data, _ := json.Marshal(v)
	return fmt.Sprintf("data: %s\n\n", data)
}

// inlineIslands renders the script's suggestions as fenced blocks for
// appending to the reply text
func inlineIslands(script Script) string {
	var b strings.Builder
	if len(script.Replies) > 0 {
		payload, _ := json.Marshal(repliesFrame{Type: domain.TagSuggestedResponses, Replies: script.Replies})
		b.WriteString("\n\n```json\n")
		b.Write(payload)
		b.WriteString("\n```")
	}
	if len(script.Products) > 0 {
		payload, _ := json.Marshal(productsFrame{Type: domain.TagProductSuggestions, Products: script.Products})
		b.WriteString("\n\n```json\n")
		b.Write(payload)
		b.WriteString("\n```")
	}
	return b.String()
}

// splitChunks breaks text into word-sized chunks, splitting after each
// space so concatenation reproduces the text exactly
func splitChunks(text string) []string {
	var chunks []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == ' ' {
			chunks = append(chunks, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}
