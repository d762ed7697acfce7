package sse

import (
	"encoding/json"
	"strings"

	"github.com/pocketchat/pocketchat-go/pkg/domain"
)

// EventType discriminates the parser's output events
type EventType int

const (
	EventTextChunk EventType = iota
	EventDone
	EventError
	EventSuggestedReplies
	EventProductSuggestions
)

// Event is one decoded stream frame. Exactly one variant's fields are
// populated, selected by Type.
type Event struct {
	Type     EventType
	Text     string                     // EventTextChunk
	Message  string                     // EventError
	Replies  []string                   // EventSuggestedReplies
	Products []domain.ProductSuggestion // EventProductSuggestions
}

const dataPrefix = "data:"

// ParseLine converts one complete line of a streamed response body into
// at most one event. Two wire dialects are recognized: data frames
// ("data: <json>") and indexed frames ("0:", "e:", "d:"), tried in that
// order. Lines neither dialect claims are ignored (ok=false).
//
// The parser is stateless and never buffers; callers must deliver
// complete lines only.
func ParseLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Event{}, false
	}

	if ev, ok := decodeDataFrame(line); ok {
		return ev, true
	}
	return decodeIndexedFrame(line)
}

// dataFrame is the union of payload shapes a data frame may carry
type dataFrame struct {
	Chunk              string                     `json:"chunk"`
	Done               bool                       `json:"done"`
	Error              json.RawMessage            `json:"error"`
	Type               string                     `json:"type"`
	SuggestedResponses []string                   `json:"suggested_responses"`
	Products           []domain.ProductSuggestion `json:"products"`
}

func decodeDataFrame(line string) (Event, bool) {
	if !strings.HasPrefix(line, dataPrefix) {
		return Event{}, false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == "" {
		return Event{}, false
	}

	var frame dataFrame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		if json.Valid([]byte(payload)) {
			// Valid JSON of an unexpected shape carries nothing
			return Event{}, false
		}
		// Not JSON: forward as literal text rather than dropping it
		return Event{Type: EventTextChunk, Text: payload}, true
	}

	// An error field wins over everything else in the frame
	if errMsg, ok := frameError(frame.Error); ok {
		return Event{Type: EventError, Message: errMsg}, true
	}

	switch frame.Type {
	case domain.TagSuggestedResponses:
		return Event{Type: EventSuggestedReplies, Replies: frame.SuggestedResponses}, true
	case domain.TagProductSuggestions:
		return Event{Type: EventProductSuggestions, Products: frame.Products}, true
	}

	if frame.Done {
		return Event{Type: EventDone}, true
	}
	if frame.Chunk != "" {
		return Event{Type: EventTextChunk, Text: frame.Chunk}, true
	}
	return Event{}, false
}

// frameError reports whether a data frame carried an error payload,
// returning it as display text
func frameError(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return string(raw), true
}

func decodeIndexedFrame(line string) (Event, bool) {
	if len(line) < 2 || line[1] != ':' {
		return Event{}, false
	}
	tag, payload := line[0], line[2:]

	switch {
	case tag == '0':
		// Payload is a JSON-encoded string literal; fall back to the
		// raw remainder when it isn't
		var text string
		if err := json.Unmarshal([]byte(payload), &text); err != nil {
			text = payload
		}
		if text == "" {
			return Event{}, false
		}
		return Event{Type: EventTextChunk, Text: text}, true

	case tag == 'd':
		return Event{Type: EventDone}, true

	case tag == 'e':
		var meta struct {
			FinishReason      string `json:"finishReason"`
			FinishReasonSnake string `json:"finish_reason"`
		}
		if err := json.Unmarshal([]byte(payload), &meta); err != nil {
			return Event{}, false
		}
		if meta.FinishReason != "" || meta.FinishReasonSnake != "" {
			return Event{Type: EventDone}, true
		}
		return Event{}, false

	case tag >= '1' && tag <= '9':
		// Recognized frame index with no mapping for this protocol
		return Event{}, false
	}

	return Event{}, false
}
