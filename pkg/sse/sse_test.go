package sse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketchat/pocketchat-go/pkg/domain"
)

func TestParseLine_DataFrames(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
	}{
		{
			name: "TextChunk",
			line: `data: {"chunk":"hi"}`,
			want: Event{Type: EventTextChunk, Text: "hi"},
		},
		{
			name: "TextChunkNoSpaceAfterPrefix",
			line: `data:{"chunk":"hi"}`,
			want: Event{Type: EventTextChunk, Text: "hi"},
		},
		{
			name: "Done",
			line: `data: {"done":true}`,
			want: Event{Type: EventDone},
		},
		{
			name: "SuggestedReplies",
			line: `data: {"type":"suggested_responses","suggested_responses":["Show me more","What sizes?"]}`,
			want: Event{Type: EventSuggestedReplies, Replies: []string{"Show me more", "What sizes?"}},
		},
		{
			name: "ProductSuggestions",
			line: `data: {"type":"product_suggestions","products":[{"productId":"shirt-042","suggestedSize":"M"}]}`,
			want: Event{Type: EventProductSuggestions, Products: []domain.ProductSuggestion{{ProductID: "shirt-042", SuggestedSize: "M"}}},
		},
		{
			name: "Error",
			line: `data: {"error":"model unavailable"}`,
			want: Event{Type: EventError, Message: "model unavailable"},
		},
		{
			name: "ErrorWinsOverChunk",
			line: `data: {"chunk":"partial","error":"boom"}`,
			want: Event{Type: EventError, Message: "boom"},
		},
		{
			name: "ErrorWinsOverType",
			line: `data: {"type":"suggested_responses","suggested_responses":["A"],"error":"boom"}`,
			want: Event{Type: EventError, Message: "boom"},
		},
		{
			name: "NonStringErrorStringified",
			line: `data: {"error":{"code":500}}`,
			want: Event{Type: EventError, Message: `{"code":500}`},
		},
		{
			name: "UnparseablePayloadForwardedAsText",
			line: `data: the model said something raw`,
			want: Event{Type: EventTextChunk, Text: "the model said something raw"},
		},
		{
			name: "SurroundingWhitespaceTolerated",
			line: "  data: {\"chunk\":\"hi\"}  ",
			want: Event{Type: EventTextChunk, Text: "hi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := ParseLine(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestParseLine_DataFramesIgnored(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "EmptyPayload", line: "data:"},
		{name: "EmptyChunk", line: `data: {"chunk":""}`},
		{name: "DoneFalse", line: `data: {"done":false}`},
		{name: "NullError", line: `data: {"error":null}`},
		{name: "ValidJSONWrongShape", line: `data: "hello"`},
		{name: "ValidJSONArray", line: `data: [1,2,3]`},
		{name: "EmptyObject", line: `data: {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseLine(tt.line)
			assert.False(t, ok)
		})
	}
}

func TestParseLine_IndexedFrames(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Event
	}{
		{
			name: "TextDelta",
			line: `0:"hi"`,
			want: Event{Type: EventTextChunk, Text: "hi"},
		},
		{
			name: "TextDeltaWithEscapes",
			line: `0:"line one\nline two"`,
			want: Event{Type: EventTextChunk, Text: "line one\nline two"},
		},
		{
			name: "NonJSONPayloadFallsBackRaw",
			line: `0:raw remainder`,
			want: Event{Type: EventTextChunk, Text: "raw remainder"},
		},
		{
			name: "DoneUnconditionally",
			line: `d:{"finishReason":"stop"}`,
			want: Event{Type: EventDone},
		},
		{
			name: "DoneWithEmptyPayload",
			line: `d:`,
			want: Event{Type: EventDone},
		},
		{
			name: "EventFrameWithFinishReason",
			line: `e:{"finishReason":"stop","usage":{"promptTokens":10}}`,
			want: Event{Type: EventDone},
		},
		{
			name: "EventFrameWithSnakeCaseFinishReason",
			line: `e:{"finish_reason":"stop"}`,
			want: Event{Type: EventDone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := ParseLine(tt.line)
			require.True(t, ok)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestParseLine_IndexedFramesIgnored(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "EmptyTextDelta", line: `0:""`},
		{name: "EventFrameWithoutFinishReason", line: `e:{"usage":{"promptTokens":10}}`},
		{name: "EventFrameNonJSON", line: `e:not json`},
		{name: "OtherDigitPrefix", line: `2:["annotation"]`},
		{name: "HighDigitPrefix", line: `9:{"tool":"call"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := ParseLine(tt.line)
			assert.False(t, ok)
		})
	}
}

func TestParseLine_UnrecognizedLines(t *testing.T) {
	lines := []string{
		"",
		"   ",
		": keep-alive",
		"event: message",
		"random text without frame shape",
		"a:unknown letter tag",
		"x",
	}

	for _, line := range lines {
		_, ok := ParseLine(line)
		assert.False(t, ok, "line %q should be ignored", line)
	}
}

func TestParseLine_DialectEquivalence(t *testing.T) {
	// The same logical stream in both dialects must decode to the same
	// event sequence
	dataLines := []string{
		`data: {"chunk":"Hello "}`,
		`data: {"chunk":"world"}`,
		`data: {"done":true}`,
	}
	indexedLines := []string{
		`0:"Hello "`,
		`0:"world"`,
		`d:{}`,
	}

	decode := func(lines []string) []Event {
		var events []Event
		for _, line := range lines {
			if ev, ok := ParseLine(line); ok {
				events = append(events, ev)
			}
		}
		return events
	}

	assert.Equal(t, decode(dataLines), decode(indexedLines))
}
