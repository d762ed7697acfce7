package domain

import "time"

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Wire tags marking structured suggestion payloads, both in stream
// frames and in JSON islands embedded in message text
const (
	TagSuggestedResponses = "suggested_responses"
	TagProductSuggestions = "product_suggestions"
)

// Message represents one turn in a conversation
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"` // user, assistant
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductSuggestion references a product the assistant recommends.
// Resolution to a full product record is the host's responsibility.
// Field names match the wire protocol.
type ProductSuggestion struct {
	ProductID     string `json:"productId"`
	SuggestedSize string `json:"suggestedSize,omitempty"`
}

// Snapshot is the persisted form of one conversation: the full message
// list plus whichever suggestions were pending when it was written.
// Always written as a whole-record overwrite, never a diff.
type Snapshot struct {
	ConversationID     string              `json:"conversation_id"`
	Messages           []Message           `json:"messages"`
	SuggestedReplies   []string            `json:"suggested_replies,omitempty"`
	ProductSuggestions []ProductSuggestion `json:"product_suggestions,omitempty"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// WireMessage is the role/content pair carried in the chat API request body
type WireMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body posted to the chat API. Caller-supplied extra
// parameters are merged alongside these fields, so decoders must tolerate
// unknown keys.
type ChatRequest struct {
	SessionID     string        `json:"session_id"`
	ChatSessionID string        `json:"chat_session_id"`
	Messages      []WireMessage `json:"messages"`
}
