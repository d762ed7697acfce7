package chat

import "fmt"

// ErrorCategory coarsely classifies a failed turn for the host's error
// UI and logs
type ErrorCategory string

const (
	// CategoryNetwork covers transport failures before or while reading
	// a response
	CategoryNetwork ErrorCategory = "network"
	// CategoryAPI covers non-2xx responses and explicit error frames
	CategoryAPI ErrorCategory = "api"
	// CategoryTimeout covers caller-imposed deadlines; the engine never
	// sets one itself
	CategoryTimeout ErrorCategory = "timeout"
	// CategoryUnknown covers everything else
	CategoryUnknown ErrorCategory = "unknown"
)

// Error describes a failed turn. The conversation history is never
// rolled back: the user message stays with no assistant reply.
type Error struct {
	Category ErrorCategory
	Message  string
	Status   int   // HTTP status for api errors, 0 otherwise
	Err      error // underlying cause when one exists
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Category, e.Message)
	}
	return string(e.Category)
}

func (e *Error) Unwrap() error {
	return e.Err
}
