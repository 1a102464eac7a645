package assistant

import "errors"

var (
	// ErrConversationNotFound indicates the conversation does not exist or is
	// not owned by the caller. The two cases are deliberately merged so an
	// attacker cannot probe for other users' conversation IDs.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyMessage indicates the user message was empty after trimming.
	ErrEmptyMessage = errors.New("empty message")
)

// Fixed user-facing replies. These never vary with internal error detail so
// provider failures cannot leak through the chat surface.
const (
	// ModelFailureReply is returned when the model provider cannot be reached
	// or returns an error.
	ModelFailureReply = "I'm having trouble responding right now. Please try again in a moment."

	// ToolFailureReply is returned when every tool call in an iteration failed
	// with an availability error.
	ToolFailureReply = "I couldn't look that up right now. Please try again shortly."

	// IterationCapReply is returned when the loop hits its iteration cap
	// before the model produced a final answer.
	IterationCapReply = "I wasn't able to finish answering that. Could you narrow down your request and try again?"
)
