// Package assistant implements the conversational orchestration core: the
// model/tool loop, conversation persistence contracts, and page context
// handling for the shopping assistant.
package assistant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message roles. Tool messages are persisted for auditability but excluded
// from the history window loaded into later requests.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Conversation is one persistent chat thread owned by a single caller
// identity.
type Conversation struct {
	ID            uuid.UUID
	OwnerID       string
	CreatedAt     time.Time
	LastActivity  time.Time
	TotalMessages int
}

// Message is a single entry in a conversation's append-only log.
// SequenceNumber is assigned by the store and is strictly increasing within
// a conversation.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           string
	Content        string
	ToolName       string
	ToolRef        string
	ToolPayload    json.RawMessage
	SequenceNumber int
	CreatedAt      time.Time
}

// ContextSnapshot is the page context captured from a chat request. Each
// request overwrites the conversation's previous snapshot; no history of
// snapshots is kept.
type ContextSnapshot struct {
	PageType      string
	ProductID     int64
	CategorySlug  string
	SearchQuery   string
	CartItemCount int
}

// ConversationStore is the persistence contract consumed by the orchestration
// loop and the HTTP layer. Implementations must serialize appends per
// conversation so sequence numbers never collide under concurrent requests.
type ConversationStore interface {
	// GetOrCreate resolves a conversation for the given owner. A nil
	// conversationID creates a fresh conversation. A conversation that does
	// not exist or belongs to a different owner yields ErrConversationNotFound;
	// callers must not be able to distinguish the two cases.
	GetOrCreate(ctx context.Context, ownerID string, conversationID uuid.UUID) (*Conversation, error)

	// RecentMessages returns the newest user and assistant messages in
	// chronological order, at most limit entries. Tool messages are excluded.
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)

	// Append atomically appends messages in the given order, assigning
	// consecutive sequence numbers.
	Append(ctx context.Context, conversationID uuid.UUID, messages []Message) error

	// UpsertContext overwrites the conversation's page context snapshot.
	UpsertContext(ctx context.Context, conversationID uuid.UUID, snap ContextSnapshot) error
}

// State reported in a chat outcome.
const (
	StateOK      = "ok"
	StateAborted = "aborted"
)
