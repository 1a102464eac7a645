// Package conversation persists chat threads in PostgreSQL: conversations,
// their append-only message logs, and the latest page context snapshot.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/assistant"
)

// Store implements assistant.ConversationStore on top of a pgx pool.
// Appends take a row lock on the conversation so sequence numbers stay
// consecutive under concurrent requests.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a conversation store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// GetOrCreate resolves or creates a conversation for the owner. Missing and
// foreign conversations are indistinguishable to the caller.
func (s *Store) GetOrCreate(ctx context.Context, ownerID string, conversationID uuid.UUID) (*assistant.Conversation, error) {
	if conversationID == uuid.Nil {
		var conv assistant.Conversation
		err := s.pool.QueryRow(ctx,
			`INSERT INTO conversations (owner_id)
			 VALUES ($1)
			 RETURNING id, owner_id, created_at, last_activity, total_messages`,
			ownerID,
		).Scan(&conv.ID, &conv.OwnerID, &conv.CreatedAt, &conv.LastActivity, &conv.TotalMessages)
		if err != nil {
			return nil, fmt.Errorf("creating conversation: %w", err)
		}
		s.logger.Debug("conversation created", "conversation_id", conv.ID)
		return &conv, nil
	}

	var conv assistant.Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, created_at, last_activity, total_messages
		 FROM conversations
		 WHERE id = $1 AND owner_id = $2`,
		conversationID, ownerID,
	).Scan(&conv.ID, &conv.OwnerID, &conv.CreatedAt, &conv.LastActivity, &conv.TotalMessages)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, assistant.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", conversationID, err)
	}
	return &conv, nil
}

// RecentMessages returns the newest user and assistant messages in
// chronological order. Tool messages never re-enter the model transcript.
func (s *Store) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]assistant.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, sequence_number, created_at
		 FROM (
		     SELECT id, conversation_id, role, content, sequence_number, created_at
		     FROM conversation_messages
		     WHERE conversation_id = $1 AND role IN ('user', 'assistant')
		     ORDER BY sequence_number DESC
		     LIMIT $2
		 ) recent
		 ORDER BY sequence_number ASC`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading recent messages: %w", err)
	}
	defer rows.Close()

	var messages []assistant.Message
	for rows.Next() {
		var m assistant.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.SequenceNumber, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// Append writes messages in order inside one transaction. The conversation
// row is locked first so concurrent appends serialize and sequence numbers
// stay gapless.
func (s *Store) Append(ctx context.Context, conversationID uuid.UUID, messages []assistant.Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT true FROM conversations WHERE id = $1 FOR UPDATE`,
		conversationID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return assistant.ErrConversationNotFound
	}
	if err != nil {
		return fmt.Errorf("locking conversation %s: %w", conversationID, err)
	}

	var next int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) + 1
		 FROM conversation_messages WHERE conversation_id = $1`,
		conversationID).Scan(&next)
	if err != nil {
		return fmt.Errorf("reading sequence number: %w", err)
	}

	for i, m := range messages {
		var toolName, toolRef *string
		if m.ToolName != "" {
			toolName = &m.ToolName
		}
		if m.ToolRef != "" {
			toolRef = &m.ToolRef
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO conversation_messages
			     (conversation_id, role, content, tool_name, tool_ref, tool_payload, sequence_number)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			conversationID, m.Role, m.Content, toolName, toolRef, m.ToolPayload, next+i)
		if err != nil {
			return fmt.Errorf("inserting message %d: %w", next+i, err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE conversations
		 SET total_messages = total_messages + $2, last_activity = now()
		 WHERE id = $1`,
		conversationID, len(messages))
	if err != nil {
		return fmt.Errorf("updating conversation counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}
	return nil
}

// UpsertContext overwrites the conversation's latest page context snapshot.
func (s *Store) UpsertContext(ctx context.Context, conversationID uuid.UUID, snap assistant.ContextSnapshot) error {
	var productID *int64
	if snap.ProductID > 0 {
		productID = &snap.ProductID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_contexts
		     (conversation_id, page_type, product_id, category_slug, search_query, cart_item_count, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (conversation_id) DO UPDATE SET
		     page_type = EXCLUDED.page_type,
		     product_id = EXCLUDED.product_id,
		     category_slug = EXCLUDED.category_slug,
		     search_query = EXCLUDED.search_query,
		     cart_item_count = EXCLUDED.cart_item_count,
		     updated_at = now()`,
		conversationID, snap.PageType, productID, snap.CategorySlug, snap.SearchQuery, snap.CartItemCount)
	if err != nil {
		return fmt.Errorf("upserting context snapshot: %w", err)
	}
	return nil
}
