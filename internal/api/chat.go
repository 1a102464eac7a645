package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/assistant"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/tools"
)

// maxChatBodyBytes bounds the request body; chat messages are short.
const maxChatBodyBytes = 16 << 10

// stateRateLimited is the chat state reported when the visitor's message
// budget is exhausted. The loop itself only ever reports ok or aborted.
const stateRateLimited = "rate_limited"

// rateLimitedReply is shown in the widget when the budget runs out.
const rateLimitedReply = "You're sending messages a bit too quickly. Please wait a moment and try again."

// chatRunner is the orchestration entry point the handler depends on.
type chatRunner interface {
	Run(ctx context.Context, req assistant.Request) (*assistant.Response, error)
}

// chatHandler serves POST /api/v1/chat.
type chatHandler struct {
	loop    chatRunner
	limiter *chatLimiter
	logger  *slog.Logger
}

// chatRequest is the inbound chat payload from the storefront widget.
type chatRequest struct {
	ConversationID string                `json:"conversationId,omitempty"`
	Message        string                `json:"message"`
	Context        assistant.PageContext `json:"context"`
}

// chatResponse is the outbound chat envelope.
type chatResponse struct {
	ConversationID string       `json:"conversationId"`
	Reply          string       `json:"reply"`
	Artifacts      []tools.Card `json:"artifacts"`
	Suggestions    []string     `json:"suggestions"`
	State          string       `json:"state"`
}

func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok || userID == "" {
		writeError(w, http.StatusInternalServerError, "identity_missing", "visitor identity unavailable", h.logger)
		return
	}

	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", h.logger)
		return
	}

	conversationID := uuid.Nil
	if req.ConversationID != "" {
		parsed, err := uuid.Parse(req.ConversationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_conversation_id", "conversationId must be a UUID", h.logger)
			return
		}
		conversationID = parsed
	}

	// Reject blank messages before the limiter so they never burn a slot.
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "empty_message", "message must not be empty", h.logger)
		return
	}

	if allowed, retryAfter := h.limiter.allow(userID); !allowed {
		h.logger.Warn("chat message budget exhausted",
			"user", userID,
			"retry_after", retryAfter,
		)
		w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, chatResponse{
			ConversationID: req.ConversationID,
			Reply:          rateLimitedReply,
			Artifacts:      []tools.Card{},
			Suggestions:    []string{},
			State:          stateRateLimited,
		})
		return
	}

	resp, err := h.loop.Run(r.Context(), assistant.Request{
		OwnerID:        userID,
		ConversationID: conversationID,
		Message:        req.Message,
		Page:           req.Context,
	})
	switch {
	case errors.Is(err, assistant.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "empty_message", "message must not be empty", h.logger)
		return
	case errors.Is(err, assistant.ErrConversationNotFound):
		writeError(w, http.StatusNotFound, "conversation_not_found", "conversation not found", h.logger)
		return
	case err != nil:
		h.logger.Error("chat request failed", "user", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}

	out := chatResponse{
		ConversationID: resp.ConversationID.String(),
		Reply:          resp.Reply,
		Artifacts:      resp.Artifacts,
		Suggestions:    resp.Suggestions,
		State:          resp.State,
	}
	if out.Artifacts == nil {
		out.Artifacts = []tools.Card{}
	}
	if out.Suggestions == nil {
		out.Suggestions = []string{}
	}
	writeJSON(w, http.StatusOK, out)
}
