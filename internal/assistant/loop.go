package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/log"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/tools"
)

// maxArtifacts caps the product cards surfaced alongside one reply.
const maxArtifacts = 5

// loopState tracks where one orchestration run is. The run loops between
// awaiting-model and executing-tools until it lands in done or aborted; the
// iteration counter is checked before every model call, so no path can make
// more than MaxIterations round trips.
type loopState int

const (
	stateAwaitingModel loopState = iota
	stateExecutingTools
	stateDone
	stateAborted
)

// LoopConfig bounds one orchestration run. All three fields are required.
type LoopConfig struct {
	// MaxIterations is the hard cap on model calls per request.
	MaxIterations int
	// ToolCallLimit caps tool executions per iteration; excess requests from
	// the model are dropped.
	ToolCallLimit int
	// HistoryWindow is how many prior user and assistant messages are loaded
	// into the model conversation.
	HistoryWindow int
}

// Loop drives the model/tool exchange for one chat request: load history,
// call the model, execute requested tools, feed results back, repeat until
// the model answers in plain text or a bound trips.
type Loop struct {
	store    ConversationStore
	registry *tools.Registry
	model    ModelClient
	cfg      LoopConfig
	logger   log.Logger
}

// NewLoop assembles an orchestration loop.
func NewLoop(store ConversationStore, registry *tools.Registry, model ModelClient, cfg LoopConfig, logger log.Logger) *Loop {
	return &Loop{
		store:    store,
		registry: registry,
		model:    model,
		cfg:      cfg,
		logger:   logger,
	}
}

// Request is one inbound chat turn.
type Request struct {
	OwnerID        string
	ConversationID uuid.UUID
	Message        string
	Page           PageContext
}

// Response is the outcome of one orchestration run.
type Response struct {
	ConversationID uuid.UUID
	Reply          string
	Artifacts      []tools.Card
	Suggestions    []string
	State          string
}

// toolCall is the persisted shape of one requested tool invocation.
type toolCall struct {
	Name  string `json:"name"`
	Input any    `json:"input,omitempty"`
}

// Run executes the loop for one request. Degraded outcomes (model failure,
// tool outage, iteration cap) come back as fixed replies with a nil error;
// a non-nil error means the request itself was unusable or persistence broke.
func (l *Loop) Run(ctx context.Context, req Request) (*Response, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := l.store.GetOrCreate(ctx, req.OwnerID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	snap := ExtractContext(req.Page)
	if err := l.store.UpsertContext(ctx, conv.ID, snap); err != nil {
		return nil, fmt.Errorf("saving page context: %w", err)
	}

	history, err := l.store.RecentMessages(ctx, conv.ID, l.cfg.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if err := l.store.Append(ctx, conv.ID, []Message{{Role: RoleUser, Content: message}}); err != nil {
		return nil, fmt.Errorf("persisting user message: %w", err)
	}

	msgs := make([]*ai.Message, 0, len(history)+1)
	for _, m := range history {
		// Tool-call marker rows often carry no text; an empty text part is
		// rejected by providers, so they never reach the transcript.
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case RoleUser:
			msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		case RoleAssistant:
			msgs = append(msgs, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		}
	}
	msgs = append(msgs, ai.NewUserMessage(ai.NewTextPart(message)))

	system := SystemPrompt(snap)
	var (
		artifacts []tools.Card
		reply     string
	)
	seen := make(map[int64]bool)

	state := stateAwaitingModel
	for iter := 0; state == stateAwaitingModel; iter++ {
		if iter >= l.cfg.MaxIterations {
			state = stateAborted
			break
		}

		turn, err := l.model.Generate(ctx, system, msgs)
		if err != nil {
			l.logger.Error("model call failed", "conversation_id", conv.ID, "iteration", iter, "error", err)
			reply, artifacts = ModelFailureReply, nil
			state = stateDone
			break
		}

		if len(turn.ToolRequests) == 0 {
			reply = strings.TrimSpace(turn.Text)
			if reply == "" {
				l.logger.Warn("model returned empty final text", "conversation_id", conv.ID)
				reply = ModelFailureReply
			}
			state = stateDone
			break
		}

		state = stateExecutingTools
		calls := turn.ToolRequests
		if len(calls) > l.cfg.ToolCallLimit {
			l.logger.Warn("tool call limit exceeded, dropping excess",
				"conversation_id", conv.ID,
				"requested", len(calls),
				"limit", l.cfg.ToolCallLimit,
			)
			calls = calls[:l.cfg.ToolCallLimit]
		}

		summaries := make([]toolCall, 0, len(calls))
		for _, call := range calls {
			summaries = append(summaries, toolCall{Name: call.Name, Input: call.Input})
		}
		markerPayload, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("encoding tool call record: %w", err)
		}
		records := []Message{{Role: RoleAssistant, Content: turn.Text, ToolPayload: markerPayload}}

		modelParts := make([]*ai.Part, 0, len(calls)+1)
		if turn.Text != "" {
			modelParts = append(modelParts, ai.NewTextPart(turn.Text))
		}
		for _, call := range calls {
			modelParts = append(modelParts, ai.NewToolRequestPart(call))
		}
		msgs = append(msgs, &ai.Message{Role: ai.RoleModel, Content: modelParts})

		respParts := make([]*ai.Part, 0, len(calls))
		unavailable := 0
		for _, call := range calls {
			res := l.registry.Execute(ctx, call.Name, call.Input)
			if res.IsUnavailable() {
				unavailable++
			}
			for _, card := range res.Cards {
				if len(artifacts) >= maxArtifacts {
					break
				}
				if !seen[card.ID] {
					seen[card.ID] = true
					artifacts = append(artifacts, card)
				}
			}
			payload, err := json.Marshal(res)
			if err != nil {
				return nil, fmt.Errorf("encoding tool result: %w", err)
			}
			records = append(records, Message{
				Role:        RoleTool,
				ToolName:    call.Name,
				ToolRef:     call.Ref,
				ToolPayload: payload,
			})
			respParts = append(respParts, ai.NewToolResponsePart(&ai.ToolResponse{
				Name:   call.Name,
				Ref:    call.Ref,
				Output: res,
			}))
		}

		if err := l.store.Append(ctx, conv.ID, records); err != nil {
			return nil, fmt.Errorf("persisting tool exchange: %w", err)
		}
		msgs = append(msgs, &ai.Message{Role: ai.RoleTool, Content: respParts})

		if unavailable == len(calls) {
			l.logger.Warn("all tool calls unavailable", "conversation_id", conv.ID, "iteration", iter)
			reply, artifacts = ToolFailureReply, nil
			state = stateDone
			break
		}
		state = stateAwaitingModel
	}

	if state == stateAborted {
		l.logger.Warn("iteration cap reached", "conversation_id", conv.ID, "max_iterations", l.cfg.MaxIterations)
		return l.finish(ctx, conv.ID, snap, IterationCapReply, StateAborted, nil)
	}
	return l.finish(ctx, conv.ID, snap, reply, StateOK, artifacts)
}

// finish persists the assistant's reply and assembles the response. A failed
// append is logged rather than surfaced: the reply is already decided and the
// caller should still receive it.
func (l *Loop) finish(ctx context.Context, convID uuid.UUID, snap ContextSnapshot, reply, state string, artifacts []tools.Card) (*Response, error) {
	if err := l.store.Append(ctx, convID, []Message{{Role: RoleAssistant, Content: reply}}); err != nil {
		l.logger.Error("persisting assistant reply failed", "conversation_id", convID, "error", err)
	}
	return &Response{
		ConversationID: convID,
		Reply:          reply,
		Artifacts:      artifacts,
		Suggestions:    Suggestions(snap),
		State:          state,
	}, nil
}
