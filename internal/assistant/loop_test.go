package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/log"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/tools"
)

// scriptedModel replays a fixed sequence of turns. Once the script runs out
// it keeps requesting tools, which is what a runaway model looks like.
type scriptedModel struct {
	turns    []*ModelTurn
	errs     []error
	calls    int
	msgLens  []int
	recorded [][]*ai.Message
}

func (m *scriptedModel) Generate(_ context.Context, _ string, msgs []*ai.Message) (*ModelTurn, error) {
	i := m.calls
	m.calls++
	m.msgLens = append(m.msgLens, len(msgs))
	m.recorded = append(m.recorded, msgs)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.turns) {
		return m.turns[i], nil
	}
	return &ModelTurn{ToolRequests: []*ai.ToolRequest{
		{Name: "list_widgets", Input: map[string]any{}},
	}}, nil
}

// memStore is an in-memory ConversationStore for loop tests.
type memStore struct {
	conv     *Conversation
	messages []Message
	snap     ContextSnapshot
}

func (s *memStore) GetOrCreate(_ context.Context, ownerID string, conversationID uuid.UUID) (*Conversation, error) {
	if conversationID == uuid.Nil {
		s.conv = &Conversation{ID: uuid.New(), OwnerID: ownerID}
		s.messages = nil
		return s.conv, nil
	}
	if s.conv == nil || s.conv.ID != conversationID || s.conv.OwnerID != ownerID {
		return nil, ErrConversationNotFound
	}
	return s.conv, nil
}

func (s *memStore) RecentMessages(_ context.Context, _ uuid.UUID, limit int) ([]Message, error) {
	var visible []Message
	for _, m := range s.messages {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			visible = append(visible, m)
		}
	}
	if len(visible) > limit {
		visible = visible[len(visible)-limit:]
	}
	return visible, nil
}

func (s *memStore) Append(_ context.Context, conversationID uuid.UUID, messages []Message) error {
	for _, m := range messages {
		m.ConversationID = conversationID
		m.SequenceNumber = len(s.messages) + 1
		s.messages = append(s.messages, m)
	}
	return nil
}

func (s *memStore) UpsertContext(_ context.Context, _ uuid.UUID, snap ContextSnapshot) error {
	s.snap = snap
	return nil
}

type widgetInput struct {
	Query string `json:"query,omitempty"`
}

// newTestRegistry registers a healthy listing tool and an always-down tool.
func newTestRegistry(t *testing.T, cards []tools.Card) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry(log.NewNop())
	err := tools.Register(r, "list_widgets", "lists widgets", func(_ context.Context, _ widgetInput) tools.Result {
		return tools.Result{
			Status: tools.StatusSuccess,
			Data:   map[string]any{"count": len(cards)},
			Cards:  cards,
		}
	})
	if err != nil {
		t.Fatalf("registering list_widgets: %v", err)
	}
	err = tools.Register(r, "broken_lookup", "always down", func(_ context.Context, _ widgetInput) tools.Result {
		return tools.Result{
			Status: tools.StatusError,
			Error:  &tools.Error{ErrorType: tools.ErrTypeUnavailable, Message: "backend down"},
		}
	})
	if err != nil {
		t.Fatalf("registering broken_lookup: %v", err)
	}
	return r
}

func defaultConfig() LoopConfig {
	return LoopConfig{MaxIterations: 5, ToolCallLimit: 3, HistoryWindow: 12}
}

func listCall() *ai.ToolRequest {
	return &ai.ToolRequest{Name: "list_widgets", Input: map[string]any{"query": "laptop"}}
}

func TestLoopDirectAnswer(t *testing.T) {
	store := &memStore{}
	model := &scriptedModel{turns: []*ModelTurn{{Text: "Happy to help!"}}}
	loop := NewLoop(store, newTestRegistry(t, nil), model, defaultConfig(), log.NewNop())

	resp, err := loop.Run(context.Background(), Request{OwnerID: "u1", Message: "hi"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.Reply != "Happy to help!" || resp.State != StateOK {
		t.Errorf("got reply %q state %q", resp.Reply, resp.State)
	}
	if model.calls != 1 {
		t.Errorf("model calls = %d, want 1", model.calls)
	}
	if len(resp.Suggestions) != 3 {
		t.Errorf("suggestions = %v, want 3 entries", resp.Suggestions)
	}

	roles := persistedRoles(store)
	want := []string{RoleUser, RoleAssistant}
	if fmt.Sprint(roles) != fmt.Sprint(want) {
		t.Errorf("persisted roles = %v, want %v", roles, want)
	}
}

func TestLoopToolRoundTrip(t *testing.T) {
	cards := []tools.Card{
		{ID: 1, Title: "Aero 13", Price: 899},
		{ID: 2, Title: "Volt 15", Price: 749},
	}
	store := &memStore{}
	model := &scriptedModel{turns: []*ModelTurn{
		{ToolRequests: []*ai.ToolRequest{listCall()}},
		{Text: "Here are two laptops under $1000."},
	}}
	loop := NewLoop(store, newTestRegistry(t, cards), model, defaultConfig(), log.NewNop())

	resp, err := loop.Run(context.Background(), Request{OwnerID: "u1", Message: "laptops under $1000"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.State != StateOK {
		t.Errorf("state = %q, want ok", resp.State)
	}
	if len(resp.Artifacts) != 2 || resp.Artifacts[0].ID != 1 || resp.Artifacts[1].ID != 2 {
		t.Errorf("artifacts = %+v, want the two returned cards in order", resp.Artifacts)
	}

	roles := persistedRoles(store)
	want := []string{RoleUser, RoleAssistant, RoleTool, RoleAssistant}
	if fmt.Sprint(roles) != fmt.Sprint(want) {
		t.Fatalf("persisted roles = %v, want %v", roles, want)
	}
	marker := store.messages[1]
	if len(marker.ToolPayload) == 0 {
		t.Error("assistant tool-call marker has empty payload")
	}
	toolMsg := store.messages[2]
	if toolMsg.ToolName != "list_widgets" || len(toolMsg.ToolPayload) == 0 {
		t.Errorf("tool message = %+v", toolMsg)
	}

	// Second model call sees the tool exchange appended to the transcript.
	if model.msgLens[1] != model.msgLens[0]+2 {
		t.Errorf("transcript lengths = %v, want second call two messages longer", model.msgLens)
	}
}

func TestLoopIterationCap(t *testing.T) {
	store := &memStore{}
	model := &scriptedModel{} // never answers, always requests tools
	loop := NewLoop(store, newTestRegistry(t, nil), model, defaultConfig(), log.NewNop())

	resp, err := loop.Run(context.Background(), Request{OwnerID: "u1", Message: "compare everything"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.State != StateAborted {
		t.Errorf("state = %q, want aborted", resp.State)
	}
	if resp.Reply != IterationCapReply {
		t.Errorf("reply = %q, want iteration cap reply", resp.Reply)
	}
	if model.calls != 5 {
		t.Errorf("model calls = %d, want 5", model.calls)
	}
}

func TestLoopToolCallLimit(t *testing.T) {
	store := &memStore{}
	many := make([]*ai.ToolRequest, 6)
	for i := range many {
		many[i] = listCall()
	}
	model := &scriptedModel{turns: []*ModelTurn{
		{ToolRequests: many},
		{Text: "Done."},
	}}
	loop := NewLoop(store, newTestRegistry(t, nil), model, defaultConfig(), log.NewNop())

	if _, err := loop.Run(context.Background(), Request{OwnerID: "u1", Message: "go"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	toolMsgs := 0
	for _, m := range store.messages {
		if m.Role == RoleTool {
			toolMsgs++
		}
	}
	if toolMsgs != 3 {
		t.Errorf("persisted tool messages = %d, want 3 (excess dropped)", toolMsgs)
	}
}

func TestLoopAllToolsUnavailable(t *testing.T) {
	store := &memStore{}
	model := &scriptedModel{turns: []*ModelTurn{
		{ToolRequests: []*ai.ToolRequest{{Name: "broken_lookup", Input: map[string]any{}}}},
	}}
	loop := NewLoop(store, newTestRegistry(t, nil), model, defaultConfig(), log.NewNop())

	resp, err := loop.Run(context.Background(), Request{OwnerID: "u1", Message: "anything in stock?"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if resp.Reply != ToolFailureReply || resp.State != StateOK {
		t.Errorf("got reply %q state %q, want tool failure reply with ok state", resp.Reply, resp.State)
	}
	if len(resp.Artifacts) != 0 {
		t.Errorf("artifacts = %+v, want none", resp.Artifacts)
	}
	if model.calls != 1 {
		t.Errorf("model calls = %d, want 1 (loop must stop after full outage)", model.calls)
	}
}

func TestLoopModelFailure(t *testing.T) {
	store := &memStore{}
	model := &scriptedModel{errs: []error{errors.New("provider timeout")}}
	loop := NewLoop(store, newTestRegistry(t, nil), model, defaultConfig(), log.NewNop())

	resp, err := loop.Run(context.Background(), Request{OwnerID: "u1", Message: "hello"})
	if err != nil {
		t.Fatalf("Run() error = %v (model failures must degrade, not error)", err)
	}
	if resp.Reply != ModelFailureReply || resp.State != StateOK {
		t.Errorf("got reply %q state %q", resp.Reply, resp.State)
	}
}

func TestLoopEmptyMessage(t *testing.T) {
	loop := NewLoop(&memStore{}, newTestRegistry(t, nil), &scriptedModel{}, defaultConfig(), log.NewNop())
	if _, err := loop.Run(context.Background(), Request{OwnerID: "u1", Message: "   "}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
}

func TestLoopWrongOwner(t *testing.T) {
	store := &memStore{}
	loop := NewLoop(store, newTestRegistry(t, nil), &scriptedModel{turns: []*ModelTurn{{Text: "hi"}}}, defaultConfig(), log.NewNop())

	resp, err := loop.Run(context.Background(), Request{OwnerID: "owner-a", Message: "hi"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	_, err = loop.Run(context.Background(), Request{
		OwnerID:        "owner-b",
		ConversationID: resp.ConversationID,
		Message:        "let me in",
	})
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("err = %v, want ErrConversationNotFound", err)
	}
}

func TestLoopHistoryWindow(t *testing.T) {
	store := &memStore{}
	store.conv = &Conversation{ID: uuid.New(), OwnerID: "u1"}
	for i := 0; i < 10; i++ {
		store.messages = append(store.messages,
			Message{Role: RoleUser, Content: fmt.Sprintf("q%d", i), SequenceNumber: 2*i + 1},
			Message{Role: RoleAssistant, Content: fmt.Sprintf("a%d", i), SequenceNumber: 2*i + 2},
		)
	}

	model := &scriptedModel{turns: []*ModelTurn{{Text: "recap"}}}
	loop := NewLoop(store, newTestRegistry(t, nil), model, defaultConfig(), log.NewNop())

	_, err := loop.Run(context.Background(), Request{
		OwnerID:        "u1",
		ConversationID: store.conv.ID,
		Message:        "what did we discuss?",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// 12 history messages plus the new user message.
	if model.msgLens[0] != 13 {
		t.Errorf("transcript length = %d, want 13", model.msgLens[0])
	}
}

func TestLoopArtifactDedupe(t *testing.T) {
	cards := []tools.Card{
		{ID: 1}, {ID: 2}, {ID: 1}, {ID: 3}, {ID: 4}, {ID: 5}, {ID: 6}, {ID: 7},
	}
	store := &memStore{}
	model := &scriptedModel{turns: []*ModelTurn{
		{ToolRequests: []*ai.ToolRequest{listCall()}},
		{Text: "Lots of options."},
	}}
	loop := NewLoop(store, newTestRegistry(t, cards), model, defaultConfig(), log.NewNop())

	resp, err := loop.Run(context.Background(), Request{OwnerID: "u1", Message: "show me everything"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(resp.Artifacts) != 5 {
		t.Fatalf("artifacts = %d, want 5 (deduped and capped)", len(resp.Artifacts))
	}
	seen := make(map[int64]bool)
	for _, c := range resp.Artifacts {
		if seen[c.ID] {
			t.Errorf("duplicate artifact id %d", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestLoopFollowUpSkipsTextlessMarkers(t *testing.T) {
	store := &memStore{}
	first := &scriptedModel{turns: []*ModelTurn{
		{ToolRequests: []*ai.ToolRequest{listCall()}},
		{Text: "Found two options."},
	}}
	loop := NewLoop(store, newTestRegistry(t, nil), first, defaultConfig(), log.NewNop())

	resp, err := loop.Run(context.Background(), Request{OwnerID: "u1", Message: "any laptops?"})
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	second := &scriptedModel{turns: []*ModelTurn{{Text: "The cheaper one is the Volt 15."}}}
	loop = NewLoop(store, newTestRegistry(t, nil), second, defaultConfig(), log.NewNop())
	_, err = loop.Run(context.Background(), Request{
		OwnerID:        "u1",
		ConversationID: resp.ConversationID,
		Message:        "which is cheaper?",
	})
	if err != nil {
		t.Fatalf("follow-up Run() error = %v", err)
	}

	// The first exchange persisted a text-less assistant marker row; the
	// rebuilt transcript must not contain it, only real turns.
	transcript := second.recorded[0]
	if len(transcript) != 3 {
		t.Fatalf("transcript length = %d, want 3 (user, assistant, user)", len(transcript))
	}
	for i, msg := range transcript {
		for _, p := range msg.Content {
			if strings.TrimSpace(p.Text) == "" {
				t.Errorf("transcript message %d (role %s) carries an empty text part", i, msg.Role)
			}
		}
	}
}

func persistedRoles(store *memStore) []string {
	roles := make([]string, 0, len(store.messages))
	for _, m := range store.messages {
		roles = append(roles, m.Role)
	}
	return roles
}
