package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/assistant"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/log"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/tools"
)

// fakeLoop returns a canned response or error and records the last request.
type fakeLoop struct {
	resp *assistant.Response
	err  error
	last assistant.Request
}

func (f *fakeLoop) Run(_ context.Context, req assistant.Request) (*assistant.Response, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func newChatServer(t *testing.T, loop chatRunner, chatLimit int) http.Handler {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Logger:      log.NewNop(),
		Loop:        loop,
		IsDev:       true,
		IPRateBurst: 1000,
		ChatLimit:   chatLimit,
		ChatWindow:  time.Minute,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv.Handler()
}

func postChat(handler http.Handler, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestChatSend(t *testing.T) {
	convID := uuid.New()
	loop := &fakeLoop{resp: &assistant.Response{
		ConversationID: convID,
		Reply:          "Found two laptops under $1000.",
		Artifacts:      []tools.Card{{ID: 101, Title: "Aero 13"}},
		Suggestions:    []string{"Show me similar products"},
		State:          assistant.StateOK,
	}}
	handler := newChatServer(t, loop, 20)

	rec := postChat(handler, `{"message":"laptops under $1000","context":{"pageType":"home"}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ConversationID != convID.String() || resp.State != "ok" {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Artifacts) != 1 || resp.Artifacts[0].ID != 101 {
		t.Errorf("artifacts = %+v", resp.Artifacts)
	}
	if loop.last.OwnerID == "" {
		t.Error("loop received empty owner identity")
	}
	if loop.last.Page.PageType != "home" {
		t.Errorf("page context = %+v", loop.last.Page)
	}
}

func TestChatSendErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		loopErr    error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed json",
			body:       `{"message":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_body",
		},
		{
			name:       "bad conversation id",
			body:       `{"conversationId":"not-a-uuid","message":"hi"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_conversation_id",
		},
		{
			name:       "empty message",
			body:       `{"message":"   "}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "empty_message",
		},
		{
			name:       "foreign conversation",
			body:       `{"conversationId":"` + uuid.NewString() + `","message":"hi"}`,
			loopErr:    assistant.ErrConversationNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "conversation_not_found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newChatServer(t, &fakeLoop{err: tt.loopErr}, 20)
			rec := postChat(handler, tt.body, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body: %s)", rec.Code, tt.wantStatus, rec.Body)
			}
			var body map[string]errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding error body: %v", err)
			}
			if body["error"].Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", body["error"].Code, tt.wantCode)
			}
		})
	}
}

func TestChatBlankMessageDoesNotConsumeBudget(t *testing.T) {
	loop := &fakeLoop{resp: &assistant.Response{
		ConversationID: uuid.New(),
		Reply:          "ok",
		State:          assistant.StateOK,
	}}
	handler := newChatServer(t, loop, 1)
	uid := &http.Cookie{Name: "uid", Value: uuid.NewString()}

	if rec := postChat(handler, `{"message":"   "}`, []*http.Cookie{uid}); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank message status = %d, want 400", rec.Code)
	}
	// The single budget slot must still be available.
	if rec := postChat(handler, `{"message":"hi"}`, []*http.Cookie{uid}); rec.Code != http.StatusOK {
		t.Errorf("status after blank message = %d, want 200", rec.Code)
	}
}

func TestChatBudgetExhausted(t *testing.T) {
	loop := &fakeLoop{resp: &assistant.Response{
		ConversationID: uuid.New(),
		Reply:          "ok",
		State:          assistant.StateOK,
	}}
	handler := newChatServer(t, loop, 20)

	// Pin the visitor identity so every request shares one budget.
	uid := &http.Cookie{Name: "uid", Value: uuid.NewString()}

	for i := range 20 {
		rec := postChat(handler, `{"message":"hi"}`, []*http.Cookie{uid})
		if rec.Code != http.StatusOK {
			t.Fatalf("message %d: status = %d, body = %s", i+1, rec.Code, rec.Body)
		}
	}

	rec := postChat(handler, `{"message":"one too many"}`, []*http.Cookie{uid})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("21st message: status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.State != stateRateLimited {
		t.Errorf("state = %q, want %q", resp.State, stateRateLimited)
	}

	// A fresh visitor still gets through.
	other := &http.Cookie{Name: "uid", Value: uuid.NewString()}
	if rec := postChat(handler, `{"message":"hi"}`, []*http.Cookie{other}); rec.Code != http.StatusOK {
		t.Errorf("fresh visitor status = %d, want 200", rec.Code)
	}
}
