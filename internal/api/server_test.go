package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/assistant"
	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/log"
)

func TestNewServerRequiresLoop(t *testing.T) {
	if _, err := NewServer(ServerConfig{Logger: log.NewNop()}); err == nil {
		t.Fatal("NewServer without loop should fail")
	}
}

func TestHealthEndpoints(t *testing.T) {
	loop := &fakeLoop{resp: &assistant.Response{ConversationID: uuid.New(), Reply: "ok", State: assistant.StateOK}}
	handler := newChatServer(t, loop, 20)

	t.Run("healthz", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("readyz without pool", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("probes skip visitor provisioning", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if len(rec.Result().Cookies()) != 0 {
			t.Error("health probe set a cookie")
		}
	})
}

func TestServerSecurityHeaders(t *testing.T) {
	loop := &fakeLoop{resp: &assistant.Response{ConversationID: uuid.New(), Reply: "ok", State: assistant.StateOK}}
	handler := newChatServer(t, loop, 20)

	rec := postChat(handler, `{"message":"hi"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	wantHeaders := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	}
	for k, v := range wantHeaders {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestServerUnknownRoute(t *testing.T) {
	loop := &fakeLoop{resp: &assistant.Response{ConversationID: uuid.New(), Reply: "ok", State: assistant.StateOK}}
	handler := newChatServer(t, loop, 20)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
