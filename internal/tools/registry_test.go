package tools

import (
	"context"
	"testing"

	"github.com/garyalexisjeremiahchan/smartshop-sub001/internal/log"
)

type echoInput struct {
	ProductID int64  `json:"product_id"`
	Note      string `json:"note,omitempty"`
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(log.NewNop())
	err := Register(r, "echo", "echoes its input", func(_ context.Context, in echoInput) Result {
		return success(map[string]any{"product_id": in.ProductID, "note": in.Note})
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return r
}

func TestRegistryExecute(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	t.Run("valid arguments", func(t *testing.T) {
		res := r.Execute(ctx, "echo", map[string]any{"product_id": 42, "note": "hi"})
		if res.Status != StatusSuccess {
			t.Fatalf("status = %q, want %q (error: %v)", res.Status, StatusSuccess, res.Error)
		}
		if got := res.Data["product_id"]; got != int64(42) {
			t.Errorf("product_id = %v, want 42", got)
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		res := r.Execute(ctx, "add_to_cart", map[string]any{})
		if res.Status != StatusError || res.Error.ErrorType != ErrTypeInvalidArgument {
			t.Errorf("got %+v, want invalid_argument error", res)
		}
	})

	t.Run("wrong argument type", func(t *testing.T) {
		res := r.Execute(ctx, "echo", map[string]any{"product_id": "forty-two"})
		if res.Status != StatusError || res.Error.ErrorType != ErrTypeInvalidArgument {
			t.Errorf("got %+v, want invalid_argument error", res)
		}
	})

	t.Run("unexpected extra field", func(t *testing.T) {
		res := r.Execute(ctx, "echo", map[string]any{"product_id": 1, "bogus": true})
		if res.Status != StatusError || res.Error.ErrorType != ErrTypeInvalidArgument {
			t.Errorf("got %+v, want invalid_argument error", res)
		}
	})

	t.Run("nil arguments", func(t *testing.T) {
		res := r.Execute(ctx, "echo", nil)
		if res.Status != StatusSuccess {
			t.Errorf("status = %q, want %q (error: %v)", res.Status, StatusSuccess, res.Error)
		}
	})
}

func TestRegisterDuplicate(t *testing.T) {
	r := newTestRegistry(t)
	err := Register(r, "echo", "duplicate", func(_ context.Context, _ echoInput) Result {
		return success(nil)
	})
	if err == nil {
		t.Fatal("expected error registering duplicate tool name")
	}
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry(log.NewNop())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := Register(r, name, name, func(_ context.Context, _ echoInput) Result {
			return success(nil)
		}); err != nil {
			t.Fatalf("Register(%q) error = %v", name, err)
		}
	}
	names := r.Names()
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
