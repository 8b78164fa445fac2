package geminilive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/wenjiez/shuoba/pkg/provider/chat"
)

func TestBuildClientContent(t *testing.T) {
	msg := buildClientContent([]chat.Message{
		{Role: chat.RoleUser, Content: "你好"},
		{Role: chat.RoleAssistant, Content: "你好！"},
		{Role: chat.RoleUser, Content: "再见"},
	})

	cc := msg.ClientContent
	if !cc.TurnComplete {
		t.Error("turnComplete not set")
	}
	if len(cc.Turns) != 3 {
		t.Fatalf("turns = %d, want 3", len(cc.Turns))
	}
	if cc.Turns[0].Role != "user" || cc.Turns[1].Role != "model" || cc.Turns[2].Role != "user" {
		t.Errorf("roles = %q %q %q", cc.Turns[0].Role, cc.Turns[1].Role, cc.Turns[2].Role)
	}
	if cc.Turns[1].Parts[0].Text != "你好！" {
		t.Errorf("assistant text = %q", cc.Turns[1].Parts[0].Text)
	}
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		// Setup frame.
		var setup setupMessage
		if _, data, err := conn.Read(ctx); err != nil {
			t.Errorf("read setup: %v", err)
			return
		} else if err := json.Unmarshal(data, &setup); err != nil {
			t.Errorf("unmarshal setup: %v", err)
			return
		}
		if setup.Setup.Model != "models/gemini-2.0-flash-live-001" {
			t.Errorf("model = %q", setup.Setup.Model)
		}
		conn.Write(ctx, websocket.MessageText, []byte(`{"setupComplete":{}}`))

		// Client content.
		if _, _, err := conn.Read(ctx); err != nil {
			t.Errorf("read content: %v", err)
			return
		}

		// Streamed reply in two frames.
		conn.Write(ctx, websocket.MessageText,
			[]byte(`{"serverContent":{"modelTurn":{"parts":[{"text":"你好！"}]}}}`))
		conn.Write(ctx, websocket.MessageText,
			[]byte(`{"serverContent":{"modelTurn":{"parts":[{"text":"English translation: Hello!"}]},"turnComplete":true}}`))
	}))
	defer srv.Close()

	host := "ws://" + strings.TrimPrefix(srv.URL, "http://")
	p, err := New("test-key", WithHost(host))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.Complete(context.Background(), chat.Request{
		System:   "You are a tutor.",
		Messages: []chat.Message{{Role: chat.RoleUser, Content: "你好"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	want := "你好！English translation: Hello!"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}
