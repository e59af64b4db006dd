package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/clearform/photo-upscaler/pkg/schema"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubNotifier struct {
	err   error
	calls int
}

func (s *stubNotifier) Send(context.Context, string, schema.BatchDone) error {
	s.calls++
	return s.err
}

func TestChainFirstSuccessWins(t *testing.T) {
	broken := &stubNotifier{err: errors.New("down")}
	working := &stubNotifier{}
	unreached := &stubNotifier{}

	c := Chain{Notifiers: []Notifier{broken, working, unreached}, Logger: testLogger()}
	if err := c.Send(context.Background(), "hi", schema.BatchDone{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if broken.calls != 1 || working.calls != 1 {
		t.Fatalf("call counts: broken=%d working=%d", broken.calls, working.calls)
	}
	if unreached.calls != 0 {
		t.Fatal("later notifiers must not run after a success")
	}
}

func TestChainAllFail(t *testing.T) {
	a := &stubNotifier{err: errors.New("a down")}
	b := &stubNotifier{err: errors.New("b down")}

	c := Chain{Notifiers: []Notifier{a, b}, Logger: testLogger()}
	err := c.Send(context.Background(), "hi", schema.BatchDone{})
	if err == nil {
		t.Fatal("all-failed chain must return an error")
	}
	if !strings.Contains(err.Error(), "a down") || !strings.Contains(err.Error(), "b down") {
		t.Fatalf("joined error missing causes: %v", err)
	}
}

func TestChainEmpty(t *testing.T) {
	c := Chain{Logger: testLogger()}
	if err := c.Send(context.Background(), "hi", schema.BatchDone{}); err == nil {
		t.Fatal("empty chain must report an error")
	}
}

func TestNop(t *testing.T) {
	if err := (Nop{}).Send(context.Background(), "hi", schema.BatchDone{}); err != nil {
		t.Fatalf("Nop must never fail: %v", err)
	}
}

func TestTelegramSend(t *testing.T) {
	var gotPath string
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("token123", "chat456")
	tg.BaseURL = srv.URL
	if err := tg.Send(context.Background(), "batch done", schema.BatchDone{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/bottoken123/sendMessage" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotForm.Get("chat_id") != "chat456" || gotForm.Get("text") != "batch done" {
		t.Fatalf("form = %v", gotForm)
	}
}

func TestTelegramRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false}`))
	}))
	defer srv.Close()

	tg := NewTelegram("token123", "chat456")
	tg.BaseURL = srv.URL
	if err := tg.Send(context.Background(), "batch done", schema.BatchDone{}); err == nil {
		t.Fatal("rejected message must surface an error")
	}
}

func TestTelegramUnconfigured(t *testing.T) {
	tg := NewTelegram("", "")
	if err := tg.Send(context.Background(), "hi", schema.BatchDone{}); err == nil {
		t.Fatal("unconfigured telegram must fail, not silently drop")
	}
}

func TestMessengerCLIUnconfigured(t *testing.T) {
	m := NewMessengerCLI("", "telegram", "")
	if err := m.Send(context.Background(), "hi", schema.BatchDone{}); err == nil {
		t.Fatal("unconfigured CLI must fail")
	}
}

func TestMessengerCLIRunsCommand(t *testing.T) {
	// `true` ignores its arguments and exits zero, which is all the success
	// path needs.
	m := NewMessengerCLI("true", "telegram", "ops-room")
	if err := m.Send(context.Background(), "hi", schema.BatchDone{}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	m = NewMessengerCLI("false", "telegram", "ops-room")
	if err := m.Send(context.Background(), "hi", schema.BatchDone{}); err == nil {
		t.Fatal("non-zero exit must surface an error")
	}
}
