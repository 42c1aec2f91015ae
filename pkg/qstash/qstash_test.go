package qstash

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
)

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{URL: "", Token: "x"}); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewClient(Config{URL: "https://qstash.upstash.io", Token: " "}); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestTurnNotifierPublishes(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotAuth string
		gotBody contractx.TurnEvent
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"messageId":"msg_1"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: srv.URL, Token: "tok", Timeout: time.Second, Retries: 1})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	notifier, err := NewTurnNotifier(client, "https://example.com/hooks/turns")
	if err != nil {
		t.Fatalf("NewTurnNotifier() error = %v", err)
	}

	err = notifier.NotifyTurn(context.Background(), contractx.TurnEvent{ThreadKey: "t1", Version: 3, Reply: "hi"})
	if err != nil {
		t.Fatalf("NotifyTurn() error = %v", err)
	}
	if !strings.HasPrefix(gotPath, "/v2/publish/") || !strings.HasSuffix(gotPath, "/hooks/turns") {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotBody.ThreadKey != "t1" || gotBody.Version != 3 {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestPublishHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid token"}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{URL: srv.URL, Token: "bad"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	_, err = client.Publish(context.Background(), "https://example.com/x", []byte(`{}`))
	if err == nil || !strings.Contains(err.Error(), "status=401") {
		t.Fatalf("Publish() error = %v, want status=401", err)
	}
}
