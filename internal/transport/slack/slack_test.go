package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendTextPostsWebhook(t *testing.T) {
	t.Parallel()
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, err := New(Config{WebhookURL: srv.URL, Username: "noticer"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.SendText(context.Background(), "drink water"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if body["text"] != "drink water" || body["username"] != "noticer" {
		t.Fatalf("body=%v", body)
	}
}

func TestSendTextStatusError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, _ := New(Config{WebhookURL: srv.URL})
	if err := c.SendText(context.Background(), "x"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewRejectsEmptyURL(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}
