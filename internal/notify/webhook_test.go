package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flemzord/sitterd/internal/security"
	"github.com/flemzord/sitterd/internal/store"
)

func fastWebhook(t *testing.T, url string) *WebhookDeliverer {
	t.Helper()
	w, err := NewWebhookDeliverer(WebhookConfig{
		URL:             url,
		Token:           "hook-token",
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewWebhookDeliverer() error: %v", err)
	}
	return w
}

func TestWebhook_Delivers(t *testing.T) {
	t.Parallel()

	type received struct {
		auth string
		body webhookBody
	}
	ch := make(chan received, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec received
		rec.auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
		ch <- rec
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := store.Notification{
		ID:             "n1",
		RecipientID:    "u1",
		IdempotencyKey: "task:t1:overdue",
		Payload:        store.Payload{Kind: store.KindTaskOverdue, SubjectID: "t1", Title: "Overdue"},
		CreatedAt:      testNow,
	}
	if err := fastWebhook(t, srv.URL).Deliver(context.Background(), n); err != nil {
		t.Fatalf("Deliver() error: %v", err)
	}

	rec := <-ch
	if rec.auth != "Bearer hook-token" {
		t.Errorf("Authorization = %q", rec.auth)
	}
	if got := rec.body; got.ID != "n1" || got.Kind != "task_overdue" || got.SubjectID != "t1" {
		t.Errorf("body = %+v", got)
	}
}

func TestWebhook_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := fastWebhook(t, srv.URL).Deliver(context.Background(), store.Notification{ID: "n1"}); err != nil {
		t.Fatalf("Deliver() error: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestWebhook_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if err := fastWebhook(t, srv.URL).Deliver(context.Background(), store.Notification{ID: "n1"}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestWebhook_ClientErrorIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if err := fastWebhook(t, srv.URL).Deliver(context.Background(), store.Notification{ID: "n1"}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestNewWebhookDeliverer_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewWebhookDeliverer(WebhookConfig{}, nil); err == nil {
		t.Error("expected error for empty url")
	}

	_, err := NewWebhookDeliverer(WebhookConfig{
		URL:       "https://hooks.evil.example/notify",
		URLFilter: security.URLFilterConfig{DenyDomains: []string{"evil.example"}},
	}, nil)
	if !errors.Is(err, security.ErrURLBlocked) {
		t.Errorf("err = %v, want ErrURLBlocked", err)
	}

	_, err = NewWebhookDeliverer(WebhookConfig{URL: "file:///etc/passwd"}, nil)
	if !errors.Is(err, security.ErrURLBlocked) {
		t.Errorf("err = %v, want ErrURLBlocked for file scheme", err)
	}
}
