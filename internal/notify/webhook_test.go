package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redlinehq/redline/model"
)

func TestWebhook_PostsJSON(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, time.Second)
	msg := Message{
		Recipient:  "b@acme.test",
		Event:      EventInviteSent,
		DocumentID: "doc-1",
		Payload:    map[string]any{"link": "https://redline.example.com/shared/tok"},
	}
	if err := wh.Notify(context.Background(), msg); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if got.Event != EventInviteSent || got.DocumentID != "doc-1" {
		t.Errorf("delivered message = %+v", got)
	}
}

func TestWebhook_Non2xxIsDeliveryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, time.Second)
	err := wh.Notify(context.Background(), Message{Event: EventSigned, Recipient: "a@initech.test"})
	if !model.IsCode(err, model.ErrDeliveryError) {
		t.Errorf("Notify() error = %v, want DELIVERY_ERROR", err)
	}
}

func TestWebhook_UnreachableEndpoint(t *testing.T) {
	wh := NewWebhook("http://127.0.0.1:1", 200*time.Millisecond)
	err := wh.Notify(context.Background(), Message{Event: EventVoided})
	if !model.IsCode(err, model.ErrDeliveryError) {
		t.Errorf("Notify() error = %v, want DELIVERY_ERROR", err)
	}
}
