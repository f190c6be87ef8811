package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatchPostsPayload(t *testing.T) {
	t.Parallel()

	var (
		gotAuth    string
		gotPayload OutgoingPayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDispatcher(nil, time.Second)
	if err := d.Dispatch(context.Background(), srv.URL, "dlg-1", "c1", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer dlg-1" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	want := OutgoingPayload{EventType: "new_message", ChatID: "c1", Text: "hello"}
	if gotPayload != want {
		t.Fatalf("unexpected payload %#v", gotPayload)
	}
}

func TestDispatchReportsNon2xx(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(nil, time.Second)
	if err := d.Dispatch(context.Background(), srv.URL, "t", "c", "x"); err == nil {
		t.Fatalf("expected error for 500")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one attempt, got %d", calls.Load())
	}
}

func TestDispatchReportsTransportErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	d := NewDispatcher(nil, 200*time.Millisecond)
	if err := d.Dispatch(context.Background(), url, "t", "c", "x"); err == nil {
		t.Fatalf("expected transport error")
	}
	if err := d.Dispatch(context.Background(), "://bad-url", "t", "c", "x"); err == nil {
		t.Fatalf("expected error for malformed url")
	}
}
