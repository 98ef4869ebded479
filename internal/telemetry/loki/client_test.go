package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func captureServer(t *testing.T, status int) (*httptest.Server, *PushRequest) {
	t.Helper()
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %q, want /loki/api/v1/push", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestNewClient_EmptyURL(t *testing.T) {
	if _, err := NewClient("  ", nil); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestClient_PushEventJSON(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	c, err := NewClient(srv.URL+"/", nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	raw := []byte(`{"eventType":"push_sent","userId":"alice","source":"server","createdAt":"` + ts.Format(time.RFC3339Nano) + `"}`)
	if err := c.PushEventJSON(context.Background(), raw); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}

	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(got.Streams))
	}
	s := got.Streams[0]
	want := map[string]string{"job": Job, "event_type": "push_sent", "source": "server"}
	for k, v := range want {
		if s.Stream[k] != v {
			t.Errorf("label %s = %q, want %q", k, s.Stream[k], v)
		}
	}
	if _, ok := s.Stream["user_id"]; ok {
		t.Error("user_id must not be a stream label")
	}
	if s.Values[0][0] != strconv.FormatInt(ts.UnixNano(), 10) {
		t.Errorf("timestamp = %s, want %d", s.Values[0][0], ts.UnixNano())
	}
	if s.Values[0][1] != string(raw) {
		t.Errorf("line = %q, want the raw event", s.Values[0][1])
	}
}

func TestClient_PushEventJSON_Unparseable(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	c, _ := NewClient(srv.URL, nil)
	if err := c.PushEventJSON(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(got.Streams) != 1 || got.Streams[0].Stream["job"] != Job || len(got.Streams[0].Stream) != 1 {
		t.Errorf("streams = %+v, want a single job-labelled stream", got.Streams)
	}
}

func TestClient_Push_SanitizesLabels(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	c, _ := NewClient(srv.URL, nil)
	if err := c.Push(context.Background(), time.Now(), "line", map[string]string{"event_type": " push sent!", "empty": "  "}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	labels := got.Streams[0].Stream
	if labels["event_type"] != "push_sent_" {
		t.Errorf("event_type = %q, want %q", labels["event_type"], "push_sent_")
	}
	if _, ok := labels["empty"]; ok {
		t.Error("blank label should be dropped")
	}
}

func TestClient_Push_Non2xx(t *testing.T) {
	srv, _ := captureServer(t, http.StatusBadRequest)
	c, _ := NewClient(srv.URL, nil)
	if err := c.Push(context.Background(), time.Now(), "line", nil); err == nil {
		t.Fatal("expected error on 400")
	}
}
