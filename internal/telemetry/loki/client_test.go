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

func captureServer(t *testing.T, status int, got *PushRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("decode push body: %v", err)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPushEventJSON_LabelsAndTimestamp(t *testing.T) {
	var got PushRequest
	srv := captureServer(t, http.StatusNoContent, &got)
	c := NewClient(srv.URL+"/", "", nil)

	raw := []byte(`{"eventType":"position_fix","source":"ingest","driverId":"10","createdAt":"2026-01-02T03:04:05Z"}`)
	if err := c.PushEventJSON(context.Background(), raw); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(got.Streams))
	}
	s := got.Streams[0]
	if s.Stream["job"] != "fleet-tracker" || s.Stream["event_type"] != "position_fix" || s.Stream["source"] != "ingest" {
		t.Errorf("labels = %v", s.Stream)
	}
	wantTS := strconv.FormatInt(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).UnixNano(), 10)
	if len(s.Values) != 1 || len(s.Values[0]) != 3 || s.Values[0][0] != wantTS || s.Values[0][1] != string(raw) {
		t.Fatalf("values = %v", s.Values)
	}
	meta, ok := s.Values[0][2].(map[string]any)
	if !ok || meta["driver_id"] != "10" || len(meta) != 1 {
		t.Errorf("metadata = %v, want only driver_id=10", s.Values[0][2])
	}
	if _, ok := s.Stream["driver_id"]; ok {
		t.Error("driver id must not be a stream label")
	}
}

func TestPushEventJSON_Unparseable(t *testing.T) {
	var got PushRequest
	srv := captureServer(t, http.StatusNoContent, &got)
	c := NewClient(srv.URL, "job1", nil)

	if err := c.PushEventJSON(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("PushEventJSON: %v", err)
	}
	if labels := got.Streams[0].Stream; len(labels) != 1 || labels["job"] != "job1" {
		t.Errorf("labels = %v, want only job", labels)
	}
	if v := got.Streams[0].Values[0]; len(v) != 2 || v[1] != "not json" {
		t.Errorf("values = %v, want line without metadata", v)
	}
}

func TestPush_SanitizesLabels(t *testing.T) {
	var got PushRequest
	srv := captureServer(t, http.StatusNoContent, &got)
	c := NewClient(srv.URL, "", nil)

	err := c.Push(context.Background(), time.Now(), "line", map[string]string{"source": " a b/c ", "empty": "  "})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	labels := got.Streams[0].Stream
	if labels["source"] != "a_b_c" {
		t.Errorf("source = %q, want %q", labels["source"], "a_b_c")
	}
	if _, ok := labels["empty"]; ok {
		t.Error("blank label values should be dropped")
	}
}

func TestPush_Non2xx(t *testing.T) {
	var got PushRequest
	srv := captureServer(t, http.StatusBadRequest, &got)
	c := NewClient(srv.URL, "", nil)
	if err := c.Push(context.Background(), time.Now(), "line", nil); err == nil {
		t.Fatal("Push should fail on 400")
	}
}

func TestPush_EmptyBaseURL(t *testing.T) {
	if err := NewClient("", "", nil).Push(context.Background(), time.Now(), "line", nil); err == nil {
		t.Fatal("Push with empty base URL should fail")
	}
}

