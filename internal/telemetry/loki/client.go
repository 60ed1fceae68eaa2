// Package loki pushes the tracker's event stream to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fleet-tracker/internal/telemetry/domain"
)

// PushRequest is the body of POST /loki/api/v1/push.
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is one label set and its entries. Each value is [ts_ns, line] or
// [ts_ns, line, structured_metadata].
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]any           `json:"values"`
}

// Entry is one log line.
type Entry struct {
	Timestamp time.Time
	Line      string
	// Labels become stream labels. Keep them low-cardinality.
	Labels map[string]string
	// Metadata is attached per line (driver and vehicle ids, session ids).
	Metadata map[string]string
}

var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// Client pushes to one Loki instance under a fixed job label.
type Client struct {
	baseURL string
	job     string
	http    *http.Client
}

// NewClient returns a client for baseURL (e.g. http://localhost:3100). job defaults to
// "fleet-tracker"; a nil httpClient gets a 10s timeout.
func NewClient(baseURL, job string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if job == "" {
		job = "fleet-tracker"
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), job: job, http: httpClient}
}

// PushEventJSON pushes a Kafka event value as-is. Event type and source become labels, the
// driver, vehicle and session ids become structured metadata, and createdAt the timestamp.
// Values that do not decode are pushed with the current time and the job label only.
func (c *Client) PushEventJSON(ctx context.Context, rawJSON []byte) error {
	e := Entry{Timestamp: time.Now().UTC(), Line: string(rawJSON)}
	var ev domain.Event
	if err := json.Unmarshal(rawJSON, &ev); err == nil {
		e.Labels = map[string]string{"event_type": ev.EventType, "source": ev.Source}
		e.Metadata = map[string]string{
			"driver_id":  ev.DriverID,
			"vehicle_id": ev.VehicleID,
			"session_id": ev.SessionID,
		}
		if !ev.CreatedAt.IsZero() {
			e.Timestamp = ev.CreatedAt
		}
	}
	return c.PushEntry(ctx, e)
}

// Push sends a single line with labels and no metadata.
func (c *Client) Push(ctx context.Context, timestamp time.Time, line string, labels map[string]string) error {
	return c.PushEntry(ctx, Entry{Timestamp: timestamp, Line: line, Labels: labels})
}

// PushEntry sends e. Blank labels and metadata are dropped. Loki answering non-2xx is an error.
func (c *Client) PushEntry(ctx context.Context, e Entry) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	labels := map[string]string{"job": c.job}
	for k, v := range e.Labels {
		if v = labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); v != "" {
			labels[k] = v
		}
	}
	value := []any{strconv.FormatInt(e.Timestamp.UnixNano(), 10), e.Line}
	meta := map[string]string{}
	for k, v := range e.Metadata {
		if v != "" {
			meta[k] = v
		}
	}
	if len(meta) > 0 {
		value = append(value, meta)
	}

	payload, err := json.Marshal(PushRequest{Streams: []Stream{{Stream: labels, Values: [][]any{value}}}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("loki: push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
