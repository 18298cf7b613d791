// Package loki pushes device events to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/klauspost/compress/gzip"

	"fleet-telemetry/agent/internal/events/domain"
)

// Job is the job label of every pushed stream.
const Job = "device-events"

// ErrNoBaseURL is returned by NewClient when the base URL is empty.
var ErrNoBaseURL = errors.New("loki: base URL is empty")

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// StatusError is a non-2xx push response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return "loki: push returned " + e.Status }

// labelSanitize replaces characters we keep out of label values.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:.]`)

// Client pushes to one Loki instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxTries   uint
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithMaxTries bounds push attempts; 1 disables retries.
func WithMaxTries(n uint) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.maxTries = n
		}
	}
}

// NewClient returns a client for baseURL (e.g. http://localhost:3100).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxTries:   3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Labels returns the stream labels of ev.
func Labels(ev *domain.EventRecord) map[string]string {
	labels := map[string]string{"job": Job}
	add := func(k, v string) {
		if s := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); s != "" {
			labels[k] = s
		}
	}
	add("event_name", ev.Name)
	add("workstation", ev.Workstation)
	add("application", ev.ApplicationName)
	return labels
}

// PushEventJSON pushes one event record as serialized on the Kafka topic. The raw JSON is the log
// line; labels and timestamp come from the record. An undecodable message is pushed as-is with
// the current time and only the job label.
func (c *Client) PushEventJSON(ctx context.Context, raw []byte) error {
	var ev domain.EventRecord
	if err := json.Unmarshal(raw, &ev); err != nil {
		return c.Push(ctx, time.Now().UTC(), string(raw), map[string]string{"job": Job})
	}
	ts := time.Now().UTC()
	if ev.Timestamp > 0 {
		ts = time.UnixMilli(ev.Timestamp).UTC()
	}
	return c.Push(ctx, ts, string(raw), Labels(&ev))
}

// Push sends a single line. 5xx responses and transport errors are retried with exponential
// backoff; 4xx responses are not.
func (c *Client) Push(ctx context.Context, ts time.Time, line string, labels map[string]string) error {
	payload, err := encode(PushRequest{
		Streams: []Stream{{
			Stream: labels,
			Values: [][]string{{strconv.FormatInt(ts.UnixNano(), 10), line}},
		}},
	})
	if err != nil {
		return err
	}
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.send(ctx, payload)
	},
		backoff.WithBackOff(newBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
	return err
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

func encode(body PushRequest) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(body); err != nil {
		return nil, fmt.Errorf("loki: encode push: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("loki: encode push: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Client) send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	serr := &StatusError{Code: resp.StatusCode, Status: resp.Status}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return serr
	}
	return backoff.Permanent(serr)
}
