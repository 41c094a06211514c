package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"meetsense-backend/internal/domain"
)

// ErrNotFound is returned when the service has no record with the given id
var ErrNotFound = errors.New("history: meeting not found")

// Client talks to the history service's REST API. All failures are uniform:
// any non-success response is an error with no structured detail beyond the
// service's message.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithToken attaches a bearer token to every request
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient overrides the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a history client for the given base URL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope mirrors the history service's response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// eventPayload is the wire form of a DetectionEvent. Timestamps travel as
// RFC 3339 text and are converted eagerly rather than trusted.
type eventPayload struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	OccurredAt string `json:"occurred_at"`
	Message    string `json:"message"`
}

// meetingPayload is the wire form of a MeetingRecord
type meetingPayload struct {
	ID              string         `json:"id,omitempty"`
	StartTime       string         `json:"start_time"`
	EndTime         string         `json:"end_time"`
	DurationSeconds int            `json:"duration_seconds"`
	Events          []eventPayload `json:"events"`
}

func payloadFromRecord(record domain.MeetingRecord) meetingPayload {
	p := meetingPayload{
		StartTime:       record.StartTime.UTC().Format(time.RFC3339Nano),
		EndTime:         record.EndTime.UTC().Format(time.RFC3339Nano),
		DurationSeconds: record.DurationSeconds,
		Events:          make([]eventPayload, 0, len(record.Events)),
	}
	if record.ID != uuid.Nil {
		p.ID = record.ID.String()
	}
	for _, e := range record.Events {
		p.Events = append(p.Events, eventPayload{
			ID:         e.ID.String(),
			Kind:       string(e.Kind),
			OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339Nano),
			Message:    e.Message,
		})
	}
	return p
}

func (p meetingPayload) toRecord() (domain.MeetingRecord, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return domain.MeetingRecord{}, fmt.Errorf("invalid meeting id %q: %w", p.ID, err)
	}
	start, err := time.Parse(time.RFC3339Nano, p.StartTime)
	if err != nil {
		return domain.MeetingRecord{}, fmt.Errorf("invalid start_time %q: %w", p.StartTime, err)
	}
	end, err := time.Parse(time.RFC3339Nano, p.EndTime)
	if err != nil {
		return domain.MeetingRecord{}, fmt.Errorf("invalid end_time %q: %w", p.EndTime, err)
	}

	record := domain.MeetingRecord{
		ID:              id,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: p.DurationSeconds,
		Events:          make([]domain.DetectionEvent, 0, len(p.Events)),
	}
	for _, e := range p.Events {
		eventID, err := uuid.Parse(e.ID)
		if err != nil {
			return domain.MeetingRecord{}, fmt.Errorf("invalid event id %q: %w", e.ID, err)
		}
		occurred, err := time.Parse(time.RFC3339Nano, e.OccurredAt)
		if err != nil {
			return domain.MeetingRecord{}, fmt.Errorf("invalid event timestamp %q: %w", e.OccurredAt, err)
		}
		record.Events = append(record.Events, domain.DetectionEvent{
			ID:         eventID,
			Kind:       domain.DetectionKind(e.Kind),
			OccurredAt: occurred,
			Message:    e.Message,
		})
	}
	return record, nil
}

// Save creates a new historical record and returns it with its assigned id.
// Single attempt; the caller keeps the in-memory record for manual retry.
func (c *Client) Save(ctx context.Context, record domain.MeetingRecord) (*domain.MeetingRecord, error) {
	body, err := json.Marshal(payloadFromRecord(record))
	if err != nil {
		return nil, fmt.Errorf("failed to encode meeting: %w", err)
	}

	data, err := c.do(ctx, http.MethodPost, "/v1/meetings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var payload meetingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode saved meeting: %w", err)
	}
	saved, err := payload.toRecord()
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// List returns all historical records. Any failure yields a nil slice and an
// error; it never panics the caller's view.
func (c *Client) List(ctx context.Context) ([]domain.MeetingRecord, error) {
	data, err := c.do(ctx, http.MethodGet, "/v1/meetings", nil)
	if err != nil {
		return nil, err
	}

	var payloads []meetingPayload
	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, fmt.Errorf("failed to decode meetings: %w", err)
	}

	records := make([]domain.MeetingRecord, 0, len(payloads))
	for _, p := range payloads {
		record, err := p.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// GetByID fetches one record, returning ErrNotFound when absent
func (c *Client) GetByID(ctx context.Context, id uuid.UUID) (*domain.MeetingRecord, error) {
	data, err := c.do(ctx, http.MethodGet, "/v1/meetings/"+id.String(), nil)
	if err != nil {
		return nil, err
	}

	var payload meetingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode meeting: %w", err)
	}
	record, err := payload.toRecord()
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteByID removes exactly one record by identifier
func (c *Client) DeleteByID(ctx context.Context, id uuid.UUID) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/meetings/"+id.String(), nil)
	return err
}

// do performs one request and unwraps the response envelope
func (c *Client) do(ctx context.Context, method, path string, body *bytes.Reader) ([]byte, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history service unreachable: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("malformed history response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		msg := resp.Status
		if env.Error != nil {
			msg = env.Error.Message
		}
		return nil, fmt.Errorf("history service error: %s", msg)
	}

	return env.Data, nil
}
