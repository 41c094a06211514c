package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetsense-backend/internal/domain"
)

func sampleRecord() domain.MeetingRecord {
	start := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	return domain.MeetingRecord{
		StartTime:       start,
		EndTime:         start.Add(45 * time.Minute),
		DurationSeconds: 2700,
		Events: []domain.DetectionEvent{
			{
				ID:         uuid.New(),
				Kind:       domain.DetectionKindCamera,
				OccurredAt: start.Add(10 * time.Minute),
				Message:    "Your camera is on but no face is detected in frame!",
			},
		},
	}
}

// TestSave tests the create round trip through the response envelope
func TestSave(t *testing.T) {
	assignedID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/meetings", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var payload meetingPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, 2700, payload.DurationSeconds)
		require.Len(t, payload.Events, 1)
		assert.Equal(t, "camera", payload.Events[0].Kind)

		payload.ID = assignedID.String()
		data, _ := json.Marshal(payload)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    json.RawMessage(data),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, WithToken("test-token"))

	saved, err := client.Save(context.Background(), sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, assignedID, saved.ID)
	assert.Equal(t, 2700, saved.DurationSeconds)
	require.Len(t, saved.Events, 1)
	assert.Equal(t, domain.DetectionKindCamera, saved.Events[0].Kind)
}

// TestSave_ServiceError tests that an error envelope surfaces its message
func TestSave_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error": map[string]string{
				"code":    "VALIDATION_ERROR",
				"message": "meeting ends before it starts",
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	saved, err := client.Save(context.Background(), sampleRecord())
	assert.Nil(t, saved)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "meeting ends before it starts")
}

// TestList tests fetching the full history
func TestList(t *testing.T) {
	record := sampleRecord()
	record.ID = uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)

		data, _ := json.Marshal([]meetingPayload{payloadFromRecord(record)})
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    json.RawMessage(data),
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	records, err := client.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
	assert.True(t, record.StartTime.Equal(records[0].StartTime))
}

// TestList_MalformedPayload tests that junk timestamps are rejected eagerly
func TestList_MalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": []map[string]interface{}{
				{
					"id":               uuid.New().String(),
					"start_time":       "yesterday",
					"end_time":         "later",
					"duration_seconds": 60,
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	records, err := client.List(context.Background())
	assert.Nil(t, records)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid start_time")
}

// TestGetByID_NotFound tests mapping a 404 to ErrNotFound
func TestGetByID_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error": map[string]string{
				"code":    "NOT_FOUND",
				"message": "meeting not found",
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	record, err := client.GetByID(context.Background(), uuid.New())
	assert.Nil(t, record)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestDeleteByID tests the delete path and its missing-record failure
func TestDeleteByID(t *testing.T) {
	existing := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)

		if r.URL.Path == "/v1/meetings/"+existing.String() {
			json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
			return
		}
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   map[string]string{"code": "NOT_FOUND", "message": "meeting not found"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	assert.NoError(t, client.DeleteByID(context.Background(), existing))

	err := client.DeleteByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestUnreachableService tests the connection-refused path
func TestUnreachableService(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")

	_, err := client.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history service unreachable")
}
