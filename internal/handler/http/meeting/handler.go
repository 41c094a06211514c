package meeting

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"meetsense-backend/internal/domain"
	"meetsense-backend/internal/service/history"
	apperrors "meetsense-backend/pkg/errors"
	"meetsense-backend/pkg/response"
)

// Handler handles meeting history HTTP requests
type Handler struct {
	historyService *history.Service
}

// NewHandler creates a new meeting handler
func NewHandler(historyService *history.Service) *Handler {
	return &Handler{
		historyService: historyService,
	}
}

// EventRequest is the wire form of one detection event
type EventRequest struct {
	ID         string `json:"id" binding:"required,uuid"`
	Kind       string `json:"kind" binding:"required,oneof=mic camera"`
	OccurredAt string `json:"occurred_at" binding:"required"`
	Message    string `json:"message" binding:"required"`
}

// SaveMeetingRequest represents a meeting save request. Timestamps arrive as
// RFC 3339 text and are converted eagerly rather than trusted downstream.
type SaveMeetingRequest struct {
	StartTime       string         `json:"start_time" binding:"required"`
	EndTime         string         `json:"end_time" binding:"required"`
	DurationSeconds int            `json:"duration_seconds" binding:"min=0"`
	Events          []EventRequest `json:"events"`
}

// SaveMeeting stores a finished meeting
// POST /v1/meetings
func (h *Handler) SaveMeeting(c *gin.Context) {
	var req SaveMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	start, err := time.Parse(time.RFC3339Nano, req.StartTime)
	if err != nil {
		response.ValidationError(c, "Invalid start_time")
		return
	}
	end, err := time.Parse(time.RFC3339Nano, req.EndTime)
	if err != nil {
		response.ValidationError(c, "Invalid end_time")
		return
	}

	record := &domain.MeetingRecord{
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: req.DurationSeconds,
		Events:          make([]domain.DetectionEvent, 0, len(req.Events)),
	}
	for _, e := range req.Events {
		occurred, err := time.Parse(time.RFC3339Nano, e.OccurredAt)
		if err != nil {
			response.ValidationError(c, "Invalid event timestamp")
			return
		}
		record.Events = append(record.Events, domain.DetectionEvent{
			ID:         uuid.MustParse(e.ID),
			Kind:       domain.DetectionKind(e.Kind),
			OccurredAt: occurred,
			Message:    e.Message,
		})
	}

	saved, err := h.historyService.SaveMeeting(c.Request.Context(), record)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, saved)
}

// ListMeetings returns all stored meetings
// GET /v1/meetings
func (h *Handler) ListMeetings(c *gin.Context) {
	records, err := h.historyService.ListMeetings(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, records)
}

// GetMeeting returns one stored meeting
// GET /v1/meetings/:id
func (h *Handler) GetMeeting(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid meeting ID")
		return
	}

	record, err := h.historyService.GetMeeting(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, record)
}

// DeleteMeeting removes one stored meeting
// DELETE /v1/meetings/:id
func (h *Handler) DeleteMeeting(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid meeting ID")
		return
	}

	if err := h.historyService.DeleteMeeting(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message":    "Meeting deleted",
		"meeting_id": id,
	})
}

// writeError maps a service error onto the response envelope. Storage detail
// never leaks to the client.
func writeError(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)
	message := appErr.Message
	if appErr.Code == apperrors.ErrCodeDatabase || appErr.Code == apperrors.ErrCodeInternal {
		message = "Internal server error"
	}
	response.Error(c, appErr.StatusCode, string(appErr.Code), message)
}
