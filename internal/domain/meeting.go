package domain

import (
	"time"

	"github.com/google/uuid"
)

// DetectionKind identifies which heuristic produced an event or alert.
type DetectionKind string

const (
	DetectionKindMic    DetectionKind = "mic"
	DetectionKindCamera DetectionKind = "camera"
)

// ConnectionStatus represents the call transport state as shown to the user
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
)

// DetectionEvent is an immutable record of one heuristic firing.
// Created only by the detection engine; never mutated or removed for the
// life of the session.
type DetectionEvent struct {
	ID         uuid.UUID     `json:"id"`
	Kind       DetectionKind `json:"kind"`
	OccurredAt time.Time     `json:"occurred_at"`
	Message    string        `json:"message"`
}

// MeetingRecord is the persisted form of a finished call session
type MeetingRecord struct {
	ID              uuid.UUID        `json:"id"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         time.Time        `json:"end_time"`
	DurationSeconds int              `json:"duration_seconds"`
	Events          []DetectionEvent `json:"events"`
}

// Alert is the transient projection of "an alert is currently visible",
// decoupled from the permanent event log. At most one alert is visible at a
// time; a new one replaces the current one.
type Alert struct {
	Visible bool          `json:"visible"`
	Kind    DetectionKind `json:"kind,omitempty"`
	Message string        `json:"message,omitempty"`
}
