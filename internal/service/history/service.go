package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"meetsense-backend/internal/domain"
	apperrors "meetsense-backend/pkg/errors"
)

// MeetingRepository is the storage contract for meeting records
type MeetingRepository interface {
	Create(ctx context.Context, record *domain.MeetingRecord) (*domain.MeetingRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.MeetingRecord, error)
	List(ctx context.Context) ([]*domain.MeetingRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Service handles meeting history business logic
type Service struct {
	meetingRepo MeetingRepository
}

// NewService creates a new history service
func NewService(meetingRepo MeetingRepository) *Service {
	return &Service{
		meetingRepo: meetingRepo,
	}
}

// SaveMeeting validates and persists a finished meeting record
func (s *Service) SaveMeeting(ctx context.Context, record *domain.MeetingRecord) (*domain.MeetingRecord, error) {
	if record.EndTime.Before(record.StartTime) {
		return nil, apperrors.ValidationError("meeting ends before it starts")
	}
	if record.DurationSeconds < 0 {
		return nil, apperrors.ValidationError("negative duration")
	}
	for _, e := range record.Events {
		if e.Kind != domain.DetectionKindMic && e.Kind != domain.DetectionKindCamera {
			return nil, apperrors.ValidationError(fmt.Sprintf("unknown detection kind %q", e.Kind))
		}
	}

	saved, err := s.meetingRepo.Create(ctx, record)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	return saved, nil
}

// GetMeeting retrieves one meeting record
func (s *Service) GetMeeting(ctx context.Context, id uuid.UUID) (*domain.MeetingRecord, error) {
	record, err := s.meetingRepo.GetByID(ctx, id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return nil, apperrors.MeetingNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	return record, nil
}

// ListMeetings retrieves all meeting records
func (s *Service) ListMeetings(ctx context.Context) ([]*domain.MeetingRecord, error) {
	records, err := s.meetingRepo.List(ctx)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if records == nil {
		records = []*domain.MeetingRecord{}
	}
	return records, nil
}

// DeleteMeeting removes exactly one meeting record by id
func (s *Service) DeleteMeeting(ctx context.Context, id uuid.UUID) error {
	if err := s.meetingRepo.Delete(ctx, id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			return apperrors.MeetingNotFoundError()
		}
		return apperrors.DatabaseError(err)
	}
	return nil
}
