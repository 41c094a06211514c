package summary

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"meetsense-backend/internal/domain"
	"meetsense-backend/internal/session"
)

// BuildRecord snapshots a finished call session into its persisted form.
// The event log is copied, never aliased, so the record stays immutable.
func BuildRecord(s *session.Session, endedAt time.Time) domain.MeetingRecord {
	start := s.StartInstant()
	return domain.MeetingRecord{
		StartTime:       start,
		EndTime:         endedAt,
		DurationSeconds: int(endedAt.Sub(start).Seconds()),
		Events:          s.Events(),
	}
}

// HistoryClient is the persistence contract the bridge needs
type HistoryClient interface {
	Save(ctx context.Context, record domain.MeetingRecord) (*domain.MeetingRecord, error)
	List(ctx context.Context) ([]domain.MeetingRecord, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
}

// Bridge forwards finished sessions to the history service and exposes the
// read path for the history view. Persistence failures surface as notices and
// never discard the in-memory record, so the user can retry the save.
type Bridge struct {
	client   HistoryClient
	notifier session.Notifier
	log      *zap.Logger
}

// NewBridge creates a summary/persistence bridge
func NewBridge(client HistoryClient, notifier session.Notifier, log *zap.Logger) *Bridge {
	if notifier == nil {
		notifier = session.NopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{client: client, notifier: notifier, log: log}
}

// SaveSession builds a MeetingRecord from the session and hands it to the
// history service in a single attempt.
func (b *Bridge) SaveSession(ctx context.Context, s *session.Session, endedAt time.Time) (*domain.MeetingRecord, error) {
	record := BuildRecord(s, endedAt)
	return b.SaveRecord(ctx, record)
}

// SaveRecord saves an already-built record; used for manual retries
func (b *Bridge) SaveRecord(ctx context.Context, record domain.MeetingRecord) (*domain.MeetingRecord, error) {
	saved, err := b.client.Save(ctx, record)
	if err != nil {
		b.log.Error("failed to save meeting", zap.Error(err))
		b.notifier.Notify(session.NoticeError, "Failed to save meeting data to database")
		return nil, err
	}

	b.notifier.Notify(session.NoticeSuccess, "Meeting data saved successfully!")
	return saved, nil
}

// ListMeetings returns the full history, or an empty collection plus a
// visible error when the service is unreachable or its payload is malformed.
func (b *Bridge) ListMeetings(ctx context.Context) []domain.MeetingRecord {
	records, err := b.client.List(ctx)
	if err != nil {
		b.log.Error("failed to list meetings", zap.Error(err))
		b.notifier.Notify(session.NoticeError, "Failed to load meeting data from database")
		return []domain.MeetingRecord{}
	}
	return records
}

// DeleteMeeting removes one record by id, reporting the outcome
func (b *Bridge) DeleteMeeting(ctx context.Context, id uuid.UUID) bool {
	if err := b.client.DeleteByID(ctx, id); err != nil {
		b.log.Error("failed to delete meeting", zap.String("meeting_id", id.String()), zap.Error(err))
		b.notifier.Notify(session.NoticeError, "Failed to delete meeting from database")
		return false
	}

	b.notifier.Notify(session.NoticeSuccess, "Meeting deleted successfully")
	return true
}
