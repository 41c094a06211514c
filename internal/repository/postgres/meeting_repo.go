package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"meetsense-backend/internal/domain"
)

// MeetingRepository handles meeting record data operations
type MeetingRepository struct {
	pool *pgxpool.Pool
}

// NewMeetingRepository creates a new meeting repository
func NewMeetingRepository(pool *pgxpool.Pool) *MeetingRepository {
	return &MeetingRepository{pool: pool}
}

// EnsureSchema creates the meetings table when it does not exist yet
func (r *MeetingRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS meetings (
			id UUID PRIMARY KEY,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ NOT NULL,
			duration_seconds INT NOT NULL,
			events JSONB NOT NULL DEFAULT '[]'
		)
	`

	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Create inserts a new meeting record and returns it with its assigned id
func (r *MeetingRepository) Create(ctx context.Context, record *domain.MeetingRecord) (*domain.MeetingRecord, error) {
	events, err := json.Marshal(record.Events)
	if err != nil {
		return nil, fmt.Errorf("failed to encode events: %w", err)
	}

	query := `
		INSERT INTO meetings (
			id, start_time, end_time, duration_seconds, events
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	id := record.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	saved := *record
	err = r.pool.QueryRow(ctx, query,
		id,
		record.StartTime,
		record.EndTime,
		record.DurationSeconds,
		events,
	).Scan(&saved.ID)

	if err != nil {
		return nil, fmt.Errorf("failed to create meeting: %w", err)
	}

	return &saved, nil
}

// GetByID retrieves a meeting record by id
func (r *MeetingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.MeetingRecord, error) {
	query := `
		SELECT id, start_time, end_time, duration_seconds, events
		FROM meetings
		WHERE id = $1
	`

	record := &domain.MeetingRecord{}
	var events []byte
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&record.ID,
		&record.StartTime,
		&record.EndTime,
		&record.DurationSeconds,
		&events,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("meeting not found")
		}
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}

	if err := json.Unmarshal(events, &record.Events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	return record, nil
}

// List retrieves all meeting records, newest first
func (r *MeetingRepository) List(ctx context.Context) ([]*domain.MeetingRecord, error) {
	query := `
		SELECT id, start_time, end_time, duration_seconds, events
		FROM meetings
		ORDER BY start_time DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	defer rows.Close()

	var records []*domain.MeetingRecord
	for rows.Next() {
		record := &domain.MeetingRecord{}
		var events []byte
		err := rows.Scan(
			&record.ID,
			&record.StartTime,
			&record.EndTime,
			&record.DurationSeconds,
			&events,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		if err := json.Unmarshal(events, &record.Events); err != nil {
			return nil, fmt.Errorf("failed to decode events: %w", err)
		}
		records = append(records, record)
	}

	return records, nil
}

// Delete removes a meeting record by id. Returns an error when no record
// with the id exists.
func (r *MeetingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM meetings
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete meeting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("meeting not found")
	}

	return nil
}
