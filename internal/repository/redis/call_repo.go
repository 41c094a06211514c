package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"meetsense-backend/pkg/database"
)

const (
	callTTL = 12 * time.Hour

	// EventsChannel carries call lifecycle events across service instances
	EventsChannel = "calls:events"
)

// CallEvent is one lifecycle change published to the events channel
type CallEvent struct {
	CallID    uuid.UUID `json:"call_id"`
	State     string    `json:"state"` // started, ended
	Timestamp time.Time `json:"timestamp"`
}

// CallRepository tracks live call sessions in Redis
type CallRepository struct {
	db *database.RedisDB
}

// NewCallRepository creates a new CallRepository
func NewCallRepository(db *database.RedisDB) *CallRepository {
	return &CallRepository{db: db}
}

// SetCallActive marks a call session as live
func (r *CallRepository) SetCallActive(ctx context.Context, callID uuid.UUID) error {
	key := fmt.Sprintf("call:%s", callID)

	// TTL guards against sessions that never send an end signal
	err := r.db.Client.Set(ctx, key, "active", callTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set call active: %w", err)
	}

	err = r.db.Client.SAdd(ctx, "calls:active", callID.String()).Err()
	if err != nil {
		return fmt.Errorf("failed to add to active set: %w", err)
	}

	// Best effort; the registry is authoritative, the channel is advisory
	r.publishEvent(ctx, callID, "started")

	return nil
}

// SetCallEnded removes a call session from the live registry
func (r *CallRepository) SetCallEnded(ctx context.Context, callID uuid.UUID) error {
	key := fmt.Sprintf("call:%s", callID)

	err := r.db.Client.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete call: %w", err)
	}

	err = r.db.Client.SRem(ctx, "calls:active", callID.String()).Err()
	if err != nil {
		return fmt.Errorf("failed to remove from active set: %w", err)
	}

	r.publishEvent(ctx, callID, "ended")

	return nil
}

// publishEvent announces a lifecycle change on the events channel
func (r *CallRepository) publishEvent(ctx context.Context, callID uuid.UUID, state string) {
	payload, err := json.Marshal(CallEvent{
		CallID:    callID,
		State:     state,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	r.db.Publish(ctx, EventsChannel, payload)
}

// SubscribeEvents opens a subscription to the call lifecycle channel
func (r *CallRepository) SubscribeEvents(ctx context.Context) *redis.PubSub {
	return r.db.Subscribe(ctx, EventsChannel)
}

// IsCallActive checks whether a call session is live
func (r *CallRepository) IsCallActive(ctx context.Context, callID uuid.UUID) (bool, error) {
	key := fmt.Sprintf("call:%s", callID)

	exists, err := r.db.Client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check call: %w", err)
	}

	return exists > 0, nil
}

// ActiveCalls retrieves the IDs of live call sessions
func (r *CallRepository) ActiveCalls(ctx context.Context) ([]uuid.UUID, error) {
	idStrs, err := r.db.Client.SMembers(ctx, "calls:active").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get active calls: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(idStrs))
	for _, idStr := range idStrs {
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue // Skip invalid UUIDs
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// ActiveCount returns the number of live call sessions
func (r *CallRepository) ActiveCount(ctx context.Context) (int64, error) {
	count, err := r.db.Client.SCard(ctx, "calls:active").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count active calls: %w", err)
	}
	return count, nil
}
