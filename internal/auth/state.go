package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harmonium-app/harmonium/internal/cache"
	"github.com/harmonium-app/harmonium/internal/shared"
)

// StateTTL bounds how long an issued login state stays redeemable.
const StateTTL = 15 * time.Minute

const statePrefix = "oauth_state:"

type stateRecord struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// StateStore persists anti-forgery state tokens for in-flight logins.
//
// States live in the cache store (Redis in production, memory otherwise) so
// callbacks can land on any process sharing the backend.
type StateStore struct {
	store cache.Store
	ttl   time.Duration
}

// NewStateStore creates a StateStore with the default TTL.
func NewStateStore(store cache.Store) *StateStore {
	return &StateStore{store: store, ttl: StateTTL}
}

// Set records state as issued for userID.
func (s *StateStore) Set(ctx context.Context, state, userID string) error {
	record, err := json.Marshal(stateRecord{UserID: userID, CreatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal state record: %w", err)
	}

	if err := s.store.Set(ctx, statePrefix+state, record, s.ttl); err != nil {
		return fmt.Errorf("failed to store state: %w", err)
	}
	return nil
}

// Pop redeems state exactly once, returning the user it was issued for.
// Unknown or expired states return [shared.ErrStateMismatch].
func (s *StateStore) Pop(ctx context.Context, state string) (string, error) {
	key := statePrefix + state

	value, err := s.store.Get(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", shared.ErrStateMismatch
	}
	if err != nil {
		return "", fmt.Errorf("failed to read state: %w", err)
	}

	if err := s.store.Delete(ctx, key); err != nil {
		return "", fmt.Errorf("failed to consume state: %w", err)
	}

	var record stateRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return "", fmt.Errorf("failed to unmarshal state record: %w", err)
	}

	return record.UserID, nil
}
