package store

import (
	"context"
	"fmt"

	"fulfillment-service/internal/models"
)

// UpsertReputationEntry records one party's score for a user on an order.
// Keyed by (order, rated user), so replaying an event or editing a rating
// overwrites instead of double-counting.
func (s *Store) UpsertReputationEntry(ctx context.Context, orderID, ratedUserID string, score int) error {
	query := `
		INSERT INTO reputation_entries (order_id, rated_user_id, score)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id, rated_user_id)
		DO UPDATE SET score = EXCLUDED.score, updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, orderID, ratedUserID, score); err != nil {
		return fmt.Errorf("failed to upsert reputation entry: %w", err)
	}
	return nil
}

// GetReputation aggregates a user's feedback entries.
func (s *Store) GetReputation(ctx context.Context, userID string) (*models.Reputation, error) {
	query := `
		SELECT $1 AS user_id,
		       COUNT(*) FILTER (WHERE score > 0) AS positive,
		       COUNT(*) FILTER (WHERE score < 0) AS negative,
		       COALESCE(SUM(score), 0) AS score
		FROM reputation_entries WHERE rated_user_id = $1`

	var rep models.Reputation
	if err := s.db.GetContext(ctx, &rep, query, userID); err != nil {
		return nil, err
	}
	return &rep, nil
}
