package store

import (
	"context"
	"fmt"

	"fulfillment-service/internal/models"
)

// AppendChatMessage inserts a message at the tail of an order's chat log.
func (s *Store) AppendChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (id, order_id, sender_id, content, is_admin)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq, created_at`

	err := s.db.QueryRowxContext(ctx, query,
		msg.ID, msg.OrderID, msg.SenderID, msg.Content, msg.IsAdmin).
		Scan(&msg.Seq, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append chat message: %w", err)
	}
	return nil
}

// GetChatMessages returns an order's chat log in insertion order, oldest
// first.
func (s *Store) GetChatMessages(ctx context.Context, orderID string) ([]models.ChatMessage, error) {
	var msgs []models.ChatMessage
	err := s.db.SelectContext(ctx, &msgs,
		"SELECT * FROM chat_messages WHERE order_id = $1 ORDER BY seq", orderID)
	return msgs, err
}
