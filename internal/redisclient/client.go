package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"fulfillment-service/internal/models"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/chat_rate_limit.lua
var chatRateLimitScript string

// recentChatLen bounds the per-order recent-messages cache.
const recentChatLen = 50

type Client struct {
	rdb             *redis.Client
	rateLimitScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:             rdb,
		rateLimitScript: redis.NewScript(chatRateLimitScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func chatChannel(orderID string) string {
	return fmt.Sprintf("chat:order:%s", orderID)
}

func chatCacheKey(orderID string) string {
	return fmt.Sprintf("chat:recent:%s", orderID)
}

// PublishChatMessage fans a chat message out to subscribers of the order's
// channel and appends it to the bounded recent-messages cache.
func (c *Client) PublishChatMessage(ctx context.Context, orderID string, msg *models.ChatMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}

	pipe := c.rdb.Pipeline()
	pipe.Publish(ctx, chatChannel(orderID), payload)
	pipe.RPush(ctx, chatCacheKey(orderID), payload)
	pipe.LTrim(ctx, chatCacheKey(orderID), -recentChatLen, -1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish chat message: %w", err)
	}
	return nil
}

// RecentChatMessages returns the cached tail of an order's chat log, oldest
// first. A missing key yields an empty slice.
func (c *Client) RecentChatMessages(ctx context.Context, orderID string) ([]models.ChatMessage, error) {
	raw, err := c.rdb.LRange(ctx, chatCacheKey(orderID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	msgs := make([]models.ChatMessage, 0, len(raw))
	for _, r := range raw {
		var m models.ChatMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("corrupt cached chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// DropChatCache removes the cached chat log, used when an order is deleted.
func (c *Client) DropChatCache(ctx context.Context, orderID string) error {
	return c.rdb.Del(ctx, chatCacheKey(orderID)).Err()
}

// AllowChatAppend applies a fixed-window rate limit per sender per order
// using an atomic Lua script. Returns false when the sender is over the
// limit.
func (c *Client) AllowChatAppend(ctx context.Context, orderID, senderID string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf("chat:rate:%s:%s", orderID, senderID)

	result, err := c.rateLimitScript.Run(ctx, c.rdb, []string{key},
		limit, int(window.Seconds())).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit script failed: %w", err)
	}

	allowed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return allowed == 1, nil
}
