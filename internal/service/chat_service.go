package service

import (
	"context"
	"strings"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChatStore persists the append-only chat log.
type ChatStore interface {
	AppendChatMessage(ctx context.Context, msg *models.ChatMessage) error
	GetChatMessages(ctx context.Context, orderID string) ([]models.ChatMessage, error)
}

// MessageSink receives appended messages for push delivery. The transport
// behind it (Redis pub/sub here) can change without touching the workflow.
type MessageSink interface {
	PublishChatMessage(ctx context.Context, orderID string, msg *models.ChatMessage) error
}

// ChatLimiter throttles appends per sender per order.
type ChatLimiter interface {
	AllowChatAppend(ctx context.Context, orderID, senderID string, limit int, window time.Duration) (bool, error)
}

// RecentCache serves the cached tail of an order's chat log.
type RecentCache interface {
	RecentChatMessages(ctx context.Context, orderID string) ([]models.ChatMessage, error)
}

// ChatService manages the per-order chat side channel. Appends go to the
// database first (that is the read-after-write source of truth) and are
// then fanned out to the sink; sink failures are logged, not surfaced.
type ChatService struct {
	orders  OrderStore
	store   ChatStore
	sink    MessageSink
	cache   RecentCache
	limiter ChatLimiter
	limit   int
	window  time.Duration
	logger  *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(orders OrderStore, store ChatStore, sink MessageSink, cache RecentCache, limiter ChatLimiter, limit int, window time.Duration) *ChatService {
	return &ChatService{
		orders:  orders,
		store:   store,
		sink:    sink,
		cache:   cache,
		limiter: limiter,
		limit:   limit,
		window:  window,
		logger:  util.GetLogger(),
	}
}

const maxChatMessageLen = 2000

// AppendMessage validates, persists, and fans out one chat message. Admin
// actors produce moderation messages flagged is_admin.
func (s *ChatService) AppendMessage(ctx context.Context, actor models.Actor, orderID, content string) (*models.ChatMessage, error) {
	ctx, span := util.StartSpan(ctx, "ChatService.AppendMessage")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ChatAppendLatency.Observe(time.Since(start).Seconds())
	}()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !order.IsParty(actor.ID) {
		return nil, models.RoleError("not a party to this order")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.ValidationError("message content is required")
	}
	if len(content) > maxChatMessageLen {
		return nil, models.ValidationError("message exceeds %d characters", maxChatMessageLen)
	}

	allowed, err := s.limiter.AllowChatAppend(ctx, orderID, actor.ID, s.limit, s.window)
	if err != nil {
		// the limiter is advisory: a broken Redis must not block chat
		s.logger.Warn("Chat rate limiter unavailable", zap.Error(err))
		allowed = true
	}
	if !allowed {
		util.ChatRateLimitedTotal.Inc()
		return nil, models.ValidationError("too many messages, slow down")
	}

	msg := &models.ChatMessage{
		ID:       uuid.New().String(),
		OrderID:  orderID,
		SenderID: actor.ID,
		Content:  content,
		IsAdmin:  actor.IsAdmin(),
	}

	if err := s.store.AppendChatMessage(ctx, msg); err != nil {
		return nil, err
	}
	util.ChatMessagesTotal.Inc()

	if err := s.sink.PublishChatMessage(ctx, orderID, msg); err != nil {
		s.logger.Warn("Failed to fan out chat message",
			zap.String("order_id", orderID), zap.Error(err))
	}

	return msg, nil
}

// ListMessages returns the order's chat log, oldest first.
func (s *ChatService) ListMessages(ctx context.Context, actor models.Actor, orderID string) ([]models.ChatMessage, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !order.IsParty(actor.ID) {
		return nil, models.RoleError("not a party to this order")
	}
	return s.store.GetChatMessages(ctx, orderID)
}

// ListRecentMessages returns the cached tail of the chat log, falling back
// to the database when the cache is cold or unavailable.
func (s *ChatService) ListRecentMessages(ctx context.Context, actor models.Actor, orderID string) ([]models.ChatMessage, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !order.IsParty(actor.ID) {
		return nil, models.RoleError("not a party to this order")
	}

	msgs, err := s.cache.RecentChatMessages(ctx, orderID)
	if err != nil {
		s.logger.Warn("Chat cache unavailable, reading from database",
			zap.String("order_id", orderID), zap.Error(err))
	}
	if len(msgs) > 0 {
		return msgs, nil
	}
	return s.store.GetChatMessages(ctx, orderID)
}

func (s *ChatService) loadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, models.NotFoundError("order not found: %s", orderID)
	}
	return order, nil
}
