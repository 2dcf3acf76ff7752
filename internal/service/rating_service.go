package service

import (
	"context"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// ReputationStore reads the aggregate feedback maintained by the
// reputation worker.
type ReputationStore interface {
	GetReputation(ctx context.Context, userID string) (*models.Reputation, error)
}

// RatingService handles the mutual-rating exchange at step 4. Ratings are
// upserts keyed by (order, party): re-submission overwrites, and edits stay
// open after completion.
type RatingService struct {
	store      OrderStore
	reputation ReputationStore
	publisher  EventPublisher
	logger     *zap.Logger
}

// NewRatingService creates a new rating service
func NewRatingService(store OrderStore, reputation ReputationStore, publisher EventPublisher) *RatingService {
	return &RatingService{
		store:      store,
		reputation: reputation,
		publisher:  publisher,
		logger:     util.GetLogger(),
	}
}

// GetUserReputation returns a user's aggregate feedback score.
func (s *RatingService) GetUserReputation(ctx context.Context, userID string) (*models.Reputation, error) {
	return s.reputation.GetReputation(ctx, userID)
}

// RatingRequest is one party's feedback submission.
type RatingRequest struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

const minRatingCommentLen = 10

// SubmitRating writes or overwrites the actor's rating. When both ratings
// are present the order flips to COMPLETED in the same transaction and the
// reputation event is published.
func (s *RatingService) SubmitRating(ctx context.Context, actor models.Actor, orderID string, req *RatingRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "RatingService.SubmitRating")
	defer span.End()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	party := order.PartyOf(actor.ID)
	if party == "" {
		return nil, models.RoleError("only buyer or seller may rate this order")
	}
	if req.Score != 1 && req.Score != -1 {
		return nil, models.ValidationError("score must be 1 or -1")
	}
	if len(req.Comment) < minRatingCommentLen {
		return nil, models.ValidationError("comment must be at least %d characters", minRatingCommentLen)
	}
	if order.CancelledAt != nil {
		return nil, models.StateError("cancelled orders cannot be rated")
	}
	if order.Step() != 4 {
		return nil, models.StateError("ratings open after receipt confirmation, order is at step %d", order.Step())
	}

	wasCompleted := order.State == models.StateCompleted

	updated, err := s.store.UpsertRating(ctx, orderID, party, req.Score, req.Comment)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		util.TransitionConflictsTotal.WithLabelValues("rating").Inc()
		return nil, models.StateError("order is no longer ratable")
	}

	util.RatingsSubmittedTotal.WithLabelValues(string(party)).Inc()
	s.logger.Info("Rating submitted",
		zap.String("order_id", orderID),
		zap.String("party", string(party)),
		zap.Int("score", req.Score))

	switch {
	case updated.State == models.StateCompleted && !wasCompleted:
		util.OrdersCompletedTotal.Inc()
		s.publishCompleted(ctx, updated)
	case wasCompleted:
		s.publishRatingUpdated(ctx, updated, party)
	}

	return updated, nil
}

// GetRating returns the rating submitted by the given side, or nil when
// that side has not rated yet.
func (s *RatingService) GetRating(ctx context.Context, actor models.Actor, orderID string, role models.PartyRole) (*models.Rating, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !order.IsParty(actor.ID) {
		return nil, models.RoleError("not a party to this order")
	}
	return order.RatingBy(role), nil
}

func (s *RatingService) loadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, models.NotFoundError("order not found: %s", orderID)
	}
	return order, nil
}

func (s *RatingService) publishCompleted(ctx context.Context, order *models.Order) {
	event := &models.OrderCompletedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCompleted),
		OrderID:   order.ID,
		SellerID:  order.SellerID,
		BuyerID:   order.BuyerID,
	}
	// buyer rates the seller and vice versa
	if r := order.RatingBy(models.PartyBuyer); r != nil {
		event.RatingByBuyer = &models.RatingSnapshot{
			RatedUserID: order.SellerID, Score: r.Score, Comment: r.Comment,
		}
	}
	if r := order.RatingBy(models.PartySeller); r != nil {
		event.RatingBySeller = &models.RatingSnapshot{
			RatedUserID: order.BuyerID, Score: r.Score, Comment: r.Comment,
		}
	}

	if err := s.publisher.PublishOrderCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCompleted event", zap.Error(err))
	}
}

func (s *RatingService) publishRatingUpdated(ctx context.Context, order *models.Order, party models.PartyRole) {
	r := order.RatingBy(party)
	if r == nil {
		return
	}
	rated := order.SellerID
	if party == models.PartySeller {
		rated = order.BuyerID
	}

	event := &models.RatingUpdatedEvent{
		BaseEvent: newBaseEvent(models.EventTypeRatingUpdated),
		OrderID:   order.ID,
		Rating: &models.RatingSnapshot{
			RatedUserID: rated, Score: r.Score, Comment: r.Comment,
		},
	}
	if err := s.publisher.PublishRatingUpdated(ctx, event); err != nil {
		s.logger.Error("Failed to publish RatingUpdated event", zap.Error(err))
	}
}
