package worker

import (
	"context"
	"errors"
	"fmt"

	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// EventLedger tracks consumed broker events so redelivered messages are
// applied at most once.
type EventLedger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// ReputationWriter applies rating snapshots to the per-user aggregates.
type ReputationWriter interface {
	UpsertReputationEntry(ctx context.Context, orderID, ratedUserID string, score int) error
}

// AuctionWorker opens fulfillment orders when auctions close with a
// confirmed winner. This is the primary order-creation path.
type AuctionWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	fulfillment  *service.FulfillmentService
	ledger       EventLedger
	logger       *zap.Logger
}

// NewAuctionWorker creates a new auction worker
func NewAuctionWorker(consumer *broker.Consumer, fulfillment *service.FulfillmentService, ledger EventLedger) *AuctionWorker {
	w := &AuctionWorker{
		consumer:    consumer,
		fulfillment: fulfillment,
		ledger:      ledger,
		logger:      util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnAuctionClosed(w.handleAuctionClosed)
	w.eventHandler = eventHandler
	return w
}

// Start starts the worker
func (w *AuctionWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting auction worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AuctionWorker) Stop() error {
	w.logger.Info("Stopping auction worker")
	return w.consumer.Close()
}

func (w *AuctionWorker) handleAuctionClosed(ctx context.Context, event *models.AuctionClosedEvent) error {
	processed, err := w.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	order, err := w.fulfillment.CreateOrder(ctx, &service.CreateOrderRequest{
		ProductID: event.ProductID,
		SellerID:  event.SellerID,
		BuyerID:   event.WinnerID,
	})
	// a duplicate auction-closed event races the unique order constraint;
	// treat the existing order as success
	if err != nil && !errors.Is(err, models.ErrState) {
		return fmt.Errorf("failed to create order for auction %s: %w", event.AuctionID, err)
	}
	if order != nil {
		w.logger.Info("Order opened for closed auction",
			zap.String("auction_id", event.AuctionID),
			zap.String("order_id", order.ID))
	}

	if err := w.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

// ReputationWorker folds completed-order ratings into per-user reputation
// aggregates. Entries are keyed by (order, user), so replays and rating
// edits overwrite instead of double-counting.
type ReputationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	writer       ReputationWriter
	logger       *zap.Logger
}

// NewReputationWorker creates a new reputation worker
func NewReputationWorker(consumer *broker.Consumer, writer ReputationWriter) *ReputationWorker {
	w := &ReputationWorker{
		consumer: consumer,
		writer:   writer,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCompleted(w.handleOrderCompleted)
	eventHandler.OnRatingUpdated(w.handleRatingUpdated)
	w.eventHandler = eventHandler
	return w
}

// Start starts the worker
func (w *ReputationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reputation worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReputationWorker) Stop() error {
	w.logger.Info("Stopping reputation worker")
	return w.consumer.Close()
}

func (w *ReputationWorker) handleOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	for _, snap := range []*models.RatingSnapshot{event.RatingByBuyer, event.RatingBySeller} {
		if snap == nil {
			continue
		}
		if err := w.writer.UpsertReputationEntry(ctx, event.OrderID, snap.RatedUserID, snap.Score); err != nil {
			return fmt.Errorf("failed to apply reputation entry: %w", err)
		}
		util.ReputationUpdatesTotal.Inc()
	}

	w.logger.Info("Reputation updated for completed order",
		zap.String("order_id", event.OrderID))
	return nil
}

func (w *ReputationWorker) handleRatingUpdated(ctx context.Context, event *models.RatingUpdatedEvent) error {
	if event.Rating == nil {
		return nil
	}
	if err := w.writer.UpsertReputationEntry(ctx, event.OrderID, event.Rating.RatedUserID, event.Rating.Score); err != nil {
		return fmt.Errorf("failed to apply reputation entry: %w", err)
	}
	util.ReputationUpdatesTotal.Inc()
	return nil
}
