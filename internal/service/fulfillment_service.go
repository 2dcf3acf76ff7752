package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the persistence surface the fulfillment service needs. The
// Apply* methods are compare-and-set transitions: they return (nil, nil)
// when the guard no longer holds, which the service surfaces as StateError.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) (bool, error)
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	GetAllOrders(ctx context.Context) ([]models.Order, error)
	GetCancelledOrders(ctx context.Context) ([]models.Order, error)
	GetOrdersByStates(ctx context.Context, states []models.State) ([]models.Order, error)
	ApplyStep1(ctx context.Context, orderID, address, paymentProof, note string) (*models.Order, error)
	ApplyStep2(ctx context.Context, orderID, shippingProof, note string, fromStates []models.State) (*models.Order, error)
	ApplyStep3(ctx context.Context, orderID string) (*models.Order, error)
	UpsertRating(ctx context.Context, orderID string, role models.PartyRole, score int, comment string) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*models.Order, error)
	DeleteOrder(ctx context.Context, orderID string) (bool, error)
}

// EventPublisher publishes fulfillment lifecycle events.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStep(ctx context.Context, event *models.OrderStepEvent) error
	PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error
	PublishRatingUpdated(ctx context.Context, event *models.RatingUpdatedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderDeleted(ctx context.Context, event *models.OrderDeletedEvent) error
}

// ChatCache is the order-scoped chat cache dropped when an order is
// deleted.
type ChatCache interface {
	DropChatCache(ctx context.Context, orderID string) error
}

// FulfillmentService enforces the post-auction fulfillment workflow: the
// buyer/seller step handshake, admin cancellation, and deletion.
type FulfillmentService struct {
	store     OrderStore
	publisher EventPublisher
	chatCache ChatCache
	logger    *zap.Logger
}

// NewFulfillmentService creates a new fulfillment service
func NewFulfillmentService(store OrderStore, publisher EventPublisher, chatCache ChatCache) *FulfillmentService {
	return &FulfillmentService{
		store:     store,
		publisher: publisher,
		chatCache: chatCache,
		logger:    util.GetLogger(),
	}
}

// CreateOrderRequest opens a fulfillment order for a closed auction.
type CreateOrderRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	SellerID  string `json:"seller_id" binding:"required"`
	BuyerID   string `json:"buyer_id" binding:"required"`
}

// Step1Request is the buyer's payment submission.
type Step1Request struct {
	Address      string `json:"address"`
	PaymentProof string `json:"payment_proof"`
	Note         string `json:"note"`
}

// Step2Request is the seller's shipping submission. ConfirmPayment lets the
// seller confirm the buyer's payment in the same commit when the buyer's
// step-1 submission raced or never happened through the API.
type Step2Request struct {
	ShippingProof  string `json:"shipping_proof"`
	Note           string `json:"note"`
	ConfirmPayment bool   `json:"confirm_payment"`
}

const maxNoteLen = 1000

// CreateOrder opens the order for a product/buyer/seller triple. Exactly
// one order may exist per completed auction.
func (s *FulfillmentService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.CreateOrder")
	defer span.End()

	if req.ProductID == "" || req.SellerID == "" || req.BuyerID == "" {
		return nil, models.ValidationError("product, seller and buyer are required")
	}
	if req.SellerID == req.BuyerID {
		return nil, models.ValidationError("buyer and seller must differ")
	}

	order := &models.Order{
		ID:        uuid.New().String(),
		ProductID: req.ProductID,
		SellerID:  req.SellerID,
		BuyerID:   req.BuyerID,
	}

	created, err := s.store.CreateOrder(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	if !created {
		return nil, models.StateError("an order for this auction already exists")
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("product_id", order.ProductID))

	event := &models.OrderCreatedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCreated),
		OrderID:   order.ID,
		ProductID: order.ProductID,
		SellerID:  order.SellerID,
		BuyerID:   order.BuyerID,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return order, nil
}

// GetOrder returns an order visible to the actor (a party or an admin).
func (s *FulfillmentService) GetOrder(ctx context.Context, actor models.Actor, orderID string) (*models.Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !order.IsParty(actor.ID) {
		return nil, models.RoleError("not a party to this order")
	}
	return order, nil
}

// ListOrders returns the actor's orders. Admins see all orders and may
// filter by client-facing status.
func (s *FulfillmentService) ListOrders(ctx context.Context, actor models.Actor, statusFilter string) ([]models.Order, error) {
	if !actor.IsAdmin() {
		return s.store.GetOrdersByUser(ctx, actor.ID)
	}
	if statusFilter == "" {
		return s.store.GetAllOrders(ctx)
	}

	switch models.Status(statusFilter) {
	case models.StatusCancelled:
		return s.store.GetCancelledOrders(ctx)
	case models.StatusPendingPayment:
		return s.store.GetOrdersByStates(ctx, []models.State{models.StateAwaitingPayment, models.StateAwaitingShipment})
	case models.StatusPaidConfirmed, models.StatusShipped:
		return s.store.GetOrdersByStates(ctx, []models.State{models.StateShipped})
	case models.StatusReceived:
		return s.store.GetOrdersByStates(ctx, []models.State{models.StateReceived})
	case models.StatusCompleted:
		return s.store.GetOrdersByStates(ctx, []models.State{models.StateCompleted})
	}
	return nil, models.ValidationError("unknown status filter: %s", statusFilter)
}

// SubmitStep1 records the buyer's shipping address and payment proof and
// advances the order to step 2.
func (s *FulfillmentService) SubmitStep1(ctx context.Context, actor models.Actor, orderID string, req *Step1Request) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.SubmitStep1")
	defer span.End()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsBuyer(actor.ID) {
		return nil, models.RoleError("only the buyer may submit payment")
	}
	if req.Address == "" {
		return nil, models.ValidationError("shipping address is required")
	}
	if err := validateProofURL(req.PaymentProof, "payment proof"); err != nil {
		return nil, err
	}
	if len(req.Note) > maxNoteLen {
		return nil, models.ValidationError("note exceeds %d characters", maxNoteLen)
	}
	if order.Terminal() || order.Step() != 1 {
		return nil, models.StateError("payment submission requires step 1, order is at step %d", order.Step())
	}

	updated, err := s.store.ApplyStep1(ctx, orderID, req.Address, req.PaymentProof, req.Note)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		util.TransitionConflictsTotal.WithLabelValues("step1").Inc()
		return nil, models.StateError("order moved past step 1")
	}

	util.StepTransitionsTotal.WithLabelValues("1").Inc()
	s.logger.Info("Payment submitted", zap.String("order_id", orderID))
	s.publishStep(ctx, updated, models.EventTypeOrderPaymentIn)
	return updated, nil
}

// SubmitStep2 records the seller's shipping proof. Payment confirmation and
// shipment are committed together in one transition.
func (s *FulfillmentService) SubmitStep2(ctx context.Context, actor models.Actor, orderID string, req *Step2Request) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.SubmitStep2")
	defer span.End()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsSeller(actor.ID) {
		return nil, models.RoleError("only the seller may submit shipment")
	}
	if err := validateProofURL(req.ShippingProof, "shipping proof"); err != nil {
		return nil, err
	}
	if len(req.Note) > maxNoteLen {
		return nil, models.ValidationError("note exceeds %d characters", maxNoteLen)
	}

	fromStates := []models.State{models.StateAwaitingShipment}
	if req.ConfirmPayment {
		// collapsed confirmation: seller vouches for payment received
		// off-platform, so step 1 and step 2 commit together
		fromStates = append(fromStates, models.StateAwaitingPayment)
	}

	allowed := !order.Terminal() &&
		(order.State == models.StateAwaitingShipment ||
			(order.State == models.StateAwaitingPayment && req.ConfirmPayment))
	if !allowed {
		return nil, models.StateError("shipment submission requires step 2, order is at step %d", order.Step())
	}

	updated, err := s.store.ApplyStep2(ctx, orderID, req.ShippingProof, req.Note, fromStates)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		util.TransitionConflictsTotal.WithLabelValues("step2").Inc()
		return nil, models.StateError("order moved past step 2")
	}

	util.StepTransitionsTotal.WithLabelValues("2").Inc()
	s.logger.Info("Shipment submitted", zap.String("order_id", orderID))
	s.publishStep(ctx, updated, models.EventTypeOrderShipped)
	return updated, nil
}

// SubmitStep3 records the buyer's receipt confirmation. It carries no
// payload; the state guard makes a second confirmation fail.
func (s *FulfillmentService) SubmitStep3(ctx context.Context, actor models.Actor, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.SubmitStep3")
	defer span.End()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsBuyer(actor.ID) {
		return nil, models.RoleError("only the buyer may confirm receipt")
	}
	if order.Terminal() || order.Step() != 3 {
		return nil, models.StateError("receipt confirmation requires step 3, order is at step %d", order.Step())
	}

	updated, err := s.store.ApplyStep3(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		util.TransitionConflictsTotal.WithLabelValues("step3").Inc()
		return nil, models.StateError("receipt already confirmed")
	}

	util.StepTransitionsTotal.WithLabelValues("3").Inc()
	s.logger.Info("Receipt confirmed", zap.String("order_id", orderID))
	s.publishStep(ctx, updated, models.EventTypeOrderReceived)
	return updated, nil
}

// CancelOrder marks a non-terminal order cancelled. Admin only; the step is
// frozen at the point of cancellation.
func (s *FulfillmentService) CancelOrder(ctx context.Context, actor models.Actor, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.CancelOrder")
	defer span.End()

	if !actor.IsAdmin() {
		return nil, models.RoleError("only admins may cancel orders")
	}
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Terminal() {
		return nil, models.StateError("order is already %s", order.Status())
	}

	updated, err := s.store.CancelOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		util.TransitionConflictsTotal.WithLabelValues("cancel").Inc()
		return nil, models.StateError("order reached a terminal state")
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled",
		zap.String("order_id", orderID),
		zap.Int("step", updated.Step()))

	event := &models.OrderCancelledEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   updated.ID,
		Step:      updated.Step(),
	}
	if err := s.publisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
	return updated, nil
}

// DeleteOrder permanently removes a terminal order and its chat log. Admin
// only; irreversible.
func (s *FulfillmentService) DeleteOrder(ctx context.Context, actor models.Actor, orderID string) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentService.DeleteOrder")
	defer span.End()

	if !actor.IsAdmin() {
		return models.RoleError("only admins may delete orders")
	}
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !order.Terminal() {
		return models.StateError("only cancelled or completed orders may be deleted")
	}

	deleted, err := s.store.DeleteOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !deleted {
		return models.NotFoundError("order not found: %s", orderID)
	}

	if err := s.chatCache.DropChatCache(ctx, orderID); err != nil {
		s.logger.Warn("Failed to drop chat cache", zap.String("order_id", orderID), zap.Error(err))
	}

	util.OrdersDeletedTotal.Inc()
	s.logger.Info("Order deleted", zap.String("order_id", orderID))

	event := &models.OrderDeletedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderDeleted),
		OrderID:   orderID,
	}
	if err := s.publisher.PublishOrderDeleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderDeleted event", zap.Error(err))
	}
	return nil
}

func (s *FulfillmentService) loadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if order == nil {
		return nil, models.NotFoundError("order not found: %s", orderID)
	}
	return order, nil
}

func (s *FulfillmentService) publishStep(ctx context.Context, order *models.Order, eventType string) {
	event := &models.OrderStepEvent{
		BaseEvent: newBaseEvent(eventType),
		OrderID:   order.ID,
		Status:    order.Status(),
		Step:      order.Step(),
	}
	if err := s.publisher.PublishOrderStep(ctx, event); err != nil {
		s.logger.Error("Failed to publish step event",
			zap.String("event_type", eventType), zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

func validateProofURL(raw, field string) error {
	if raw == "" {
		return models.ValidationError("%s is required", field)
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return models.ValidationError("%s must be an http(s) URL", field)
	}
	return nil
}
