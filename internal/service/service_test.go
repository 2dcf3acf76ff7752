package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fulfillment-service/internal/models"
)

// fakeStore is an in-memory OrderStore/ChatStore/ReputationStore with the
// same compare-and-set semantics as the SQL implementation. A single mutex
// makes each method atomic, so concurrent-transition tests behave like the
// database's conditional updates.
type fakeStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	chats  map[string][]models.ChatMessage
	rep    map[string]map[string]int // rated user -> order -> score
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders: make(map[string]*models.Order),
		chats:  make(map[string][]models.ChatMessage),
		rep:    make(map[string]map[string]int),
	}
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	return &c
}

func (f *fakeStore) CreateOrder(_ context.Context, order *models.Order) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, o := range f.orders {
		if o.ProductID == order.ProductID && o.BuyerID == order.BuyerID && o.SellerID == order.SellerID {
			return false, nil
		}
	}
	order.State = models.StateAwaitingPayment
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	f.orders[order.ID] = copyOrder(order)
	return true, nil
}

func (f *fakeStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[id]
	if !ok {
		return nil, nil
	}
	return copyOrder(o), nil
}

func (f *fakeStore) GetOrdersByUser(_ context.Context, userID string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Order
	for _, o := range f.orders {
		if o.BuyerID == userID || o.SellerID == userID {
			out = append(out, *copyOrder(o))
		}
	}
	return out, nil
}

func (f *fakeStore) GetAllOrders(_ context.Context) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Order
	for _, o := range f.orders {
		out = append(out, *copyOrder(o))
	}
	return out, nil
}

func (f *fakeStore) GetCancelledOrders(ctx context.Context) ([]models.Order, error) {
	all, _ := f.GetAllOrders(ctx)
	var out []models.Order
	for _, o := range all {
		if o.CancelledAt != nil {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) GetOrdersByStates(ctx context.Context, states []models.State) ([]models.Order, error) {
	all, _ := f.GetAllOrders(ctx)
	var out []models.Order
	for _, o := range all {
		if o.CancelledAt != nil {
			continue
		}
		for _, s := range states {
			if o.State == s {
				out = append(out, o)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ApplyStep1(_ context.Context, orderID, address, paymentProof, note string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok || o.CancelledAt != nil || o.State != models.StateAwaitingPayment {
		return nil, nil
	}
	o.ShippingAddress = address
	o.PaymentProof = paymentProof
	o.BuyerNote = note
	o.State = models.StateAwaitingShipment
	o.UpdatedAt = time.Now()
	return copyOrder(o), nil
}

func (f *fakeStore) ApplyStep2(_ context.Context, orderID, shippingProof, note string, fromStates []models.State) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok || o.CancelledAt != nil {
		return nil, nil
	}
	matched := false
	for _, s := range fromStates {
		if o.State == s {
			matched = true
			break
		}
	}
	if !matched {
		return nil, nil
	}
	o.ShippingProof = shippingProof
	o.SellerNote = note
	o.PaymentConfirmed = true
	o.Shipped = true
	o.State = models.StateShipped
	o.UpdatedAt = time.Now()
	return copyOrder(o), nil
}

func (f *fakeStore) ApplyStep3(_ context.Context, orderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok || o.CancelledAt != nil || o.State != models.StateShipped {
		return nil, nil
	}
	o.State = models.StateReceived
	o.UpdatedAt = time.Now()
	return copyOrder(o), nil
}

func (f *fakeStore) UpsertRating(_ context.Context, orderID string, role models.PartyRole, score int, comment string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok || o.CancelledAt != nil ||
		(o.State != models.StateReceived && o.State != models.StateCompleted) {
		return nil, nil
	}

	now := time.Now()
	s := score
	switch role {
	case models.PartyBuyer:
		o.BuyerRatingScore = &s
		o.BuyerRatingComment = comment
		o.BuyerRatingAt = &now
	case models.PartySeller:
		o.SellerRatingScore = &s
		o.SellerRatingComment = comment
		o.SellerRatingAt = &now
	default:
		return nil, fmt.Errorf("unknown party role: %s", role)
	}

	if o.State == models.StateReceived && o.BothRated() {
		o.State = models.StateCompleted
	}
	o.UpdatedAt = now
	return copyOrder(o), nil
}

func (f *fakeStore) CancelOrder(_ context.Context, orderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok || o.CancelledAt != nil || o.State == models.StateCompleted {
		return nil, nil
	}
	now := time.Now()
	o.CancelledAt = &now
	o.UpdatedAt = now
	return copyOrder(o), nil
}

func (f *fakeStore) DeleteOrder(_ context.Context, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok || (o.CancelledAt == nil && o.State != models.StateCompleted) {
		return false, nil
	}
	delete(f.orders, orderID)
	delete(f.chats, orderID)
	return true, nil
}

func (f *fakeStore) AppendChatMessage(_ context.Context, msg *models.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg.Seq = int64(len(f.chats[msg.OrderID]) + 1)
	msg.CreatedAt = time.Now()
	f.chats[msg.OrderID] = append(f.chats[msg.OrderID], *msg)
	return nil
}

func (f *fakeStore) GetChatMessages(_ context.Context, orderID string) ([]models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]models.ChatMessage(nil), f.chats[orderID]...), nil
}

func (f *fakeStore) GetReputation(_ context.Context, userID string) (*models.Reputation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rep := &models.Reputation{UserID: userID}
	for _, score := range f.rep[userID] {
		if score > 0 {
			rep.Positive++
		} else {
			rep.Negative++
		}
		rep.Score += score
	}
	return rep, nil
}

// capturePublisher records published event types in order.
type capturePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *capturePublisher) record(eventType string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *capturePublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.record(e.EventType)
	return nil
}

func (p *capturePublisher) PublishOrderStep(_ context.Context, e *models.OrderStepEvent) error {
	p.record(e.EventType)
	return nil
}

func (p *capturePublisher) PublishOrderCompleted(_ context.Context, e *models.OrderCompletedEvent) error {
	p.record(e.EventType)
	return nil
}

func (p *capturePublisher) PublishRatingUpdated(_ context.Context, e *models.RatingUpdatedEvent) error {
	p.record(e.EventType)
	return nil
}

func (p *capturePublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	p.record(e.EventType)
	return nil
}

func (p *capturePublisher) PublishOrderDeleted(_ context.Context, e *models.OrderDeletedEvent) error {
	p.record(e.EventType)
	return nil
}

// captureSink records fanned-out chat messages.
type captureSink struct {
	mu       sync.Mutex
	messages []models.ChatMessage
	dropped  []string
}

func (s *captureSink) PublishChatMessage(_ context.Context, _ string, msg *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *captureSink) DropChatCache(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = append(s.dropped, orderID)
	return nil
}

// staticLimiter allows or denies every append.
type staticLimiter struct {
	allow bool
	err   error
}

func (l *staticLimiter) AllowChatAppend(_ context.Context, _, _ string, _ int, _ time.Duration) (bool, error) {
	return l.allow, l.err
}

const (
	buyerID  = "buyer-1"
	sellerID = "seller-1"
	adminID  = "admin-1"
)

var (
	buyer    = models.Actor{ID: buyerID, Role: models.RoleUser}
	seller   = models.Actor{ID: sellerID, Role: models.RoleUser}
	admin    = models.Actor{ID: adminID, Role: models.RoleAdmin}
	stranger = models.Actor{ID: "stranger-1", Role: models.RoleUser}
)

// newTestOrder seeds the store with one order and returns its id.
func newTestOrder(f *fakeStore) string {
	order := &models.Order{
		ID:        "order-1",
		ProductID: "product-1",
		SellerID:  sellerID,
		BuyerID:   buyerID,
	}
	_, _ = f.CreateOrder(context.Background(), order)
	return order.ID
}
