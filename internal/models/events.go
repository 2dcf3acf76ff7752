package models

import "time"

// Event types published to the fulfillment topic.
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderPaymentIn = "ORDER_PAYMENT_SUBMITTED"
	EventTypeOrderShipped   = "ORDER_SHIPPED"
	EventTypeOrderReceived  = "ORDER_RECEIVED"
	EventTypeOrderCompleted = "ORDER_COMPLETED"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
	EventTypeOrderDeleted   = "ORDER_DELETED"
	EventTypeRatingUpdated  = "RATING_UPDATED"
)

// Event types consumed from the auction topic.
const (
	EventTypeAuctionClosed = "AUCTION_CLOSED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// AuctionClosedEvent arrives when an auction ends with a confirmed winner.
// It is the primary trigger for order creation.
type AuctionClosedEvent struct {
	BaseEvent
	AuctionID string `json:"auction_id"`
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id"`
	WinnerID  string `json:"winner_id"`
}

// OrderCreatedEvent published when a fulfillment order is opened.
type OrderCreatedEvent struct {
	BaseEvent
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id"`
	BuyerID   string `json:"buyer_id"`
}

// OrderStepEvent published on step transitions (payment submitted,
// shipped, received).
type OrderStepEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Status  Status `json:"status"`
	Step    int    `json:"step"`
}

// RatingSnapshot is one party's feedback as carried in events.
type RatingSnapshot struct {
	RatedUserID string `json:"rated_user_id"`
	Score       int    `json:"score"`
	Comment     string `json:"comment"`
}

// OrderCompletedEvent published when both ratings are present. It carries
// both rating snapshots so the reputation worker can apply them without a
// read back to the order store.
type OrderCompletedEvent struct {
	BaseEvent
	OrderID        string          `json:"order_id"`
	SellerID       string          `json:"seller_id"`
	BuyerID        string          `json:"buyer_id"`
	RatingByBuyer  *RatingSnapshot `json:"rating_by_buyer,omitempty"`
	RatingBySeller *RatingSnapshot `json:"rating_by_seller,omitempty"`
}

// RatingUpdatedEvent published when a rating is edited after the order has
// already completed, so reputation aggregates can be recomputed.
type RatingUpdatedEvent struct {
	BaseEvent
	OrderID string          `json:"order_id"`
	Rating  *RatingSnapshot `json:"rating"`
}

// OrderCancelledEvent published when an admin cancels an order.
type OrderCancelledEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Step    int    `json:"step"`
}

// OrderDeletedEvent published when an admin permanently removes an order.
type OrderDeletedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
}
