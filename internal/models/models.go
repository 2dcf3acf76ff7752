package models

import "time"

// State is the single progression state of a fulfillment order. The
// externally visible status and step are both derived from it, so the two
// can never diverge. Cancellation is tracked separately (CancelledAt) so a
// cancelled order still reports the step it was cancelled at.
type State string

const (
	StateAwaitingPayment  State = "AWAITING_PAYMENT"  // step 1: buyer owes address + payment proof
	StateAwaitingShipment State = "AWAITING_SHIPMENT" // step 2: seller owes shipping proof
	StateShipped          State = "SHIPPED"           // step 3: buyer owes receipt confirmation
	StateReceived         State = "RECEIVED"          // step 4: parties owe ratings
	StateCompleted        State = "COMPLETED"         // step 4: both ratings present
)

// Status is the order status reported to clients.
type Status string

const (
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPaidConfirmed  Status = "PAID_CONFIRMED"
	StatusShipped        Status = "SHIPPED"
	StatusReceived       Status = "RECEIVED"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
)

// PartyRole identifies which side of the order an actor is on.
type PartyRole string

const (
	PartyBuyer  PartyRole = "buyer"
	PartySeller PartyRole = "seller"
)

// Actor roles carried in auth claims.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role string
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Order is the persisted fulfillment record for one closed auction.
type Order struct {
	ID        string `db:"id" json:"id"`
	ProductID string `db:"product_id" json:"product_id"`
	SellerID  string `db:"seller_id" json:"seller_id"`
	BuyerID   string `db:"buyer_id" json:"buyer_id"`

	State       State      `db:"state" json:"-"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`

	ShippingAddress string `db:"shipping_address" json:"shipping_address,omitempty"`
	PaymentProof    string `db:"payment_proof" json:"payment_proof,omitempty"`
	BuyerNote       string `db:"buyer_note" json:"buyer_note,omitempty"`

	ShippingProof    string `db:"shipping_proof" json:"shipping_proof,omitempty"`
	SellerNote       string `db:"seller_note" json:"seller_note,omitempty"`
	PaymentConfirmed bool   `db:"payment_confirmed" json:"payment_confirmed"`
	Shipped          bool   `db:"shipped" json:"shipped"`

	BuyerRatingScore   *int       `db:"buyer_rating_score" json:"-"`
	BuyerRatingComment string     `db:"buyer_rating_comment" json:"-"`
	BuyerRatingAt      *time.Time `db:"buyer_rating_at" json:"-"`

	SellerRatingScore   *int       `db:"seller_rating_score" json:"-"`
	SellerRatingComment string     `db:"seller_rating_comment" json:"-"`
	SellerRatingAt      *time.Time `db:"seller_rating_at" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Rating is a party's feedback embedded in the order.
type Rating struct {
	Score     int       `json:"score"` // 1 or -1
	Comment   string    `json:"comment"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status derives the client-facing status from the progression state and
// the cancellation marker.
func (o *Order) Status() Status {
	if o.CancelledAt != nil {
		return StatusCancelled
	}
	switch o.State {
	case StateAwaitingPayment:
		return StatusPendingPayment
	case StateAwaitingShipment:
		if o.PaymentConfirmed {
			return StatusPaidConfirmed
		}
		return StatusPendingPayment
	case StateShipped:
		return StatusShipped
	case StateReceived:
		return StatusReceived
	case StateCompleted:
		return StatusCompleted
	}
	return StatusPendingPayment
}

// Step derives the 1-4 workflow step. Cancellation freezes the step.
func (o *Order) Step() int {
	switch o.State {
	case StateAwaitingPayment:
		return 1
	case StateAwaitingShipment:
		return 2
	case StateShipped:
		return 3
	case StateReceived, StateCompleted:
		return 4
	}
	return 1
}

// Terminal reports whether no further step transition is possible.
func (o *Order) Terminal() bool {
	return o.CancelledAt != nil || o.State == StateCompleted
}

// IsBuyer reports whether the given user is the registered buyer.
func (o *Order) IsBuyer(userID string) bool {
	return o.BuyerID == userID
}

// IsSeller reports whether the given user is the registered seller.
func (o *Order) IsSeller(userID string) bool {
	return o.SellerID == userID
}

// IsParty reports whether the given user is buyer or seller of the order.
func (o *Order) IsParty(userID string) bool {
	return o.IsBuyer(userID) || o.IsSeller(userID)
}

// PartyOf returns the side the user is on, or "" for outsiders.
func (o *Order) PartyOf(userID string) PartyRole {
	switch {
	case o.IsBuyer(userID):
		return PartyBuyer
	case o.IsSeller(userID):
		return PartySeller
	}
	return ""
}

// RatingBy returns the rating submitted by the given side, or nil.
func (o *Order) RatingBy(role PartyRole) *Rating {
	var score *int
	var comment string
	var at *time.Time

	switch role {
	case PartyBuyer:
		score, comment, at = o.BuyerRatingScore, o.BuyerRatingComment, o.BuyerRatingAt
	case PartySeller:
		score, comment, at = o.SellerRatingScore, o.SellerRatingComment, o.SellerRatingAt
	default:
		return nil
	}

	if score == nil {
		return nil
	}
	r := &Rating{Score: *score, Comment: comment}
	if at != nil {
		r.UpdatedAt = *at
	}
	return r
}

// BothRated reports whether buyer and seller have each submitted a rating.
func (o *Order) BothRated() bool {
	return o.BuyerRatingScore != nil && o.SellerRatingScore != nil
}

// OrderView is the JSON shape returned to clients: the derived status and
// step plus the embedded ratings.
type OrderView struct {
	*Order
	Status         Status  `json:"status"`
	Step           int     `json:"step"`
	RatingByBuyer  *Rating `json:"rating_by_buyer,omitempty"`
	RatingBySeller *Rating `json:"rating_by_seller,omitempty"`
}

// View assembles the client-facing representation of the order.
func (o *Order) View() *OrderView {
	return &OrderView{
		Order:          o,
		Status:         o.Status(),
		Step:           o.Step(),
		RatingByBuyer:  o.RatingBy(PartyBuyer),
		RatingBySeller: o.RatingBy(PartySeller),
	}
}

// ChatMessage is one entry in an order's append-only chat log. SenderID is
// empty for system-authored moderation messages.
type ChatMessage struct {
	ID        string    `db:"id" json:"id"`
	OrderID   string    `db:"order_id" json:"order_id"`
	SenderID  string    `db:"sender_id" json:"sender_id,omitempty"`
	Content   string    `db:"content" json:"content"`
	IsAdmin   bool      `db:"is_admin" json:"is_admin"`
	Seq       int64     `db:"seq" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"timestamp"`
}

// Reputation is the aggregate feedback score for a user, maintained by the
// reputation worker from completed-order events.
type Reputation struct {
	UserID   string `db:"user_id" json:"user_id"`
	Positive int    `db:"positive" json:"positive"`
	Negative int    `db:"negative" json:"negative"`
	Score    int    `db:"score" json:"score"`
}

// ProcessedEvent records consumed broker events for exactly-once handling.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
