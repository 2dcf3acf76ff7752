package store

import (
	"context"
	"database/sql"
	"fmt"

	"fulfillment-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrder inserts a new order in AWAITING_PAYMENT. Returns (false, nil)
// when an order for the same auction (product+buyer+seller) already exists.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) (bool, error) {
	query := `
		INSERT INTO orders (id, product_id, seller_id, buyer_id, state)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, buyer_id, seller_id) DO NOTHING
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		order.ID, order.ProductID, order.SellerID, order.BuyerID, models.StateAwaitingPayment).
		Scan(&order.CreatedAt, &order.UpdatedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create order: %w", err)
	}
	order.State = models.StateAwaitingPayment
	return true, nil
}

// GetOrderByID retrieves an order by ID. Returns (nil, nil) when absent.
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUser retrieves orders where the user is buyer or seller.
func (s *Store) GetOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetCancelledOrders retrieves all cancelled orders, newest first.
func (s *Store) GetCancelledOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE cancelled_at IS NOT NULL ORDER BY created_at DESC")
	return orders, err
}

// GetOrdersByStates retrieves live orders in any of the given progression
// states.
func (s *Store) GetOrdersByStates(ctx context.Context, states []models.State) ([]models.Order, error) {
	query, args, err := sqlx.In(
		"SELECT * FROM orders WHERE state IN (?) AND cancelled_at IS NULL ORDER BY created_at DESC", states)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var orders []models.Order
	err = s.db.SelectContext(ctx, &orders, query, args...)
	return orders, err
}

// GetAllOrders retrieves every order, newest first.
func (s *Store) GetAllOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, "SELECT * FROM orders ORDER BY created_at DESC")
	return orders, err
}

// ApplyStep1 records the buyer's payment submission and advances to
// AWAITING_SHIPMENT. The WHERE clause is the compare-and-set guard: a
// concurrent writer that already moved the order off step 1 makes this a
// no-op, reported as (nil, nil).
func (s *Store) ApplyStep1(ctx context.Context, orderID, address, paymentProof, note string) (*models.Order, error) {
	query := `
		UPDATE orders
		SET shipping_address = $2, payment_proof = $3, buyer_note = $4,
		    state = $5, updated_at = NOW()
		WHERE id = $1 AND state = $6 AND cancelled_at IS NULL
		RETURNING *`

	var order models.Order
	err := s.db.GetContext(ctx, &order, query,
		orderID, address, paymentProof, note,
		models.StateAwaitingShipment, models.StateAwaitingPayment)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply step 1: %w", err)
	}
	return &order, nil
}

// ApplyStep2 records the seller's shipping submission. Payment confirmation
// and shipment are committed as one atomic write, moving the order to
// SHIPPED. fromStates lists the states the order may currently be in; the
// collapsed-confirmation case passes both AWAITING_PAYMENT and
// AWAITING_SHIPMENT.
func (s *Store) ApplyStep2(ctx context.Context, orderID, shippingProof, note string, fromStates []models.State) (*models.Order, error) {
	query, args, err := sqlx.In(`
		UPDATE orders
		SET shipping_proof = ?, seller_note = ?,
		    payment_confirmed = TRUE, shipped = TRUE,
		    state = ?, updated_at = NOW()
		WHERE id = ? AND state IN (?) AND cancelled_at IS NULL
		RETURNING *`,
		shippingProof, note, models.StateShipped, orderID, fromStates)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var order models.Order
	err = s.db.GetContext(ctx, &order, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply step 2: %w", err)
	}
	return &order, nil
}

// ApplyStep3 records the buyer's receipt confirmation, moving SHIPPED to
// RECEIVED. The state guard makes double confirmation a no-op.
func (s *Store) ApplyStep3(ctx context.Context, orderID string) (*models.Order, error) {
	query := `
		UPDATE orders
		SET state = $2, updated_at = NOW()
		WHERE id = $1 AND state = $3 AND cancelled_at IS NULL
		RETURNING *`

	var order models.Order
	err := s.db.GetContext(ctx, &order, query,
		orderID, models.StateReceived, models.StateShipped)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply step 3: %w", err)
	}
	return &order, nil
}

// UpsertRating writes or overwrites one party's rating and, in the same
// transaction, flips the order to COMPLETED once both ratings are present.
// The completion check runs against post-write rows, so the two parties may
// race safely: whichever commit lands second sees both ratings.
func (s *Store) UpsertRating(ctx context.Context, orderID string, role models.PartyRole, score int, comment string) (*models.Order, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var column string
	switch role {
	case models.PartyBuyer:
		column = "buyer_rating"
	case models.PartySeller:
		column = "seller_rating"
	default:
		return nil, fmt.Errorf("unknown party role: %s", role)
	}

	write := fmt.Sprintf(`
		UPDATE orders
		SET %[1]s_score = $2, %[1]s_comment = $3, %[1]s_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND state IN ($4, $5) AND cancelled_at IS NULL`, column)

	res, err := tx.ExecContext(ctx, write, orderID, score, comment,
		models.StateReceived, models.StateCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to write rating: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}

	complete := `
		UPDATE orders
		SET state = $2, updated_at = NOW()
		WHERE id = $1 AND state = $3
		  AND buyer_rating_score IS NOT NULL AND seller_rating_score IS NOT NULL`

	if _, err := tx.ExecContext(ctx, complete, orderID,
		models.StateCompleted, models.StateReceived); err != nil {
		return nil, fmt.Errorf("failed to complete order: %w", err)
	}

	var order models.Order
	if err := tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", orderID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder marks a non-terminal order cancelled. The progression state
// is left untouched, so the step the order was cancelled at is preserved.
func (s *Store) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	query := `
		UPDATE orders
		SET cancelled_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND cancelled_at IS NULL AND state <> $2
		RETURNING *`

	var order models.Order
	err := s.db.GetContext(ctx, &order, query, orderID, models.StateCompleted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	return &order, nil
}

// DeleteOrder permanently removes a terminal order together with its chat
// log (ON DELETE CASCADE). Returns false when the order is absent or not in
// a terminal state.
func (s *Store) DeleteOrder(ctx context.Context, orderID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM orders WHERE id = $1 AND (cancelled_at IS NOT NULL OR state = $2)`,
		orderID, models.StateCompleted)
	if err != nil {
		return false, fmt.Errorf("failed to delete order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
