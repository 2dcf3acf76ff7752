package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fulfillment-service/internal/models"
)

func newFulfillmentFixture(t *testing.T) (*FulfillmentService, *fakeStore, *capturePublisher, string) {
	t.Helper()
	store := newFakeStore()
	pub := &capturePublisher{}
	svc := NewFulfillmentService(store, pub, &captureSink{})
	orderID := newTestOrder(store)
	return svc, store, pub, orderID
}

func validStep1() *Step1Request {
	return &Step1Request{
		Address:      "1 Main St, Springfield",
		PaymentProof: "https://bank.example/tx/123",
		Note:         "paid via wire",
	}
}

func validStep2() *Step2Request {
	return &Step2Request{
		ShippingProof: "https://courier.example/track/987",
		Note:          "shipped same day",
	}
}

func TestCreateOrder(t *testing.T) {
	store := newFakeStore()
	pub := &capturePublisher{}
	svc := NewFulfillmentService(store, pub, &captureSink{})
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, &CreateOrderRequest{
		ProductID: "product-1", SellerID: sellerID, BuyerID: buyerID,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, models.StateAwaitingPayment, order.State)
	assert.Equal(t, []string{models.EventTypeOrderCreated}, pub.types())

	// one order per auction
	_, err = svc.CreateOrder(ctx, &CreateOrderRequest{
		ProductID: "product-1", SellerID: sellerID, BuyerID: buyerID,
	})
	assert.ErrorIs(t, err, models.ErrState)
}

func TestCreateOrderValidation(t *testing.T) {
	svc, _, _, _ := newFulfillmentFixture(t)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, &CreateOrderRequest{ProductID: "p", SellerID: "", BuyerID: "b"})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.CreateOrder(ctx, &CreateOrderRequest{ProductID: "p", SellerID: "same", BuyerID: "same"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSubmitStep1(t *testing.T) {
	svc, store, pub, orderID := newFulfillmentFixture(t)
	ctx := context.Background()

	order, err := svc.SubmitStep1(ctx, buyer, orderID, validStep1())
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingShipment, order.State)
	assert.Equal(t, 2, order.Step())
	assert.Equal(t, "1 Main St, Springfield", order.ShippingAddress)
	assert.Contains(t, pub.types(), models.EventTypeOrderPaymentIn)

	stored, _ := store.GetOrderByID(ctx, orderID)
	assert.Equal(t, models.StateAwaitingShipment, stored.State)
}

func TestSubmitStep1Validation(t *testing.T) {
	svc, store, _, orderID := newFulfillmentFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *Step1Request
	}{
		{"missing address", &Step1Request{PaymentProof: "https://bank.example/tx/1"}},
		{"missing proof", &Step1Request{Address: "1 Main St"}},
		{"proof not a URL", &Step1Request{Address: "1 Main St", PaymentProof: "receipt.jpg"}},
		{"proof wrong scheme", &Step1Request{Address: "1 Main St", PaymentProof: "ftp://x.example/f"}},
		{"note too long", &Step1Request{
			Address:      "1 Main St",
			PaymentProof: "https://bank.example/tx/1",
			Note:         string(make([]byte, maxNoteLen+1)),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SubmitStep1(ctx, buyer, orderID, tt.req)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}

	// rejected submissions leave the order untouched
	stored, _ := store.GetOrderByID(ctx, orderID)
	assert.Equal(t, models.StateAwaitingPayment, stored.State)
}

func TestSubmitStep1RoleAndState(t *testing.T) {
	svc, _, _, orderID := newFulfillmentFixture(t)
	ctx := context.Background()

	_, err := svc.SubmitStep1(ctx, seller, orderID, validStep1())
	assert.ErrorIs(t, err, models.ErrRole)

	_, err = svc.SubmitStep1(ctx, stranger, orderID, validStep1())
	assert.ErrorIs(t, err, models.ErrRole)

	_, err = svc.SubmitStep1(ctx, buyer, "no-such-order", validStep1())
	assert.ErrorIs(t, err, models.ErrNotFound)

	// resubmission after the step advanced
	_, err = svc.SubmitStep1(ctx, buyer, orderID, validStep1())
	require.NoError(t, err)
	_, err = svc.SubmitStep1(ctx, buyer, orderID, validStep1())
	assert.ErrorIs(t, err, models.ErrState)
}

func TestSubmitStep2(t *testing.T) {
	svc, _, pub, orderID := newFulfillmentFixture(t)
	ctx := context.Background()

	_, err := svc.SubmitStep1(ctx, buyer, orderID, validStep1())
	require.NoError(t, err)

	order, err := svc.SubmitStep2(ctx, seller, orderID, validStep2())
	require.NoError(t, err)
	assert.Equal(t, models.StateShipped, order.State)
	assert.Equal(t, 3, order.Step())
	assert.True(t, order.PaymentConfirmed)
	assert.True(t, order.Shipped)
	assert.Contains(t, pub.types(), models.EventTypeOrderShipped)
}

func TestSubmitStep2CollapsedConfirmation(t *testing.T) {
	svc, _, _, orderID := newFulfillmentFixture(t)
	ctx := context.Background()

	// without confirm_payment the seller cannot skip the buyer's step
	_, err := svc.SubmitStep2(ctx, seller, orderID, validStep2())
	assert.ErrorIs(t, err, models.ErrState)

	req := validStep2()
	req.ConfirmPayment = true
	order, err := svc.SubmitStep2(ctx, seller, orderID, req)
	require.NoError(t, err)
	assert.Equal(t, models.StateShipped, order.State)
	assert.True(t, order.PaymentConfirmed)
}

func TestSubmitStep2WrongRole(t *testing.T) {
	svc, _, _, orderID := newFulfillmentFixture(t)
	ctx := context.Background()

	_, err := svc.SubmitStep1(ctx, buyer, orderID, validStep1())
	require.NoError(t, err)

	_, err = svc.SubmitStep2(ctx, buyer, orderID, validStep2())
	assert.ErrorIs(t, err, models.ErrRole)
}

func TestSubmitStep3(t *testing.T) {
	svc, _, pub, orderID := newFulfillmentFixture(t)
	ctx := context.Background()

	_, err := svc.SubmitStep1(ctx, buyer, orderID, validStep1())
	require.NoError(t, err)
	_, err = svc.SubmitStep2(ctx, seller, orderID, validStep2())
	require.NoError(t, err)

	order, err := svc.SubmitStep3(ctx, buyer, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.StateReceived, order.State)
	assert.Equal(t, 4, order.Step())
	assert.Contains(t, pub.types(), models.EventTypeOrderReceived)

	// receipt cannot be confirmed twice
	_, err = svc.SubmitStep3(ctx, buyer, orderID)
	assert.ErrorIs(t, err, models.ErrState)

	_, err = svc.SubmitStep3(ctx, seller, orderID)
	assert.ErrorIs(t, err, models.ErrRole)
}

func TestConcurrentStep2SingleWinner(t *testing.T) {
	svc, _, _, orderID := newFulfillmentFixture(t)
	ctx := context.Background()

	_, err := svc.SubmitStep1(ctx, buyer, orderID, validStep1())
	require.NoError(t, err)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.SubmitStep2(ctx, seller, orderID, validStep2())
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, models.ErrState)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestCancelOrder(t *testing.T) {
	svc, _, pub, orderID := newFulfillmentFixture(t)
	ctx := context.Background()

	_, err := svc.CancelOrder(ctx, buyer, orderID)
	assert.ErrorIs(t, err, models.ErrRole)

	order, err := svc.CancelOrder(ctx, admin, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, order.Status())
	assert.Equal(t, 1, order.Step()) // step frozen where cancellation hit
	assert.Contains(t, pub.types(), models.EventTypeOrderCancelled)

	// cancelled orders accept no further transitions
	_, err = svc.SubmitStep1(ctx, buyer, orderID, validStep1())
	assert.ErrorIs(t, err, models.ErrState)

	_, err = svc.CancelOrder(ctx, admin, orderID)
	assert.ErrorIs(t, err, models.ErrState)
}

func TestCancelCompletedOrder(t *testing.T) {
	svc, store, _, orderID := newFulfillmentFixture(t)
	ctx := context.Background()

	store.mu.Lock()
	store.orders[orderID].State = models.StateCompleted
	store.mu.Unlock()

	_, err := svc.CancelOrder(ctx, admin, orderID)
	assert.ErrorIs(t, err, models.ErrState)
}

func TestDeleteOrder(t *testing.T) {
	svc, store, pub, orderID := newFulfillmentFixture(t)
	ctx := context.Background()

	err := svc.DeleteOrder(ctx, buyer, orderID)
	assert.ErrorIs(t, err, models.ErrRole)

	// live orders cannot be deleted
	err = svc.DeleteOrder(ctx, admin, orderID)
	assert.ErrorIs(t, err, models.ErrState)

	_, err = svc.CancelOrder(ctx, admin, orderID)
	require.NoError(t, err)

	err = svc.DeleteOrder(ctx, admin, orderID)
	require.NoError(t, err)
	assert.Contains(t, pub.types(), models.EventTypeOrderDeleted)

	stored, _ := store.GetOrderByID(ctx, orderID)
	assert.Nil(t, stored)

	err = svc.DeleteOrder(ctx, admin, orderID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetOrderAccess(t *testing.T) {
	svc, _, _, orderID := newFulfillmentFixture(t)
	ctx := context.Background()

	for _, actor := range []models.Actor{buyer, seller, admin} {
		order, err := svc.GetOrder(ctx, actor, orderID)
		require.NoError(t, err)
		assert.Equal(t, orderID, order.ID)
	}

	_, err := svc.GetOrder(ctx, stranger, orderID)
	assert.ErrorIs(t, err, models.ErrRole)
}

func TestListOrders(t *testing.T) {
	svc, store, _, orderID := newFulfillmentFixture(t)
	ctx := context.Background()

	other := &models.Order{ID: "order-2", ProductID: "product-2", SellerID: "other-seller", BuyerID: "other-buyer"}
	_, err := store.CreateOrder(ctx, other)
	require.NoError(t, err)

	mine, err := svc.ListOrders(ctx, buyer, "")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, orderID, mine[0].ID)

	all, err := svc.ListOrders(ctx, admin, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := svc.ListOrders(ctx, admin, string(models.StatusPendingPayment))
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = svc.ListOrders(ctx, admin, "BOGUS")
	assert.ErrorIs(t, err, models.ErrValidation)
}

// The full happy path: payment, shipment, receipt, mutual ratings.
func TestFulfillmentEndToEnd(t *testing.T) {
	store := newFakeStore()
	pub := &capturePublisher{}
	fulfillment := NewFulfillmentService(store, pub, &captureSink{})
	ratings := NewRatingService(store, store, pub)
	ctx := context.Background()

	created, err := fulfillment.CreateOrder(ctx, &CreateOrderRequest{
		ProductID: "product-1", SellerID: sellerID, BuyerID: buyerID,
	})
	require.NoError(t, err)
	orderID := created.ID

	_, err = fulfillment.SubmitStep1(ctx, buyer, orderID, validStep1())
	require.NoError(t, err)
	_, err = fulfillment.SubmitStep2(ctx, seller, orderID, validStep2())
	require.NoError(t, err)
	_, err = fulfillment.SubmitStep3(ctx, buyer, orderID)
	require.NoError(t, err)

	order, err := ratings.SubmitRating(ctx, buyer, orderID, &RatingRequest{Score: 1, Comment: "great seller, fast shipping"})
	require.NoError(t, err)
	assert.Equal(t, models.StateReceived, order.State)

	order, err = ratings.SubmitRating(ctx, seller, orderID, &RatingRequest{Score: 1, Comment: "prompt payment, thank you"})
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, order.State)
	assert.Equal(t, models.StatusCompleted, order.Status())

	assert.Equal(t, []string{
		models.EventTypeOrderCreated,
		models.EventTypeOrderPaymentIn,
		models.EventTypeOrderShipped,
		models.EventTypeOrderReceived,
		models.EventTypeOrderCompleted,
	}, pub.types())

	// completed orders can be deleted by an admin
	require.NoError(t, fulfillment.DeleteOrder(ctx, admin, orderID))
}
