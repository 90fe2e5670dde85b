package fulfillment_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/fulfillment"
	"github.com/odyssey-erp/odyssey-ledger/internal/orders"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func notification(ext, status string) []byte {
	return []byte(fmt.Sprintf(`{"order":{"orderId":"PAYU-1","extOrderId":%q,"status":%q,"totalAmount":"14760"}}`, ext, status))
}

func signed(t *testing.T, body []byte) string {
	t.Helper()
	sig, err := fulfillment.Sign(body, secondKey, "SHA-256")
	require.NoError(t, err)
	return "sender=checkout;signature=" + sig + ";algorithm=SHA-256;content=DOCUMENT"
}

func TestCompletedNotificationFulfillsOnce(t *testing.T) {
	f := newFixture(t)
	order := f.pendingOrder(t)
	body := notification(orders.ExtOrderID(order.ID, fixedNow), "COMPLETED")

	ack, err := f.service.HandlePayUNotification(context.Background(), signed(t, body), body)
	require.NoError(t, err)
	require.Equal(t, "ok", ack.Status)
	require.Equal(t, order.ID, ack.OrderID)
	require.Equal(t, orders.StatusProcessing, f.store.Order(order.ID).Status)
	require.Len(t, f.audit.Entries("PAYU_NOTIFY"), 1)

	ack, err = f.service.HandlePayUNotification(context.Background(), signed(t, body), body)
	require.NoError(t, err)
	require.Equal(t, "already processed", ack.Message)
	require.Len(t, f.store.Invoices(), 1)
	require.Len(t, f.store.Movements(0), 2)
}

func TestNotificationWithBadSignatureChangesNothing(t *testing.T) {
	f := newFixture(t)
	order := f.pendingOrder(t)
	body := notification(orders.ExtOrderID(order.ID, fixedNow), "COMPLETED")
	forged := notification(orders.ExtOrderID(order.ID, fixedNow), "CANCELED")

	ack, err := f.service.HandlePayUNotification(context.Background(), signed(t, forged), body)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	require.Nil(t, ack)
	_, err = f.service.HandlePayUNotification(context.Background(), "", body)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	f.requireUntouched(t, order.ID)
}

func TestNotificationOutcomes(t *testing.T) {
	f := newFixture(t)
	order := f.pendingOrder(t)

	body := notification(orders.ExtOrderID(order.ID, fixedNow), "PENDING")
	ack, err := f.service.HandlePayUNotification(context.Background(), signed(t, body), body)
	require.NoError(t, err)
	require.Equal(t, "ok", ack.Status)
	require.Equal(t, "ignored PENDING", ack.Message)

	body = notification("not-an-id", "COMPLETED")
	ack, err = f.service.HandlePayUNotification(context.Background(), signed(t, body), body)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, "error", ack.Status)

	body = notification("999_1700000000", "COMPLETED")
	ack, err = f.service.HandlePayUNotification(context.Background(), signed(t, body), body)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Equal(t, "order not found", ack.Message)

	body = []byte(`{"order":`)
	ack, err = f.service.HandlePayUNotification(context.Background(), signed(t, body), body)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Nil(t, ack)

	f.requireUntouched(t, order.ID)
}

func TestRetryableFailureIsQueued(t *testing.T) {
	f := newFixture(t)
	order := f.pendingOrder(t)
	body := notification(orders.ExtOrderID(order.ID, fixedNow), "COMPLETED")
	f.store.FailOn("GetOrderForUpdate", fmt.Errorf("lock timeout: %w", shared.ErrConcurrencyConflict))

	ack, err := f.service.HandlePayUNotification(context.Background(), signed(t, body), body)
	require.Nil(t, ack)
	require.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	require.Equal(t, []int64{order.ID}, f.queue.orders)
	failures := f.audit.Entries("PAYU_NOTIFY")
	require.Len(t, failures, 1)
	require.Equal(t, shared.AuditFailure, failures[0].Status)

	f.store.FailOn("GetOrderForUpdate", nil)
	require.NoError(t, f.service.RetryFulfillment(context.Background(), order.ID))
	require.NoError(t, f.service.RetryFulfillment(context.Background(), order.ID))
	require.Len(t, f.store.Invoices(), 1)
	require.Equal(t, orders.StatusProcessing, f.store.Order(order.ID).Status)
}

func TestTransientDriverFailureIsQueued(t *testing.T) {
	f := newFixture(t)
	order := f.pendingOrder(t)
	body := notification(orders.ExtOrderID(order.ID, fixedNow), "COMPLETED")
	f.store.FailOn("InsertInvoice", fmt.Errorf("insert invoice: %w", context.DeadlineExceeded))

	_, err := f.service.HandlePayUNotification(context.Background(), signed(t, body), body)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, []int64{order.ID}, f.queue.orders)
	require.Empty(t, f.audit.Entries("FULFILLMENT_ALERT"))
	f.requireUntouched(t, order.ID)
}

func TestShortageAfterPaymentRaisesAlert(t *testing.T) {
	f := newFixture(t)
	order := f.pendingOrder(t)
	b := f.store.Product(f.b.ID)
	b.StockQuantity = 0
	f.store.SetProduct(b)
	body := notification(orders.ExtOrderID(order.ID, fixedNow), "COMPLETED")

	ack, err := f.service.HandlePayUNotification(context.Background(), signed(t, body), body)
	require.Nil(t, ack)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Empty(t, f.queue.orders)

	alerts := f.audit.Entries("FULFILLMENT_ALERT")
	require.Len(t, alerts, 1)
	require.Equal(t, shared.AuditFailure, alerts[0].Status)
	require.Equal(t, fulfillment.AlertShortage, alerts[0].Meta["reason"])
	require.Equal(t, f.b.ID, alerts[0].Meta["product_id"])
	require.Equal(t, 0, alerts[0].Meta["available"])
	require.Equal(t, orders.StatusPendingPayment, f.store.Order(order.ID).Status)
}

func TestPermanentFailureRaisesAlert(t *testing.T) {
	f := newFixture(t)
	order := f.pendingOrder(t)
	f.store.FailOn("InsertDocument", errors.New("check constraint violated"))
	body := notification(orders.ExtOrderID(order.ID, fixedNow), "COMPLETED")

	_, err := f.service.HandlePayUNotification(context.Background(), signed(t, body), body)
	require.Error(t, err)
	require.Empty(t, f.queue.orders)
	alerts := f.audit.Entries("FULFILLMENT_ALERT")
	require.Len(t, alerts, 1)
	require.Equal(t, fulfillment.AlertFailed, alerts[0].Meta["reason"])
}
