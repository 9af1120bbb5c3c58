package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"museum-ticketing-platform/internal/models"
)

func TestCheckoutService_PaidCheckoutCreatesOrderOnly(t *testing.T) {
	env := newTestEnv(t)
	target := seedExhibition(env)
	user := visitor("user-1")
	a := env.hold(t, user, slotA, target, models.TicketQuantities{"adult": 1})
	b := env.hold(t, user, slotB, target, models.TicketQuantities{"child": 2})

	result, err := env.checkout.Checkout(context.Background(), user, CheckoutInput{
		CartItemIDs:   []string{a.ID, b.ID, a.ID},
		UserDetails:   models.ContactDetails{Name: "  Asha Rao ", Email: " Asha@Example.COM "},
		TermsAccepted: true,
	})
	require.NoError(t, err)

	assert.False(t, result.IsFree)
	assert.Equal(t, int64(100000), result.AmountInPaise)
	assert.Equal(t, models.DefaultCurrency, result.Currency)
	assert.Equal(t, "rzp_sandbox", result.GatewayKeyID)
	assert.NotEmpty(t, result.OrderID)

	order := env.db.order(result.OrderID)
	require.NotNil(t, order)
	assert.Equal(t, models.PaymentOrderCreated, order.Status)
	assert.Equal(t, "asha@example.com", order.Contact.Email)
	assert.Equal(t, "Asha Rao", order.Contact.Name)
	assert.Len(t, order.CartSnapshot, 2, "duplicate ids collapse")
	assert.Equal(t, order.AmountPaise, order.CartSnapshot.TotalPaise())

	assert.Zero(t, env.db.bookingCount(), "no booking before payment")
	assert.Equal(t, 2, env.db.cartSize(user.UserID), "holds stay until payment")
}

func TestCheckoutService_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *CheckoutInput)
		field  string
	}{
		{name: "no items", mutate: func(in *CheckoutInput) { in.CartItemIDs = nil }, field: "cartItemIDs"},
		{name: "bad email", mutate: func(in *CheckoutInput) { in.UserDetails.Email = "not-an-email" }, field: "userDetails.email"},
		{name: "missing name", mutate: func(in *CheckoutInput) { in.UserDetails.Name = "   " }, field: "userDetails.name"},
		{name: "bad phone", mutate: func(in *CheckoutInput) { in.UserDetails.Phone = "call me" }, field: "userDetails.phone"},
		{name: "terms not accepted", mutate: func(in *CheckoutInput) { in.TermsAccepted = false }, field: "termsAccepted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			target := seedExhibition(env)
			user := visitor("user-1")
			item := env.hold(t, user, slotA, target, models.TicketQuantities{"adult": 1})

			in := CheckoutInput{CartItemIDs: []string{item.ID}, UserDetails: testContact(), TermsAccepted: true}
			tt.mutate(&in)

			_, err := env.checkout.Checkout(context.Background(), user, in)
			require.Error(t, err)
			appErr, ok := models.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, models.KindValidation, appErr.Kind)
			assert.Contains(t, appErr.Details, tt.field)
		})
	}
}

func TestCheckoutService_RejectsMissingAndExpiredItems(t *testing.T) {
	env := newTestEnv(t)
	target := seedExhibition(env)
	user := visitor("user-1")
	item := env.hold(t, user, slotA, target, models.TicketQuantities{"adult": 1})
	other := env.hold(t, visitor("user-2"), slotB, target, models.TicketQuantities{"adult": 1})

	_, err := env.checkout.Checkout(context.Background(), user, CheckoutInput{
		CartItemIDs:   []string{item.ID, other.ID},
		UserDetails:   testContact(),
		TermsAccepted: true,
	})
	appErr, ok := models.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, models.KindValidation, appErr.Kind)
	assert.Equal(t, map[string]interface{}{"missing": []string{other.ID}}, appErr.Details)

	env.now = env.now.Add(models.CartHoldDuration + time.Second)
	_, err = env.checkout.Checkout(context.Background(), user, CheckoutInput{
		CartItemIDs:   []string{item.ID},
		UserDetails:   testContact(),
		TermsAccepted: true,
	})
	appErr, ok = models.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"expired": []string{item.ID}}, appErr.Details)
}

func TestCheckoutService_FreeCheckoutBooksImmediately(t *testing.T) {
	env := newTestEnv(t)
	target := models.ShowTarget(showID)
	env.db.setPrices(target, map[string]int64{"member": 0})
	env.db.addSlot(slotC, target, "2025-04-02", 5)

	gateway := new(MockPaymentGateway)
	env.gateway = gateway
	env.wire()

	user := visitor("user-1")
	item := env.hold(t, user, slotC, target, models.TicketQuantities{"member": 2})

	result, err := env.checkout.Checkout(context.Background(), user, CheckoutInput{
		CartItemIDs:   []string{item.ID},
		UserDetails:   testContact(),
		TermsAccepted: true,
	})
	require.NoError(t, err)

	assert.True(t, result.IsFree)
	assert.Empty(t, result.OrderID)
	require.Len(t, result.Bookings, 1)
	require.Len(t, result.Tickets, 1)

	booking := result.Bookings[0]
	assert.Equal(t, models.BookingConfirmed, booking.Status)
	assert.Equal(t, models.BookingPaymentPaid, booking.PaymentStatus)
	assert.Nil(t, booking.PaymentOrderID)
	assert.Zero(t, booking.TotalAmountPaise)
	assert.Equal(t, booking.BookingReference, result.Tickets[0].QRCode)

	assert.Zero(t, env.db.cartSize(user.UserID))
	assert.Equal(t, 3, env.db.available(slotC), "consumed seats stay taken")
	assert.Len(t, env.dispatcher.notifications(), 1)
	assert.Equal(t, int64(1), env.metrics.Snapshot()["free_checkouts"])

	gateway.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckoutService_GatewayFailure(t *testing.T) {
	env := newTestEnv(t)
	target := seedExhibition(env)

	gateway := new(MockPaymentGateway)
	gateway.On("CreateOrder", mock.Anything, int64(50000), models.DefaultCurrency, mock.AnythingOfType("string")).
		Return(nil, errors.New("connection refused"))
	env.gateway = gateway
	env.wire()

	user := visitor("user-1")
	item := env.hold(t, user, slotA, target, models.TicketQuantities{"adult": 1})

	_, err := env.checkout.Checkout(context.Background(), user, CheckoutInput{
		CartItemIDs:   []string{item.ID},
		UserDetails:   testContact(),
		TermsAccepted: true,
	})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindUpstream))

	env.db.mu.Lock()
	assert.Empty(t, env.db.orders, "no payment order without a gateway order")
	env.db.mu.Unlock()
	gateway.AssertExpectations(t)
}

func TestCheckoutService_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.checkout.Checkout(context.Background(), nil, CheckoutInput{})
	assert.True(t, models.IsKind(err, models.KindAuth))
}
