package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusPaid, OrderStatusShipped, true},
		{OrderStatusPaid, OrderStatusCancelled, true},
		{OrderStatusPaid, OrderStatusPending, false},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusShipped, OrderStatusPaid, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusCancelled, OrderStatusCancelled, false},
		{OrderStatus("UNKNOWN"), OrderStatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestOrderTransition_RejectedKeepsStatus(t *testing.T) {
	o := &Order{Status: OrderStatusShipped}

	err := o.Transition(OrderStatusCancelled)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, OrderStatusShipped, o.Status)
}

func TestOrderItemSubtotalAndCartTotal(t *testing.T) {
	item := OrderItem{Quantity: 3, PriceAtPurchase: decimal.RequireFromString("2.50")}
	assert.True(t, decimal.RequireFromString("7.5").Equal(item.Subtotal()))

	cart := &Cart{Items: []CartItem{
		{SKU: "A", Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
		{SKU: "B", Quantity: 1, UnitPrice: decimal.RequireFromString("0.99")},
	}}
	assert.True(t, decimal.RequireFromString("20.99").Equal(cart.Total()))
}

func TestPrincipalCanAccess(t *testing.T) {
	assert.True(t, Principal{UserID: 7, Role: RoleUser}.CanAccess(7))
	assert.False(t, Principal{UserID: 7, Role: RoleUser}.CanAccess(8))
	assert.True(t, Principal{UserID: 1, Role: RoleAdmin}.CanAccess(8))
	assert.False(t, Principal{}.CanAccess(0))
}

func TestErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("%w: wallet 3", ErrInsufficientFunds)
	assert.Equal(t, "INSUFFICIENT_FUNDS", ErrorCode(wrapped))
	assert.Equal(t, "INVALID_TRANSITION", ErrorCode(ErrInvalidTransition))
	assert.Equal(t, "CONFLICT", ErrorCode(ErrConcurrentUpdate))
	assert.Equal(t, "INTERNAL_ERROR", ErrorCode(errors.New("boom")))
}
