package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrder_RecalculateTotals(t *testing.T) {
	o := &Order{
		Items: []OrderItem{
			{Name: "Mug", Quantity: 1, Price: decimal.RequireFromString("25.00")},
			{Name: "Coaster", Quantity: 2, Price: decimal.RequireFromString("10.00")},
		},
		DeliveryFee: decimal.RequireFromString("5.00"),
	}

	o.RecalculateTotals()

	assert.True(t, o.Subtotal.Equal(decimal.RequireFromString("45.00")), "subtotal %s", o.Subtotal)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("50.00")), "total %s", o.Total)
	assert.Equal(t, int64(5000), o.AmountMinorUnits())
}

func TestOrder_RecalculateTotals_NoItems(t *testing.T) {
	o := &Order{DeliveryFee: decimal.RequireFromString("3.50")}
	o.RecalculateTotals()

	assert.True(t, o.Subtotal.IsZero())
	assert.True(t, o.Total.Equal(decimal.RequireFromString("3.50")))
}

func TestOrder_IsTerminal(t *testing.T) {
	assert.False(t, (&Order{Stage: StageCreated}).IsTerminal())
	assert.False(t, (&Order{Stage: StagePaymentCompleted, PaymentStatus: PaymentCODPending}).IsTerminal())
	assert.True(t, (&Order{Stage: StagePaymentCompleted, PaymentStatus: PaymentPaid}).IsTerminal())
	assert.True(t, (&Order{Stage: StageCancelled}).IsTerminal())
}

func TestProduct_StockValue(t *testing.T) {
	p := &Product{StockQuantity: 4, Price: decimal.RequireFromString("2.25")}
	assert.True(t, p.StockValue().Equal(decimal.RequireFromString("9.00")))
}
