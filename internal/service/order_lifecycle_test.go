package service

import (
	"context"
	"sync"
	"testing"

	"go-storefront-ledger/internal/model"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mpesa() SelectPaymentInput {
	return SelectPaymentInput{Method: model.PaymentMpesa}
}

func TestCreate_SnapshotsProductsAndTotals(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 5, 0, "25.00")
	coaster := env.product(t, "COASTER", 5, 0, "10.00")

	o := env.order(t, item(mug.ID, 1), item(coaster.ID, 2))

	assert.Equal(t, model.StageCreated, o.Stage)
	assert.Equal(t, model.PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, model.OrderPending, o.Status)
	assert.NotEmpty(t, o.OrderNumber)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "Product MUG", o.Items[0].Name)
	assert.True(t, o.Subtotal.Equal(decimal.RequireFromString("45.00")))
	assert.True(t, o.Total.Equal(decimal.RequireFromString("50.00")))

	// creating an order never touches stock
	assert.Equal(t, 5, env.stock(t, mug.ID))
}

func TestCreate_MergesRepeatedProducts(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 5, 0, "2.00")

	o := env.order(t, item(mug.ID, 1), item(mug.ID, 2))
	require.Len(t, o.Items, 1)
	assert.Equal(t, 3, o.Items[0].Quantity)
}

func TestCreate_Rejections(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 1, 0, "2.00")
	ctx := context.Background()
	customer := model.CustomerInfo{Name: "Akinyi", Phone: "0712345678"}

	_, err := env.lifecycle.Create(ctx, CreateOrderInput{TenantID: testTenant, Customer: customer, Items: []OrderItemInput{item(mug.ID, 2)}})
	assert.True(t, errors.Is(err, ErrInsufficientStock), "got %v", err)

	_, err = env.lifecycle.Create(ctx, CreateOrderInput{TenantID: testTenant, Customer: customer, Items: []OrderItemInput{item(uuid.New(), 1)}})
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	_, err = env.lifecycle.Create(ctx, CreateOrderInput{TenantID: "someone-else", Customer: customer, Items: []OrderItemInput{item(mug.ID, 1)}})
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	_, err = env.lifecycle.Create(ctx, CreateOrderInput{TenantID: testTenant, Customer: model.CustomerInfo{Phone: "0712345678"}, Items: []OrderItemInput{item(mug.ID, 1)}})
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)

	_, err = env.lifecycle.Create(ctx, CreateOrderInput{TenantID: testTenant, Customer: model.CustomerInfo{Name: "A", Phone: "call me"}, Items: []OrderItemInput{item(mug.ID, 1)}})
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)

	_, err = env.lifecycle.Create(ctx, CreateOrderInput{TenantID: testTenant, Customer: customer})
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)

	_, err = env.lifecycle.Create(ctx, CreateOrderInput{TenantID: testTenant, Customer: customer, Items: []OrderItemInput{item(mug.ID, 0)}})
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
}

func TestCreate_BackorderAllowedWhenEmpty(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.ledger.RegisterProduct(context.Background(), &model.Product{
		TenantID: testTenant, SKU: "PRE", Name: "Preorder", Price: decimal.NewFromInt(3),
		TrackStock: true, AllowBackorders: true,
	}, "m")
	require.NoError(t, err)

	o := env.order(t, item(p.ID, 2))
	out, err := env.lifecycle.SelectPayment(context.Background(), o.ID, SelectPaymentInput{Method: model.PaymentCash})
	require.NoError(t, err)
	assert.Equal(t, model.StagePaymentCompleted, out.Order.Stage)
	assert.Equal(t, 0, env.stock(t, p.ID))
}

func TestSelectPayment_Cash(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	o := env.order(t, item(mug.ID, 1))
	ctx := context.Background()

	out, err := env.lifecycle.SelectPayment(ctx, o.ID, SelectPaymentInput{Method: model.PaymentCash})
	require.NoError(t, err)
	assert.Equal(t, model.StagePaymentCompleted, out.Order.Stage)
	assert.Equal(t, model.PaymentCODPending, out.Order.PaymentStatus)
	assert.Equal(t, model.PaymentCash, out.Order.PaymentMethod)
	assert.True(t, out.Order.StockDecremented)
	assert.Equal(t, 2, env.stock(t, mug.ID))
	assert.Empty(t, env.gateway.pushes)

	collected, err := env.lifecycle.MarkCashCollected(ctx, o.ID, "merchant-1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, collected.PaymentStatus)
	assert.Equal(t, model.OrderCompleted, collected.Status)
	assert.NotNil(t, collected.PaidAt)

	// collecting again is harmless and never sells twice
	_, err = env.lifecycle.MarkCashCollected(ctx, o.ID, "merchant-1")
	require.NoError(t, err)
	assert.Equal(t, 2, env.stock(t, mug.ID))
	assert.Len(t, soldEntries(env.history(t, mug.ID)), 1)
}

func TestSelectPayment_GatewayRejects(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	o := env.order(t, item(mug.ID, 1))
	env.gateway.set(func(g *fakeGateway) {
		g.accept = false
		g.message = "Invalid phone number"
	})

	out, err := env.lifecycle.SelectPayment(context.Background(), o.ID, mpesa())
	assert.True(t, errors.Is(err, ErrGatewayRejected), "got %v", err)
	require.NotNil(t, out)
	assert.Equal(t, model.StagePaymentFailed, out.Order.Stage)
	assert.Equal(t, model.PaymentFailed, out.Order.PaymentStatus)
	assert.Equal(t, "Invalid phone number", out.Message)

	assert.Equal(t, 3, env.stock(t, mug.ID))
	assert.Len(t, env.history(t, mug.ID), 1)
	assert.Empty(t, soldEntries(env.history(t, mug.ID)))
}

func TestSelectPayment_PushRequestShape(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	o := env.order(t, item(mug.ID, 2))

	_, err := env.lifecycle.SelectPayment(context.Background(), o.ID, mpesa())
	require.NoError(t, err)

	require.Len(t, env.gateway.pushes, 1)
	push := env.gateway.pushes[0]
	assert.Equal(t, "254712345678", push.Phone)
	assert.Equal(t, int64(5500), push.AmountMinor)
	assert.Equal(t, o.ID.String(), push.Reference)
}

func TestSelectPayment_TransportErrorFailsOrder(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	o := env.order(t, item(mug.ID, 1))
	env.gateway.set(func(g *fakeGateway) { g.pushErr = errors.New("dial tcp: timeout") })

	out, err := env.lifecycle.SelectPayment(context.Background(), o.ID, mpesa())
	assert.True(t, errors.Is(err, ErrGatewayRejected))
	assert.Equal(t, model.StagePaymentFailed, out.Order.Stage)
	assert.Equal(t, gatewayUnavailableMessage, out.Message)
	assert.NotContains(t, out.Message, "dial tcp")
}

func TestSelectPayment_SilentThenManualYes(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	o := env.order(t, item(mug.ID, 1))
	ctx := context.Background()

	out, err := env.lifecycle.SelectPayment(ctx, o.ID, mpesa())
	require.NoError(t, err)
	assert.True(t, out.NeedsManualConfirmation)
	assert.Equal(t, "Enter your M-Pesa PIN on your phone", out.Instructions)
	assert.Equal(t, model.StagePaymentPending, out.Order.Stage)
	assert.NotEmpty(t, out.Order.PaymentReference)
	assert.Equal(t, 3, env.stock(t, mug.ID))

	confirmed, err := env.lifecycle.ConfirmManually(ctx, o.ID, true)
	require.NoError(t, err)
	assert.Equal(t, model.StagePaymentCompleted, confirmed.Stage)
	assert.Equal(t, model.PaymentPaid, confirmed.PaymentStatus)

	assert.Equal(t, 2, env.stock(t, mug.ID))
	sold := soldEntries(env.history(t, mug.ID))
	require.Len(t, sold, 1)
	assert.Equal(t, 3, sold[0].PreviousStock)
	assert.Equal(t, 2, sold[0].NewStock)
	assert.Equal(t, o.ID, *sold[0].OrderID)
}

func TestSelectPayment_GatewayConfirms(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	o := env.order(t, item(mug.ID, 1))
	env.gateway.set(func(g *fakeGateway) { g.states = []GatewayState{GatewayPending, GatewayCompleted} })

	out, err := env.lifecycle.SelectPayment(context.Background(), o.ID, mpesa())
	require.NoError(t, err)
	assert.False(t, out.NeedsManualConfirmation)
	assert.Equal(t, model.StagePaymentCompleted, out.Order.Stage)
	assert.Equal(t, model.PaymentPaid, out.Order.PaymentStatus)
	assert.Equal(t, 2, env.stock(t, mug.ID))
}

func TestSelectPayment_GatewayFails(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	o := env.order(t, item(mug.ID, 1))
	env.gateway.set(func(g *fakeGateway) { g.states = []GatewayState{GatewayFailed} })

	out, err := env.lifecycle.SelectPayment(context.Background(), o.ID, mpesa())
	require.NoError(t, err)
	assert.Equal(t, model.StagePaymentFailed, out.Order.Stage)
	assert.Equal(t, 3, env.stock(t, mug.ID))

	// the customer may choose again after a failure
	env.gateway.set(func(g *fakeGateway) { g.states = []GatewayState{GatewayCompleted} })
	out, err = env.lifecycle.SelectPayment(context.Background(), o.ID, mpesa())
	require.NoError(t, err)
	assert.Equal(t, model.StagePaymentCompleted, out.Order.Stage)
	assert.Equal(t, 2, env.stock(t, mug.ID))
}

func TestSelectPayment_StatusErrorsCountAsSilent(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	o := env.order(t, item(mug.ID, 1))
	env.gateway.set(func(g *fakeGateway) { g.statusErr = errors.New("502 bad gateway") })

	out, err := env.lifecycle.SelectPayment(context.Background(), o.ID, mpesa())
	require.NoError(t, err)
	assert.True(t, out.NeedsManualConfirmation)
	assert.Equal(t, 2, env.gateway.checks)
}

func TestSelectPayment_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	o := env.order(t, item(mug.ID, 1))
	ctx := context.Background()

	_, err := env.lifecycle.SelectPayment(ctx, o.ID, SelectPaymentInput{Method: "card"})
	assert.True(t, errors.Is(err, ErrValidation))
	_, err = env.lifecycle.SelectPayment(ctx, o.ID, SelectPaymentInput{Method: model.PaymentMpesa, Phone: "nope"})
	assert.True(t, errors.Is(err, ErrValidation))
	_, err = env.lifecycle.SelectPayment(ctx, uuid.New(), mpesa())
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestConfirmManually_NotYetKeepsOrderOpen(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	o := env.order(t, item(mug.ID, 1))
	ctx := context.Background()

	_, err := env.lifecycle.SelectPayment(ctx, o.ID, mpesa())
	require.NoError(t, err)

	waiting, err := env.lifecycle.ConfirmManually(ctx, o.ID, false)
	require.NoError(t, err)
	assert.Equal(t, model.StagePaymentPending, waiting.Stage)
	assert.Equal(t, model.PaymentPendingConfirmation, waiting.PaymentStatus)
	assert.Equal(t, 3, env.stock(t, mug.ID))

	// re-selecting a method is allowed from pending_confirmation
	out, err := env.lifecycle.SelectPayment(ctx, o.ID, SelectPaymentInput{Method: model.PaymentCash})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCODPending, out.Order.PaymentStatus)
	assert.Equal(t, 2, env.stock(t, mug.ID))
}

func TestConfirmManually_DuplicateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	o := env.order(t, item(mug.ID, 1))
	ctx := context.Background()

	_, err := env.lifecycle.SelectPayment(ctx, o.ID, mpesa())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.lifecycle.ConfirmManually(ctx, o.ID, true)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err = env.lifecycle.ApplySettlement(ctx, o.ID, Settlement{Outcome: SettlementCompleted})
	require.NoError(t, err)

	assert.Equal(t, 2, env.stock(t, mug.ID))
	assert.Len(t, soldEntries(env.history(t, mug.ID)), 1)
}

func TestConfirmManually_RequiresPendingPayment(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	o := env.order(t, item(mug.ID, 1))

	_, err := env.lifecycle.ConfirmManually(context.Background(), o.ID, true)
	assert.True(t, errors.Is(err, ErrInvalidTransition), "got %v", err)
	_, err = env.lifecycle.ConfirmManually(context.Background(), o.ID, false)
	assert.True(t, errors.Is(err, ErrInvalidTransition), "got %v", err)
	assert.Equal(t, 3, env.stock(t, mug.ID))
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	ctx := context.Background()

	o := env.order(t, item(mug.ID, 1))
	_, err := env.lifecycle.SelectPayment(ctx, o.ID, mpesa())
	require.NoError(t, err)

	cancelled, err := env.lifecycle.Cancel(ctx, o.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, model.StageCancelled, cancelled.Stage)
	assert.Equal(t, model.OrderCancelled, cancelled.Status)
	assert.Equal(t, "changed my mind", cancelled.CancelReason)
	assert.Equal(t, 3, env.stock(t, mug.ID))

	// a late gateway confirmation cannot revive it
	_, err = env.lifecycle.ApplySettlement(ctx, o.ID, Settlement{Outcome: SettlementCompleted})
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, 3, env.stock(t, mug.ID))

	paid := env.order(t, item(mug.ID, 1))
	_, err = env.lifecycle.SelectPayment(ctx, paid.ID, SelectPaymentInput{Method: model.PaymentCash})
	require.NoError(t, err)
	_, err = env.lifecycle.Cancel(ctx, paid.ID, "")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestApplySettlement_LateConfirmationAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	o := env.order(t, item(mug.ID, 1))
	ctx := context.Background()

	_, err := env.lifecycle.SelectPayment(ctx, o.ID, mpesa())
	require.NoError(t, err)
	_, err = env.lifecycle.Expire(ctx, o.ID, "timed out")
	require.NoError(t, err)

	got, err := env.lifecycle.ApplySettlement(ctx, o.ID, Settlement{Outcome: SettlementCompleted})
	require.NoError(t, err)
	assert.Equal(t, model.StagePaymentCompleted, got.Stage)
	assert.Equal(t, 2, env.stock(t, mug.ID))
}

func TestApplySettlement_PushSettlesAfterSwitchToCash(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	o := env.order(t, item(mug.ID, 1))
	ctx := context.Background()

	out, err := env.lifecycle.SelectPayment(ctx, o.ID, mpesa())
	require.NoError(t, err)
	require.True(t, out.NeedsManualConfirmation)
	_, err = env.lifecycle.ConfirmManually(ctx, o.ID, false)
	require.NoError(t, err)
	cash, err := env.lifecycle.SelectPayment(ctx, o.ID, SelectPaymentInput{Method: model.PaymentCash})
	require.NoError(t, err)
	require.Equal(t, model.PaymentCODPending, cash.Order.PaymentStatus)

	got, err := env.lifecycle.ApplySettlement(ctx, o.ID, Settlement{Outcome: SettlementCompleted})
	require.NoError(t, err)
	assert.Equal(t, model.StagePaymentCompleted, got.Stage)
	assert.Equal(t, model.PaymentMpesa, got.PaymentMethod)
	assert.Equal(t, model.PaymentPaid, got.PaymentStatus)
	assert.Equal(t, model.OrderCompleted, got.Status)
	assert.NotNil(t, got.PaidAt)
	assert.Equal(t, 2, env.stock(t, mug.ID))
	assert.Len(t, soldEntries(env.history(t, mug.ID)), 1)

	_, err = env.lifecycle.MarkCashCollected(ctx, o.ID, "merchant-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApplySettlement_CashOrderWithoutPushUnchanged(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	o := env.order(t, item(mug.ID, 1))
	ctx := context.Background()

	_, err := env.lifecycle.SelectPayment(ctx, o.ID, SelectPaymentInput{Method: model.PaymentCash})
	require.NoError(t, err)

	got, err := env.lifecycle.ApplySettlement(ctx, o.ID, Settlement{Outcome: SettlementCompleted})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCash, got.PaymentMethod)
	assert.Equal(t, model.PaymentCODPending, got.PaymentStatus)
}

func TestCompletion_SkipsUntrackedItems(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")
	wrap, err := env.ledger.RegisterProduct(context.Background(), &model.Product{
		TenantID: testTenant, SKU: "WRAP", Name: "Gift wrap", Price: decimal.NewFromInt(1),
	}, "m")
	require.NoError(t, err)

	o := env.order(t, item(mug.ID, 1), item(wrap.ID, 1))
	out, err := env.lifecycle.SelectPayment(context.Background(), o.ID, SelectPaymentInput{Method: model.PaymentCash})
	require.NoError(t, err)
	assert.True(t, out.Order.StockDecremented)
	assert.Equal(t, 2, env.stock(t, mug.ID))
	assert.Empty(t, env.history(t, wrap.ID))
}

func TestLifecycle_PublishesOrderEvents(t *testing.T) {
	env := newTestEnv(t)
	mug := env.product(t, "MUG", 3, 0, "25.00")

	var stages []model.OrderStage
	require.NoError(t, env.bus.Subscribe(TopicOrderChanged, func(ev OrderChanged) {
		stages = append(stages, ev.Stage)
	}))

	o := env.order(t, item(mug.ID, 1))
	_, err := env.lifecycle.SelectPayment(context.Background(), o.ID, SelectPaymentInput{Method: model.PaymentCash})
	require.NoError(t, err)

	assert.Equal(t, []model.OrderStage{model.StageCreated, model.StagePaymentCompleted}, stages)
}
