package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go-storefront-ledger/internal/model"
	"go-storefront-ledger/internal/repository"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testTenant = "tenant-1"

type fakeGateway struct {
	mu        sync.Mutex
	accept    bool
	message   string
	pushErr   error
	states    []GatewayState
	statusErr error
	pushes    []PushRequest
	checks    int
}

func (g *fakeGateway) InitiatePushPayment(ctx context.Context, req PushRequest) (*PushResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushes = append(g.pushes, req)
	if g.pushErr != nil {
		return nil, g.pushErr
	}
	if !g.accept {
		return &PushResult{Accepted: false, Message: g.message}, nil
	}
	return &PushResult{
		Accepted:         true,
		GatewayReference: "ws_CO_" + req.Reference,
		Instructions:     "Enter your M-Pesa PIN on your phone",
		Message:          g.message,
	}, nil
}

func (g *fakeGateway) CheckStatus(ctx context.Context, ref string) (GatewayState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checks++
	if g.statusErr != nil {
		return "", g.statusErr
	}
	if len(g.states) == 0 {
		return GatewayPending, nil
	}
	state := g.states[0]
	if len(g.states) > 1 {
		g.states = g.states[1:]
	}
	return state, nil
}

func (g *fakeGateway) set(fn func(g *fakeGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

type testEnv struct {
	store      *repository.MemoryStore
	bus        EventBus.Bus
	ledger     StockLedger
	gateway    *fakeGateway
	reconciler PaymentReconciler
	lifecycle  OrderLifecycle
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env, err := buildEnv()
	require.NoError(t, err)
	return env
}

func buildEnv() (*testEnv, error) {
	store := repository.NewMemoryStore(repository.RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	})
	bus := EventBus.New()
	events := NewEvents(bus)
	gateway := &fakeGateway{accept: true}
	numbers, err := NewOrderNumbers(1)
	if err != nil {
		return nil, err
	}

	ledger := NewStockLedger(store, events)
	reconciler := NewPaymentReconciler(gateway, NewPollingWatcher(gateway, 2, time.Millisecond))
	return &testEnv{
		store:      store,
		bus:        bus,
		ledger:     ledger,
		gateway:    gateway,
		reconciler: reconciler,
		lifecycle:  NewOrderLifecycle(store, ledger, reconciler, numbers, events),
	}, nil
}

func (e *testEnv) product(t *testing.T, sku string, qty, minLevel int, price string) *model.Product {
	t.Helper()
	p, err := e.ledger.RegisterProduct(context.Background(), &model.Product{
		TenantID:      testTenant,
		SKU:           sku,
		Name:          "Product " + sku,
		Price:         decimal.RequireFromString(price),
		StockQuantity: qty,
		MinStockLevel: minLevel,
		TrackStock:    true,
	}, "merchant-1")
	require.NoError(t, err)
	return p
}

func (e *testEnv) order(t *testing.T, items ...OrderItemInput) *model.Order {
	t.Helper()
	o, err := e.lifecycle.Create(context.Background(), CreateOrderInput{
		TenantID:    testTenant,
		Customer:    model.CustomerInfo{Name: "Akinyi Otieno", Phone: "0712345678"},
		Items:       items,
		DeliveryFee: decimal.RequireFromString("5.00"),
	})
	require.NoError(t, err)
	return o
}

func (e *testEnv) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := e.store.FindProduct(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func (e *testEnv) history(t *testing.T, id uuid.UUID) []model.StockTransaction {
	t.Helper()
	h, err := e.ledger.GetHistory(context.Background(), id)
	require.NoError(t, err)
	return h
}

func soldEntries(history []model.StockTransaction) []model.StockTransaction {
	var sold []model.StockTransaction
	for _, st := range history {
		if st.Type == model.TxSold {
			sold = append(sold, st)
		}
	}
	return sold
}

func item(id uuid.UUID, qty int) OrderItemInput {
	return OrderItemInput{ProductID: id, Quantity: qty}
}
