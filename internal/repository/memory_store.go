package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"go-storefront-ledger/internal/model"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store with the same optimistic semantics as
// the gorm one: bodies run against private working copies and commit only if
// every document they touched still has the version they saw.
type MemoryStore struct {
	mu           sync.Mutex
	products     map[uuid.UUID]model.Product
	productOrder []uuid.UUID
	orders       map[uuid.UUID]model.Order
	transactions []model.StockTransaction
	policy       RetryPolicy
	beforeCommit func()
}

func NewMemoryStore(policy RetryPolicy) *MemoryStore {
	return &MemoryStore{
		products: make(map[uuid.UUID]model.Product),
		orders:   make(map[uuid.UUID]model.Order),
		policy:   policy,
	}
}

// SetBeforeCommit installs a hook run between a body and its commit. Tests
// use it to interleave a competing writer.
func (s *MemoryStore) SetBeforeCommit(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeCommit = hook
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	return runWithRetry(ctx, s.policy, func() error {
		tx := newMemTx(s)
		if err := fn(tx); err != nil {
			return err
		}

		s.mu.Lock()
		hook := s.beforeCommit
		s.mu.Unlock()
		if hook != nil {
			hook()
		}

		return s.commit(tx)
	})
}

func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, seen := range tx.productSeen {
		current, ok := s.products[id]
		if !ok {
			return ErrConflict
		}
		if current.Version != seen {
			return ErrConflict
		}
	}
	for id := range tx.newProducts {
		if _, ok := s.products[id]; ok {
			return ErrDuplicate
		}
		if s.hasSKU(tx.products[id]) {
			return ErrDuplicate
		}
	}
	for id, seen := range tx.orderSeen {
		current, ok := s.orders[id]
		if !ok || current.Version != seen {
			return ErrConflict
		}
	}
	for id := range tx.newOrders {
		if _, ok := s.orders[id]; ok {
			return ErrDuplicate
		}
	}
	for _, st := range tx.appended {
		if st.Type == model.TxSold && s.hasSale(st) {
			return ErrDuplicate
		}
	}

	now := time.Now()
	for id, p := range tx.products {
		p.UpdatedAt = now
		if tx.newProducts[id] {
			p.CreatedAt = now
			s.productOrder = append(s.productOrder, id)
		}
		s.products[id] = *p
	}
	for id, o := range tx.orders {
		o.UpdatedAt = now
		if tx.newOrders[id] {
			o.CreatedAt = now
		}
		s.orders[id] = copyOrder(o)
	}
	s.transactions = append(s.transactions, tx.appended...)
	return nil
}

func (s *MemoryStore) hasSKU(p *model.Product) bool {
	for _, existing := range s.products {
		if existing.TenantID == p.TenantID && existing.SKU == p.SKU {
			return true
		}
	}
	return false
}

func (s *MemoryStore) hasSale(st model.StockTransaction) bool {
	for _, existing := range s.transactions {
		if existing.Type == model.TxSold && existing.ProductID == st.ProductID &&
			existing.OrderID != nil && st.OrderID != nil && *existing.OrderID == *st.OrderID {
			return true
		}
	}
	return false
}

func (s *MemoryStore) FindProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListProducts(ctx context.Context, tenantID string) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var products []model.Product
	for _, id := range s.productOrder {
		if p := s.products[id]; p.TenantID == tenantID {
			products = append(products, p)
		}
	}
	return products, nil
}

func (s *MemoryStore) ListStockTransactions(ctx context.Context, productID uuid.UUID) ([]model.StockTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var history []model.StockTransaction
	for _, st := range s.transactions {
		if st.ProductID == productID {
			history = append(history, st)
		}
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Sequence > history[j].Sequence
	})
	return history, nil
}

func (s *MemoryStore) FindOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := copyOrder(&o)
	return &c, nil
}

func (s *MemoryStore) ListAwaitingPayment(ctx context.Context, requestedBefore time.Time, limit int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var orders []model.Order
	for _, o := range s.orders {
		if o.Stage != model.StagePaymentPending || o.PaymentRequestedAt == nil {
			continue
		}
		if o.PaymentRequestedAt.Before(requestedBefore) {
			orders = append(orders, copyOrder(&o))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].PaymentRequestedAt.Before(*orders[j].PaymentRequestedAt)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

func copyOrder(o *model.Order) model.Order {
	c := *o
	c.Items = append([]model.OrderItem(nil), o.Items...)
	return c
}

// memTx buffers writes until commit. productSeen/orderSeen hold the version
// each touched document had when this body first saw it.
type memTx struct {
	store       *MemoryStore
	products    map[uuid.UUID]*model.Product
	productSeen map[uuid.UUID]int64
	newProducts map[uuid.UUID]bool
	orders      map[uuid.UUID]*model.Order
	orderSeen   map[uuid.UUID]int64
	newOrders   map[uuid.UUID]bool
	appended    []model.StockTransaction
}

func newMemTx(s *MemoryStore) *memTx {
	return &memTx{
		store:       s,
		products:    make(map[uuid.UUID]*model.Product),
		productSeen: make(map[uuid.UUID]int64),
		newProducts: make(map[uuid.UUID]bool),
		orders:      make(map[uuid.UUID]*model.Order),
		orderSeen:   make(map[uuid.UUID]int64),
		newOrders:   make(map[uuid.UUID]bool),
	}
}

func (t *memTx) GetProduct(id uuid.UUID) (*model.Product, error) {
	if p, ok := t.products[id]; ok {
		c := *p
		return &c, nil
	}
	t.store.mu.Lock()
	p, ok := t.store.products[id]
	t.store.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	if _, seen := t.productSeen[id]; !seen {
		t.productSeen[id] = p.Version
	}
	return &p, nil
}

func (t *memTx) CreateProduct(p *model.Product) error {
	p.EnsureID()
	if _, ok := t.products[p.ID]; ok {
		return ErrDuplicate
	}
	c := *p
	t.products[p.ID] = &c
	t.newProducts[p.ID] = true
	return nil
}

func (t *memTx) UpdateProduct(p *model.Product) error {
	if working, ok := t.products[p.ID]; ok {
		if working.Version != p.Version {
			return ErrConflict
		}
	} else if _, seen := t.productSeen[p.ID]; !seen {
		t.productSeen[p.ID] = p.Version
	} else if t.productSeen[p.ID] != p.Version {
		return ErrConflict
	}
	p.Version++
	c := *p
	t.products[p.ID] = &c
	return nil
}

func (t *memTx) AppendStockTransaction(st *model.StockTransaction) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	t.appended = append(t.appended, *st)
	return nil
}

func (t *memTx) GetOrder(id uuid.UUID) (*model.Order, error) {
	if o, ok := t.orders[id]; ok {
		c := copyOrder(o)
		return &c, nil
	}
	t.store.mu.Lock()
	o, ok := t.store.orders[id]
	t.store.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	if _, seen := t.orderSeen[id]; !seen {
		t.orderSeen[id] = o.Version
	}
	c := copyOrder(&o)
	return &c, nil
}

func (t *memTx) CreateOrder(o *model.Order) error {
	o.EnsureID()
	if _, ok := t.orders[o.ID]; ok {
		return ErrDuplicate
	}
	for i := range o.Items {
		if o.Items[i].ID == uuid.Nil {
			o.Items[i].ID = uuid.New()
		}
		o.Items[i].OrderID = o.ID
	}
	c := copyOrder(o)
	t.orders[o.ID] = &c
	t.newOrders[o.ID] = true
	return nil
}

func (t *memTx) UpdateOrder(o *model.Order) error {
	if working, ok := t.orders[o.ID]; ok {
		if working.Version != o.Version {
			return ErrConflict
		}
	} else if _, seen := t.orderSeen[o.ID]; !seen {
		t.orderSeen[o.ID] = o.Version
	} else if t.orderSeen[o.ID] != o.Version {
		return ErrConflict
	}
	o.Version++
	c := copyOrder(o)
	t.orders[o.ID] = &c
	return nil
}
