package repository

import (
	"context"

	"go-storefront-ledger/internal/model"

	"github.com/google/uuid"
)

func (s *gormStore) ListStockTransactions(ctx context.Context, productID uuid.UUID) ([]model.StockTransaction, error) {
	var transactions []model.StockTransaction
	err := s.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("sequence DESC").
		Find(&transactions).Error
	if err != nil {
		return nil, translateError("list stock transactions", err)
	}
	return transactions, nil
}

// AppendStockTransaction inserts a ledger entry inside the running transaction.
// The unique (order_id, product_id) index on sold rows turns a second sale for
// the same order into ErrDuplicate.
func (t *gormTx) AppendStockTransaction(st *model.StockTransaction) error {
	if st.ID == uuid.Nil {
		st.ID = uuid.New()
	}
	return translateError("append stock transaction", t.db.Create(st).Error)
}
