package service

import (
	"testing"

	"go-storefront-ledger/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		qty, min   int
		backorders bool
		want       model.StockStatus
	}{
		{0, 5, false, model.StockOutOfStock},
		{0, 5, true, model.StockOutOfStock},
		{0, 0, false, model.StockOutOfStock},
		{3, 5, false, model.StockLowStock},
		{5, 5, false, model.StockLowStock},
		{6, 5, false, model.StockInStock},
		{10, 5, false, model.StockInStock},
		{1, 0, false, model.StockInStock},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.qty, tc.min, tc.backorders), "Classify(%d, %d, %v)", tc.qty, tc.min, tc.backorders)
	}
}

func TestIsAvailable(t *testing.T) {
	assert.True(t, IsAvailable(&model.Product{TrackStock: false, StockQuantity: 0}, 100))
	assert.True(t, IsAvailable(&model.Product{TrackStock: true, StockQuantity: 0, AllowBackorders: true}, 1))
	assert.False(t, IsAvailable(&model.Product{TrackStock: true, StockQuantity: 0}, 1))
	assert.True(t, IsAvailable(&model.Product{TrackStock: true, StockQuantity: 3}, 3))
	assert.False(t, IsAvailable(&model.Product{TrackStock: true, StockQuantity: 2}, 3))
	// backorders only cover an empty shelf
	assert.False(t, IsAvailable(&model.Product{TrackStock: true, StockQuantity: 2, AllowBackorders: true}, 3))
}
