package service

import (
	"go-storefront-ledger/internal/repository"

	"github.com/pkg/errors"
)

var (
	ErrNotFound         = repository.ErrNotFound
	ErrStoreUnavailable = repository.ErrStoreUnavailable

	// ErrValidation is returned before any store call; the wrapped message names the field.
	ErrValidation        = errors.New("validation failed")
	ErrGatewayRejected   = errors.New("payment request rejected")
	ErrInvalidTransition = errors.New("order cannot move to the requested state")
	ErrStockNotTracked   = errors.New("product does not track stock")
	ErrInsufficientStock = errors.New("insufficient stock")
)

func validationError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrValidation, format, args...)
}
