package repository

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type gormStore struct {
	db     *gorm.DB
	policy RetryPolicy
}

// NewGormStore returns a Store backed by gorm. Products and orders carry a
// version column; every write is an UPDATE ... WHERE version = ? so a lost
// update turns into ErrConflict and the body is re-run.
func NewGormStore(db *gorm.DB, policy RetryPolicy) Store {
	return &gormStore{db: db, policy: policy}
}

func (s *gormStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	return runWithRetry(ctx, s.policy, func() error {
		// Errors raised by the body pass through untouched; anything else
		// came from begin/commit and gets classified.
		var bodyErr error
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			bodyErr = fn(&gormTx{db: tx})
			return bodyErr
		})
		if bodyErr != nil {
			return bodyErr
		}
		return translateError("commit", err)
	})
}

type gormTx struct {
	db *gorm.DB
}

// translateError maps driver errors onto the repository taxonomy. Raw errors
// are logged here and never returned verbatim.
func translateError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	case isConflict(err):
		return ErrConflict
	}
	zap.L().Error("store operation failed", zap.String("op", op), zap.Error(err))
	return errors.Wrap(ErrStoreUnavailable, op)
}
