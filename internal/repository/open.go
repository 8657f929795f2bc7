package repository

import (
	"go-storefront-ledger/pkg/database"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// OpenOptions selects and configures the store backend.
type OpenOptions struct {
	Driver  string
	DSN     string
	Verbose bool
	Migrate bool
	Policy  RetryPolicy
}

// Open returns the configured Store and a function releasing it.
func Open(opts OpenOptions) (Store, func(), error) {
	switch opts.Driver {
	case DriverMemory:
		zap.L().Warn("using the in-memory store; data is lost on exit")
		return NewMemoryStore(opts.Policy), func() {}, nil

	case DriverPostgres, "":
		db, err := database.ConnectDB(opts.DSN, opts.Verbose)
		if err != nil {
			return nil, nil, err
		}
		if opts.Migrate {
			if err := Migrate(db); err != nil {
				database.Close(db)
				return nil, nil, errors.Wrap(err, "migrate")
			}
		}
		return NewGormStore(db, opts.Policy), func() { database.Close(db) }, nil
	}
	return nil, nil, errors.Errorf("unknown store driver %q", opts.Driver)
}
