// Command stock-count applies a physical stock count sheet (CSV with sku and
// counted columns) to one tenant's catalogue through the stock ledger.
package main

import (
	"context"
	"os"
	"time"

	"go-storefront-ledger/internal/config"
	"go-storefront-ledger/internal/repository"
	"go-storefront-ledger/internal/service"
	"go-storefront-ledger/pkg/logger"

	"github.com/gocarina/gocsv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup runs before exit.
func run() int {
	file := pflag.StringP("file", "f", "", "count sheet (CSV with sku,counted)")
	tenant := pflag.StringP("tenant", "t", "", "tenant whose catalogue was counted")
	actor := pflag.String("actor", "stock-count", "name recorded on the ledger entries")
	dryRun := pflag.Bool("dry-run", false, "report the corrections without writing them")
	pflag.Parse()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log := logger.Init(logger.Options{})
		log.Error("invalid configuration", zap.Error(err))
		_ = log.Sync()
		return 1
	}
	log := logger.Init(logger.Options{Mode: cfg.Log.Mode, File: cfg.Log.File})
	defer log.Sync()

	if *file == "" || *tenant == "" {
		pflag.Usage()
		return 2
	}

	// 2. Read the count sheet
	f, err := os.Open(*file)
	if err != nil {
		log.Error("cannot open count sheet", zap.Error(err))
		return 1
	}
	defer f.Close()

	var lines []service.CountLine
	if err := gocsv.UnmarshalFile(f, &lines); err != nil {
		log.Error("cannot parse count sheet", zap.Error(err))
		return 1
	}

	// 3. Setup store
	store, closeStore, err := repository.Open(repository.OpenOptions{
		Driver: cfg.StoreDriver,
		DSN:    cfg.Database.DSN(),
		Policy: repository.RetryPolicy{
			MaxAttempts: cfg.TxMaxAttempts,
			BaseDelay:   10 * time.Millisecond,
			MaxDelay:    200 * time.Millisecond,
		},
	})
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		return 1
	}
	defer closeStore()

	// 4. Apply
	ledger := service.NewStockLedger(store, nil)
	results, err := service.ApplyStockCount(context.Background(), ledger, *tenant, lines, *actor, *dryRun)
	for _, r := range results {
		if r.Skipped != "" {
			log.Warn("skipped", zap.String("sku", r.SKU), zap.String("reason", r.Skipped))
			continue
		}
		log.Info("counted",
			zap.String("sku", r.SKU),
			zap.Int("previous", r.Previous),
			zap.Int("counted", r.Counted),
			zap.Int("delta", r.Delta()),
		)
	}
	if err != nil {
		log.Error("stock count aborted", zap.Error(err))
		return 1
	}
	log.Info("stock count finished", zap.Int("lines", len(results)), zap.Bool("dry_run", *dryRun))
	return 0
}
