package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CountLine is one row of a physical stock count sheet.
type CountLine struct {
	SKU     string `csv:"sku"`
	Counted int    `csv:"counted"`
}

type CountResult struct {
	SKU      string `json:"sku"`
	Previous int    `json:"previous"`
	Counted  int    `json:"counted"`
	Skipped  string `json:"skipped,omitempty"`
}

// Delta is the correction the count applied.
func (r CountResult) Delta() int {
	return r.Counted - r.Previous
}

// ApplyStockCount sets every counted product of the tenant to its counted
// quantity through the ledger. SKUs match exactly, as the catalogue index does. Unknown and untracked SKUs are reported and
// skipped; with dryRun nothing is written.
func ApplyStockCount(ctx context.Context, ledger StockLedger, tenantID string, lines []CountLine, actor string, dryRun bool) ([]CountResult, error) {
	products, err := ledger.ListProducts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	bySKU := make(map[string]int, len(products))
	for i := range products {
		bySKU[products[i].SKU] = i
	}

	results := make([]CountResult, 0, len(lines))
	for _, line := range lines {
		res := CountResult{SKU: line.SKU, Counted: line.Counted}
		idx, ok := bySKU[strings.TrimSpace(line.SKU)]
		switch {
		case line.Counted < 0:
			res.Skipped = "negative count"
		case !ok:
			res.Skipped = "unknown sku"
		case !products[idx].TrackStock:
			res.Skipped = "stock not tracked"
		}
		if res.Skipped != "" {
			results = append(results, res)
			continue
		}

		p := products[idx]
		res.Previous = p.StockQuantity
		if !dryRun && res.Delta() != 0 {
			entry, err := ledger.SetStock(ctx, p.ID, line.Counted, "stock count", actor)
			if err != nil {
				return results, errors.Wrapf(err, "set %s", p.SKU)
			}
			res.Previous = entry.Transaction.PreviousStock
		}
		results = append(results, res)
	}

	zap.L().Info("stock count applied",
		zap.String("tenant", tenantID),
		zap.Int("lines", len(lines)),
		zap.Bool("dry_run", dryRun),
	)
	return results, nil
}
