package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go-storefront-ledger/internal/model"
	"go-storefront-ledger/internal/repository"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/gocarina/gocsv"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Statistics struct {
	TotalProducts     int             `json:"total_products"`
	InStock           int             `json:"in_stock"`
	LowStock          int             `json:"low_stock"`
	OutOfStock        int             `json:"out_of_stock"`
	TotalStockValue   decimal.Decimal `json:"total_stock_value"`
	AverageStockLevel float64         `json:"average_stock_level"`
}

type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// ParseExportFormat defaults to CSV.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportXLSX:
		return ExportXLSX, nil
	}
	return "", validationError("unsupported export format %q", s)
}

func (f ExportFormat) ContentType() string {
	if f == ExportXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// ExportRow is one product line of the stock report.
type ExportRow struct {
	SKU        string `csv:"sku"`
	Name       string `csv:"name"`
	Category   string `csv:"category"`
	Current    int    `csv:"current_stock"`
	Min        int    `csv:"min_stock_level"`
	Max        int    `csv:"max_stock_level"`
	Status     string `csv:"status"`
	Price      string `csv:"price"`
	StockValue string `csv:"stock_value"`
}

var exportHeader = []string{"SKU", "Name", "Category", "Current Stock", "Min Level", "Max Level", "Status", "Price", "Stock Value"}

func (r ExportRow) cells() []interface{} {
	return []interface{}{r.SKU, r.Name, r.Category, r.Current, r.Min, r.Max, r.Status, r.Price, r.StockValue}
}

// StockAggregator answers read-only questions over a tenant's catalogue.
// Reads are not transactional; a slightly stale view is fine here.
type StockAggregator interface {
	GetStatistics(ctx context.Context, tenantID string) (*Statistics, error)
	LowStockProducts(ctx context.Context, tenantID string) ([]model.Product, error)
	Export(ctx context.Context, tenantID string, format ExportFormat, w io.Writer) error
}

type stockAggregator struct {
	store repository.Store
}

func NewStockAggregator(store repository.Store) StockAggregator {
	return &stockAggregator{store: store}
}

func (a *stockAggregator) GetStatistics(ctx context.Context, tenantID string) (*Statistics, error) {
	products, err := a.store.ListProducts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return summarize(products), nil
}

func summarize(products []model.Product) *Statistics {
	s := &Statistics{TotalProducts: len(products), TotalStockValue: decimal.Zero}
	var levels stats.Float64Data
	for i := range products {
		p := &products[i]
		if !p.TrackStock {
			continue
		}
		switch Classify(p.StockQuantity, p.MinStockLevel, p.AllowBackorders) {
		case model.StockInStock:
			s.InStock++
		case model.StockLowStock:
			s.LowStock++
		case model.StockOutOfStock:
			s.OutOfStock++
		}
		s.TotalStockValue = s.TotalStockValue.Add(p.StockValue())
		levels = append(levels, float64(p.StockQuantity))
	}
	if len(levels) > 0 {
		s.AverageStockLevel, _ = stats.Mean(levels)
	}
	return s
}

func (a *stockAggregator) LowStockProducts(ctx context.Context, tenantID string) ([]model.Product, error) {
	products, err := a.store.ListProducts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	low := make([]model.Product, 0)
	for _, p := range products {
		if !p.TrackStock {
			continue
		}
		if Classify(p.StockQuantity, p.MinStockLevel, p.AllowBackorders) != model.StockInStock {
			low = append(low, p)
		}
	}
	return low, nil
}

func (a *stockAggregator) Export(ctx context.Context, tenantID string, format ExportFormat, w io.Writer) error {
	products, err := a.store.ListProducts(ctx, tenantID)
	if err != nil {
		return err
	}
	rows := make([]*ExportRow, 0, len(products))
	for i := range products {
		rows = append(rows, toExportRow(&products[i]))
	}

	switch format {
	case ExportXLSX:
		return writeXLSX(rows, w)
	case ExportCSV, "":
		return errors.Wrap(gocsv.Marshal(rows, w), "write csv")
	}
	return validationError("unsupported export format %q", format)
}

func toExportRow(p *model.Product) *ExportRow {
	status := string(Classify(p.StockQuantity, p.MinStockLevel, p.AllowBackorders))
	if !p.TrackStock {
		status = "untracked"
	}
	return &ExportRow{
		SKU:        p.SKU,
		Name:       p.Name,
		Category:   p.Category,
		Current:    p.StockQuantity,
		Min:        p.MinStockLevel,
		Max:        p.MaxStockLevel,
		Status:     status,
		Price:      p.Price.StringFixed(2),
		StockValue: p.StockValue().StringFixed(2),
	}
}

const exportSheet = "Sheet1"

func writeXLSX(rows []*ExportRow, w io.Writer) error {
	f := excelize.NewFile()
	for col, title := range exportHeader {
		f.SetCellValue(exportSheet, cellName(col, 1), title)
	}
	for i, row := range rows {
		for col, v := range row.cells() {
			f.SetCellValue(exportSheet, cellName(col, i+2), v)
		}
	}
	return errors.Wrap(f.Write(w), "write xlsx")
}

// cellName turns a zero-based column and one-based row into "A1" notation.
func cellName(col, row int) string {
	name := ""
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		name = string(rune('A'+(n-1)%26)) + name
	}
	return fmt.Sprintf("%s%d", name, row)
}
