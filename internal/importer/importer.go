package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
}

// CacheInvalidator drops a product from a read cache after it changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, id int64) error
}

type Option func(*CSVImporter)

// WithCacheInvalidator evicts every imported product from inv.
func WithCacheInvalidator(inv CacheInvalidator) Option {
	return func(i *CSVImporter) { i.invalidator = inv }
}

// CSVImporter reads catalog CSV files and inserts/updates products and
// their sales. Expected columns: id,title,price,sale.name,sale.percent,
// sale.from,sale.to. Only title and price are required.
type CSVImporter struct {
	reader      *csv.Reader
	productRepo ProductWriter
	logger      *zap.Logger
	invalidator CacheInvalidator
	sales       map[string]*domain.Sale
}

func NewCSVImporter(r io.Reader, repo ProductWriter, logger *zap.Logger, opts ...Option) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	if logger == nil {
		logger = zap.NewNop()
	}
	imp := &CSVImporter{
		reader:      csvr,
		productRepo: repo,
		logger:      logger,
		sales:       make(map[string]*domain.Sale),
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

type csvRow struct {
	Line  int
	ID    int64
	Title string
	Price decimal.Decimal
	Sale  *domain.Sale
}

// Run parses CSV rows and upserts one product per row.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	for _, required := range []string{"title", "price"} {
		if _, ok := index[required]; !ok {
			return 0, fmt.Errorf("missing %q column", required)
		}
	}

	imported := 0
	for line := 2; ; line++ {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}

		row, err := parseRow(record, index)
		if err != nil {
			return imported, fmt.Errorf("line %d: %w", line, err)
		}
		if row == nil {
			continue
		}
		row.Line = line
		if err := i.save(ctx, row); err != nil {
			return imported, err
		}
		imported++
	}

	return imported, nil
}

func (i *CSVImporter) save(ctx context.Context, row *csvRow) error {
	p := domain.Product{
		ID:    row.ID,
		Title: row.Title,
		Price: row.Price,
	}
	if row.Sale != nil {
		sale, err := i.sale(ctx, *row.Sale)
		if err != nil {
			return fmt.Errorf("line %d: upsert sale %q: %w", row.Line, row.Sale.Name, err)
		}
		p.Sale = sale
	}

	saved, err := i.productRepo.Upsert(ctx, p)
	if err != nil {
		return fmt.Errorf("line %d: upsert product %q: %w", row.Line, row.Title, err)
	}
	i.logger.Debug("imported product", zap.Int64("id", saved.ID), zap.String("title", saved.Title))
	if i.invalidator != nil {
		if err := i.invalidator.Invalidate(ctx, saved.ID); err != nil {
			i.logger.Warn("evict cached product failed", zap.Int64("id", saved.ID), zap.Error(err))
		}
	}
	return nil
}

// sale upserts each distinct sale once per run.
func (i *CSVImporter) sale(ctx context.Context, s domain.Sale) (*domain.Sale, error) {
	if cached, ok := i.sales[s.Name]; ok {
		return cached, nil
	}
	saved, err := i.productRepo.UpsertSale(ctx, s)
	if err != nil {
		return nil, err
	}
	i.sales[s.Name] = saved
	return saved, nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

// parseRow returns nil for blank rows.
func parseRow(record []string, index map[string]int) (*csvRow, error) {
	idStr := pick(record, index, "id")
	title := pick(record, index, "title")
	priceStr := pick(record, index, "price")

	if idStr == "" && title == "" && priceStr == "" {
		return nil, nil
	}
	if title == "" || priceStr == "" {
		return nil, errors.New("title and price are required")
	}

	row := &csvRow{Title: title}
	if idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", idStr)
		}
		row.ID = id
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil || price.IsNegative() {
		return nil, fmt.Errorf("invalid price %q", priceStr)
	}
	row.Price = price

	sale, err := parseSale(record, index)
	if err != nil {
		return nil, err
	}
	row.Sale = sale
	return row, nil
}

func parseSale(record []string, index map[string]int) (*domain.Sale, error) {
	name := pick(record, index, "sale.name")
	if name == "" {
		return nil, nil
	}
	pct, err := decimal.NewFromString(pick(record, index, "sale.percent"))
	if err != nil || pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("invalid sale percent for %q", name)
	}
	s := &domain.Sale{Name: name, Percent: pct}
	if s.DateFrom, err = parseDate(pick(record, index, "sale.from")); err != nil {
		return nil, fmt.Errorf("sale %q: %w", name, err)
	}
	if s.DateTo, err = parseDate(pick(record, index, "sale.to")); err != nil {
		return nil, fmt.Errorf("sale %q: %w", name, err)
	}
	return s, nil
}

// parseDate accepts RFC 3339 timestamps or plain dates. Empty yields the
// zero time, which the repository replaces with its default window.
func parseDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", v)
	}
	return t, nil
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
