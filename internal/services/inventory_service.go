// Package services – InventoryService
//
// This file implements the three inventory operations the agent can invoke:
// batch ingestion, sale execution and time-windowed sales reports. Partial
// failures are reported per line and never abort the whole call. Quantity
// changes go through the conditional repo statements, so concurrent turns
// cannot oversell an entry.
//
// Observability: all public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-inventory-bot/internal/domain"
	"github.com/tbourn/go-inventory-bot/internal/repo"
	"github.com/tbourn/go-inventory-bot/internal/search"
	"github.com/tbourn/go-inventory-bot/internal/utils"
)

// BatchItem is one product line of an ingestion batch.
type BatchItem struct {
	Name        string   `json:"name"`
	Brand       string   `json:"brand"`
	Category    string   `json:"category"`
	Amount      string   `json:"amount"`
	BuyingPrice *float64 `json:"buying_price"`
	Quantity    int      `json:"quantity"`
}

// BatchResult summarizes an ingestion. StatusCode is 201 when at least one
// line was stored, 500 when every valid line failed to store, 400 otherwise.
// Failed lists valid lines the store rejected; they were not stored.
type BatchResult struct {
	StatusCode int      `json:"status_code"`
	Processed  int      `json:"processed"`
	Skipped    []string `json:"skipped,omitempty"`
	Failed     []string `json:"failed,omitempty"`
	Message    string   `json:"message"`
}

// SaleLine is one product descriptor of a sale request.
type SaleLine struct {
	Name     string
	Brand    string
	Category string
	Unit     string
	Quantity int
}

// SaleOutcome classifies a sale line.
type SaleOutcome string

const (
	OutcomeSold              SaleOutcome = "sold"
	OutcomeInvalid           SaleOutcome = "invalid"
	OutcomeNotFound          SaleOutcome = "not_found"
	OutcomeBrandMismatch     SaleOutcome = "brand_mismatch"
	OutcomeInsufficientStock SaleOutcome = "insufficient_stock"
	// OutcomeError marks a line the store failed to record. Nothing was
	// sold for it.
	OutcomeError SaleOutcome = "error"
)

// SaleLineResult is the per-line result of ExecuteSale.
type SaleLineResult struct {
	Line      int         `json:"line"`
	Outcome   SaleOutcome `json:"outcome"`
	Message   string      `json:"message"`
	ProductID string      `json:"product_id,omitempty"`
	Remaining *int        `json:"remaining,omitempty"`
	Err       error       `json:"-"`
}

// SaleResult is the composite result of ExecuteSale. StatusCode is 201 when
// at least one line sold, 500 when no line sold and a line hit a storage
// error, 400 otherwise.
type SaleResult struct {
	StatusCode int              `json:"status_code"`
	Lines      []SaleLineResult `json:"lines"`
	Message    string           `json:"message"`
}

// ReportKind distinguishes an empty window from a computed report.
type ReportKind string

const (
	ReportNoSales ReportKind = "no_sales"
	ReportSales   ReportKind = "report"
)

// SalesReport aggregates the transactions of a window [From, To].
type SalesReport struct {
	Kind      ReportKind      `json:"kind"`
	Timeframe string          `json:"timeframe"`
	Units     int             `json:"units"`
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	UnitsSold int             `json:"units_sold"`
	Revenue   decimal.Decimal `json:"revenue"`
	Profit    decimal.Decimal `json:"profit"`
}

// Report window units. Months are fixed 30-day windows.
const (
	TimeframeDays   = "days"
	TimeframeWeeks  = "weeks"
	TimeframeMonths = "months"
)

// TimeframeLength returns the length of one unit of the named timeframe.
func TimeframeLength(unit string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case TimeframeDays:
		return 24 * time.Hour, nil
	case TimeframeWeeks:
		return 7 * 24 * time.Hour, nil
	case TimeframeMonths:
		return 30 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("%w: unit %q (use days, weeks or months)", ErrInvalidTimeframe, unit)
}

// InventoryService executes inventory operations against the ledger store.
type InventoryService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Matcher resolves sale descriptors. A default matcher is used when nil.
	Matcher *search.Matcher
	// Now returns the current time; time.Now when nil.
	Now func() time.Time
}

func (s *InventoryService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *InventoryService) matcher() *search.Matcher {
	if s.Matcher != nil {
		return s.Matcher
	}
	return search.NewMatcher()
}

// IngestBatch stores every valid item, adding to existing stock of the same
// (name, brand, amount) product. Items missing a name, amount or buying price,
// or with a non-positive quantity, are skipped individually.
func (s *InventoryService) IngestBatch(ctx context.Context, userID string, items []BatchItem) (*BatchResult, error) {
	tr := otel.Tracer("services/InventoryService")
	ctx, span := tr.Start(ctx, "IngestBatch",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("items", len(items)),
		),
	)
	defer span.End()

	if len(items) == 0 {
		return &BatchResult{StatusCode: http.StatusBadRequest, Message: "Products must be provided."}, nil
	}

	res := &BatchResult{}
	for i, it := range items {
		if reason := validateBatchItem(it); reason != "" {
			res.Skipped = append(res.Skipped, fmt.Sprintf("line %d: %s", i+1, reason))
			continue
		}
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			p, err := repo.GetOrCreateProduct(ctx, tx,
				userID,
				strings.TrimSpace(it.Name),
				strings.TrimSpace(it.Brand),
				strings.TrimSpace(it.Amount),
				domain.CanonicalCategory(it.Category),
			)
			if err != nil {
				return err
			}
			_, err = repo.AddStock(ctx, tx, userID, p.ID, it.Quantity, *it.BuyingPrice)
			return err
		})
		if err != nil {
			span.RecordError(err)
			log.Error().Err(err).Str("user_id", userID).Int("line", i+1).Msg("ingest line failed")
			res.Failed = append(res.Failed, fmt.Sprintf("line %d: could not be stored", i+1))
			continue
		}
		res.Processed++
	}

	span.SetAttributes(attribute.Int("processed", res.Processed), attribute.Int("failed", len(res.Failed)))
	switch {
	case res.Processed > 0:
		res.StatusCode = http.StatusCreated
		res.Message = fmt.Sprintf("Batch processed: %d stored, %d skipped, %d failed.", res.Processed, len(res.Skipped), len(res.Failed))
	case len(res.Failed) > 0:
		res.StatusCode = http.StatusInternalServerError
		res.Message = "Batch could not be stored. Nothing was added."
	default:
		res.StatusCode = http.StatusBadRequest
		res.Message = "No valid products in batch."
	}
	return res, nil
}

func validateBatchItem(it BatchItem) string {
	var missing []string
	if strings.TrimSpace(it.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(it.Amount) == "" {
		missing = append(missing, "amount")
	}
	if it.BuyingPrice == nil {
		missing = append(missing, "buying_price")
	}
	if len(missing) > 0 {
		return "missing " + strings.Join(missing, ", ")
	}
	if *it.BuyingPrice < 0 {
		return "buying_price must be >= 0"
	}
	if it.Quantity <= 0 {
		return "quantity must be > 0"
	}
	return ""
}

// ExecuteSale sells each line at unitPrice. Lines are matched only against
// the user's entries in the line's category; every line is attempted even
// when earlier ones fail.
func (s *InventoryService) ExecuteSale(ctx context.Context, userID string, lines []SaleLine, unitPrice float64) (*SaleResult, error) {
	tr := otel.Tracer("services/InventoryService")
	ctx, span := tr.Start(ctx, "ExecuteSale",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("lines", len(lines)),
		),
	)
	defer span.End()

	if len(lines) == 0 {
		return &SaleResult{StatusCode: http.StatusBadRequest, Message: "Products must be provided."}, nil
	}
	if unitPrice < 0 {
		return &SaleResult{StatusCode: http.StatusBadRequest, Message: "selling_price must be >= 0."}, nil
	}

	res := &SaleResult{StatusCode: http.StatusBadRequest}
	msgs := make([]string, 0, len(lines))
	sold, failed := false, false
	for i, ln := range lines {
		lr, err := s.sellLine(ctx, userID, ln, unitPrice)
		if err != nil {
			span.RecordError(err)
			log.Error().Err(err).Str("user_id", userID).Int("line", i+1).Msg("sale line failed")
			lr = SaleLineResult{
				Outcome: OutcomeError,
				Message: "Could not record this sale. Nothing was sold for this line.",
				Err:     err,
			}
		}
		lr.Line = i + 1
		sold = sold || lr.Outcome == OutcomeSold
		failed = failed || lr.Outcome == OutcomeError
		res.Lines = append(res.Lines, lr)
		msgs = append(msgs, fmt.Sprintf("%d. %s", lr.Line, lr.Message))
	}
	switch {
	case sold:
		res.StatusCode = http.StatusCreated
	case failed:
		res.StatusCode = http.StatusInternalServerError
	}
	res.Message = strings.Join(msgs, "\n")
	return res, nil
}

// sellLine resolves and sells one line. Domain failures are returned as a
// line outcome; only storage failures are returned as errors.
func (s *InventoryService) sellLine(ctx context.Context, userID string, ln SaleLine, unitPrice float64) (SaleLineResult, error) {
	name := strings.TrimSpace(ln.Name)
	unit := strings.TrimSpace(ln.Unit)
	if name == "" || unit == "" || strings.TrimSpace(ln.Category) == "" || ln.Quantity <= 0 {
		return SaleLineResult{
			Outcome: OutcomeInvalid,
			Message: "Missing name, category or unit, or quantity not positive.",
			Err:     ErrValidation,
		}, nil
	}

	category := domain.CanonicalCategory(ln.Category)
	entries, err := repo.ListEntriesByCategory(ctx, s.DB, userID, category)
	if err != nil {
		return SaleLineResult{}, err
	}
	cands := make([]search.Candidate, len(entries))
	for i, e := range entries {
		cands[i] = search.Candidate{Name: e.Product.Name, Brand: e.Product.Brand, Unit: e.Product.Amount}
	}

	m, err := s.matcher().Match(search.Query{Name: name, Brand: ln.Brand, Unit: unit}, cands)
	switch {
	case errors.Is(err, search.ErrNoMatch):
		return SaleLineResult{
			Outcome: OutcomeNotFound,
			Message: fmt.Sprintf("Product %q (%s) not found in category %s.", name, unit, category),
			Err:     ErrProductNotFound,
		}, nil
	case errors.Is(err, search.ErrBrandRejected):
		p := entries[m.Index].Product
		return SaleLineResult{
			Outcome:   OutcomeBrandMismatch,
			Message:   fmt.Sprintf("Product %q found but brand %q does not match %q.", p.Name, ln.Brand, p.Brand),
			ProductID: p.ID,
			Err:       ErrBrandMismatch,
		}, nil
	case err != nil:
		return SaleLineResult{}, err
	}

	entry := entries[m.Index]
	insufficient := func(avail int) SaleLineResult {
		return SaleLineResult{
			Outcome:   OutcomeInsufficientStock,
			Message:   fmt.Sprintf("Insufficient stock for %s (%s): requested %d, available %d.", entry.Product.Name, entry.Product.Amount, ln.Quantity, avail),
			ProductID: entry.ProductID,
			Err:       ErrInsufficientStock,
		}
	}
	if entry.Quantity < ln.Quantity {
		return insufficient(entry.Quantity), nil
	}

	var remaining int
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DecrementStock(ctx, tx, entry.ID, ln.Quantity); err != nil {
			return err
		}
		cur, err := repo.GetEntry(ctx, tx, entry.ID)
		if err != nil {
			return err
		}
		remaining = cur.Quantity
		uid := userID
		if err := repo.CreateTransaction(ctx, tx, &domain.Transaction{
			ProductID:        entry.ProductID,
			UserID:           &uid,
			Quantity:         ln.Quantity,
			BuyingPriceUnit:  cur.BuyingPrice,
			SellingPriceUnit: unitPrice,
			CreatedAt:        s.now(),
		}); err != nil {
			return err
		}
		_, err = repo.DeleteEntryIfEmpty(ctx, tx, entry.ID)
		return err
	})
	if errors.Is(err, repo.ErrStockConflict) {
		avail := 0
		if cur, gerr := repo.GetEntry(ctx, s.DB, entry.ID); gerr == nil {
			avail = cur.Quantity
		}
		return insufficient(avail), nil
	}
	if err != nil {
		return SaleLineResult{}, err
	}

	return SaleLineResult{
		Outcome:   OutcomeSold,
		Message:   fmt.Sprintf("Sold %d x %s (%s) at %s each. Remaining: %d.", ln.Quantity, entry.Product.Name, entry.Product.Amount, decimal.NewFromFloat(unitPrice).StringFixed(2), remaining),
		ProductID: entry.ProductID,
		Remaining: &remaining,
	}, nil
}

// GenerateReport aggregates the user's transactions of the last count units.
// An empty window yields Kind == ReportNoSales rather than a zero report.
func (s *InventoryService) GenerateReport(ctx context.Context, userID, unit string, count int) (*SalesReport, error) {
	tr := otel.Tracer("services/InventoryService")
	ctx, span := tr.Start(ctx, "GenerateReport",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("timeframe", unit),
			attribute.Int("units", count),
		),
	)
	defer span.End()

	step, err := TimeframeLength(unit)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, fmt.Errorf("%w: units must be > 0", ErrInvalidTimeframe)
	}

	// Windows longer than a time.Duration can hold cover all history.
	to := s.now()
	var from time.Time
	if int64(count) <= math.MaxInt64/int64(step) {
		from = to.Add(-time.Duration(count) * step)
	}
	txs, err := repo.ListTransactionsSince(ctx, s.DB, userID, from)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	rep := &SalesReport{
		Kind:      ReportNoSales,
		Timeframe: strings.ToLower(strings.TrimSpace(unit)),
		Units:     count,
		From:      from,
		To:        to,
		Revenue:   decimal.Zero,
		Profit:    decimal.Zero,
	}
	if len(txs) == 0 {
		return rep, nil
	}

	rep.Kind = ReportSales
	for _, t := range txs {
		q := decimal.NewFromInt(int64(t.Quantity))
		sell := decimal.NewFromFloat(t.SellingPriceUnit)
		buy := decimal.NewFromFloat(t.BuyingPriceUnit)
		rep.UnitsSold += t.Quantity
		rep.Revenue = rep.Revenue.Add(sell.Mul(q))
		rep.Profit = rep.Profit.Add(sell.Sub(buy).Mul(q))
	}
	span.SetAttributes(attribute.Int("transactions", len(txs)))
	return rep, nil
}

// ListInventory returns a page of the user's live entries.
func (s *InventoryService) ListInventory(ctx context.Context, userID string, page, pageSize int) ([]domain.InventoryEntry, int64, error) {
	tr := otel.Tracer("services/InventoryService")
	ctx, span := tr.Start(ctx, "ListInventory",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountEntries(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.InventoryEntry{}, 0, nil
	}
	items, err := repo.ListEntriesPage(ctx, s.DB, userID, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// InventoryStats returns the live entry count and latest stock movement for
// userID, for conditional listing responses.
func (s *InventoryService) InventoryStats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.InventoryStats(ctx, s.DB, userID)
}
