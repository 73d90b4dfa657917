/*
Package stock keeps catalog quantities consistent with sales and credit notes.

RULES:
  ApplySale:       quantity = max(0, quantity - sold)   (never negative)
  ApplyCreditNote: quantity = quantity + returned        (no upper bound)

  A line whose product no longer exists in the catalog is skipped and
  reported in Report.Skipped. The sale or credit note is still recorded.

ATOMICITY:
  When the catalog supports transactions (pos.TxStore) the whole batch runs
  in one WithTx call: a failure on line 3 of 5 leaves lines 1-2 untouched.
  When it does not, lines are applied in order and a mid-batch failure is
  returned as *pos.PartialApplicationError listing what was applied.

ENTRY POINTS:
  ApplySale / ApplyCreditNote own the batch. They are for catalogs kept
  outside the document store (an inventory service behind pos.Catalog),
  where the sale is already recorded and only stock remains to move. They
  detect transaction support on the catalog themselves.

  Callers that already hold a transaction (the sales service) use
  ApplySaleIn / ApplyCreditNoteIn with their transactional catalog, so the
  document and its stock commit together.
*/
package stock

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/warp/pos-ledger/pos"
)

// Adjustment records one product's quantity change.
type Adjustment struct {
	ProductID pos.ProductID
	Before    int
	After     int
}

// Report describes what a batch did.
type Report struct {
	Adjusted []Adjustment
	Skipped  []pos.ProductID
}

type transactor interface {
	WithTx(ctx context.Context, fn func(pos.Store) error) error
}

type Reconciler struct {
	catalog pos.Catalog
	log     zerolog.Logger
}

type Option func(*Reconciler)

func WithLogger(l zerolog.Logger) Option {
	return func(r *Reconciler) { r.log = l.With().Str("component", "stock").Logger() }
}

func NewReconciler(catalog pos.Catalog, opts ...Option) *Reconciler {
	r := &Reconciler{catalog: catalog, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ApplySale decrements stock for every sold line, clamping at zero.
func (r *Reconciler) ApplySale(ctx context.Context, lines []pos.StockLine) (Report, error) {
	return r.run(ctx, lines, saleDelta)
}

// ApplyCreditNote increments stock for every returned line.
func (r *Reconciler) ApplyCreditNote(ctx context.Context, lines []pos.StockLine) (Report, error) {
	return r.run(ctx, lines, returnDelta)
}

// ApplySaleIn is ApplySale against a catalog the caller already scoped to a
// transaction.
func (r *Reconciler) ApplySaleIn(ctx context.Context, catalog pos.Catalog, lines []pos.StockLine) (Report, error) {
	return r.apply(ctx, catalog, lines, saleDelta)
}

// ApplyCreditNoteIn is ApplyCreditNote against a transaction-scoped catalog.
func (r *Reconciler) ApplyCreditNoteIn(ctx context.Context, catalog pos.Catalog, lines []pos.StockLine) (Report, error) {
	return r.apply(ctx, catalog, lines, returnDelta)
}

// =============================================================================
// DELTA RULES
// =============================================================================

type deltaFunc func(current, quantity int) int

func saleDelta(current, sold int) int {
	if sold > current {
		sold = current
	}
	if sold < 0 {
		return 0
	}
	return -sold
}

func returnDelta(_ int, returned int) int { return returned }

// =============================================================================
// BATCH EXECUTION
// =============================================================================

func (r *Reconciler) run(ctx context.Context, lines []pos.StockLine, delta deltaFunc) (Report, error) {
	tx, ok := r.catalog.(transactor)
	if !ok {
		return r.apply(ctx, r.catalog, lines, delta)
	}

	var report Report
	err := tx.WithTx(ctx, func(s pos.Store) error {
		var err error
		report, err = r.apply(ctx, s, lines, delta)
		return err
	})
	if err != nil {
		return Report{}, RolledBack(err)
	}
	return report, nil
}

// RolledBack strips a *pos.PartialApplicationError once the enclosing
// transaction has been rolled back, since no line remains applied.
func RolledBack(err error) error {
	var perr *pos.PartialApplicationError
	if errors.As(err, &perr) {
		return perr.Err
	}
	return err
}

func (r *Reconciler) apply(ctx context.Context, catalog pos.Catalog, lines []pos.StockLine, delta deltaFunc) (Report, error) {
	if err := validate(lines); err != nil {
		return Report{}, err
	}
	var report Report
	for i, line := range lines {
		if line.ProductID == "" || line.Quantity == 0 {
			continue
		}
		product, err := catalog.GetProduct(ctx, line.ProductID)
		if errors.Is(err, pos.ErrNotFound) {
			r.log.Warn().Str("product_id", string(line.ProductID)).Msg("product not in catalog, stock line skipped")
			report.Skipped = append(report.Skipped, line.ProductID)
			continue
		}
		if err != nil {
			return report, r.partial(report, lines[i:], err)
		}

		d := delta(product.Quantity, line.Quantity)
		if d != 0 {
			if err := catalog.AdjustQuantity(ctx, line.ProductID, d); err != nil {
				return report, r.partial(report, lines[i:], err)
			}
		}
		report.Adjusted = append(report.Adjusted, Adjustment{
			ProductID: line.ProductID,
			Before:    product.Quantity,
			After:     product.Quantity + d,
		})
	}
	return report, nil
}

// partial wraps err when at least one line was already adjusted.
func (r *Reconciler) partial(report Report, rest []pos.StockLine, err error) error {
	err = pos.Unavailable("stock.apply", err)
	if len(report.Adjusted) == 0 {
		return err
	}
	perr := &pos.PartialApplicationError{Failed: rest[0].ProductID, Err: err}
	for _, a := range report.Adjusted {
		perr.Applied = append(perr.Applied, a.ProductID)
	}
	for _, l := range rest[1:] {
		perr.Pending = append(perr.Pending, l.ProductID)
	}
	r.log.Error().Err(err).
		Int("applied", len(perr.Applied)).
		Int("pending", len(perr.Pending)).
		Str("failed", string(perr.Failed)).
		Msg("stock batch stopped mid-way")
	return perr
}

func validate(lines []pos.StockLine) error {
	for _, l := range lines {
		if l.Quantity < 0 {
			return pos.Invalid("quantity", "product %s: quantity must not be negative", l.ProductID)
		}
	}
	return nil
}
