/*
Package sales records direct sales and credit notes.

Each write is one store transaction covering the number allocation, the
document and its stock effect:

	RecordSale:        number from "sale" space, insert, stock -= qty (clamped)
	RecordCreditNote:  number from "creditNote" space, insert, stock += qty

A sale can be credited at most once. AvailableForCreditNote lists recent
direct sales that have no credit note yet.
*/
package sales

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/pos-ledger/pos"
	"github.com/warp/pos-ledger/sequence"
	"github.com/warp/pos-ledger/stock"
)

// DefaultAvailableLimit is how many recent sales AvailableForCreditNote scans.
const DefaultAvailableLimit = 50

type Service struct {
	store pos.TxStore
	stock *stock.Reconciler
	now   func() time.Time
	log   zerolog.Logger
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.log = l.With().Str("component", "sales").Logger()
		s.stock = stock.NewReconciler(s.store, stock.WithLogger(l))
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store pos.TxStore, opts ...Option) *Service {
	s := &Service{
		store: store,
		stock: stock.NewReconciler(store),
		now:   time.Now,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// SALES
// =============================================================================

type SaleInput struct {
	CustomerName  string
	Items         []pos.LineItem
	PaymentMethod pos.PaymentMethod
	CreatedBy     string
}

func (in SaleInput) validate() error {
	if len(in.Items) == 0 {
		return pos.Invalid("items", "at least one item is required")
	}
	if in.PaymentMethod != "" && !in.PaymentMethod.Valid() {
		return pos.Invalid("payment_method", "unknown payment method %q", in.PaymentMethod)
	}
	return validateItems(in.Items)
}

// Receipt is a recorded document plus what happened to stock.
type Receipt[T any] struct {
	Document T
	Stock    stock.Report
}

// RecordSale allocates an invoice number, stores the sale and decrements
// stock, all or nothing.
func (s *Service) RecordSale(ctx context.Context, in SaleInput) (Receipt[pos.Sale], error) {
	if err := in.validate(); err != nil {
		return Receipt[pos.Sale]{}, err
	}
	method := in.PaymentMethod
	if method == "" {
		method = pos.PaymentCash
	}

	var out Receipt[pos.Sale]
	err := s.store.WithTx(ctx, func(tx pos.Store) error {
		number, err := sequence.New(tx).NextSale(ctx)
		if err != nil {
			return err
		}
		sale := pos.Sale{
			ID:            pos.SaleID(pos.NewID()),
			InvoiceNumber: number,
			CustomerName:  strings.TrimSpace(in.CustomerName),
			Items:         in.Items,
			Total:         pos.ItemsTotal(in.Items),
			Kind:          pos.SaleKindDirect,
			PaymentMethod: method,
			CreatedBy:     in.CreatedBy,
			Timestamp:     s.now(),
		}
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		report, err := s.stock.ApplySaleIn(ctx, tx, pos.StockLines(in.Items))
		if err != nil {
			return err
		}
		out = Receipt[pos.Sale]{Document: sale, Stock: report}
		return nil
	})
	if err != nil {
		return Receipt[pos.Sale]{}, pos.Unavailable("sales.RecordSale", stock.RolledBack(err))
	}
	s.log.Info().
		Str("sale_id", string(out.Document.ID)).
		Int64("invoice_number", out.Document.InvoiceNumber).
		Str("total", out.Document.Total.String()).
		Int("stock_adjusted", len(out.Stock.Adjusted)).
		Int("stock_skipped", len(out.Stock.Skipped)).
		Msg("sale recorded")
	return out, nil
}

// Sale returns one sale by id.
func (s *Service) Sale(ctx context.Context, id pos.SaleID) (pos.Sale, error) {
	sale, err := s.store.GetSale(ctx, id)
	if err != nil {
		return pos.Sale{}, pos.Unavailable("sales.Sale", err)
	}
	return sale, nil
}

// SalePatch is an administrative correction. Nil fields are left unchanged.
// Items and totals are not editable: reporting and credit notes depend on them.
type SalePatch struct {
	CustomerName  *string
	PaymentMethod *pos.PaymentMethod
}

// UpdateSale corrects the customer name or payment method of a direct sale.
// Mirrored account payments belong to their movement and are rejected.
func (s *Service) UpdateSale(ctx context.Context, id pos.SaleID, p SalePatch) (pos.Sale, error) {
	if p.PaymentMethod != nil && !p.PaymentMethod.Valid() {
		return pos.Sale{}, pos.Invalid("payment_method", "unknown payment method %q", *p.PaymentMethod)
	}

	var updated pos.Sale
	err := s.store.WithTx(ctx, func(tx pos.Store) error {
		sale, err := tx.GetSale(ctx, id)
		if err != nil {
			return err
		}
		if sale.Kind == pos.SaleKindAccountPayment {
			return pos.Invalid("kind", "account payment sales follow their movement and cannot be edited")
		}
		if p.CustomerName != nil {
			sale.CustomerName = strings.TrimSpace(*p.CustomerName)
		}
		if p.PaymentMethod != nil {
			sale.PaymentMethod = *p.PaymentMethod
		}
		if err := tx.UpdateSale(ctx, sale); err != nil {
			return err
		}
		updated = sale
		return nil
	})
	if err != nil {
		return pos.Sale{}, pos.Unavailable("sales.UpdateSale", err)
	}
	s.log.Info().
		Str("sale_id", string(updated.ID)).
		Int64("invoice_number", updated.InvoiceNumber).
		Str("payment_method", string(updated.PaymentMethod)).
		Msg("sale corrected")
	return updated, nil
}

// Sales lists sales newest first.
func (s *Service) Sales(ctx context.Context, f pos.SaleFilter) ([]pos.Sale, error) {
	sales, err := s.store.ListSales(ctx, f)
	if err != nil {
		return nil, pos.Unavailable("sales.Sales", err)
	}
	return sales, nil
}

// AvailableForCreditNote returns the most recent direct sales (up to limit
// scanned) that have not been credited yet.
func (s *Service) AvailableForCreditNote(ctx context.Context, limit int) ([]pos.Sale, error) {
	if limit <= 0 {
		limit = DefaultAvailableLimit
	}
	recent, err := s.store.ListSales(ctx, pos.SaleFilter{Limit: limit})
	if err != nil {
		return nil, pos.Unavailable("sales.AvailableForCreditNote", err)
	}
	var available []pos.Sale
	for _, sale := range recent {
		if sale.Kind == pos.SaleKindAccountPayment {
			continue
		}
		_, err := s.store.CreditNoteForSale(ctx, sale.ID)
		if err == nil {
			continue
		}
		if !pos.IsNotFound(err) {
			return nil, pos.Unavailable("sales.AvailableForCreditNote", err)
		}
		available = append(available, sale)
	}
	return available, nil
}

// =============================================================================
// CREDIT NOTES
// =============================================================================

type CreditNoteInput struct {
	CustomerName   string
	Motive         string
	Items          []pos.LineItem
	Total          *decimal.Decimal
	OriginalSaleID pos.SaleID
	Notes          string
	CreatedBy      string
}

func (in CreditNoteInput) validate() error {
	if strings.TrimSpace(in.Motive) == "" {
		return pos.Invalid("motive", "is required")
	}
	if len(in.Items) == 0 {
		return pos.Invalid("items", "at least one item is required")
	}
	if in.Total != nil && in.Total.IsNegative() {
		return pos.Invalid("total", "must not be negative")
	}
	return validateItems(in.Items)
}

// RecordCreditNote allocates a credit-note number, stores the note and
// returns the items to stock. Crediting the same sale twice is a conflict.
func (s *Service) RecordCreditNote(ctx context.Context, in CreditNoteInput) (Receipt[pos.CreditNote], error) {
	if err := in.validate(); err != nil {
		return Receipt[pos.CreditNote]{}, err
	}

	var out Receipt[pos.CreditNote]
	err := s.store.WithTx(ctx, func(tx pos.Store) error {
		note := pos.CreditNote{
			ID:             pos.CreditNoteID(pos.NewID()),
			CustomerName:   strings.TrimSpace(in.CustomerName),
			Motive:         strings.TrimSpace(in.Motive),
			Items:          in.Items,
			OriginalSaleID: in.OriginalSaleID,
			Notes:          in.Notes,
			CreatedBy:      in.CreatedBy,
			Timestamp:      s.now(),
		}
		if note.CustomerName == "" {
			note.CustomerName = pos.DefaultCreditNoteCustomer
		}
		if in.Total != nil {
			note.Total = *in.Total
		} else {
			note.Total = pos.ItemsTotal(in.Items)
		}

		if in.OriginalSaleID != "" {
			original, err := tx.GetSale(ctx, in.OriginalSaleID)
			if err != nil {
				return err
			}
			if _, err := tx.CreditNoteForSale(ctx, in.OriginalSaleID); err == nil {
				return &pos.ConflictError{Message: "sale " + string(in.OriginalSaleID) + " already has a credit note"}
			} else if !pos.IsNotFound(err) {
				return err
			}
			note.OriginalInvoiceNumber = original.InvoiceNumber
		}

		number, err := sequence.New(tx).NextCreditNote(ctx)
		if err != nil {
			return err
		}
		note.CreditNoteNumber = number

		if err := tx.InsertCreditNote(ctx, note); err != nil {
			return err
		}
		report, err := s.stock.ApplyCreditNoteIn(ctx, tx, pos.StockLines(in.Items))
		if err != nil {
			return err
		}
		out = Receipt[pos.CreditNote]{Document: note, Stock: report}
		return nil
	})
	if err != nil {
		return Receipt[pos.CreditNote]{}, pos.Unavailable("sales.RecordCreditNote", stock.RolledBack(err))
	}
	s.log.Info().
		Str("credit_note_id", string(out.Document.ID)).
		Int64("credit_note_number", out.Document.CreditNoteNumber).
		Str("original_sale_id", string(out.Document.OriginalSaleID)).
		Str("total", out.Document.Total.String()).
		Msg("credit note recorded")
	return out, nil
}

// CreditNotes lists credit notes newest first.
func (s *Service) CreditNotes(ctx context.Context, f pos.SaleFilter) ([]pos.CreditNote, error) {
	notes, err := s.store.ListCreditNotes(ctx, f)
	if err != nil {
		return nil, pos.Unavailable("sales.CreditNotes", err)
	}
	return notes, nil
}

func validateItems(items []pos.LineItem) error {
	for i, it := range items {
		if it.Quantity <= 0 {
			return pos.Invalid("items", "item %d: quantity must be positive", i)
		}
		if it.UnitPrice.IsNegative() {
			return pos.Invalid("items", "item %d: unit price must not be negative", i)
		}
		if strings.TrimSpace(it.Name) == "" && it.ProductID == "" {
			return pos.Invalid("items", "item %d: product id or name is required", i)
		}
	}
	return nil
}
