/*
handlers.go - HTTP API handlers for the point-of-sale ledger

ENDPOINTS:
  Accounts:
    GET    /api/accounts                   All accounts, balances re-derived
    POST   /api/accounts                   Open an account
    GET    /api/accounts/paid-off          Accounts with |balance| < 0.01
    GET    /api/accounts/{id}              One account
    PUT    /api/accounts/{id}              Rename / edit contact data
    DELETE /api/accounts/{id}              Delete with its movements
    GET    /api/accounts/{id}/movements    Movements, newest first (?limit=)
    POST   /api/accounts/{id}/movements    Record a charge or payment

  Movements:
    PUT    /api/movements/{id}             Edit amount / discount / concept
    DELETE /api/movements/{id}             Delete and re-sum the account

  Sales:
    GET    /api/sales                      ?from=&to=&limit=
    POST   /api/sales                      Record a sale, decrement stock
    GET    /api/sales/available-for-credit-note
    GET    /api/sales/{id}                 One sale
    PUT    /api/sales/{id}                 Correct customer / payment method

  Credit notes:
    GET    /api/credit-notes               ?from=&to=&limit=
    POST   /api/credit-notes               Record a credit note, restock

  Products:
    GET    /api/products
    POST   /api/products                   Create or replace

  Reports:
    GET    /api/reports/summary            Net totals, 7-day series, top products...
    GET    /api/reports/yearly
    GET    /api/reports/monthly            ?limit= (default 12)

ERROR HANDLING:
  - 400: Validation errors, malformed JSON
  - 404: Resource not found
  - 409: Conflict (sale already credited, duplicate id)
  - 503: Storage unavailable
  - 500: Partial stock application and anything unexpected
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/warp/pos-ledger/ledger"
	"github.com/warp/pos-ledger/pos"
	"github.com/warp/pos-ledger/reporting"
	"github.com/warp/pos-ledger/sales"
	"github.com/warp/pos-ledger/stock"
)

// DefaultMonthlyLimit is how many months /api/reports/monthly returns.
const DefaultMonthlyLimit = 12

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     pos.TxStore
	Ledger    *ledger.Service
	Sales     *sales.Service
	Reporting *reporting.Aggregator

	topLimit int
	now      func() time.Time
	log      zerolog.Logger
}

type HandlerOption func(*Handler)

func WithLogger(l zerolog.Logger) HandlerOption {
	return func(h *Handler) { h.log = l }
}

func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

func WithTopLimit(n int) HandlerOption {
	return func(h *Handler) { h.topLimit = n }
}

// NewHandler wires the services on top of store.
func NewHandler(store pos.TxStore, agg *reporting.Aggregator, opts ...HandlerOption) *Handler {
	h := &Handler{
		Store:     store,
		Reporting: agg,
		topLimit:  reporting.DefaultTopLimit,
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.Ledger = ledger.NewService(store, ledger.WithLogger(h.log), ledger.WithClock(h.now))
	h.Sales = sales.NewService(store, sales.WithLogger(h.log), sales.WithClock(h.now))
	return h
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Ledger.AccountsWithBalances(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to list accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTOs(accounts))
}

func (h *Handler) ListPaidOffAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Ledger.PaidOffAccounts(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to list paid-off accounts", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTOs(accounts))
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := h.Ledger.CreateAccount(r.Context(), ledger.AccountInput{
		CustomerName: req.CustomerName,
		Email:        req.Email,
		Phone:        req.Phone,
		Address:      req.Address,
		Document:     req.Document,
		CreditLimit:  req.CreditLimit,
		CreatedBy:    createdBy(r),
	})
	if err != nil {
		writeDomainError(w, r, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.Ledger.Account(r.Context(), pos.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, r, "Failed to get account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req UpdateAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := h.Ledger.UpdateAccount(r.Context(), pos.AccountID(chi.URLParam(r, "id")), ledger.AccountPatch{
		CustomerName: req.CustomerName,
		Email:        req.Email,
		Phone:        req.Phone,
		Address:      req.Address,
		Document:     req.Document,
		CreditLimit:  req.CreditLimit,
		Active:       req.Active,
	})
	if err != nil {
		writeDomainError(w, r, "Failed to update account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteAccount(r.Context(), pos.AccountID(chi.URLParam(r, "id"))); err != nil {
		writeDomainError(w, r, "Failed to delete account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// MOVEMENT HANDLERS
// =============================================================================

func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	movements, err := h.Ledger.Movements(r.Context(), pos.AccountID(chi.URLParam(r, "id")), limit)
	if err != nil {
		writeDomainError(w, r, "Failed to list movements", err)
		return
	}
	dtos := make([]MovementDTO, len(movements))
	for i, m := range movements {
		dtos[i] = toMovementDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	var req RecordMovementRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := h.Ledger.RecordMovement(r.Context(), ledger.MovementInput{
		AccountID:       pos.AccountID(chi.URLParam(r, "id")),
		Type:            pos.MovementType(strings.ToLower(req.Type)),
		Amount:          req.Amount,
		DiscountPercent: req.DiscountPercent,
		Concept:         req.Concept,
		Items:           req.Items,
		Notes:           req.Notes,
		InvoiceNumber:   req.InvoiceNumber,
		CreatedBy:       createdBy(r),
	})
	if err != nil {
		writeDomainError(w, r, "Failed to record movement", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(m))
}

func (h *Handler) UpdateMovement(w http.ResponseWriter, r *http.Request) {
	var req UpdateMovementRequest
	if !decodeBody(w, r, &req) {
		return
	}
	m, err := h.Ledger.UpdateMovement(r.Context(), pos.MovementID(chi.URLParam(r, "id")), ledger.MovementPatch{
		Amount:          req.Amount,
		DiscountPercent: req.DiscountPercent,
		Concept:         req.Concept,
		Notes:           req.Notes,
	})
	if err != nil {
		writeDomainError(w, r, "Failed to update movement", err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTO(m))
}

func (h *Handler) DeleteMovement(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteMovement(r.Context(), pos.MovementID(chi.URLParam(r, "id"))); err != nil {
		writeDomainError(w, r, "Failed to delete movement", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SALE & CREDIT NOTE HANDLERS
// =============================================================================

func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	list, err := h.Sales.Sales(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, "Failed to list sales", err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDTOs(list))
}

func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.Sales.Sale(r.Context(), pos.SaleID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, r, "Failed to get sale", err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDTO(sale))
}

func (h *Handler) UpdateSale(w http.ResponseWriter, r *http.Request) {
	var req UpdateSaleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	patch := sales.SalePatch{CustomerName: req.CustomerName}
	if req.PaymentMethod != nil {
		method := pos.PaymentMethod(strings.ToLower(*req.PaymentMethod))
		patch.PaymentMethod = &method
	}
	sale, err := h.Sales.UpdateSale(r.Context(), pos.SaleID(chi.URLParam(r, "id")), patch)
	if err != nil {
		writeDomainError(w, r, "Failed to update sale", err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDTO(sale))
}

func (h *Handler) ListAvailableForCreditNote(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	list, err := h.Sales.AvailableForCreditNote(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, "Failed to list sales", err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDTOs(list))
}

func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req RecordSaleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	receipt, err := h.Sales.RecordSale(r.Context(), sales.SaleInput{
		CustomerName:  req.CustomerName,
		Items:         req.Items,
		PaymentMethod: pos.PaymentMethod(strings.ToLower(req.PaymentMethod)),
		CreatedBy:     createdBy(r),
	})
	if err != nil {
		writeDomainError(w, r, "Failed to record sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, SaleReceiptDTO{
		Sale:  toSaleDTO(receipt.Document),
		Stock: toStockDTO(receipt.Stock),
	})
}

func (h *Handler) ListCreditNotes(w http.ResponseWriter, r *http.Request) {
	f, ok := parseFilter(w, r)
	if !ok {
		return
	}
	notes, err := h.Sales.CreditNotes(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, "Failed to list credit notes", err)
		return
	}
	dtos := make([]CreditNoteDTO, len(notes))
	for i, n := range notes {
		dtos[i] = toCreditNoteDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RecordCreditNote(w http.ResponseWriter, r *http.Request) {
	var req RecordCreditNoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	receipt, err := h.Sales.RecordCreditNote(r.Context(), sales.CreditNoteInput{
		CustomerName:   req.CustomerName,
		Motive:         req.Motive,
		Items:          req.Items,
		Total:          req.Total,
		OriginalSaleID: pos.SaleID(req.OriginalSaleID),
		Notes:          req.Notes,
		CreatedBy:      createdBy(r),
	})
	if err != nil {
		writeDomainError(w, r, "Failed to record credit note", err)
		return
	}
	writeJSON(w, http.StatusCreated, CreditNoteReceiptDTO{
		CreditNote: toCreditNoteDTO(receipt.Document),
		Stock:      toStockDTO(receipt.Stock),
	})
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.ListProducts(r.Context())
	if err != nil {
		writeDomainError(w, r, "Failed to list products", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTOs(products))
}

func (h *Handler) SaveProduct(w http.ResponseWriter, r *http.Request) {
	var req SaveProductRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeDomainError(w, r, "Invalid product", pos.Invalid("name", "is required"))
		return
	}
	if req.Quantity < 0 {
		writeDomainError(w, r, "Invalid product", pos.Invalid("quantity", "must not be negative"))
		return
	}
	p := pos.Product{
		ID:        pos.ProductID(req.ID),
		Name:      strings.TrimSpace(req.Name),
		SKU:       req.SKU,
		UnitPrice: req.UnitPrice,
		CostPrice: req.CostPrice,
		Quantity:  req.Quantity,
		MinStock:  req.MinStock,
		Active:    req.Active == nil || *req.Active,
	}
	if p.ID == "" {
		p.ID = pos.ProductID(pos.NewID())
	}
	if err := h.Store.SaveProduct(r.Context(), p); err != nil {
		writeDomainError(w, r, "Failed to save product", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	saleList, err := h.Store.ListSales(ctx, pos.SaleFilter{})
	if err != nil {
		writeDomainError(w, r, "Failed to load sales", err)
		return
	}
	notes, err := h.Store.ListCreditNotes(ctx, pos.SaleFilter{})
	if err != nil {
		writeDomainError(w, r, "Failed to load credit notes", err)
		return
	}
	accounts, err := h.Ledger.AccountsWithBalances(ctx)
	if err != nil {
		writeDomainError(w, r, "Failed to load accounts", err)
		return
	}
	products, err := h.Store.ListProducts(ctx)
	if err != nil {
		writeDomainError(w, r, "Failed to load products", err)
		return
	}

	agg := h.Reporting.Resolving(reporting.ResolverFromProducts(products))
	writeJSON(w, http.StatusOK, agg.Summary(reporting.SummaryInput{
		Sales:       saleList,
		CreditNotes: notes,
		Accounts:    accounts,
		Products:    products,
		TopLimit:    h.topLimit,
		Now:         h.now(),
	}))
}

func (h *Handler) YearlyTotals(w http.ResponseWriter, r *http.Request) {
	saleList, notes, ok := h.loadFacts(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Reporting.YearlyTotals(saleList, notes))
}

func (h *Handler) MonthlyTotals(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	if limit <= 0 {
		limit = DefaultMonthlyLimit
	}
	saleList, notes, ok := h.loadFacts(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Reporting.MonthlyTotals(saleList, notes, limit))
}

func (h *Handler) loadFacts(w http.ResponseWriter, r *http.Request) ([]pos.Sale, []pos.CreditNote, bool) {
	saleList, err := h.Store.ListSales(r.Context(), pos.SaleFilter{})
	if err != nil {
		writeDomainError(w, r, "Failed to load sales", err)
		return nil, nil, false
	}
	notes, err := h.Store.ListCreditNotes(r.Context(), pos.SaleFilter{})
	if err != nil {
		writeDomainError(w, r, "Failed to load credit notes", err)
		return nil, nil, false
	}
	return saleList, notes, true
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the pos error categories onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg(message)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pos.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, pos.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pos.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, pos.ErrPartialApplication):
		return http.StatusInternalServerError
	case errors.Is(err, pos.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", key), err)
		return 0, false
	}
	return n, true
}

// parseFilter reads from/to as RFC3339 or YYYY-MM-DD. A bare "to" date
// covers that whole day.
func parseFilter(w http.ResponseWriter, r *http.Request) (pos.SaleFilter, bool) {
	var f pos.SaleFilter
	q := r.URL.Query()
	var err error
	if raw := q.Get("from"); raw != "" {
		if f.From, _, err = parseTime(raw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from", err)
			return f, false
		}
	}
	if raw := q.Get("to"); raw != "" {
		var dateOnly bool
		if f.To, dateOnly, err = parseTime(raw); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to", err)
			return f, false
		}
		if dateOnly {
			f.To = f.To.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return f, false
	}
	f.Limit = limit
	return f, true
}

func parseTime(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	return t, true, err
}

func createdBy(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User"))
}

func toStockDTO(report stock.Report) StockDTO {
	dto := StockDTO{Adjusted: len(report.Adjusted)}
	for _, id := range report.Skipped {
		dto.Skipped = append(dto.Skipped, string(id))
	}
	return dto
}
