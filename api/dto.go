/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO:     Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts are decimal.Decimal. They serialize as JSON strings ("550.5") and
  accept either strings or numbers on input.

VALIDATION:
  Done by the services, not here. DTOs are pure data carriers.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pos-ledger/pos"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountDTO struct {
	ID           string          `json:"id"`
	CustomerName string          `json:"customer_name"`
	Email        string          `json:"email,omitempty"`
	Phone        string          `json:"phone,omitempty"`
	Address      string          `json:"address,omitempty"`
	Document     string          `json:"document,omitempty"`
	CreditLimit  decimal.Decimal `json:"credit_limit"`
	Balance      decimal.Decimal `json:"balance"`
	PaidOff      bool            `json:"paid_off"`
	Active       bool            `json:"active"`
	CreatedBy    string          `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type CreateAccountRequest struct {
	CustomerName string          `json:"customer_name"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	Address      string          `json:"address"`
	Document     string          `json:"document"`
	CreditLimit  decimal.Decimal `json:"credit_limit"`
}

// UpdateAccountRequest leaves absent fields unchanged.
type UpdateAccountRequest struct {
	CustomerName *string          `json:"customer_name"`
	Email        *string          `json:"email"`
	Phone        *string          `json:"phone"`
	Address      *string          `json:"address"`
	Document     *string          `json:"document"`
	CreditLimit  *decimal.Decimal `json:"credit_limit"`
	Active       *bool            `json:"active"`
}

func toAccountDTO(a pos.Account) AccountDTO {
	return AccountDTO{
		ID:           string(a.ID),
		CustomerName: a.CustomerName,
		Email:        a.Email,
		Phone:        a.Phone,
		Address:      a.Address,
		Document:     a.Document,
		CreditLimit:  a.CreditLimit,
		Balance:      a.Balance,
		PaidOff:      a.IsPaidOff(),
		Active:       a.Active,
		CreatedBy:    a.CreatedBy,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func toAccountDTOs(accounts []pos.Account) []AccountDTO {
	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	return dtos
}

// =============================================================================
// MOVEMENTS
// =============================================================================

type MovementDTO struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"account_id"`
	Type            string          `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	RealAmount      decimal.Decimal `json:"real_amount"`
	InvoiceNumber   int64           `json:"invoice_number"`
	Concept         string          `json:"concept,omitempty"`
	Items           []pos.LineItem  `json:"items,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedBy       string          `json:"created_by,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

type RecordMovementRequest struct {
	Type            string          `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Concept         string          `json:"concept"`
	Items           []pos.LineItem  `json:"items"`
	Notes           string          `json:"notes"`
	InvoiceNumber   int64           `json:"invoice_number"`
}

type UpdateMovementRequest struct {
	Amount          *decimal.Decimal `json:"amount"`
	DiscountPercent *decimal.Decimal `json:"discount_percent"`
	Concept         *string          `json:"concept"`
	Notes           *string          `json:"notes"`
}

func toMovementDTO(m pos.Movement) MovementDTO {
	return MovementDTO{
		ID:              string(m.ID),
		AccountID:       string(m.AccountID),
		Type:            string(m.Type),
		Amount:          m.Amount,
		DiscountPercent: m.DiscountPercent,
		RealAmount:      m.RealAmount,
		InvoiceNumber:   m.InvoiceNumber,
		Concept:         m.Concept,
		Items:           m.Items,
		Notes:           m.Notes,
		CreatedBy:       m.CreatedBy,
		Timestamp:       m.Timestamp,
	}
}

// =============================================================================
// SALES & CREDIT NOTES
// =============================================================================

type SaleDTO struct {
	ID            string          `json:"id"`
	InvoiceNumber int64           `json:"invoice_number"`
	CustomerName  string          `json:"customer_name,omitempty"`
	Items         []pos.LineItem  `json:"items"`
	Total         decimal.Decimal `json:"total"`
	Kind          string          `json:"kind"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	MovementID    string          `json:"movement_id,omitempty"`
	CreatedBy     string          `json:"created_by,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

type RecordSaleRequest struct {
	CustomerName  string         `json:"customer_name"`
	Items         []pos.LineItem `json:"items"`
	PaymentMethod string         `json:"payment_method"`
}

// UpdateSaleRequest leaves absent fields unchanged.
type UpdateSaleRequest struct {
	CustomerName  *string `json:"customer_name"`
	PaymentMethod *string `json:"payment_method"`
}

type CreditNoteDTO struct {
	ID                    string          `json:"id"`
	CreditNoteNumber      int64           `json:"credit_note_number"`
	CustomerName          string          `json:"customer_name"`
	Motive                string          `json:"motive"`
	Items                 []pos.LineItem  `json:"items"`
	Total                 decimal.Decimal `json:"total"`
	OriginalSaleID        string          `json:"original_sale_id,omitempty"`
	OriginalInvoiceNumber int64           `json:"original_invoice_number,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
	CreatedBy             string          `json:"created_by,omitempty"`
	Timestamp             time.Time       `json:"timestamp"`
}

type RecordCreditNoteRequest struct {
	CustomerName   string           `json:"customer_name"`
	Motive         string           `json:"motive"`
	Items          []pos.LineItem   `json:"items"`
	Total          *decimal.Decimal `json:"total"`
	OriginalSaleID string           `json:"original_sale_id"`
	Notes          string           `json:"notes"`
}

// StockDTO reports what a sale or credit note did to the catalog.
type StockDTO struct {
	Adjusted int      `json:"adjusted"`
	Skipped  []string `json:"skipped,omitempty"`
}

type SaleReceiptDTO struct {
	Sale  SaleDTO  `json:"sale"`
	Stock StockDTO `json:"stock"`
}

type CreditNoteReceiptDTO struct {
	CreditNote CreditNoteDTO `json:"credit_note"`
	Stock      StockDTO      `json:"stock"`
}

func toSaleDTO(s pos.Sale) SaleDTO {
	return SaleDTO{
		ID:            string(s.ID),
		InvoiceNumber: s.InvoiceNumber,
		CustomerName:  s.CustomerName,
		Items:         s.Items,
		Total:         s.Total,
		Kind:          string(s.Kind),
		PaymentMethod: string(s.PaymentMethod),
		MovementID:    string(s.MovementID),
		CreatedBy:     s.CreatedBy,
		Timestamp:     s.Timestamp,
	}
}

func toSaleDTOs(sales []pos.Sale) []SaleDTO {
	dtos := make([]SaleDTO, len(sales))
	for i, s := range sales {
		dtos[i] = toSaleDTO(s)
	}
	return dtos
}

func toCreditNoteDTO(n pos.CreditNote) CreditNoteDTO {
	return CreditNoteDTO{
		ID:                    string(n.ID),
		CreditNoteNumber:      n.CreditNoteNumber,
		CustomerName:          n.CustomerName,
		Motive:                n.Motive,
		Items:                 n.Items,
		Total:                 n.Total,
		OriginalSaleID:        string(n.OriginalSaleID),
		OriginalInvoiceNumber: n.OriginalInvoiceNumber,
		Notes:                 n.Notes,
		CreatedBy:             n.CreatedBy,
		Timestamp:             n.Timestamp,
	}
}

// =============================================================================
// PRODUCTS
// =============================================================================

type ProductDTO struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CostPrice decimal.Decimal `json:"cost_price"`
	Quantity  int             `json:"quantity"`
	MinStock  int             `json:"min_stock"`
	Active    bool            `json:"active"`
}

type SaveProductRequest struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CostPrice decimal.Decimal `json:"cost_price"`
	Quantity  int             `json:"quantity"`
	MinStock  int             `json:"min_stock"`
	Active    *bool           `json:"active"`
}

func toProductDTO(p pos.Product) ProductDTO {
	return ProductDTO{
		ID:        string(p.ID),
		Name:      p.Name,
		SKU:       p.SKU,
		UnitPrice: p.UnitPrice,
		CostPrice: p.CostPrice,
		Quantity:  p.Quantity,
		MinStock:  p.MinStock,
		Active:    p.Active,
	}
}

func toProductDTOs(products []pos.Product) []ProductDTO {
	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	return dtos
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ScenarioResultDTO counts what a scenario created.
type ScenarioResultDTO struct {
	ScenarioID  string `json:"scenario_id"`
	Accounts    int    `json:"accounts"`
	Movements   int    `json:"movements"`
	Products    int    `json:"products"`
	Sales       int    `json:"sales"`
	CreditNotes int    `json:"credit_notes"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
