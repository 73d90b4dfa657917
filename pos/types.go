/*
Package pos holds the shared domain model of the point-of-sale ledger.

PURPOSE:
  Everything the ledger, stock reconciler, sales flow and reporting
  packages agree on lives here: accounts and their movements, sales,
  credit notes, catalog products, the numbering spaces, the error
  taxonomy and the persistence interfaces.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account:    A customer's running-balance record ("cuenta corriente")
  - Movement:   One charge or payment against an Account
  - Sale:       Revenue fact, from a direct sale or mirrored from a payment
  - CreditNote: Reversal fact that returns stock and nets against revenue
  - LineItem:   Product snapshot on a sale, credit note or movement

MONEY:
  All amounts are decimal.Decimal. Floating point is never used for money;
  the 0.01 tolerance in IsPaidOff exists for balances imported from
  systems that did use floats.

SEE ALSO:
  - balance.go: Real amount and balance derivation
  - errors.go:  Error taxonomy
  - store.go:   Persistence interfaces
*/
package pos

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type MovementID string
type SaleID string
type CreditNoteID string
type ProductID string

// NewID returns a random identifier for any record type.
func NewID() string { return uuid.NewString() }

// =============================================================================
// NUMBERING SPACES
// =============================================================================

// Space names an independent numbering sequence.
type Space string

const (
	// SpaceSale is shared by sales and ledger movements.
	SpaceSale Space = "sale"
	// SpaceCreditNote numbers credit notes.
	SpaceCreditNote Space = "creditNote"
)

func (s Space) Valid() bool { return s == SpaceSale || s == SpaceCreditNote }

// =============================================================================
// LINE ITEMS
// =============================================================================

// LineItem is a snapshot of a product at the time of the transaction.
// ProductID may no longer resolve in the catalog.
type LineItem struct {
	ProductID ProductID       `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// ItemsTotal sums the subtotals of items.
func ItemsTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// StockLine is the part of a line item the stock reconciler cares about.
type StockLine struct {
	ProductID ProductID
	Quantity  int
}

// StockLines projects items onto their stock effect.
func StockLines(items []LineItem) []StockLine {
	lines := make([]StockLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, StockLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}

// =============================================================================
// ACCOUNT
// =============================================================================

type Account struct {
	ID           AccountID
	CustomerName string
	Email        string
	Phone        string
	Address      string
	Document     string

	// CreditLimit is informational. Nothing enforces it.
	CreditLimit decimal.Decimal

	// Balance is a cache of the signed sum of the account's movements.
	Balance decimal.Decimal
	Active  bool

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaidOffTolerance is the largest |balance| still considered settled.
var PaidOffTolerance = decimal.New(1, -2)

// IsPaidOff reports whether the balance is zero within PaidOffTolerance.
func (a Account) IsPaidOff() bool {
	return a.Balance.Abs().LessThan(PaidOffTolerance)
}

// =============================================================================
// MOVEMENT
// =============================================================================

type MovementType string

const (
	MovementCharge  MovementType = "charge"  // increases what the customer owes
	MovementPayment MovementType = "payment" // decreases it, mirrored into sales
)

func (t MovementType) Valid() bool { return t == MovementCharge || t == MovementPayment }

// Sign is +1 for charges and -1 for payments.
func (t MovementType) Sign() decimal.Decimal {
	if t == MovementPayment {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

type Movement struct {
	ID        MovementID
	AccountID AccountID
	Type      MovementType

	// Amount is the nominal value, always > 0.
	Amount decimal.Decimal
	// DiscountPercent is in [0, 100]. Only meaningful for payments.
	DiscountPercent decimal.Decimal
	// RealAmount is derived from Amount and DiscountPercent on every write.
	RealAmount decimal.Decimal

	InvoiceNumber int64
	Concept       string
	Items         []LineItem
	Notes         string

	CreatedBy string
	Timestamp time.Time
}

// SignedAmount is the movement's contribution to the account balance.
func (m Movement) SignedAmount() decimal.Decimal {
	return m.Type.Sign().Mul(m.RealAmount)
}

// =============================================================================
// SALE
// =============================================================================

type SaleKind string

const (
	SaleKindDirect         SaleKind = "sale"
	SaleKindAccountPayment SaleKind = "account_payment"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentCheck    PaymentMethod = "check"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentCheck:
		return true
	}
	return false
}

type Sale struct {
	ID            SaleID
	InvoiceNumber int64
	CustomerName  string
	Items         []LineItem
	Total         decimal.Decimal
	Kind          SaleKind
	PaymentMethod PaymentMethod

	// MovementID links a mirrored sale to the ledger payment that produced it.
	MovementID MovementID

	CreatedBy string
	Timestamp time.Time
}

// =============================================================================
// CREDIT NOTE
// =============================================================================

// DefaultCreditNoteCustomer is used when a credit note names no customer.
const DefaultCreditNoteCustomer = "Final consumer"

type CreditNote struct {
	ID               CreditNoteID
	CreditNoteNumber int64
	CustomerName     string
	Motive           string
	Items            []LineItem
	Total            decimal.Decimal

	// OriginalSaleID is a weak back-reference, lookup only.
	OriginalSaleID        SaleID
	OriginalInvoiceNumber int64
	Notes                 string

	CreatedBy string
	Timestamp time.Time
}

// =============================================================================
// PRODUCT (catalog)
// =============================================================================

type Product struct {
	ID        ProductID
	Name      string
	SKU       string
	UnitPrice decimal.Decimal
	CostPrice decimal.Decimal
	Quantity  int
	MinStock  int
	Active    bool
}
