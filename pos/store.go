/*
store.go - Persistence interfaces

KEY INTERFACES:
  CounterStore: Atomic increment-and-return per numbering space
  AccountStore: Accounts and their movements
  SaleStore:    Sales and credit notes (append-mostly facts)
  Catalog:      Product lookup and quantity adjustment
  Store:        All of the above
  TxStore:      Store plus WithTx for multi-record atomic writes

ATOMICITY:
  Every write that touches more than one record (movement + mirrored sale +
  balance, sale + stock lines, credit note + stock lines) runs inside
  WithTx. If fn returns an error nothing it wrote is kept.

ERRORS:
  Implementations return *NotFoundError for missing rows and wrap driver
  failures so errors.Is(err, ErrStorageUnavailable) holds.

IMPLEMENTATIONS:
  - pos/store/memory.go:     In-memory, for tests and demos
  - store/sqlite/sqlite.go:  database/sql + go-sqlite3
  - store/gormdb/gormdb.go:  gorm, PostgreSQL in production
*/
package pos

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CounterStore issues numbers. NextNumber must be a single atomic
// increment-and-fetch on a per-space counter record.
type CounterStore interface {
	NextNumber(ctx context.Context, space Space) (int64, error)
	// RaiseCounter lifts the counter of space to at least value in one
	// atomic statement. It never lowers it.
	RaiseCounter(ctx context.Context, space Space, value int64) error
}

type AccountStore interface {
	InsertAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, id AccountID) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	UpdateAccount(ctx context.Context, a Account) error
	SetAccountBalance(ctx context.Context, id AccountID, balance decimal.Decimal) error
	// DeleteAccount removes the account and every movement referencing it.
	DeleteAccount(ctx context.Context, id AccountID) error

	InsertMovement(ctx context.Context, m Movement) error
	GetMovement(ctx context.Context, id MovementID) (Movement, error)
	UpdateMovement(ctx context.Context, m Movement) error
	DeleteMovement(ctx context.Context, id MovementID) error
	// ListMovements returns the account's movements, newest first.
	ListMovements(ctx context.Context, accountID AccountID) ([]Movement, error)
}

// SaleFilter narrows ListSales. Zero values mean "no bound".
type SaleFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

type SaleStore interface {
	InsertSale(ctx context.Context, s Sale) error
	GetSale(ctx context.Context, id SaleID) (Sale, error)
	// UpdateSale rewrites the administrative fields (customer name, payment
	// method). Number, items, total and timestamp are never touched.
	UpdateSale(ctx context.Context, s Sale) error
	// ListSales returns sales newest first.
	ListSales(ctx context.Context, f SaleFilter) ([]Sale, error)

	InsertCreditNote(ctx context.Context, n CreditNote) error
	// ListCreditNotes returns credit notes newest first.
	ListCreditNotes(ctx context.Context, f SaleFilter) ([]CreditNote, error)
	// CreditNoteForSale returns the note referencing saleID, or a *NotFoundError.
	CreditNoteForSale(ctx context.Context, saleID SaleID) (CreditNote, error)
}

// Catalog is the slice of the product catalog the engine consumes.
type Catalog interface {
	GetProduct(ctx context.Context, id ProductID) (Product, error)
	AdjustQuantity(ctx context.Context, id ProductID, delta int) error
}

// ProductStore is the catalog plus the plumbing used to seed and list it.
type ProductStore interface {
	Catalog
	SaveProduct(ctx context.Context, p Product) error
	ListProducts(ctx context.Context) ([]Product, error)
}

type Store interface {
	CounterStore
	AccountStore
	SaleStore
	ProductStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
