/*
Package sqlite provides a SQLite-backed pos.TxStore.

PURPOSE:
  Durable storage for a single point of sale. Implements every persistence
  interface in package pos on one database file.

KEY TABLES:
  counters:     One row per numbering space (sale, creditNote)
  accounts:     Customer accounts with their cached balance
  movements:    Ledger entries, cascade-deleted with their account
  sales:        Sale facts, including mirrored account payments
  credit_notes: Reversal facts, at most one per original sale
  products:     Catalog with stock quantities

NUMBER ALLOCATION:
  NextNumber is one statement:

    INSERT INTO counters(space, value) VALUES(?, 1)
    ON CONFLICT(space) DO UPDATE SET value = value + 1
    RETURNING value

  Counters are seeded at migration from the highest number already stored,
  so a database created before counters existed keeps numbering upward.

TRANSACTIONS:
  Every query runs through a querier that is either the *sql.DB or the
  *sql.Tx of the enclosing WithTx call. Reads inside fn therefore see the
  transaction's own writes.

CONNECTIONS:
  The pool is capped at one connection. ":memory:" databases are per
  connection, and a single writer avoids SQLITE_BUSY under WAL.

ENCODING:
  Decimals are TEXT (exact), timestamps are fixed-width UTC TEXT so that
  ORDER BY on them is chronological, line items are JSON.

USAGE:
  store, err := sqlite.New("./data/pos.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := ledger.NewService(store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/pos-ledger/pos"
)

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements pos.TxStore using SQLite.
type Store struct {
	*queries
	db *sql.DB
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ pos.TxStore = (*Store)(nil)
	_ pos.Store   = (*queries)(nil)
)

// queries holds every pos.Store method, bound to either the pool or a tx.
type queries struct {
	q querier
}

// New opens (or creates) the database and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: &queries{q: db}, db: db}
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if missing and seeds the counters.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS counters (
		space TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		customer_name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		document TEXT NOT NULL DEFAULT '',
		credit_limit TEXT NOT NULL DEFAULT '0',
		balance TEXT NOT NULL DEFAULT '0',
		active INTEGER NOT NULL DEFAULT 1,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS movements (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		type TEXT NOT NULL CHECK (type IN ('charge', 'payment')),
		amount TEXT NOT NULL,
		discount_percent TEXT NOT NULL DEFAULT '0',
		real_amount TEXT NOT NULL,
		invoice_number INTEGER NOT NULL,
		concept TEXT NOT NULL DEFAULT '',
		items_json TEXT,
		notes TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_account_ts
		ON movements(account_id, timestamp);

	CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		invoice_number INTEGER NOT NULL,
		customer_name TEXT NOT NULL DEFAULT '',
		items_json TEXT,
		total TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'sale',
		payment_method TEXT NOT NULL DEFAULT 'cash',
		movement_id TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sales_ts ON sales(timestamp);

	CREATE TABLE IF NOT EXISTS credit_notes (
		id TEXT PRIMARY KEY,
		credit_note_number INTEGER NOT NULL,
		customer_name TEXT NOT NULL,
		motive TEXT NOT NULL,
		items_json TEXT,
		total TEXT NOT NULL,
		original_sale_id TEXT NOT NULL DEFAULT '',
		original_invoice_number INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_credit_notes_ts ON credit_notes(timestamp);

	-- At most one credit note per original sale.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_notes_original_sale
		ON credit_notes(original_sale_id) WHERE original_sale_id != '';

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		sku TEXT NOT NULL DEFAULT '',
		unit_price TEXT NOT NULL DEFAULT '0',
		cost_price TEXT NOT NULL DEFAULT '0',
		quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		min_stock INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	seed := `
	INSERT INTO counters(space, value)
	SELECT ?, COALESCE(MAX(n), 0) FROM (%s) WHERE true
	ON CONFLICT(space) DO UPDATE SET value = MAX(counters.value, excluded.value)`
	saleNumbers := `SELECT invoice_number AS n FROM sales UNION ALL SELECT invoice_number FROM movements`
	noteNumbers := `SELECT credit_note_number AS n FROM credit_notes`
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(seed, saleNumbers), string(pos.SpaceSale)); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(seed, noteNumbers), string(pos.SpaceCreditNote)); err != nil {
		return err
	}
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(pos.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pos.Unavailable("sqlite.WithTx", err)
	}
	if err := fn(&queries{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return pos.Unavailable("sqlite.WithTx", err)
	}
	return nil
}

// =============================================================================
// COUNTERS
// =============================================================================

func (r *queries) NextNumber(ctx context.Context, space pos.Space) (int64, error) {
	if !space.Valid() {
		return 0, pos.Invalid("space", "unknown numbering space %q", space)
	}
	var n int64
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO counters(space, value) VALUES(?, 1)
		ON CONFLICT(space) DO UPDATE SET value = value + 1
		RETURNING value`, string(space)).Scan(&n)
	if err != nil {
		return 0, mapErr("sqlite.NextNumber", err)
	}
	return n, nil
}

func (r *queries) RaiseCounter(ctx context.Context, space pos.Space, value int64) error {
	if !space.Valid() {
		return pos.Invalid("space", "unknown numbering space %q", space)
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO counters(space, value) VALUES(?, ?)
		ON CONFLICT(space) DO UPDATE SET value = MAX(counters.value, excluded.value)`,
		string(space), value)
	return mapErr("sqlite.RaiseCounter", err)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountColumns = `id, customer_name, email, phone, address, document,
	credit_limit, balance, active, created_by, created_at, updated_at`

func (r *queries) InsertAccount(ctx context.Context, a pos.Account) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID), a.CustomerName, a.Email, a.Phone, a.Address, a.Document,
		a.CreditLimit, a.Balance, a.Active, a.CreatedBy, formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	return mapErr("sqlite.InsertAccount", err)
}

func (r *queries) GetAccount(ctx context.Context, id pos.AccountID) (pos.Account, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, string(id))
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pos.Account{}, pos.NotFound("account", string(id))
	}
	if err != nil {
		return pos.Account{}, mapErr("sqlite.GetAccount", err)
	}
	return a, nil
}

func (r *queries) ListAccounts(ctx context.Context) ([]pos.Account, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, mapErr("sqlite.ListAccounts", err)
	}
	defer rows.Close()

	var accounts []pos.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, mapErr("sqlite.ListAccounts", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, mapErr("sqlite.ListAccounts", rows.Err())
}

func (r *queries) UpdateAccount(ctx context.Context, a pos.Account) error {
	res, err := r.q.ExecContext(ctx, `UPDATE accounts SET
		customer_name = ?, email = ?, phone = ?, address = ?, document = ?,
		credit_limit = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		a.CustomerName, a.Email, a.Phone, a.Address, a.Document,
		a.CreditLimit, a.Active, formatTime(a.UpdatedAt), string(a.ID),
	)
	return affected("sqlite.UpdateAccount", res, err, "account", string(a.ID))
}

func (r *queries) SetAccountBalance(ctx context.Context, id pos.AccountID, balance decimal.Decimal) error {
	res, err := r.q.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, balance, string(id))
	return affected("sqlite.SetAccountBalance", res, err, "account", string(id))
}

// DeleteAccount relies on ON DELETE CASCADE for the movements.
func (r *queries) DeleteAccount(ctx context.Context, id pos.AccountID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, string(id))
	return affected("sqlite.DeleteAccount", res, err, "account", string(id))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (pos.Account, error) {
	var (
		a                    pos.Account
		id                   string
		createdAt, updatedAt string
	)
	err := row.Scan(&id, &a.CustomerName, &a.Email, &a.Phone, &a.Address, &a.Document,
		&a.CreditLimit, &a.Balance, &a.Active, &a.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return pos.Account{}, err
	}
	a.ID = pos.AccountID(id)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return a, nil
}

// =============================================================================
// MOVEMENTS
// =============================================================================

const movementColumns = `id, account_id, type, amount, discount_percent, real_amount,
	invoice_number, concept, items_json, notes, created_by, timestamp`

func (r *queries) InsertMovement(ctx context.Context, m pos.Movement) error {
	if _, err := r.GetAccount(ctx, m.AccountID); err != nil {
		return err
	}
	items, err := encodeItems(m.Items)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `INSERT INTO movements (`+movementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(m.ID), string(m.AccountID), string(m.Type), m.Amount, m.DiscountPercent, m.RealAmount,
		m.InvoiceNumber, m.Concept, items, m.Notes, m.CreatedBy, formatTime(m.Timestamp),
	)
	return mapErr("sqlite.InsertMovement", err)
}

func (r *queries) GetMovement(ctx context.Context, id pos.MovementID) (pos.Movement, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+movementColumns+` FROM movements WHERE id = ?`, string(id))
	m, err := scanMovement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pos.Movement{}, pos.NotFound("movement", string(id))
	}
	if err != nil {
		return pos.Movement{}, mapErr("sqlite.GetMovement", err)
	}
	return m, nil
}

// UpdateMovement rewrites the editable fields. Account, type and invoice
// number are fixed at creation.
func (r *queries) UpdateMovement(ctx context.Context, m pos.Movement) error {
	res, err := r.q.ExecContext(ctx, `UPDATE movements SET
		amount = ?, discount_percent = ?, real_amount = ?, concept = ?, notes = ?
		WHERE id = ?`,
		m.Amount, m.DiscountPercent, m.RealAmount, m.Concept, m.Notes, string(m.ID),
	)
	return affected("sqlite.UpdateMovement", res, err, "movement", string(m.ID))
}

func (r *queries) DeleteMovement(ctx context.Context, id pos.MovementID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM movements WHERE id = ?`, string(id))
	return affected("sqlite.DeleteMovement", res, err, "movement", string(id))
}

func (r *queries) ListMovements(ctx context.Context, accountID pos.AccountID) ([]pos.Movement, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+movementColumns+` FROM movements
		WHERE account_id = ? ORDER BY timestamp DESC, id DESC`, string(accountID))
	if err != nil {
		return nil, mapErr("sqlite.ListMovements", err)
	}
	defer rows.Close()

	var movements []pos.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, mapErr("sqlite.ListMovements", err)
		}
		movements = append(movements, m)
	}
	return movements, mapErr("sqlite.ListMovements", rows.Err())
}

func scanMovement(row scanner) (pos.Movement, error) {
	var (
		m                  pos.Movement
		id, accountID, typ string
		items              sql.NullString
		ts                 string
	)
	err := row.Scan(&id, &accountID, &typ, &m.Amount, &m.DiscountPercent, &m.RealAmount,
		&m.InvoiceNumber, &m.Concept, &items, &m.Notes, &m.CreatedBy, &ts)
	if err != nil {
		return pos.Movement{}, err
	}
	m.ID = pos.MovementID(id)
	m.AccountID = pos.AccountID(accountID)
	m.Type = pos.MovementType(typ)
	m.Timestamp = parseTime(ts)
	if m.Items, err = decodeItems(items); err != nil {
		return pos.Movement{}, err
	}
	return m, nil
}

// =============================================================================
// SALES
// =============================================================================

const saleColumns = `id, invoice_number, customer_name, items_json, total, kind,
	payment_method, movement_id, created_by, timestamp`

func (r *queries) InsertSale(ctx context.Context, s pos.Sale) error {
	items, err := encodeItems(s.Items)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `INSERT INTO sales (`+saleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(s.ID), s.InvoiceNumber, s.CustomerName, items, s.Total, string(s.Kind),
		string(s.PaymentMethod), string(s.MovementID), s.CreatedBy, formatTime(s.Timestamp),
	)
	return mapErr("sqlite.InsertSale", err)
}

func (r *queries) GetSale(ctx context.Context, id pos.SaleID) (pos.Sale, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, string(id))
	s, err := scanSale(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pos.Sale{}, pos.NotFound("sale", string(id))
	}
	if err != nil {
		return pos.Sale{}, mapErr("sqlite.GetSale", err)
	}
	return s, nil
}

func (r *queries) UpdateSale(ctx context.Context, s pos.Sale) error {
	res, err := r.q.ExecContext(ctx, `UPDATE sales SET customer_name = ?, payment_method = ? WHERE id = ?`,
		s.CustomerName, string(s.PaymentMethod), string(s.ID))
	return affected("sqlite.UpdateSale", res, err, "sale", string(s.ID))
}

func (r *queries) ListSales(ctx context.Context, f pos.SaleFilter) ([]pos.Sale, error) {
	where, args := filterClause(f)
	rows, err := r.q.QueryContext(ctx, `SELECT `+saleColumns+` FROM sales`+where+
		` ORDER BY timestamp DESC, id DESC`+limitClause(f), args...)
	if err != nil {
		return nil, mapErr("sqlite.ListSales", err)
	}
	defer rows.Close()

	var sales []pos.Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, mapErr("sqlite.ListSales", err)
		}
		sales = append(sales, s)
	}
	return sales, mapErr("sqlite.ListSales", rows.Err())
}

func scanSale(row scanner) (pos.Sale, error) {
	var (
		s                            pos.Sale
		id, kind, method, movementID string
		items                        sql.NullString
		ts                           string
	)
	err := row.Scan(&id, &s.InvoiceNumber, &s.CustomerName, &items, &s.Total, &kind,
		&method, &movementID, &s.CreatedBy, &ts)
	if err != nil {
		return pos.Sale{}, err
	}
	s.ID = pos.SaleID(id)
	s.Kind = pos.SaleKind(kind)
	s.PaymentMethod = pos.PaymentMethod(method)
	s.MovementID = pos.MovementID(movementID)
	s.Timestamp = parseTime(ts)
	if s.Items, err = decodeItems(items); err != nil {
		return pos.Sale{}, err
	}
	return s, nil
}

// =============================================================================
// CREDIT NOTES
// =============================================================================

const creditNoteColumns = `id, credit_note_number, customer_name, motive, items_json, total,
	original_sale_id, original_invoice_number, notes, created_by, timestamp`

func (r *queries) InsertCreditNote(ctx context.Context, n pos.CreditNote) error {
	items, err := encodeItems(n.Items)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `INSERT INTO credit_notes (`+creditNoteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(n.ID), n.CreditNoteNumber, n.CustomerName, n.Motive, items, n.Total,
		string(n.OriginalSaleID), n.OriginalInvoiceNumber, n.Notes, n.CreatedBy, formatTime(n.Timestamp),
	)
	return mapErr("sqlite.InsertCreditNote", err)
}

func (r *queries) ListCreditNotes(ctx context.Context, f pos.SaleFilter) ([]pos.CreditNote, error) {
	where, args := filterClause(f)
	rows, err := r.q.QueryContext(ctx, `SELECT `+creditNoteColumns+` FROM credit_notes`+where+
		` ORDER BY timestamp DESC, id DESC`+limitClause(f), args...)
	if err != nil {
		return nil, mapErr("sqlite.ListCreditNotes", err)
	}
	defer rows.Close()

	var notes []pos.CreditNote
	for rows.Next() {
		n, err := scanCreditNote(rows)
		if err != nil {
			return nil, mapErr("sqlite.ListCreditNotes", err)
		}
		notes = append(notes, n)
	}
	return notes, mapErr("sqlite.ListCreditNotes", rows.Err())
}

func (r *queries) CreditNoteForSale(ctx context.Context, saleID pos.SaleID) (pos.CreditNote, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+creditNoteColumns+` FROM credit_notes
		WHERE original_sale_id = ? LIMIT 1`, string(saleID))
	n, err := scanCreditNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pos.CreditNote{}, pos.NotFound("credit note for sale", string(saleID))
	}
	if err != nil {
		return pos.CreditNote{}, mapErr("sqlite.CreditNoteForSale", err)
	}
	return n, nil
}

func scanCreditNote(row scanner) (pos.CreditNote, error) {
	var (
		n              pos.CreditNote
		id, originalID string
		items          sql.NullString
		ts             string
	)
	err := row.Scan(&id, &n.CreditNoteNumber, &n.CustomerName, &n.Motive, &items, &n.Total,
		&originalID, &n.OriginalInvoiceNumber, &n.Notes, &n.CreatedBy, &ts)
	if err != nil {
		return pos.CreditNote{}, err
	}
	n.ID = pos.CreditNoteID(id)
	n.OriginalSaleID = pos.SaleID(originalID)
	n.Timestamp = parseTime(ts)
	if n.Items, err = decodeItems(items); err != nil {
		return pos.CreditNote{}, err
	}
	return n, nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

const productColumns = `id, name, sku, unit_price, cost_price, quantity, min_stock, active`

func (r *queries) GetProduct(ctx context.Context, id pos.ProductID) (pos.Product, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, string(id))
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pos.Product{}, pos.NotFound("product", string(id))
	}
	if err != nil {
		return pos.Product{}, mapErr("sqlite.GetProduct", err)
	}
	return p, nil
}

// AdjustQuantity adds delta in one statement. The CHECK constraint rejects
// a result below zero; callers clamp before calling.
func (r *queries) AdjustQuantity(ctx context.Context, id pos.ProductID, delta int) error {
	res, err := r.q.ExecContext(ctx, `UPDATE products SET quantity = quantity + ? WHERE id = ?`, delta, string(id))
	return affected("sqlite.AdjustQuantity", res, err, "product", string(id))
}

func (r *queries) SaveProduct(ctx context.Context, p pos.Product) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, sku = excluded.sku, unit_price = excluded.unit_price,
			cost_price = excluded.cost_price, quantity = excluded.quantity,
			min_stock = excluded.min_stock, active = excluded.active`,
		string(p.ID), p.Name, p.SKU, p.UnitPrice, p.CostPrice, p.Quantity, p.MinStock, p.Active,
	)
	return mapErr("sqlite.SaveProduct", err)
}

func (r *queries) ListProducts(ctx context.Context) ([]pos.Product, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY name, id`)
	if err != nil {
		return nil, mapErr("sqlite.ListProducts", err)
	}
	defer rows.Close()

	var products []pos.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, mapErr("sqlite.ListProducts", err)
		}
		products = append(products, p)
	}
	return products, mapErr("sqlite.ListProducts", rows.Err())
}

func scanProduct(row scanner) (pos.Product, error) {
	var (
		p  pos.Product
		id string
	)
	if err := row.Scan(&id, &p.Name, &p.SKU, &p.UnitPrice, &p.CostPrice, &p.Quantity, &p.MinStock, &p.Active); err != nil {
		return pos.Product{}, err
	}
	p.ID = pos.ProductID(id)
	return p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func encodeItems(items []pos.LineItem) (sql.NullString, error) {
	if items == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode items: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeItems(s sql.NullString) ([]pos.LineItem, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var items []pos.LineItem
	if err := json.Unmarshal([]byte(s.String), &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return items, nil
}

// filterClause renders SaleFilter bounds. To is inclusive.
func filterClause(f pos.SaleFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !f.From.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, formatTime(f.To))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func limitClause(f pos.SaleFilter) string {
	if f.Limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", f.Limit)
}

// mapErr turns driver errors into the pos error categories.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		switch serr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return &pos.ConflictError{Message: op + ": " + serr.Error()}
		case sqlite3.ErrConstraintCheck:
			return pos.Invalid("constraint", "%s: %s", op, serr.Error())
		}
	}
	return pos.Unavailable(op, err)
}

func affected(op string, res sql.Result, err error, kind, id string) error {
	if err != nil {
		return mapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(op, err)
	}
	if n == 0 {
		return pos.NotFound(kind, id)
	}
	return nil
}
