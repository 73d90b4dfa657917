/*
Package gormdb provides a gorm-backed pos.TxStore.

PURPOSE:
  Multi-terminal deployments share one PostgreSQL database. This store runs
  the same semantics as store/sqlite through gorm so either dialect works:

    gormdb.OpenPostgres(os.Getenv("DATABASE_URL"))
    gormdb.OpenSQLite("file:pos?mode=memory&cache=shared")   // tests

NUMBER ALLOCATION:
  One upsert per call, never max()+1:

    INSERT INTO counters (space, value) VALUES (?, 1)
    ON CONFLICT (space) DO UPDATE SET value = counters.value + 1
    RETURNING value

  PostgreSQL row-locks the counter for the duration of the statement, so
  concurrent terminals each get a distinct number.

TRANSACTIONS:
  WithTx wraps gorm's Transaction. The Store handed to fn is bound to the
  transaction handle; nested WithTx calls become savepoints.

COLUMNS:
  Money is stored as TEXT and round-trips through decimal.Decimal's
  Scanner/Valuer, exact on both dialects.
*/
package gormdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/warp/pos-ledger/pos"
)

// =============================================================================
// MODELS
// =============================================================================

type counterRow struct {
	Space string `gorm:"primaryKey"`
	Value int64  `gorm:"not null"`
}

func (counterRow) TableName() string { return "counters" }

type accountRow struct {
	ID           string `gorm:"primaryKey"`
	CustomerName string `gorm:"not null"`
	Email        string
	Phone        string
	Address      string
	Document     string
	CreditLimit  decimal.Decimal `gorm:"type:text;not null"`
	Balance      decimal.Decimal `gorm:"type:text;not null"`
	Active       bool
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (accountRow) TableName() string { return "accounts" }

type movementRow struct {
	ID              string          `gorm:"primaryKey"`
	AccountID       string          `gorm:"index:idx_movements_account_ts;not null"`
	Type            string          `gorm:"not null"`
	Amount          decimal.Decimal `gorm:"type:text;not null"`
	DiscountPercent decimal.Decimal `gorm:"type:text;not null"`
	RealAmount      decimal.Decimal `gorm:"type:text;not null"`
	InvoiceNumber   int64           `gorm:"not null"`
	Concept         string
	ItemsJSON       string `gorm:"type:text"`
	Notes           string
	CreatedBy       string
	Timestamp       time.Time `gorm:"index:idx_movements_account_ts"`
}

func (movementRow) TableName() string { return "movements" }

type saleRow struct {
	ID            string `gorm:"primaryKey"`
	InvoiceNumber int64  `gorm:"not null"`
	CustomerName  string
	ItemsJSON     string          `gorm:"type:text"`
	Total         decimal.Decimal `gorm:"type:text;not null"`
	Kind          string          `gorm:"not null;default:sale"`
	PaymentMethod string
	MovementID    string
	CreatedBy     string
	Timestamp     time.Time `gorm:"index"`
}

func (saleRow) TableName() string { return "sales" }

type creditNoteRow struct {
	ID                    string `gorm:"primaryKey"`
	CreditNoteNumber      int64  `gorm:"not null"`
	CustomerName          string `gorm:"not null"`
	Motive                string `gorm:"not null"`
	ItemsJSON             string          `gorm:"type:text"`
	Total                 decimal.Decimal `gorm:"type:text;not null"`
	OriginalSaleID        string          `gorm:"index"`
	OriginalInvoiceNumber int64
	Notes                 string
	CreatedBy             string
	Timestamp             time.Time `gorm:"index"`
}

func (creditNoteRow) TableName() string { return "credit_notes" }

type productRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	SKU       string
	UnitPrice decimal.Decimal `gorm:"type:text;not null"`
	CostPrice decimal.Decimal `gorm:"type:text;not null"`
	Quantity  int             `gorm:"not null"`
	MinStock  int
	Active    bool
}

func (productRow) TableName() string { return "products" }

var models = []any{
	&counterRow{}, &accountRow{}, &movementRow{}, &saleRow{}, &creditNoteRow{}, &productRow{},
}

// =============================================================================
// STORE
// =============================================================================

// Store implements pos.TxStore on a *gorm.DB.
type Store struct {
	db *gorm.DB
}

var _ pos.TxStore = (*Store)(nil)

// Config tunes Open.
type Config struct {
	// Debug logs every SQL statement through gorm's logger.
	Debug bool
}

func gormConfig(cfg Config) *gorm.Config {
	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	return &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	}
}

// OpenPostgres connects to dsn and migrates the schema.
func OpenPostgres(dsn string, cfg Config) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return open(db)
}

// OpenSQLite opens a SQLite database through gorm. Capped at one connection
// so shared in-memory databases behave like a single file.
func OpenSQLite(dsn string, cfg Config) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return open(db)
}

func open(db *gorm.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate runs AutoMigrate and raises each counter to the highest number
// already stored in its space.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	return db.Transaction(func(tx *gorm.DB) error {
		var sales, movements, notes int64
		if err := tx.Model(&saleRow{}).Select("COALESCE(MAX(invoice_number), 0)").Scan(&sales).Error; err != nil {
			return err
		}
		if err := tx.Model(&movementRow{}).Select("COALESCE(MAX(invoice_number), 0)").Scan(&movements).Error; err != nil {
			return err
		}
		if err := tx.Model(&creditNoteRow{}).Select("COALESCE(MAX(credit_note_number), 0)").Scan(&notes).Error; err != nil {
			return err
		}
		if err := raiseCounter(tx, pos.SpaceSale, max(sales, movements)); err != nil {
			return err
		}
		return raiseCounter(tx, pos.SpaceCreditNote, notes)
	})
}

// raiseCounter upserts the counter row, keeping the larger of the stored
// and requested values. The CASE form runs on both PostgreSQL and SQLite.
func raiseCounter(db *gorm.DB, space pos.Space, floor int64) error {
	row := counterRow{Space: string(space), Value: floor}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "space"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value": gorm.Expr("CASE WHEN counters.value < excluded.value THEN excluded.value ELSE counters.value END"),
		}),
	}).Create(&row).Error
}

// WithTx executes fn within a gorm transaction.
func (s *Store) WithTx(ctx context.Context, fn func(pos.Store) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
	if err != nil {
		return mapErr("gormdb.WithTx", err)
	}
	return nil
}

// =============================================================================
// COUNTERS
// =============================================================================

func (s *Store) NextNumber(ctx context.Context, space pos.Space) (int64, error) {
	if !space.Valid() {
		return 0, pos.Invalid("space", "unknown numbering space %q", space)
	}
	row := counterRow{Space: string(space), Value: 1}
	err := s.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "space"}},
			DoUpdates: clause.Assignments(map[string]any{"value": gorm.Expr("counters.value + 1")}),
		},
		clause.Returning{Columns: []clause.Column{{Name: "value"}}},
	).Create(&row).Error
	if err != nil {
		return 0, mapErr("gormdb.NextNumber", err)
	}
	return row.Value, nil
}

func (s *Store) RaiseCounter(ctx context.Context, space pos.Space, value int64) error {
	if !space.Valid() {
		return pos.Invalid("space", "unknown numbering space %q", space)
	}
	return mapErr("gormdb.RaiseCounter", raiseCounter(s.db.WithContext(ctx), space, value))
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) InsertAccount(ctx context.Context, a pos.Account) error {
	row := toAccountRow(a)
	return mapErr("gormdb.InsertAccount", s.db.WithContext(ctx).Create(&row).Error)
}

func (s *Store) GetAccount(ctx context.Context, id pos.AccountID) (pos.Account, error) {
	var row accountRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		return pos.Account{}, notFoundOr(err, "account", string(id), "gormdb.GetAccount")
	}
	return row.toDomain(), nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]pos.Account, error) {
	var rows []accountRow
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, mapErr("gormdb.ListAccounts", err)
	}
	out := make([]pos.Account, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// UpdateAccount writes descriptive fields only. Balance goes through
// SetAccountBalance.
func (s *Store) UpdateAccount(ctx context.Context, a pos.Account) error {
	res := s.db.WithContext(ctx).Model(&accountRow{}).Where("id = ?", string(a.ID)).Updates(map[string]any{
		"customer_name": a.CustomerName,
		"email":         a.Email,
		"phone":         a.Phone,
		"address":       a.Address,
		"document":      a.Document,
		"credit_limit":  a.CreditLimit,
		"active":        a.Active,
		"updated_at":    a.UpdatedAt.UTC(),
	})
	return affected("gormdb.UpdateAccount", res, "account", string(a.ID))
}

func (s *Store) SetAccountBalance(ctx context.Context, id pos.AccountID, balance decimal.Decimal) error {
	res := s.db.WithContext(ctx).Model(&accountRow{}).Where("id = ?", string(id)).Update("balance", balance)
	return affected("gormdb.SetAccountBalance", res, "account", string(id))
}

// DeleteAccount removes movements first, then the account, in one transaction.
func (s *Store) DeleteAccount(ctx context.Context, id pos.AccountID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", string(id)).Delete(&movementRow{}).Error; err != nil {
			return err
		}
		return affected("gormdb.DeleteAccount", tx.Where("id = ?", string(id)).Delete(&accountRow{}), "account", string(id))
	})
	return mapErr("gormdb.DeleteAccount", err)
}

// =============================================================================
// MOVEMENTS
// =============================================================================

func (s *Store) InsertMovement(ctx context.Context, m pos.Movement) error {
	if _, err := s.GetAccount(ctx, m.AccountID); err != nil {
		return err
	}
	row, err := toMovementRow(m)
	if err != nil {
		return err
	}
	return mapErr("gormdb.InsertMovement", s.db.WithContext(ctx).Create(&row).Error)
}

func (s *Store) GetMovement(ctx context.Context, id pos.MovementID) (pos.Movement, error) {
	var row movementRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		return pos.Movement{}, notFoundOr(err, "movement", string(id), "gormdb.GetMovement")
	}
	return row.toDomain()
}

func (s *Store) UpdateMovement(ctx context.Context, m pos.Movement) error {
	res := s.db.WithContext(ctx).Model(&movementRow{}).Where("id = ?", string(m.ID)).Updates(map[string]any{
		"amount":           m.Amount,
		"discount_percent": m.DiscountPercent,
		"real_amount":      m.RealAmount,
		"concept":          m.Concept,
		"notes":            m.Notes,
	})
	return affected("gormdb.UpdateMovement", res, "movement", string(m.ID))
}

func (s *Store) DeleteMovement(ctx context.Context, id pos.MovementID) error {
	res := s.db.WithContext(ctx).Where("id = ?", string(id)).Delete(&movementRow{})
	return affected("gormdb.DeleteMovement", res, "movement", string(id))
}

func (s *Store) ListMovements(ctx context.Context, accountID pos.AccountID) ([]pos.Movement, error) {
	var rows []movementRow
	err := s.db.WithContext(ctx).
		Where("account_id = ?", string(accountID)).
		Order("timestamp DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, mapErr("gormdb.ListMovements", err)
	}
	out := make([]pos.Movement, len(rows))
	for i, r := range rows {
		m, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

// =============================================================================
// SALES & CREDIT NOTES
// =============================================================================

func (s *Store) InsertSale(ctx context.Context, sale pos.Sale) error {
	row, err := toSaleRow(sale)
	if err != nil {
		return err
	}
	return mapErr("gormdb.InsertSale", s.db.WithContext(ctx).Create(&row).Error)
}

func (s *Store) GetSale(ctx context.Context, id pos.SaleID) (pos.Sale, error) {
	var row saleRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		return pos.Sale{}, notFoundOr(err, "sale", string(id), "gormdb.GetSale")
	}
	return row.toDomain()
}

func (s *Store) UpdateSale(ctx context.Context, sale pos.Sale) error {
	res := s.db.WithContext(ctx).Model(&saleRow{}).Where("id = ?", string(sale.ID)).
		Updates(map[string]any{"customer_name": sale.CustomerName, "payment_method": string(sale.PaymentMethod)})
	return affected("gormdb.UpdateSale", res, "sale", string(sale.ID))
}

func (s *Store) ListSales(ctx context.Context, f pos.SaleFilter) ([]pos.Sale, error) {
	var rows []saleRow
	if err := filtered(s.db.WithContext(ctx), f).Find(&rows).Error; err != nil {
		return nil, mapErr("gormdb.ListSales", err)
	}
	out := make([]pos.Sale, len(rows))
	for i, r := range rows {
		sale, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out[i] = sale
	}
	return out, nil
}

func (s *Store) InsertCreditNote(ctx context.Context, n pos.CreditNote) error {
	if n.OriginalSaleID != "" {
		var count int64
		err := s.db.WithContext(ctx).Model(&creditNoteRow{}).
			Where("original_sale_id = ?", string(n.OriginalSaleID)).Count(&count).Error
		if err != nil {
			return mapErr("gormdb.InsertCreditNote", err)
		}
		if count > 0 {
			return &pos.ConflictError{Message: "sale " + string(n.OriginalSaleID) + " already has a credit note"}
		}
	}
	row, err := toCreditNoteRow(n)
	if err != nil {
		return err
	}
	return mapErr("gormdb.InsertCreditNote", s.db.WithContext(ctx).Create(&row).Error)
}

func (s *Store) ListCreditNotes(ctx context.Context, f pos.SaleFilter) ([]pos.CreditNote, error) {
	var rows []creditNoteRow
	if err := filtered(s.db.WithContext(ctx), f).Find(&rows).Error; err != nil {
		return nil, mapErr("gormdb.ListCreditNotes", err)
	}
	out := make([]pos.CreditNote, len(rows))
	for i, r := range rows {
		n, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func (s *Store) CreditNoteForSale(ctx context.Context, saleID pos.SaleID) (pos.CreditNote, error) {
	var row creditNoteRow
	if err := s.db.WithContext(ctx).First(&row, "original_sale_id = ?", string(saleID)).Error; err != nil {
		return pos.CreditNote{}, notFoundOr(err, "credit note for sale", string(saleID), "gormdb.CreditNoteForSale")
	}
	return row.toDomain()
}

// filtered applies SaleFilter bounds (To inclusive), newest first.
func filtered(db *gorm.DB, f pos.SaleFilter) *gorm.DB {
	if !f.From.IsZero() {
		db = db.Where("timestamp >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		db = db.Where("timestamp <= ?", f.To.UTC())
	}
	db = db.Order("timestamp DESC").Order("id DESC")
	if f.Limit > 0 {
		db = db.Limit(f.Limit)
	}
	return db
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (s *Store) GetProduct(ctx context.Context, id pos.ProductID) (pos.Product, error) {
	var row productRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", string(id)).Error; err != nil {
		return pos.Product{}, notFoundOr(err, "product", string(id), "gormdb.GetProduct")
	}
	return row.toDomain(), nil
}

func (s *Store) AdjustQuantity(ctx context.Context, id pos.ProductID, delta int) error {
	res := s.db.WithContext(ctx).Model(&productRow{}).Where("id = ?", string(id)).
		Update("quantity", gorm.Expr("quantity + ?", delta))
	return affected("gormdb.AdjustQuantity", res, "product", string(id))
}

func (s *Store) SaveProduct(ctx context.Context, p pos.Product) error {
	row := productRow{
		ID: string(p.ID), Name: p.Name, SKU: p.SKU,
		UnitPrice: p.UnitPrice, CostPrice: p.CostPrice,
		Quantity: p.Quantity, MinStock: p.MinStock, Active: p.Active,
	}
	return mapErr("gormdb.SaveProduct", s.db.WithContext(ctx).Save(&row).Error)
}

func (s *Store) ListProducts(ctx context.Context) ([]pos.Product, error) {
	var rows []productRow
	if err := s.db.WithContext(ctx).Order("name").Order("id").Find(&rows).Error; err != nil {
		return nil, mapErr("gormdb.ListProducts", err)
	}
	out := make([]pos.Product, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAccountRow(a pos.Account) accountRow {
	return accountRow{
		ID: string(a.ID), CustomerName: a.CustomerName,
		Email: a.Email, Phone: a.Phone, Address: a.Address, Document: a.Document,
		CreditLimit: a.CreditLimit, Balance: a.Balance, Active: a.Active,
		CreatedBy: a.CreatedBy, CreatedAt: a.CreatedAt.UTC(), UpdatedAt: a.UpdatedAt.UTC(),
	}
}

func (r accountRow) toDomain() pos.Account {
	return pos.Account{
		ID: pos.AccountID(r.ID), CustomerName: r.CustomerName,
		Email: r.Email, Phone: r.Phone, Address: r.Address, Document: r.Document,
		CreditLimit: r.CreditLimit, Balance: r.Balance, Active: r.Active,
		CreatedBy: r.CreatedBy, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func toMovementRow(m pos.Movement) (movementRow, error) {
	items, err := encodeItems(m.Items)
	if err != nil {
		return movementRow{}, err
	}
	return movementRow{
		ID: string(m.ID), AccountID: string(m.AccountID), Type: string(m.Type),
		Amount: m.Amount, DiscountPercent: m.DiscountPercent, RealAmount: m.RealAmount,
		InvoiceNumber: m.InvoiceNumber, Concept: m.Concept, ItemsJSON: items,
		Notes: m.Notes, CreatedBy: m.CreatedBy, Timestamp: m.Timestamp.UTC(),
	}, nil
}

func (r movementRow) toDomain() (pos.Movement, error) {
	items, err := decodeItems(r.ItemsJSON)
	if err != nil {
		return pos.Movement{}, err
	}
	return pos.Movement{
		ID: pos.MovementID(r.ID), AccountID: pos.AccountID(r.AccountID), Type: pos.MovementType(r.Type),
		Amount: r.Amount, DiscountPercent: r.DiscountPercent, RealAmount: r.RealAmount,
		InvoiceNumber: r.InvoiceNumber, Concept: r.Concept, Items: items,
		Notes: r.Notes, CreatedBy: r.CreatedBy, Timestamp: r.Timestamp.UTC(),
	}, nil
}

func toSaleRow(s pos.Sale) (saleRow, error) {
	items, err := encodeItems(s.Items)
	if err != nil {
		return saleRow{}, err
	}
	return saleRow{
		ID: string(s.ID), InvoiceNumber: s.InvoiceNumber, CustomerName: s.CustomerName,
		ItemsJSON: items, Total: s.Total, Kind: string(s.Kind),
		PaymentMethod: string(s.PaymentMethod), MovementID: string(s.MovementID),
		CreatedBy: s.CreatedBy, Timestamp: s.Timestamp.UTC(),
	}, nil
}

func (r saleRow) toDomain() (pos.Sale, error) {
	items, err := decodeItems(r.ItemsJSON)
	if err != nil {
		return pos.Sale{}, err
	}
	return pos.Sale{
		ID: pos.SaleID(r.ID), InvoiceNumber: r.InvoiceNumber, CustomerName: r.CustomerName,
		Items: items, Total: r.Total, Kind: pos.SaleKind(r.Kind),
		PaymentMethod: pos.PaymentMethod(r.PaymentMethod), MovementID: pos.MovementID(r.MovementID),
		CreatedBy: r.CreatedBy, Timestamp: r.Timestamp.UTC(),
	}, nil
}

func toCreditNoteRow(n pos.CreditNote) (creditNoteRow, error) {
	items, err := encodeItems(n.Items)
	if err != nil {
		return creditNoteRow{}, err
	}
	return creditNoteRow{
		ID: string(n.ID), CreditNoteNumber: n.CreditNoteNumber, CustomerName: n.CustomerName,
		Motive: n.Motive, ItemsJSON: items, Total: n.Total,
		OriginalSaleID: string(n.OriginalSaleID), OriginalInvoiceNumber: n.OriginalInvoiceNumber,
		Notes: n.Notes, CreatedBy: n.CreatedBy, Timestamp: n.Timestamp.UTC(),
	}, nil
}

func (r creditNoteRow) toDomain() (pos.CreditNote, error) {
	items, err := decodeItems(r.ItemsJSON)
	if err != nil {
		return pos.CreditNote{}, err
	}
	return pos.CreditNote{
		ID: pos.CreditNoteID(r.ID), CreditNoteNumber: r.CreditNoteNumber, CustomerName: r.CustomerName,
		Motive: r.Motive, Items: items, Total: r.Total,
		OriginalSaleID: pos.SaleID(r.OriginalSaleID), OriginalInvoiceNumber: r.OriginalInvoiceNumber,
		Notes: r.Notes, CreatedBy: r.CreatedBy, Timestamp: r.Timestamp.UTC(),
	}, nil
}

func (r productRow) toDomain() pos.Product {
	return pos.Product{
		ID: pos.ProductID(r.ID), Name: r.Name, SKU: r.SKU,
		UnitPrice: r.UnitPrice, CostPrice: r.CostPrice,
		Quantity: r.Quantity, MinStock: r.MinStock, Active: r.Active,
	}
}

func encodeItems(items []pos.LineItem) (string, error) {
	if items == nil {
		return "", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode items: %w", err)
	}
	return string(b), nil
}

func decodeItems(s string) ([]pos.LineItem, error) {
	if s == "" {
		return nil, nil
	}
	var items []pos.LineItem
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return items, nil
}

// =============================================================================
// ERRORS
// =============================================================================

func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &pos.ConflictError{Message: op + ": duplicate key"}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pos.NotFound("record", op)
	}
	return pos.Unavailable(op, err)
}

func notFoundOr(err error, kind, id, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pos.NotFound(kind, id)
	}
	return mapErr(op, err)
}

func affected(op string, res *gorm.DB, kind, id string) error {
	if res.Error != nil {
		return mapErr(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return pos.NotFound(kind, id)
	}
	return nil
}
