/*
Package ledger is the authoritative account/movement ledger ("cuenta corriente").

PURPOSE:
  Owns Accounts and Movements. Derives each movement's real amount from its
  nominal amount and discount, keeps every account balance equal to the
  signed sum of its movements, and mirrors payments into the sales records
  so that revenue reporting sees ledger collections without knowing about
  the ledger.

BALANCE STRATEGY:
  Account.Balance is a cache. Every movement write (record, update, delete)
  re-sums ALL movements of the account inside the same store transaction
  and writes the result. AccountsWithBalances re-derives on read and
  rewrites any cache that drifted. There is no incremental delta path.

RECORD MOVEMENT FLOW (single transaction):
  1. Validate type, amount, discount; load account (NotFound otherwise)
  2. Allocate an invoice number from the "sale" space, or raise the counter
     past a supplied number so it is never issued again
  3. Persist the movement with realAmount = amount * (1 - discount/100)
  4. Payment only: persist a mirrored Sale (total = realAmount, same number)
  5. Re-sum the account's movements and persist the balance

  Any failure rolls all of it back, so a successful call always leaves the
  mirrored sale consistent with its movement.

CONCURRENCY:
  Two concurrent writes on one account may each re-sum before the other's
  movement is visible on stores without serializable transactions. The next
  write or read re-sums and restores the invariant. Accepted for a
  single-operator point of sale.
*/
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/pos-ledger/pos"
	"github.com/warp/pos-ledger/sequence"
)

// DefaultPaymentConcept names the mirrored sale line when a payment has no concept.
const DefaultPaymentConcept = "Account payment"

// DefaultMovementLimit caps Movements when the caller passes no limit.
const DefaultMovementLimit = 100

type Service struct {
	store pos.TxStore
	now   func() time.Time
	log   zerolog.Logger
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l.With().Str("component", "ledger").Logger() }
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store pos.TxStore, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountInput struct {
	CustomerName string
	Email        string
	Phone        string
	Address      string
	Document     string
	CreditLimit  decimal.Decimal
	CreatedBy    string
}

func (in AccountInput) validate() error {
	if strings.TrimSpace(in.CustomerName) == "" {
		return pos.Invalid("customer_name", "is required")
	}
	if in.CreditLimit.IsNegative() {
		return pos.Invalid("credit_limit", "must not be negative")
	}
	return nil
}

// CreateAccount opens an active account with a zero balance.
func (s *Service) CreateAccount(ctx context.Context, in AccountInput) (pos.Account, error) {
	if err := in.validate(); err != nil {
		return pos.Account{}, err
	}
	now := s.now()
	a := pos.Account{
		ID:           pos.AccountID(pos.NewID()),
		CustomerName: strings.TrimSpace(in.CustomerName),
		Email:        in.Email,
		Phone:        in.Phone,
		Address:      in.Address,
		Document:     in.Document,
		CreditLimit:  in.CreditLimit,
		Balance:      decimal.Zero,
		Active:       true,
		CreatedBy:    in.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertAccount(ctx, a); err != nil {
		return pos.Account{}, pos.Unavailable("ledger.CreateAccount", err)
	}
	s.log.Info().Str("account_id", string(a.ID)).Str("customer", a.CustomerName).Msg("account created")
	return a, nil
}

// Account returns one account with a freshly derived balance.
func (s *Service) Account(ctx context.Context, id pos.AccountID) (pos.Account, error) {
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return pos.Account{}, pos.Unavailable("ledger.Account", err)
	}
	movements, err := s.store.ListMovements(ctx, id)
	if err != nil {
		return pos.Account{}, pos.Unavailable("ledger.Account", err)
	}
	a.Balance = pos.ComputeBalance(movements)
	return a, nil
}

// AccountPatch updates descriptive fields. Nil fields are left unchanged.
// Balance is never patchable.
type AccountPatch struct {
	CustomerName *string
	Email        *string
	Phone        *string
	Address      *string
	Document     *string
	CreditLimit  *decimal.Decimal
	Active       *bool
}

// UpdateAccount renames an account or edits its contact data.
func (s *Service) UpdateAccount(ctx context.Context, id pos.AccountID, p AccountPatch) (pos.Account, error) {
	var updated pos.Account
	err := s.store.WithTx(ctx, func(tx pos.Store) error {
		a, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if p.CustomerName != nil {
			name := strings.TrimSpace(*p.CustomerName)
			if name == "" {
				return pos.Invalid("customer_name", "is required")
			}
			a.CustomerName = name
		}
		if p.CreditLimit != nil {
			if p.CreditLimit.IsNegative() {
				return pos.Invalid("credit_limit", "must not be negative")
			}
			a.CreditLimit = *p.CreditLimit
		}
		setIf(&a.Email, p.Email)
		setIf(&a.Phone, p.Phone)
		setIf(&a.Address, p.Address)
		setIf(&a.Document, p.Document)
		if p.Active != nil {
			a.Active = *p.Active
		}
		a.UpdatedAt = s.now()
		if err := tx.UpdateAccount(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return pos.Account{}, pos.Unavailable("ledger.UpdateAccount", err)
	}
	return updated, nil
}

// DeleteAccount removes the account together with all of its movements.
// Mirrored sales stay: they are revenue facts.
func (s *Service) DeleteAccount(ctx context.Context, id pos.AccountID) error {
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return pos.Unavailable("ledger.DeleteAccount", err)
	}
	s.log.Info().Str("account_id", string(id)).Msg("account deleted with its movements")
	return nil
}

// AccountsWithBalances returns every account with a balance re-derived from
// its movements. A cached balance that disagrees is rewritten.
func (s *Service) AccountsWithBalances(ctx context.Context) ([]pos.Account, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, pos.Unavailable("ledger.AccountsWithBalances", err)
	}
	for i := range accounts {
		movements, err := s.store.ListMovements(ctx, accounts[i].ID)
		if err != nil {
			return nil, pos.Unavailable("ledger.AccountsWithBalances", err)
		}
		fresh := pos.ComputeBalance(movements)
		if !fresh.Equal(accounts[i].Balance) {
			s.log.Warn().
				Str("account_id", string(accounts[i].ID)).
				Str("cached", accounts[i].Balance.String()).
				Str("derived", fresh.String()).
				Msg("cached balance drifted, rewriting")
			if err := s.store.SetAccountBalance(ctx, accounts[i].ID, fresh); err != nil {
				return nil, pos.Unavailable("ledger.AccountsWithBalances", err)
			}
		}
		accounts[i].Balance = fresh
	}
	return accounts, nil
}

// PaidOffAccounts returns accounts whose |balance| < 0.01.
func (s *Service) PaidOffAccounts(ctx context.Context) ([]pos.Account, error) {
	accounts, err := s.AccountsWithBalances(ctx)
	if err != nil {
		return nil, err
	}
	var paid []pos.Account
	for _, a := range accounts {
		if a.IsPaidOff() {
			paid = append(paid, a)
		}
	}
	return paid, nil
}

// RecomputeAll rewrites every cached balance from movements inside one
// transaction per account. Returns how many caches changed.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return 0, pos.Unavailable("ledger.RecomputeAll", err)
	}
	changed := 0
	for _, a := range accounts {
		var before, after decimal.Decimal
		err := s.store.WithTx(ctx, func(tx pos.Store) error {
			current, err := tx.GetAccount(ctx, a.ID)
			if err != nil {
				return err
			}
			before = current.Balance
			after, err = recompute(ctx, tx, a.ID)
			return err
		})
		if err != nil {
			return changed, pos.Unavailable("ledger.RecomputeAll", err)
		}
		if !before.Equal(after) {
			changed++
		}
	}
	s.log.Info().Int("accounts", len(accounts)).Int("changed", changed).Msg("balances recomputed")
	return changed, nil
}

// =============================================================================
// MOVEMENTS
// =============================================================================

type MovementInput struct {
	AccountID       pos.AccountID
	Type            pos.MovementType
	Amount          decimal.Decimal
	DiscountPercent decimal.Decimal
	Concept         string
	Items           []pos.LineItem
	Notes           string
	// InvoiceNumber is allocated from the "sale" space when zero. A supplied
	// number raises the counter so the allocator never repeats it.
	InvoiceNumber int64
	CreatedBy     string
}

func (in MovementInput) validate() error {
	if !in.Type.Valid() {
		return pos.Invalid("type", "must be %q or %q, got %q", pos.MovementCharge, pos.MovementPayment, in.Type)
	}
	if err := pos.ValidateAmounts(in.Amount, in.DiscountPercent); err != nil {
		return err
	}
	if in.InvoiceNumber < 0 {
		return pos.Invalid("invoice_number", "must be positive")
	}
	return nil
}

// RecordMovement writes a charge or payment and everything that follows
// from it in one transaction. See the package comment for the flow.
func (s *Service) RecordMovement(ctx context.Context, in MovementInput) (pos.Movement, error) {
	if err := in.validate(); err != nil {
		return pos.Movement{}, err
	}

	var (
		recorded pos.Movement
		balance  decimal.Decimal
		mirrored pos.SaleID
	)
	err := s.store.WithTx(ctx, func(tx pos.Store) error {
		account, err := tx.GetAccount(ctx, in.AccountID)
		if err != nil {
			return err
		}

		alloc := sequence.New(tx)
		number := in.InvoiceNumber
		if number == 0 {
			number, err = alloc.NextSale(ctx)
		} else {
			err = alloc.Reserve(ctx, pos.SpaceSale, number)
		}
		if err != nil {
			return err
		}

		m := pos.Movement{
			ID:              pos.MovementID(pos.NewID()),
			AccountID:       in.AccountID,
			Type:            in.Type,
			Amount:          in.Amount,
			DiscountPercent: in.DiscountPercent,
			RealAmount:      pos.RealAmount(in.Amount, in.DiscountPercent),
			InvoiceNumber:   number,
			Concept:         strings.TrimSpace(in.Concept),
			Items:           in.Items,
			Notes:           in.Notes,
			CreatedBy:       in.CreatedBy,
			Timestamp:       s.now(),
		}
		if err := tx.InsertMovement(ctx, m); err != nil {
			return err
		}

		if m.Type == pos.MovementPayment {
			sale := mirrorPayment(account, m)
			if err := tx.InsertSale(ctx, sale); err != nil {
				return err
			}
			mirrored = sale.ID
		}

		balance, err = recompute(ctx, tx, in.AccountID)
		if err != nil {
			return err
		}
		recorded = m
		return nil
	})
	if err != nil {
		return pos.Movement{}, pos.Unavailable("ledger.RecordMovement", err)
	}

	ev := s.log.Info().
		Str("account_id", string(recorded.AccountID)).
		Str("movement_id", string(recorded.ID)).
		Str("type", string(recorded.Type)).
		Str("real_amount", recorded.RealAmount.String()).
		Int64("invoice_number", recorded.InvoiceNumber).
		Str("balance", balance.String())
	if mirrored != "" {
		ev = ev.Str("mirrored_sale_id", string(mirrored))
	}
	ev.Msg("movement recorded")
	return recorded, nil
}

// MovementPatch edits a movement. Nil fields are left unchanged; the real
// amount is always recomputed.
type MovementPatch struct {
	Amount          *decimal.Decimal
	DiscountPercent *decimal.Decimal
	Concept         *string
	Notes           *string
}

// UpdateMovement applies p and re-sums the owning account.
// The mirrored sale of a payment is a revenue fact and is not rewritten.
func (s *Service) UpdateMovement(ctx context.Context, id pos.MovementID, p MovementPatch) (pos.Movement, error) {
	var updated pos.Movement
	err := s.store.WithTx(ctx, func(tx pos.Store) error {
		m, err := tx.GetMovement(ctx, id)
		if err != nil {
			return err
		}
		if p.Amount != nil {
			m.Amount = *p.Amount
		}
		if p.DiscountPercent != nil {
			m.DiscountPercent = *p.DiscountPercent
		}
		if err := pos.ValidateAmounts(m.Amount, m.DiscountPercent); err != nil {
			return err
		}
		if p.Concept != nil {
			m.Concept = strings.TrimSpace(*p.Concept)
		}
		setIf(&m.Notes, p.Notes)
		m.RealAmount = pos.RealAmount(m.Amount, m.DiscountPercent)

		if err := tx.UpdateMovement(ctx, m); err != nil {
			return err
		}
		if _, err := recompute(ctx, tx, m.AccountID); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return pos.Movement{}, pos.Unavailable("ledger.UpdateMovement", err)
	}
	s.log.Info().Str("movement_id", string(id)).Str("real_amount", updated.RealAmount.String()).Msg("movement updated")
	return updated, nil
}

// DeleteMovement removes a movement and re-sums the owning account.
func (s *Service) DeleteMovement(ctx context.Context, id pos.MovementID) error {
	err := s.store.WithTx(ctx, func(tx pos.Store) error {
		m, err := tx.GetMovement(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteMovement(ctx, id); err != nil {
			return err
		}
		_, err = recompute(ctx, tx, m.AccountID)
		return err
	})
	if err != nil {
		return pos.Unavailable("ledger.DeleteMovement", err)
	}
	s.log.Info().Str("movement_id", string(id)).Msg("movement deleted")
	return nil
}

// Movements lists an account's movements newest first, at most limit
// (DefaultMovementLimit when limit <= 0).
func (s *Service) Movements(ctx context.Context, accountID pos.AccountID, limit int) ([]pos.Movement, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, pos.Unavailable("ledger.Movements", err)
	}
	movements, err := s.store.ListMovements(ctx, accountID)
	if err != nil {
		return nil, pos.Unavailable("ledger.Movements", err)
	}
	if limit <= 0 {
		limit = DefaultMovementLimit
	}
	if len(movements) > limit {
		movements = movements[:limit]
	}
	return movements, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// recompute re-sums every stored movement of the account and persists it.
func recompute(ctx context.Context, tx pos.Store, id pos.AccountID) (decimal.Decimal, error) {
	movements, err := tx.ListMovements(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	balance := pos.ComputeBalance(movements)
	if err := tx.SetAccountBalance(ctx, id, balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// mirrorPayment builds the sale that carries a payment into revenue reporting.
// It has no stock effect.
func mirrorPayment(account pos.Account, m pos.Movement) pos.Sale {
	concept := m.Concept
	if concept == "" {
		concept = DefaultPaymentConcept
	}
	return pos.Sale{
		ID:            pos.SaleID(pos.NewID()),
		InvoiceNumber: m.InvoiceNumber,
		CustomerName:  account.CustomerName,
		Items: []pos.LineItem{{
			Name:      concept,
			UnitPrice: m.RealAmount,
			Quantity:  1,
		}},
		Total:         m.RealAmount,
		Kind:          pos.SaleKindAccountPayment,
		PaymentMethod: pos.PaymentCash,
		MovementID:    m.ID,
		CreatedBy:     m.CreatedBy,
		Timestamp:     m.Timestamp,
	}
}

func setIf(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
