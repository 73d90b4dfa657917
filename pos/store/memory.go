// Package store provides an in-memory pos.TxStore.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pos-ledger/pos"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory guards a single state value with one mutex. Every exported method
// takes the lock, so NextNumber is an atomic increment-and-fetch.
type Memory struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	accounts    map[pos.AccountID]pos.Account
	movements   map[pos.MovementID]pos.Movement
	sales       map[pos.SaleID]pos.Sale
	creditNotes map[pos.CreditNoteID]pos.CreditNote
	products    map[pos.ProductID]pos.Product
	counters    map[pos.Space]int64
}

func NewMemory() *Memory {
	return &Memory{state: newState()}
}

func newState() *state {
	return &state{
		accounts:    make(map[pos.AccountID]pos.Account),
		movements:   make(map[pos.MovementID]pos.Movement),
		sales:       make(map[pos.SaleID]pos.Sale),
		creditNotes: make(map[pos.CreditNoteID]pos.CreditNote),
		products:    make(map[pos.ProductID]pos.Product),
		counters:    make(map[pos.Space]int64),
	}
}

// SeedCounter sets a counter to at least value. Used when importing data
// numbered elsewhere.
func (m *Memory) SeedCounter(space pos.Space, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.raise(space, value)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against a copy of the state and swaps it in on success.
// The lock is held for the whole call, so transactions are serialized.
func (m *Memory) WithTx(ctx context.Context, fn func(pos.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.movements {
		c.movements[k] = v
	}
	for k, v := range s.sales {
		c.sales[k] = v
	}
	for k, v := range s.creditNotes {
		c.creditNotes[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.counters {
		c.counters[k] = v
	}
	return c
}

// =============================================================================
// LOCKED WRAPPERS
// =============================================================================

func (m *Memory) NextNumber(ctx context.Context, space pos.Space) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.NextNumber(ctx, space)
}

func (m *Memory) RaiseCounter(ctx context.Context, space pos.Space, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.RaiseCounter(ctx, space, value)
}

func (m *Memory) InsertAccount(ctx context.Context, a pos.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertAccount(ctx, a)
}

func (m *Memory) GetAccount(ctx context.Context, id pos.AccountID) (pos.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetAccount(ctx, id)
}

func (m *Memory) ListAccounts(ctx context.Context) ([]pos.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListAccounts(ctx)
}

func (m *Memory) UpdateAccount(ctx context.Context, a pos.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateAccount(ctx, a)
}

func (m *Memory) SetAccountBalance(ctx context.Context, id pos.AccountID, balance decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SetAccountBalance(ctx, id, balance)
}

func (m *Memory) DeleteAccount(ctx context.Context, id pos.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DeleteAccount(ctx, id)
}

func (m *Memory) InsertMovement(ctx context.Context, mv pos.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertMovement(ctx, mv)
}

func (m *Memory) GetMovement(ctx context.Context, id pos.MovementID) (pos.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetMovement(ctx, id)
}

func (m *Memory) UpdateMovement(ctx context.Context, mv pos.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateMovement(ctx, mv)
}

func (m *Memory) DeleteMovement(ctx context.Context, id pos.MovementID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.DeleteMovement(ctx, id)
}

func (m *Memory) ListMovements(ctx context.Context, accountID pos.AccountID) ([]pos.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListMovements(ctx, accountID)
}

func (m *Memory) InsertSale(ctx context.Context, s pos.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertSale(ctx, s)
}

func (m *Memory) GetSale(ctx context.Context, id pos.SaleID) (pos.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetSale(ctx, id)
}

func (m *Memory) UpdateSale(ctx context.Context, s pos.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.UpdateSale(ctx, s)
}

func (m *Memory) ListSales(ctx context.Context, f pos.SaleFilter) ([]pos.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListSales(ctx, f)
}

func (m *Memory) InsertCreditNote(ctx context.Context, n pos.CreditNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.InsertCreditNote(ctx, n)
}

func (m *Memory) ListCreditNotes(ctx context.Context, f pos.SaleFilter) ([]pos.CreditNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListCreditNotes(ctx, f)
}

func (m *Memory) CreditNoteForSale(ctx context.Context, saleID pos.SaleID) (pos.CreditNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CreditNoteForSale(ctx, saleID)
}

func (m *Memory) GetProduct(ctx context.Context, id pos.ProductID) (pos.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.GetProduct(ctx, id)
}

func (m *Memory) AdjustQuantity(ctx context.Context, id pos.ProductID, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.AdjustQuantity(ctx, id, delta)
}

func (m *Memory) SaveProduct(ctx context.Context, p pos.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SaveProduct(ctx, p)
}

func (m *Memory) ListProducts(ctx context.Context) ([]pos.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.ListProducts(ctx)
}

// =============================================================================
// STATE - unlocked implementation, also the view handed to WithTx callbacks
// =============================================================================

func (s *state) NextNumber(_ context.Context, space pos.Space) (int64, error) {
	if !space.Valid() {
		return 0, pos.Invalid("space", "unknown numbering space %q", space)
	}
	s.counters[space]++
	return s.counters[space], nil
}

func (s *state) RaiseCounter(_ context.Context, space pos.Space, value int64) error {
	if !space.Valid() {
		return pos.Invalid("space", "unknown numbering space %q", space)
	}
	s.raise(space, value)
	return nil
}

func (s *state) raise(space pos.Space, value int64) {
	if s.counters[space] < value {
		s.counters[space] = value
	}
}

func (s *state) InsertAccount(_ context.Context, a pos.Account) error {
	if _, ok := s.accounts[a.ID]; ok {
		return &pos.ConflictError{Message: "account " + string(a.ID) + " already exists"}
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *state) GetAccount(_ context.Context, id pos.AccountID) (pos.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return pos.Account{}, pos.NotFound("account", string(id))
	}
	return a, nil
}

func (s *state) ListAccounts(_ context.Context) ([]pos.Account, error) {
	result := make([]pos.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *state) UpdateAccount(_ context.Context, a pos.Account) error {
	if _, ok := s.accounts[a.ID]; !ok {
		return pos.NotFound("account", string(a.ID))
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *state) SetAccountBalance(_ context.Context, id pos.AccountID, balance decimal.Decimal) error {
	a, ok := s.accounts[id]
	if !ok {
		return pos.NotFound("account", string(id))
	}
	a.Balance = balance
	s.accounts[id] = a
	return nil
}

func (s *state) DeleteAccount(_ context.Context, id pos.AccountID) error {
	if _, ok := s.accounts[id]; !ok {
		return pos.NotFound("account", string(id))
	}
	for mid, mv := range s.movements {
		if mv.AccountID == id {
			delete(s.movements, mid)
		}
	}
	delete(s.accounts, id)
	return nil
}

func (s *state) InsertMovement(_ context.Context, m pos.Movement) error {
	if _, ok := s.accounts[m.AccountID]; !ok {
		return pos.NotFound("account", string(m.AccountID))
	}
	m.Items = copyItems(m.Items)
	s.movements[m.ID] = m
	return nil
}

func (s *state) GetMovement(_ context.Context, id pos.MovementID) (pos.Movement, error) {
	m, ok := s.movements[id]
	if !ok {
		return pos.Movement{}, pos.NotFound("movement", string(id))
	}
	m.Items = copyItems(m.Items)
	return m, nil
}

func (s *state) UpdateMovement(_ context.Context, m pos.Movement) error {
	if _, ok := s.movements[m.ID]; !ok {
		return pos.NotFound("movement", string(m.ID))
	}
	m.Items = copyItems(m.Items)
	s.movements[m.ID] = m
	return nil
}

func (s *state) DeleteMovement(_ context.Context, id pos.MovementID) error {
	if _, ok := s.movements[id]; !ok {
		return pos.NotFound("movement", string(id))
	}
	delete(s.movements, id)
	return nil
}

func (s *state) ListMovements(_ context.Context, accountID pos.AccountID) ([]pos.Movement, error) {
	var result []pos.Movement
	for _, m := range s.movements {
		if m.AccountID == accountID {
			m.Items = copyItems(m.Items)
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.After(result[j].Timestamp)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (s *state) InsertSale(_ context.Context, sale pos.Sale) error {
	if _, ok := s.sales[sale.ID]; ok {
		return &pos.ConflictError{Message: "sale " + string(sale.ID) + " already exists"}
	}
	sale.Items = copyItems(sale.Items)
	s.sales[sale.ID] = sale
	return nil
}

func (s *state) GetSale(_ context.Context, id pos.SaleID) (pos.Sale, error) {
	sale, ok := s.sales[id]
	if !ok {
		return pos.Sale{}, pos.NotFound("sale", string(id))
	}
	sale.Items = copyItems(sale.Items)
	return sale, nil
}

func (s *state) UpdateSale(_ context.Context, sale pos.Sale) error {
	stored, ok := s.sales[sale.ID]
	if !ok {
		return pos.NotFound("sale", string(sale.ID))
	}
	stored.CustomerName = sale.CustomerName
	stored.PaymentMethod = sale.PaymentMethod
	s.sales[sale.ID] = stored
	return nil
}

func (s *state) ListSales(_ context.Context, f pos.SaleFilter) ([]pos.Sale, error) {
	var result []pos.Sale
	for _, sale := range s.sales {
		if inRange(f, sale.Timestamp) {
			sale.Items = copyItems(sale.Items)
			result = append(result, sale)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.After(result[j].Timestamp)
		}
		return result[i].ID > result[j].ID
	})
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (s *state) InsertCreditNote(_ context.Context, n pos.CreditNote) error {
	if _, ok := s.creditNotes[n.ID]; ok {
		return &pos.ConflictError{Message: "credit note " + string(n.ID) + " already exists"}
	}
	n.Items = copyItems(n.Items)
	s.creditNotes[n.ID] = n
	return nil
}

func (s *state) ListCreditNotes(_ context.Context, f pos.SaleFilter) ([]pos.CreditNote, error) {
	var result []pos.CreditNote
	for _, n := range s.creditNotes {
		if inRange(f, n.Timestamp) {
			n.Items = copyItems(n.Items)
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.After(result[j].Timestamp)
		}
		return result[i].ID > result[j].ID
	})
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (s *state) CreditNoteForSale(_ context.Context, saleID pos.SaleID) (pos.CreditNote, error) {
	for _, n := range s.creditNotes {
		if saleID != "" && n.OriginalSaleID == saleID {
			n.Items = copyItems(n.Items)
			return n, nil
		}
	}
	return pos.CreditNote{}, pos.NotFound("credit_note", "sale:"+string(saleID))
}

func (s *state) GetProduct(_ context.Context, id pos.ProductID) (pos.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return pos.Product{}, pos.NotFound("product", string(id))
	}
	return p, nil
}

func (s *state) AdjustQuantity(_ context.Context, id pos.ProductID, delta int) error {
	p, ok := s.products[id]
	if !ok {
		return pos.NotFound("product", string(id))
	}
	p.Quantity += delta
	s.products[id] = p
	return nil
}

func (s *state) SaveProduct(_ context.Context, p pos.Product) error {
	s.products[p.ID] = p
	return nil
}

func (s *state) ListProducts(_ context.Context) ([]pos.Product, error) {
	result := make([]pos.Product, 0, len(s.products))
	for _, p := range s.products {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func inRange(f pos.SaleFilter, t time.Time) bool {
	if !f.From.IsZero() && t.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.After(f.To) {
		return false
	}
	return true
}

func copyItems(items []pos.LineItem) []pos.LineItem {
	if items == nil {
		return nil
	}
	return append([]pos.LineItem(nil), items...)
}
