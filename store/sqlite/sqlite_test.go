package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-ledger/pos"
	"github.com/warp/pos-ledger/store/sqlite"
)

// ===== TEST SETUP =====

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var ts = time.Date(2025, 5, 20, 13, 45, 12, 123456789, time.UTC)

func seedAccount(t *testing.T, s *sqlite.Store, id pos.AccountID) {
	t.Helper()
	require.NoError(t, s.InsertAccount(context.Background(), pos.Account{
		ID: id, CustomerName: "Cliente " + string(id), Balance: decimal.Zero, Active: true,
		CreatedAt: ts, UpdatedAt: ts,
	}))
}

// ===== ROUND TRIPS =====

func TestStore_AccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	in := pos.Account{
		ID: "acc-1", CustomerName: "Cliente A", Email: "a@example.com", Phone: "555-0101",
		Address: "Calle 1", Document: "20-12345678-9", CreditLimit: dec("1500.50"),
		Balance: dec("550"), Active: true, CreatedBy: "maria", CreatedAt: ts, UpdatedAt: ts,
	}
	require.NoError(t, store.InsertAccount(ctx, in))

	got, err := store.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, in.CustomerName, got.CustomerName)
	assert.Equal(t, in.Document, got.Document)
	assert.True(t, in.CreditLimit.Equal(got.CreditLimit))
	assert.True(t, in.Balance.Equal(got.Balance))
	assert.True(t, got.Active)
	assert.True(t, ts.Equal(got.CreatedAt), "timestamps keep nanoseconds")

	require.NoError(t, store.SetAccountBalance(ctx, "acc-1", dec("0.005")))
	got, err = store.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, dec("0.005").Equal(got.Balance))
}

func TestStore_MovementRoundTripAndOrdering(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedAccount(t, store, "acc-1")

	for i, id := range []pos.MovementID{"m1", "m2", "m3"} {
		require.NoError(t, store.InsertMovement(ctx, pos.Movement{
			ID: id, AccountID: "acc-1", Type: pos.MovementPayment,
			Amount: dec("500"), DiscountPercent: dec("10"), RealAmount: dec("450"),
			InvoiceNumber: int64(i + 1), Concept: "Pago",
			Items:     []pos.LineItem{{ProductID: "p1", Name: "Yerba", UnitPrice: dec("12.5"), Quantity: 2}},
			Timestamp: ts.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	movements, err := store.ListMovements(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, movements, 3)
	assert.Equal(t, pos.MovementID("m3"), movements[0].ID)
	assert.Equal(t, pos.MovementID("m1"), movements[2].ID)
	assert.True(t, dec("450").Equal(movements[0].RealAmount))
	require.Len(t, movements[0].Items, 1)
	assert.Equal(t, "Yerba", movements[0].Items[0].Name)

	m := movements[0]
	m.Amount, m.RealAmount, m.Notes = dec("100"), dec("90"), "corregido"
	require.NoError(t, store.UpdateMovement(ctx, m))
	got, err := store.GetMovement(ctx, "m3")
	require.NoError(t, err)
	assert.True(t, dec("90").Equal(got.RealAmount))
	assert.Equal(t, "corregido", got.Notes)
}

func TestStore_SalesFilterIsInclusive(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	for i, id := range []pos.SaleID{"a", "b", "c"} {
		require.NoError(t, store.InsertSale(ctx, pos.Sale{
			ID: id, InvoiceNumber: int64(i + 1), Total: dec("10"), Kind: pos.SaleKindDirect,
			PaymentMethod: pos.PaymentCash, Timestamp: ts.Add(time.Duration(i) * time.Hour),
		}))
	}

	got, err := store.ListSales(ctx, pos.SaleFilter{From: ts, To: ts.Add(time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, pos.SaleID("b"), got[0].ID)
	assert.Equal(t, pos.SaleID("a"), got[1].ID)

	limited, err := store.ListSales(ctx, pos.SaleFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, pos.SaleID("c"), limited[0].ID)
}

func TestStore_UpdateSaleAndRaiseCounter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.InsertSale(ctx, pos.Sale{
		ID: "s1", InvoiceNumber: 3, Total: dec("12.5"), Kind: pos.SaleKindDirect, PaymentMethod: pos.PaymentCash, Timestamp: ts,
	}))

	require.NoError(t, store.UpdateSale(ctx, pos.Sale{ID: "s1", CustomerName: "Mostrador", PaymentMethod: pos.PaymentCard, Total: dec("0")}))
	got, err := store.GetSale(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Mostrador", got.CustomerName)
	assert.Equal(t, pos.PaymentCard, got.PaymentMethod)
	assert.True(t, dec("12.5").Equal(got.Total))
	assert.ErrorIs(t, store.UpdateSale(ctx, pos.Sale{ID: "ghost"}), pos.ErrNotFound)

	require.NoError(t, store.RaiseCounter(ctx, pos.SpaceSale, 20))
	require.NoError(t, store.RaiseCounter(ctx, pos.SpaceSale, 5))
	n, err := store.NextNumber(ctx, pos.SpaceSale)
	require.NoError(t, err)
	assert.Equal(t, int64(21), n)
}

// ===== CONSTRAINTS =====

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, pos.ErrNotFound)
	_, err = store.GetSale(ctx, "missing")
	assert.ErrorIs(t, err, pos.ErrNotFound)
	_, err = store.CreditNoteForSale(ctx, "missing")
	assert.True(t, pos.IsNotFound(err))
	err = store.DeleteMovement(ctx, "missing")
	assert.ErrorIs(t, err, pos.ErrNotFound)
	err = store.AdjustQuantity(ctx, "missing", 1)
	assert.ErrorIs(t, err, pos.ErrNotFound)
	err = store.InsertMovement(ctx, pos.Movement{ID: "m", AccountID: "missing", Type: pos.MovementCharge, Timestamp: ts})
	assert.ErrorIs(t, err, pos.ErrNotFound)

	var nf *pos.NotFoundError
	require.ErrorAs(t, store.SetAccountBalance(ctx, "ghost", dec("1")), &nf)
	assert.Equal(t, "ghost", nf.ID)
}

func TestStore_OneCreditNotePerSale(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	note := pos.CreditNote{ID: "n1", CreditNoteNumber: 1, CustomerName: "x", Motive: "m", Total: dec("1"), OriginalSaleID: "s1", Timestamp: ts}
	require.NoError(t, store.InsertCreditNote(ctx, note))

	note.ID, note.CreditNoteNumber = "n2", 2
	err := store.InsertCreditNote(ctx, note)
	var cerr *pos.ConflictError
	assert.ErrorAs(t, err, &cerr)

	// Notes without an original sale are not constrained.
	for _, id := range []pos.CreditNoteID{"free-1", "free-2"} {
		require.NoError(t, store.InsertCreditNote(ctx, pos.CreditNote{ID: id, CustomerName: "x", Motive: "m", Total: dec("1"), Timestamp: ts}))
	}
}

func TestStore_QuantityNeverNegative(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.SaveProduct(ctx, pos.Product{ID: "p1", Name: "Yerba", Quantity: 2, Active: true}))

	err := store.AdjustQuantity(ctx, "p1", -3)

	assert.ErrorIs(t, err, pos.ErrValidation)
	p, err := store.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Quantity)
}

func TestStore_DeleteAccountCascades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedAccount(t, store, "acc-1")
	require.NoError(t, store.InsertMovement(ctx, pos.Movement{
		ID: "m1", AccountID: "acc-1", Type: pos.MovementCharge, Amount: dec("1"), RealAmount: dec("1"), InvoiceNumber: 1, Timestamp: ts,
	}))

	require.NoError(t, store.DeleteAccount(ctx, "acc-1"))

	_, err := store.GetMovement(ctx, "m1")
	assert.ErrorIs(t, err, pos.ErrNotFound)
	assert.ErrorIs(t, store.DeleteAccount(ctx, "acc-1"), pos.ErrNotFound)
}

// ===== TRANSACTIONS AND COUNTERS =====

func TestStore_WithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx pos.Store) error {
		n, err := tx.NextNumber(ctx, pos.SpaceSale)
		require.NoError(t, err)
		require.NoError(t, tx.InsertSale(ctx, pos.Sale{ID: "s1", InvoiceNumber: n, Total: dec("5"), Timestamp: ts}))
		// Reads inside the transaction see its own writes.
		_, err = tx.GetSale(ctx, "s1")
		require.NoError(t, err)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	_, err = store.GetSale(ctx, "s1")
	assert.ErrorIs(t, err, pos.ErrNotFound)
	n, err := store.NextNumber(ctx, pos.SpaceSale)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_CountersSeededFromExistingNumbers(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pos.db")

	// GIVEN: documents numbered outside the counters
	store, err := sqlite.New(path)
	require.NoError(t, err)
	seedAccount(t, store, "acc-1")
	require.NoError(t, store.InsertSale(ctx, pos.Sale{ID: "s1", InvoiceNumber: 41, Total: dec("1"), Timestamp: ts}))
	require.NoError(t, store.InsertMovement(ctx, pos.Movement{
		ID: "m1", AccountID: "acc-1", Type: pos.MovementCharge, Amount: dec("1"), RealAmount: dec("1"), InvoiceNumber: 57, Timestamp: ts,
	}))
	require.NoError(t, store.InsertCreditNote(ctx, pos.CreditNote{ID: "n1", CreditNoteNumber: 9, CustomerName: "x", Motive: "m", Total: dec("1"), Timestamp: ts}))
	require.NoError(t, store.Close())

	// WHEN: reopening runs the migration again
	store, err = sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// THEN: numbering continues above the highest stored number per space
	n, err := store.NextNumber(ctx, pos.SpaceSale)
	require.NoError(t, err)
	assert.Equal(t, int64(58), n)
	n, err = store.NextNumber(ctx, pos.SpaceCreditNote)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
}

func TestStore_ClosedDatabaseIsUnavailable(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.ListSales(context.Background(), pos.SaleFilter{})
	assert.ErrorIs(t, err, pos.ErrStorageUnavailable)
}
