package stock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-ledger/pos"
	"github.com/warp/pos-ledger/pos/store"
	"github.com/warp/pos-ledger/stock"
)

// ===== TEST SETUP =====

func newCatalog(t *testing.T, quantities map[pos.ProductID]int) *store.Memory {
	mem := store.NewMemory()
	for id, q := range quantities {
		require.NoError(t, mem.SaveProduct(context.Background(), pos.Product{ID: id, Name: string(id), Quantity: q, Active: true}))
	}
	return mem
}

func quantity(t *testing.T, c pos.Catalog, id pos.ProductID) int {
	t.Helper()
	p, err := c.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity
}

var errDiskFull = errors.New("disk full")

// failingStore fails AdjustQuantity for one product.
type failingStore struct {
	pos.Store
	failOn pos.ProductID
}

func (f failingStore) AdjustQuantity(ctx context.Context, id pos.ProductID, delta int) error {
	if id == f.failOn {
		return errDiskFull
	}
	return f.Store.AdjustQuantity(ctx, id, delta)
}

// failingTxStore runs real transactions whose view fails on one product.
type failingTxStore struct {
	*store.Memory
	failOn pos.ProductID
}

func (f failingTxStore) WithTx(ctx context.Context, fn func(pos.Store) error) error {
	return f.Memory.WithTx(ctx, func(s pos.Store) error {
		return fn(failingStore{Store: s, failOn: f.failOn})
	})
}

// failingCatalog has no WithTx, so batches are applied line by line.
type failingCatalog struct {
	pos.Catalog
	failOn pos.ProductID
}

func (f failingCatalog) AdjustQuantity(ctx context.Context, id pos.ProductID, delta int) error {
	if id == f.failOn {
		return errDiskFull
	}
	return f.Catalog.AdjustQuantity(ctx, id, delta)
}

// ===== TESTS =====

func TestReconciler_SaleThenCreditNoteRestoresStock(t *testing.T) {
	ctx := context.Background()
	mem := newCatalog(t, map[pos.ProductID]int{"yerba": 10})
	r := stock.NewReconciler(mem)

	report, err := r.ApplySale(ctx, []pos.StockLine{{ProductID: "yerba", Quantity: 3}})
	require.NoError(t, err)
	assert.Equal(t, 7, quantity(t, mem, "yerba"))
	require.Len(t, report.Adjusted, 1)
	assert.Equal(t, stock.Adjustment{ProductID: "yerba", Before: 10, After: 7}, report.Adjusted[0])

	_, err = r.ApplyCreditNote(ctx, []pos.StockLine{{ProductID: "yerba", Quantity: 3}})
	require.NoError(t, err)
	assert.Equal(t, 10, quantity(t, mem, "yerba"))
}

func TestReconciler_SaleClampsAtZero(t *testing.T) {
	// GIVEN: 2 units on hand
	ctx := context.Background()
	mem := newCatalog(t, map[pos.ProductID]int{"azucar": 2})

	// WHEN: selling 5
	report, err := stock.NewReconciler(mem).ApplySale(ctx, []pos.StockLine{{ProductID: "azucar", Quantity: 5}})

	// THEN: stock stops at 0
	require.NoError(t, err)
	assert.Equal(t, 0, quantity(t, mem, "azucar"))
	assert.Equal(t, 0, report.Adjusted[0].After)

	// AND: returns are not capped
	_, err = stock.NewReconciler(mem).ApplyCreditNote(ctx, []pos.StockLine{{ProductID: "azucar", Quantity: 5}})
	require.NoError(t, err)
	assert.Equal(t, 5, quantity(t, mem, "azucar"))
}

func TestReconciler_MissingProductIsSkipped(t *testing.T) {
	ctx := context.Background()
	mem := newCatalog(t, map[pos.ProductID]int{"cafe": 4})

	report, err := stock.NewReconciler(mem).ApplySale(ctx, []pos.StockLine{
		{ProductID: "discontinued", Quantity: 1},
		{ProductID: "cafe", Quantity: 1},
		{Quantity: 2}, // free-text line, no catalog entry
	})

	require.NoError(t, err)
	assert.Equal(t, []pos.ProductID{"discontinued"}, report.Skipped)
	require.Len(t, report.Adjusted, 1)
	assert.Equal(t, 3, quantity(t, mem, "cafe"))
}

func TestReconciler_NegativeQuantityRejected(t *testing.T) {
	mem := newCatalog(t, map[pos.ProductID]int{"cafe": 4})
	_, err := stock.NewReconciler(mem).ApplyCreditNote(context.Background(), []pos.StockLine{{ProductID: "cafe", Quantity: -1}})
	assert.ErrorIs(t, err, pos.ErrValidation)
	assert.Equal(t, 4, quantity(t, mem, "cafe"))
}

func TestReconciler_TransactionalCatalogRollsBackWholeBatch(t *testing.T) {
	// GIVEN: a transactional catalog that fails on the third of four lines
	ctx := context.Background()
	mem := newCatalog(t, map[pos.ProductID]int{"p1": 10, "p2": 10, "p3": 10, "p4": 10})
	catalog := failingTxStore{Memory: mem, failOn: "p3"}

	// WHEN: applying a sale
	_, err := stock.NewReconciler(catalog).ApplySale(ctx, []pos.StockLine{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p2", Quantity: 1},
		{ProductID: "p3", Quantity: 1},
		{ProductID: "p4", Quantity: 1},
	})

	// THEN: the failure surfaces as storage trouble and nothing moved
	require.Error(t, err)
	assert.ErrorIs(t, err, pos.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, pos.ErrPartialApplication)
	for _, id := range []pos.ProductID{"p1", "p2", "p3", "p4"} {
		assert.Equal(t, 10, quantity(t, mem, id), "product %s", id)
	}
}

func TestReconciler_NonTransactionalCatalogReportsPartialApplication(t *testing.T) {
	// GIVEN: a plain catalog that fails on the third of four lines
	ctx := context.Background()
	mem := newCatalog(t, map[pos.ProductID]int{"p1": 10, "p2": 10, "p3": 10, "p4": 10})
	catalog := failingCatalog{Catalog: mem, failOn: "p3"}

	// WHEN: applying a sale
	_, err := stock.NewReconciler(catalog).ApplySale(ctx, []pos.StockLine{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p2", Quantity: 1},
		{ProductID: "p3", Quantity: 1},
		{ProductID: "p4", Quantity: 1},
	})

	// THEN: the error says exactly how far the batch got
	var perr *pos.PartialApplicationError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, []pos.ProductID{"p1", "p2"}, perr.Applied)
	assert.Equal(t, pos.ProductID("p3"), perr.Failed)
	assert.Equal(t, []pos.ProductID{"p4"}, perr.Pending)
	assert.ErrorIs(t, err, errDiskFull)

	assert.Equal(t, 9, quantity(t, mem, "p1"))
	assert.Equal(t, 9, quantity(t, mem, "p2"))
	assert.Equal(t, 10, quantity(t, mem, "p3"))
	assert.Equal(t, 10, quantity(t, mem, "p4"))
}

func TestReconciler_FirstLineFailureIsNotPartial(t *testing.T) {
	mem := newCatalog(t, map[pos.ProductID]int{"p1": 10})
	catalog := failingCatalog{Catalog: mem, failOn: "p1"}

	_, err := stock.NewReconciler(catalog).ApplySale(context.Background(), []pos.StockLine{{ProductID: "p1", Quantity: 1}})

	assert.ErrorIs(t, err, pos.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, pos.ErrPartialApplication)
}
