package sales_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-ledger/ledger"
	"github.com/warp/pos-ledger/pos"
	"github.com/warp/pos-ledger/pos/store"
	"github.com/warp/pos-ledger/sales"
	"github.com/warp/pos-ledger/store/sqlite"
)

// ===== TEST SETUP =====

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 8, 14, 18, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}

func newTestSales(t *testing.T) (*sales.Service, *sqlite.Store) {
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.SaveProduct(ctx, pos.Product{ID: "yerba", Name: "Yerba 1kg", UnitPrice: dec("12.50"), Quantity: 10, Active: true}))
	require.NoError(t, st.SaveProduct(ctx, pos.Product{ID: "azucar", Name: "Azucar", UnitPrice: dec("3"), Quantity: 2, Active: true}))
	return sales.NewService(st, sales.WithClock(tickingClock())), st
}

func yerba(qty int) pos.LineItem {
	return pos.LineItem{ProductID: "yerba", Name: "Yerba 1kg", UnitPrice: dec("12.50"), Quantity: qty}
}

func stockOf(t *testing.T, st pos.Catalog, id pos.ProductID) int {
	t.Helper()
	p, err := st.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity
}

// ===== SALES =====

func TestRecordSale_NumbersTotalsAndStock(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestSales(t)

	first, err := svc.RecordSale(ctx, sales.SaleInput{
		CustomerName: "Mostrador",
		Items: []pos.LineItem{
			yerba(2),
			{ProductID: "azucar", Name: "Azucar", UnitPrice: dec("3"), Quantity: 5},
		},
		PaymentMethod: pos.PaymentCard,
	})
	require.NoError(t, err)
	second, err := svc.RecordSale(ctx, sales.SaleInput{Items: []pos.LineItem{yerba(1)}})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Document.InvoiceNumber)
	assert.Equal(t, int64(2), second.Document.InvoiceNumber)
	assert.True(t, dec("40").Equal(first.Document.Total), "total %s", first.Document.Total)
	assert.Equal(t, pos.SaleKindDirect, first.Document.Kind)
	assert.Equal(t, pos.PaymentCard, first.Document.PaymentMethod)
	assert.Equal(t, pos.PaymentCash, second.Document.PaymentMethod)

	assert.Equal(t, 7, stockOf(t, st, "yerba"))
	// 5 sold against 2 on hand clamps to zero.
	assert.Equal(t, 0, stockOf(t, st, "azucar"))
	assert.Len(t, first.Stock.Adjusted, 2)
}

func TestRecordSale_UnknownProductStillRecorded(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestSales(t)

	receipt, err := svc.RecordSale(ctx, sales.SaleInput{Items: []pos.LineItem{
		{ProductID: "gone", Name: "Galletitas", UnitPrice: dec("2"), Quantity: 1},
	}})

	require.NoError(t, err)
	assert.Equal(t, []pos.ProductID{"gone"}, receipt.Stock.Skipped)
	listed, err := svc.Sales(ctx, pos.SaleFilter{})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestRecordSale_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestSales(t)

	cases := map[string]sales.SaleInput{
		"no items":        {},
		"zero quantity":   {Items: []pos.LineItem{yerba(0)}},
		"negative price":  {Items: []pos.LineItem{{Name: "x", UnitPrice: dec("-1"), Quantity: 1}}},
		"unnamed item":    {Items: []pos.LineItem{{UnitPrice: dec("1"), Quantity: 1}}},
		"unknown payment": {Items: []pos.LineItem{yerba(1)}, PaymentMethod: "crypto"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.RecordSale(ctx, in)
			assert.ErrorIs(t, err, pos.ErrValidation)
		})
	}
}

func TestRecordSale_ConcurrentSalesGetDistinctNumbers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestSales(t)

	const n = 20
	var wg sync.WaitGroup
	numbers := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := svc.RecordSale(ctx, sales.SaleInput{Items: []pos.LineItem{{Name: "Pan", UnitPrice: dec("1"), Quantity: 1}}})
			if assert.NoError(t, err) {
				numbers <- r.Document.InvoiceNumber
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[int64]bool{}
	for num := range numbers {
		assert.False(t, seen[num], "invoice %d issued twice", num)
		seen[num] = true
	}
	assert.Len(t, seen, n)
}

// ===== CREDIT NOTES =====

func TestRecordCreditNote_ReturnsStockAndLinksSale(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestSales(t)
	sale, err := svc.RecordSale(ctx, sales.SaleInput{Items: []pos.LineItem{yerba(3)}})
	require.NoError(t, err)
	require.Equal(t, 7, stockOf(t, st, "yerba"))

	// WHEN: crediting the sale without naming a customer
	note, err := svc.RecordCreditNote(ctx, sales.CreditNoteInput{
		Motive:         "Producto vencido",
		Items:          []pos.LineItem{yerba(3)},
		OriginalSaleID: sale.Document.ID,
	})

	// THEN
	require.NoError(t, err)
	assert.Equal(t, int64(1), note.Document.CreditNoteNumber)
	assert.Equal(t, sale.Document.InvoiceNumber, note.Document.OriginalInvoiceNumber)
	assert.Equal(t, pos.DefaultCreditNoteCustomer, note.Document.CustomerName)
	assert.True(t, dec("37.5").Equal(note.Document.Total))
	assert.Equal(t, 10, stockOf(t, st, "yerba"))
}

func TestRecordCreditNote_ExplicitTotalOverridesItems(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestSales(t)
	total := dec("20")

	note, err := svc.RecordCreditNote(ctx, sales.CreditNoteInput{
		CustomerName: "Cliente A",
		Motive:       "Bonificacion",
		Items:        []pos.LineItem{yerba(2)},
		Total:        &total,
	})

	require.NoError(t, err)
	assert.True(t, total.Equal(note.Document.Total))
	assert.Equal(t, "Cliente A", note.Document.CustomerName)
}

func TestRecordCreditNote_SecondNoteForSameSaleConflicts(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestSales(t)
	sale, err := svc.RecordSale(ctx, sales.SaleInput{Items: []pos.LineItem{yerba(1)}})
	require.NoError(t, err)
	in := sales.CreditNoteInput{Motive: "Devolucion", Items: []pos.LineItem{yerba(1)}, OriginalSaleID: sale.Document.ID}
	_, err = svc.RecordCreditNote(ctx, in)
	require.NoError(t, err)

	_, err = svc.RecordCreditNote(ctx, in)

	var cerr *pos.ConflictError
	assert.ErrorAs(t, err, &cerr)
	// Stock was returned once only and no number was consumed.
	assert.Equal(t, 10, stockOf(t, st, "yerba"))
	next, err := st.NextNumber(ctx, pos.SpaceCreditNote)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)
}

func TestRecordCreditNote_Errors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestSales(t)

	_, err := svc.RecordCreditNote(ctx, sales.CreditNoteInput{Items: []pos.LineItem{yerba(1)}})
	assert.ErrorIs(t, err, pos.ErrValidation, "motive is required")

	_, err = svc.RecordCreditNote(ctx, sales.CreditNoteInput{Motive: "x", Items: []pos.LineItem{yerba(1)}, OriginalSaleID: "nope"})
	assert.ErrorIs(t, err, pos.ErrNotFound)

	neg := dec("-1")
	_, err = svc.RecordCreditNote(ctx, sales.CreditNoteInput{Motive: "x", Items: []pos.LineItem{yerba(1)}, Total: &neg})
	assert.ErrorIs(t, err, pos.ErrValidation)
}

func TestAvailableForCreditNote(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	clock := tickingClock()
	svc := sales.NewService(mem, sales.WithClock(clock))
	led := ledger.NewService(mem, ledger.WithClock(clock))

	// GIVEN: two direct sales, one already credited, plus a mirrored payment
	credited, err := svc.RecordSale(ctx, sales.SaleInput{Items: []pos.LineItem{{Name: "Pan", UnitPrice: dec("1"), Quantity: 1}}})
	require.NoError(t, err)
	open, err := svc.RecordSale(ctx, sales.SaleInput{Items: []pos.LineItem{{Name: "Leche", UnitPrice: dec("2"), Quantity: 1}}})
	require.NoError(t, err)
	_, err = svc.RecordCreditNote(ctx, sales.CreditNoteInput{
		Motive: "Error de cobro", Items: credited.Document.Items, OriginalSaleID: credited.Document.ID,
	})
	require.NoError(t, err)
	acc, err := led.CreateAccount(ctx, ledger.AccountInput{CustomerName: "Cliente A"})
	require.NoError(t, err)
	_, err = led.RecordMovement(ctx, ledger.MovementInput{AccountID: acc.ID, Type: pos.MovementPayment, Amount: dec("50")})
	require.NoError(t, err)

	// WHEN
	available, err := svc.AvailableForCreditNote(ctx, 0)

	// THEN: only the open direct sale is offered
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, open.Document.ID, available[0].ID)

	notes, err := svc.CreditNotes(ctx, pos.SaleFilter{})
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

// ===== ADMINISTRATIVE EDITS =====

func TestUpdateSale_CorrectsCustomerAndPaymentMethod(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestSales(t)
	receipt, err := svc.RecordSale(ctx, sales.SaleInput{Items: []pos.LineItem{yerba(2)}})
	require.NoError(t, err)

	// WHEN: the cashier fixes the payment method and names the customer
	method := pos.PaymentTransfer
	updated, err := svc.UpdateSale(ctx, receipt.Document.ID, sales.SalePatch{
		CustomerName:  ptr("  Almacen Sur "),
		PaymentMethod: &method,
	})
	require.NoError(t, err)

	// THEN: only the administrative fields changed
	got, err := svc.Sale(ctx, receipt.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.CustomerName, got.CustomerName)
	assert.Equal(t, "Almacen Sur", got.CustomerName)
	assert.Equal(t, pos.PaymentTransfer, got.PaymentMethod)
	assert.Equal(t, receipt.Document.InvoiceNumber, got.InvoiceNumber)
	assert.True(t, dec("25").Equal(got.Total))
	assert.Equal(t, receipt.Document.Items[0].Quantity, got.Items[0].Quantity)
	assert.True(t, receipt.Document.Timestamp.Equal(got.Timestamp))

	// An empty patch is a no-op.
	same, err := svc.UpdateSale(ctx, receipt.Document.ID, sales.SalePatch{})
	require.NoError(t, err)
	assert.Equal(t, pos.PaymentTransfer, same.PaymentMethod)
}

func TestUpdateSale_Errors(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	clock := tickingClock()
	svc := sales.NewService(mem, sales.WithClock(clock))
	led := ledger.NewService(mem, ledger.WithClock(clock))

	_, err := svc.Sale(ctx, "missing")
	assert.ErrorIs(t, err, pos.ErrNotFound)
	_, err = svc.UpdateSale(ctx, "missing", sales.SalePatch{CustomerName: ptr("x")})
	assert.ErrorIs(t, err, pos.ErrNotFound)

	receipt, err := svc.RecordSale(ctx, sales.SaleInput{Items: []pos.LineItem{{Name: "Pan", UnitPrice: dec("1"), Quantity: 1}}})
	require.NoError(t, err)
	bogus := pos.PaymentMethod("bitcoin")
	_, err = svc.UpdateSale(ctx, receipt.Document.ID, sales.SalePatch{PaymentMethod: &bogus})
	assert.ErrorIs(t, err, pos.ErrValidation)

	// A mirrored payment follows its movement.
	acc, err := led.CreateAccount(ctx, ledger.AccountInput{CustomerName: "Cliente A"})
	require.NoError(t, err)
	pay, err := led.RecordMovement(ctx, ledger.MovementInput{AccountID: acc.ID, Type: pos.MovementPayment, Amount: dec("50")})
	require.NoError(t, err)
	list, err := svc.Sales(ctx, pos.SaleFilter{})
	require.NoError(t, err)
	var mirrored pos.Sale
	for _, s := range list {
		if s.MovementID == pay.ID {
			mirrored = s
		}
	}
	require.NotEmpty(t, mirrored.ID)
	_, err = svc.UpdateSale(ctx, mirrored.ID, sales.SalePatch{CustomerName: ptr("otro")})
	assert.ErrorIs(t, err, pos.ErrValidation)
	got, err := svc.Sale(ctx, mirrored.ID)
	require.NoError(t, err)
	assert.Equal(t, mirrored.CustomerName, got.CustomerName)
}
