package reporting_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pos-ledger/pos"
	"github.com/warp/pos-ledger/reporting"
)

// ===== TEST SETUP =====

var now = time.Date(2025, 3, 15, 14, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func at(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func sale(id string, ts time.Time, total string, items ...pos.LineItem) pos.Sale {
	return pos.Sale{ID: pos.SaleID(id), Timestamp: ts, Total: dec(total), Kind: pos.SaleKindDirect, Items: items}
}

func note(id string, ts time.Time, total string, items ...pos.LineItem) pos.CreditNote {
	return pos.CreditNote{ID: pos.CreditNoteID(id), Timestamp: ts, Total: dec(total), Items: items}
}

func item(id, name string, qty int) pos.LineItem {
	return pos.LineItem{ProductID: pos.ProductID(id), Name: name, Quantity: qty, UnitPrice: dec("1")}
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

// ===== NET TOTALS =====

func TestNetTotals_CreditNotesCountOnTheirOwnDate(t *testing.T) {
	// GIVEN: sales across windows and a credit note today for an old sale
	sales := []pos.Sale{
		sale("today", at(2025, 3, 15, 9), "100"),
		sale("three-days", at(2025, 3, 12, 11), "50"),
		sale("ten-days", at(2025, 3, 5, 10), "30"),
		sale("last-month", at(2025, 2, 28, 20), "20"),
	}
	notes := []pos.CreditNote{note("n1", at(2025, 3, 15, 10), "40")}

	// WHEN
	got := reporting.NewAggregator().NetTotals(sales, notes, now)

	// THEN: the note is subtracted from today, not from March 5
	assertDec(t, "100", got.Today.Gross)
	assertDec(t, "40", got.Today.Returns)
	assertDec(t, "60", got.Today.Net)
	assertDec(t, "110", got.Last7Days.Net)
	assertDec(t, "140", got.CurrentMonth.Net)
	assertDec(t, "180", got.CurrentMonth.Gross)
}

func TestNetTotals_MidnightEdges(t *testing.T) {
	sales := []pos.Sale{
		sale("midnight-today", time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), "1"),
		sale("first-day-of-week", time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), "10"),
		sale("just-outside-week", time.Date(2025, 3, 8, 23, 59, 59, 999999999, time.UTC), "100"),
	}

	got := reporting.NewAggregator().NetTotals(sales, nil, now)

	assertDec(t, "1", got.Today.Net)
	assertDec(t, "11", got.Last7Days.Net)
	assertDec(t, "111", got.CurrentMonth.Net)
}

func TestNetTotals_UsesAggregatorLocation(t *testing.T) {
	art := time.FixedZone("ART", -3*3600)
	// 01:00 UTC on the 16th is still the evening of the 15th in ART.
	sales := []pos.Sale{sale("late", time.Date(2025, 3, 16, 1, 0, 0, 0, time.UTC), "25")}

	utc := reporting.NewAggregator().NetTotals(sales, nil, now)
	local := reporting.NewAggregator(reporting.WithLocation(art)).NetTotals(sales, nil, now)

	assert.True(t, utc.Today.Net.IsZero())
	assertDec(t, "25", local.Today.Net)
}

func TestCreditNoteTotals(t *testing.T) {
	notes := []pos.CreditNote{
		note("a", at(2025, 3, 15, 8), "5"),
		note("b", at(2025, 3, 10, 8), "7"),
		note("c", at(2025, 3, 1, 8), "11"),
		note("d", at(2025, 2, 27, 8), "13"),
	}

	got := reporting.NewAggregator().CreditNoteTotals(notes, now)

	assertDec(t, "5", got.Today)
	assertDec(t, "12", got.Last7Days)
	assertDec(t, "23", got.CurrentMonth)
	assert.Equal(t, 3, got.Count)
}

// ===== DAILY SERIES =====

func TestDailySeries_SevenDaysOldestFirstClamped(t *testing.T) {
	sales := []pos.Sale{
		sale("s1", at(2025, 3, 9, 12), "30"),
		sale("s2", at(2025, 3, 15, 12), "80"),
	}
	notes := []pos.CreditNote{
		note("n1", at(2025, 3, 12, 12), "45"), // a day with only a return
		note("n2", at(2025, 3, 15, 13), "20"),
	}

	points := reporting.NewAggregator().DailySeries(sales, notes, now)

	require.Len(t, points, reporting.SeriesDays)
	assert.Equal(t, "2025-03-09", points[0].Date)
	assert.Equal(t, "2025-03-15", points[6].Date)
	assertDec(t, "30", points[0].NetTotal)
	// A day with only a return is clamped for display.
	assertDec(t, "0", points[3].NetTotal)
	assertDec(t, "-45", points[3].Net)
	assertDec(t, "60", points[6].NetTotal)
	for _, p := range points[1:3] {
		assert.True(t, p.Net.IsZero())
	}
}

// ===== TOP PRODUCTS =====

func TestTopProducts_NetsQuantitiesAndFallsBackToNames(t *testing.T) {
	// GIVEN: a catalog that still knows "yerba" but not "gone"
	resolver := reporting.ResolverFromProducts([]pos.Product{{ID: "yerba", Name: "Yerba 1kg"}})
	agg := reporting.NewAggregator(reporting.WithResolver(resolver))

	sales := []pos.Sale{
		sale("s1", now, "0", item("yerba", "Yerba 1kg", 5), item("", "Pan", 3)),
		sale("s2", now, "0", item("gone", "Galletitas", 4), item("gone-too", "Pan", 1)),
		{ID: "pay", Kind: pos.SaleKindAccountPayment, Timestamp: now, Items: []pos.LineItem{item("", "Account payment", 9)}},
	}
	notes := []pos.CreditNote{
		note("n1", now, "0", item("yerba", "Yerba 1kg", 2), item("gone", "Galletitas", 4)),
	}

	// WHEN
	top := agg.TopProducts(sales, notes, 0)

	// THEN: unresolvable ids merge by name, zero nets and payments are gone
	require.Len(t, top, 2)
	assert.Equal(t, reporting.ProductQuantity{Name: "Pan", NetQuantity: 4}, top[0])
	assert.Equal(t, reporting.ProductQuantity{ProductID: "yerba", Name: "Yerba 1kg", NetQuantity: 3}, top[1])
}

func TestTopProducts_TiesBreakByKeyAndLimitApplies(t *testing.T) {
	var items []pos.LineItem
	for _, name := range []string{"d", "b", "c", "a"} {
		items = append(items, item(name, name, 2))
	}
	sales := []pos.Sale{sale("s", now, "0", items...)}

	top := reporting.NewAggregator().TopProducts(sales, nil, 3)

	require.Len(t, top, 3)
	assert.Equal(t, pos.ProductID("a"), top[0].ProductID)
	assert.Equal(t, pos.ProductID("b"), top[1].ProductID)
	assert.Equal(t, pos.ProductID("c"), top[2].ProductID)
}

func TestTopProducts_DefaultLimit(t *testing.T) {
	var items []pos.LineItem
	for i := 0; i < 10; i++ {
		items = append(items, item(string(rune('a'+i)), "", i+1))
	}
	top := reporting.NewAggregator().TopProducts([]pos.Sale{sale("s", now, "0", items...)}, nil, 0)
	require.Len(t, top, reporting.DefaultTopLimit)
	assert.Equal(t, 10, top[0].NetQuantity)
}

// ===== DETERMINISM =====

func TestSummary_DeterministicAndOrderIndependent(t *testing.T) {
	sales := []pos.Sale{
		sale("s1", at(2025, 3, 15, 9), "10", item("x", "X", 1)),
		sale("s2", at(2025, 3, 14, 9), "20", item("y", "Y", 1)),
		sale("s3", at(2025, 3, 13, 9), "30", item("z", "Z", 1)),
	}
	notes := []pos.CreditNote{note("n1", at(2025, 3, 14, 10), "5", item("y", "Y", 1))}
	reversed := []pos.Sale{sales[2], sales[1], sales[0]}

	in := reporting.SummaryInput{Sales: sales, CreditNotes: notes, Now: now}
	agg := reporting.NewAggregator()

	first := agg.Summary(in)
	second := agg.Summary(in)
	in.Sales = reversed
	third := agg.Summary(in)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	c, err := json.Marshal(third)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.JSONEq(t, string(a), string(c))
	// Inputs are not reordered in place.
	assert.Equal(t, pos.SaleID("s1"), sales[0].ID)
}

// ===== PERIOD TOTALS =====

func TestYearlyAndMonthlyTotals(t *testing.T) {
	sales := []pos.Sale{
		sale("a", at(2023, 11, 3, 9), "100"),
		sale("b", at(2024, 1, 10, 9), "200"),
		sale("c", at(2024, 12, 31, 23), "50"),
		sale("d", at(2025, 1, 2, 9), "70"),
	}
	notes := []pos.CreditNote{note("n", at(2025, 1, 3, 9), "20")}
	agg := reporting.NewAggregator()

	years := agg.YearlyTotals(sales, notes)
	require.Len(t, years, 3)
	assert.Equal(t, []string{"2023", "2024", "2025"}, []string{years[0].Period, years[1].Period, years[2].Period})
	assertDec(t, "250", years[1].Net)
	assertDec(t, "50", years[2].Net)
	assertDec(t, "20", years[2].Returns)

	months := agg.MonthlyTotals(sales, notes, 2)
	require.Len(t, months, 2)
	assert.Equal(t, "2024-12", months[0].Period)
	assert.Equal(t, "2025-01", months[1].Period)

	all := agg.MonthlyTotals(sales, notes, 0)
	assert.Len(t, all, 4)
}

// ===== DASHBOARD EXTRAS =====

func TestTotalDebtAndLowStock(t *testing.T) {
	accounts := []pos.Account{{Balance: dec("550")}, {Balance: dec("-20")}, {Balance: dec("0")}, {Balance: dec("25.5")}}
	assertDec(t, "575.5", reporting.TotalDebt(accounts))

	products := []pos.Product{
		{ID: "b", Quantity: 3, Active: true},
		{ID: "a", Quantity: 3, Active: true},
		{ID: "c", Quantity: 0, Active: true},
		{ID: "d", Quantity: 1, Active: false},
		{ID: "e", Quantity: 40, Active: true},
	}
	low := reporting.LowStock(products, reporting.DefaultLowStockThreshold)
	require.Len(t, low, 3)
	assert.Equal(t, []pos.ProductID{"c", "a", "b"}, []pos.ProductID{low[0].ID, low[1].ID, low[2].ID})
}
