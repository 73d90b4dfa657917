/*
Package reporting derives revenue and product statistics from sales and
credit notes. It is read-only: nothing here writes to a store.

NETTING:
  A sale adds its total to every bucket whose window contains the sale's
  timestamp. A credit note subtracts its total from every bucket whose window
  contains the credit note's OWN timestamp, whatever sale it reverses.

DETERMINISM:
  For fixed inputs and a fixed now, every result is identical across calls.
  Inputs are never reordered in place and map iteration never reaches output
  without an explicit sort.

LOCATION:
  Day, month and year boundaries are taken in the aggregator's Location
  (UTC unless configured). Timestamps are converted before bucketing.
*/
package reporting

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pos-ledger/pos"
)

const (
	// DefaultTopLimit is how many products TopProducts returns when limit <= 0.
	DefaultTopLimit = 7
	// SeriesDays is the length of DailySeries.
	SeriesDays = 7
	// DefaultLowStockThreshold matches the dashboard's "low stock" rule.
	DefaultLowStockThreshold = 5
)

// Resolver reports whether a product id still exists in the catalog.
type Resolver func(id pos.ProductID) bool

type Aggregator struct {
	loc     *time.Location
	resolve Resolver
}

type Option func(*Aggregator)

// WithLocation sets the time zone used for day/month/year boundaries.
func WithLocation(loc *time.Location) Option {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// WithResolver makes TopProducts fall back to the product name for ids the
// resolver rejects. Without a resolver every id is trusted.
func WithResolver(r Resolver) Option {
	return func(a *Aggregator) { a.resolve = r }
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{loc: time.UTC}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Resolving returns a copy of a that uses r for TopProducts.
func (a *Aggregator) Resolving(r Resolver) *Aggregator {
	c := *a
	c.resolve = r
	return &c
}

// ResolverFromProducts builds a Resolver from a catalog listing.
func ResolverFromProducts(products []pos.Product) Resolver {
	known := make(map[pos.ProductID]struct{}, len(products))
	for _, p := range products {
		known[p.ID] = struct{}{}
	}
	return func(id pos.ProductID) bool {
		_, ok := known[id]
		return ok
	}
}

// =============================================================================
// NET TOTALS
// =============================================================================

// BucketTotal is gross sales, credit-note returns and their difference.
type BucketTotal struct {
	Gross   decimal.Decimal `json:"gross"`
	Returns decimal.Decimal `json:"returns"`
	Net     decimal.Decimal `json:"net"`
}

func (b *BucketTotal) addSale(total decimal.Decimal) {
	b.Gross = b.Gross.Add(total)
	b.Net = b.Net.Add(total)
}

func (b *BucketTotal) addReturn(total decimal.Decimal) {
	b.Returns = b.Returns.Add(total)
	b.Net = b.Net.Sub(total)
}

type NetTotals struct {
	Today        BucketTotal `json:"today"`
	Last7Days    BucketTotal `json:"last_7_days"`
	CurrentMonth BucketTotal `json:"current_month"`
}

// NetTotals buckets sales minus credit notes into today, the last 7 days
// (today included) and the current calendar month.
func (a *Aggregator) NetTotals(sales []pos.Sale, notes []pos.CreditNote, now time.Time) NetTotals {
	now = now.In(a.loc)
	today, week, month := Day(now), LastDays(now, SeriesDays), Month(now)

	var out NetTotals
	for _, s := range sales {
		t := s.Timestamp.In(a.loc)
		if today.Contains(t) {
			out.Today.addSale(s.Total)
		}
		if week.Contains(t) {
			out.Last7Days.addSale(s.Total)
		}
		if month.Contains(t) {
			out.CurrentMonth.addSale(s.Total)
		}
	}
	for _, n := range notes {
		t := n.Timestamp.In(a.loc)
		if today.Contains(t) {
			out.Today.addReturn(n.Total)
		}
		if week.Contains(t) {
			out.Last7Days.addReturn(n.Total)
		}
		if month.Contains(t) {
			out.CurrentMonth.addReturn(n.Total)
		}
	}
	return out
}

// CreditNoteTotals is the returns side of NetTotals on its own.
type CreditNoteTotals struct {
	Today        decimal.Decimal `json:"today"`
	Last7Days    decimal.Decimal `json:"last_7_days"`
	CurrentMonth decimal.Decimal `json:"current_month"`
	Count        int             `json:"count"`
}

func (a *Aggregator) CreditNoteTotals(notes []pos.CreditNote, now time.Time) CreditNoteTotals {
	t := a.NetTotals(nil, notes, now)
	count := 0
	month := Month(now.In(a.loc))
	for _, n := range notes {
		if month.Contains(n.Timestamp.In(a.loc)) {
			count++
		}
	}
	return CreditNoteTotals{
		Today:        t.Today.Returns,
		Last7Days:    t.Last7Days.Returns,
		CurrentMonth: t.CurrentMonth.Returns,
		Count:        count,
	}
}

// =============================================================================
// DAILY SERIES
// =============================================================================

type DailyPoint struct {
	Date string `json:"date"`
	// NetTotal is Net clamped at zero for display.
	NetTotal decimal.Decimal `json:"net_total"`
	Net      decimal.Decimal `json:"net"`
}

// DailySeries returns one point per calendar day for the trailing 7 days,
// oldest first.
func (a *Aggregator) DailySeries(sales []pos.Sale, notes []pos.CreditNote, now time.Time) []DailyPoint {
	now = now.In(a.loc)
	days := LastDays(now, SeriesDays).Days()
	nets := make([]decimal.Decimal, len(days))

	index := func(t time.Time) int {
		for i, d := range days {
			if d.Contains(t) {
				return i
			}
		}
		return -1
	}
	for _, s := range sales {
		if i := index(s.Timestamp.In(a.loc)); i >= 0 {
			nets[i] = nets[i].Add(s.Total)
		}
	}
	for _, n := range notes {
		if i := index(n.Timestamp.In(a.loc)); i >= 0 {
			nets[i] = nets[i].Sub(n.Total)
		}
	}

	points := make([]DailyPoint, len(days))
	for i, d := range days {
		points[i] = DailyPoint{
			Date:     d.Start.Format("2006-01-02"),
			NetTotal: decimal.Max(nets[i], decimal.Zero),
			Net:      nets[i],
		}
	}
	return points
}

// =============================================================================
// TOP PRODUCTS
// =============================================================================

type ProductQuantity struct {
	ProductID   pos.ProductID `json:"product_id,omitempty"`
	Name        string        `json:"name"`
	NetQuantity int           `json:"net_quantity"`
}

// TopProducts nets sold minus returned quantities per product and returns
// the best sellers, highest first. Account payment sales are ignored: their
// only line is the payment concept, which would otherwise rank debt
// collections as a product.
func (a *Aggregator) TopProducts(sales []pos.Sale, notes []pos.CreditNote, limit int) []ProductQuantity {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	acc := make(map[string]*ProductQuantity)

	add := func(it pos.LineItem, sign int) {
		key, id := a.productKey(it)
		if key == "" {
			return
		}
		pq, ok := acc[key]
		if !ok {
			pq = &ProductQuantity{ProductID: id, Name: it.Name}
			acc[key] = pq
		}
		pq.NetQuantity += sign * it.Quantity
	}

	for _, s := range sales {
		if s.Kind == pos.SaleKindAccountPayment {
			continue
		}
		for _, it := range s.Items {
			add(it, 1)
		}
	}
	for _, n := range notes {
		for _, it := range n.Items {
			add(it, -1)
		}
	}

	keys := make([]string, 0, len(acc))
	for k, pq := range acc {
		if pq.NetQuantity > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		qi, qj := acc[keys[i]].NetQuantity, acc[keys[j]].NetQuantity
		if qi != qj {
			return qi > qj
		}
		return keys[i] < keys[j]
	})
	if len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]ProductQuantity, len(keys))
	for i, k := range keys {
		out[i] = *acc[k]
	}
	return out
}

// productKey is "id:<id>" for resolvable ids and "name:<name>" otherwise.
func (a *Aggregator) productKey(it pos.LineItem) (string, pos.ProductID) {
	if it.ProductID != "" && (a.resolve == nil || a.resolve(it.ProductID)) {
		return "id:" + string(it.ProductID), it.ProductID
	}
	if it.Name == "" {
		return "", ""
	}
	return "name:" + it.Name, ""
}

// =============================================================================
// YEARLY / MONTHLY TOTALS
// =============================================================================

type PeriodTotal struct {
	Period string `json:"period"`
	BucketTotal
}

// YearlyTotals nets sales and credit notes per calendar year, oldest first.
func (a *Aggregator) YearlyTotals(sales []pos.Sale, notes []pos.CreditNote) []PeriodTotal {
	return a.byPeriod(sales, notes, "2006", 0)
}

// MonthlyTotals nets per year-month, oldest first. When limit > 0 only the
// most recent limit months are returned.
func (a *Aggregator) MonthlyTotals(sales []pos.Sale, notes []pos.CreditNote, limit int) []PeriodTotal {
	return a.byPeriod(sales, notes, "2006-01", limit)
}

func (a *Aggregator) byPeriod(sales []pos.Sale, notes []pos.CreditNote, layout string, limit int) []PeriodTotal {
	buckets := make(map[string]*BucketTotal)
	bucket := func(t time.Time) *BucketTotal {
		key := t.In(a.loc).Format(layout)
		b, ok := buckets[key]
		if !ok {
			b = &BucketTotal{}
			buckets[key] = b
		}
		return b
	}
	for _, s := range sales {
		bucket(s.Timestamp).addSale(s.Total)
	}
	for _, n := range notes {
		bucket(n.Timestamp).addReturn(n.Total)
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	// Zero-padded layouts sort chronologically as strings.
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[len(keys)-limit:]
	}

	out := make([]PeriodTotal, len(keys))
	for i, k := range keys {
		out[i] = PeriodTotal{Period: k, BucketTotal: *buckets[k]}
	}
	return out
}

// =============================================================================
// DASHBOARD EXTRAS
// =============================================================================

// TotalDebt sums what customers owe: positive balances only.
func TotalDebt(accounts []pos.Account) decimal.Decimal {
	total := decimal.Zero
	for _, acc := range accounts {
		if acc.Balance.IsPositive() {
			total = total.Add(acc.Balance)
		}
	}
	return total
}

// LowStock returns active products at or below threshold, lowest first.
func LowStock(products []pos.Product, threshold int) []pos.Product {
	var low []pos.Product
	for _, p := range products {
		if p.Active && p.Quantity <= threshold {
			low = append(low, p)
		}
	}
	sort.SliceStable(low, func(i, j int) bool {
		if low[i].Quantity != low[j].Quantity {
			return low[i].Quantity < low[j].Quantity
		}
		return low[i].ID < low[j].ID
	})
	return low
}

// Summary is the dashboard view built in one pass over already-loaded data.
type Summary struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Net         NetTotals         `json:"net"`
	Daily       []DailyPoint      `json:"daily"`
	TopProducts []ProductQuantity `json:"top_products"`
	CreditNotes CreditNoteTotals  `json:"credit_notes"`
	TotalDebt   decimal.Decimal   `json:"total_debt"`
	LowStock    []pos.Product     `json:"low_stock"`
}

// SummaryInput groups what Summary reads.
type SummaryInput struct {
	Sales       []pos.Sale
	CreditNotes []pos.CreditNote
	Accounts    []pos.Account
	Products    []pos.Product
	TopLimit    int
	Now         time.Time
}

func (a *Aggregator) Summary(in SummaryInput) Summary {
	return Summary{
		GeneratedAt: in.Now.In(a.loc),
		Net:         a.NetTotals(in.Sales, in.CreditNotes, in.Now),
		Daily:       a.DailySeries(in.Sales, in.CreditNotes, in.Now),
		TopProducts: a.TopProducts(in.Sales, in.CreditNotes, in.TopLimit),
		CreditNotes: a.CreditNoteTotals(in.CreditNotes, in.Now),
		TotalDebt:   TotalDebt(in.Accounts),
		LowStock:    LowStock(in.Products, DefaultLowStockThreshold),
	}
}
