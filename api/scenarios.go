/*
scenarios.go - Demo data loaders for demonstrations and manual testing

PURPOSE:

	Populates a store with realistic point-of-sale data through the same
	services the API uses, so every loaded document gets real numbers, stock
	movements and balances.

AVAILABLE SCENARIOS:

	corner-store:      Catalog with one low-stock item, direct sales, one return
	account-customers: Two credit accounts, one still owing and one paid off

HOW SCENARIOS WORK:
 1. Products are upserted with fixed ids (loading twice resets their stock)
 2. Accounts, sales and notes are always new documents
 3. Nothing is deleted

USAGE VIA API:

	GET  /api/scenarios
	POST /api/scenarios/load
	{"scenario_id": "corner-store"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' with ID, name, description
 2. Write loadXxxScenario(ctx, h) returning what it created
 3. Register it in scenarioLoaders
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/pos-ledger/ledger"
	"github.com/warp/pos-ledger/pos"
	"github.com/warp/pos-ledger/sales"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "corner-store",
		Name:        "Corner Store",
		Description: "Small catalog, a day of cash sales and a returned item",
		Category:    "sales",
	},
	{
		ID:          "account-customers",
		Name:        "Account Customers",
		Description: "Credit accounts with charges and discounted payments",
		Category:    "ledger",
	},
}

type scenarioLoader func(ctx context.Context, h *Handler) (ScenarioResultDTO, error)

var scenarioLoaders = map[string]scenarioLoader{
	"corner-store":      loadCornerStoreScenario,
	"account-customers": loadAccountCustomersScenario,
}

// =============================================================================
// HANDLERS
// =============================================================================

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeDomainError(w, r, "Unknown scenario", pos.Invalid("scenario_id", "unknown scenario %q", req.ScenarioID))
		return
	}
	result, err := load(r.Context(), h)
	if err != nil {
		writeDomainError(w, r, "Failed to load scenario", err)
		return
	}
	result.ScenarioID = req.ScenarioID
	h.log.Info().Str("scenario", req.ScenarioID).
		Int("accounts", result.Accounts).Int("products", result.Products).
		Int("sales", result.Sales).Int("credit_notes", result.CreditNotes).
		Msg("scenario loaded")
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// LOADERS
// =============================================================================

var demoProducts = []pos.Product{
	{ID: "demo-yerba", Name: "Yerba 1kg", SKU: "YER-1000", UnitPrice: decimal.NewFromInt(10), CostPrice: decimal.NewFromInt(7), Quantity: 40, MinStock: 10, Active: true},
	{ID: "demo-azucar", Name: "Azucar 1kg", SKU: "AZU-1000", UnitPrice: decimal.NewFromInt(2), CostPrice: decimal.RequireFromString("1.2"), Quantity: 6, MinStock: 5, Active: true},
	{ID: "demo-pan", Name: "Pan", SKU: "PAN-001", UnitPrice: decimal.RequireFromString("1.5"), CostPrice: decimal.NewFromInt(1), Quantity: 100, MinStock: 20, Active: true},
}

func line(p pos.Product, qty int) pos.LineItem {
	return pos.LineItem{ProductID: p.ID, Name: p.Name, UnitPrice: p.UnitPrice, Quantity: qty}
}

func loadCornerStoreScenario(ctx context.Context, h *Handler) (ScenarioResultDTO, error) {
	var result ScenarioResultDTO
	for _, p := range demoProducts {
		if err := h.Store.SaveProduct(ctx, p); err != nil {
			return result, fmt.Errorf("product %s: %w", p.ID, err)
		}
		result.Products++
	}
	yerba, azucar, pan := demoProducts[0], demoProducts[1], demoProducts[2]

	baskets := []sales.SaleInput{
		{Items: []pos.LineItem{line(yerba, 2), line(pan, 4)}},
		{CustomerName: "Almacen Sur", Items: []pos.LineItem{line(azucar, 3)}, PaymentMethod: pos.PaymentTransfer},
		{Items: []pos.LineItem{line(yerba, 1), line(azucar, 1)}, PaymentMethod: pos.PaymentCard},
	}
	var returned pos.Sale
	for i, in := range baskets {
		receipt, err := h.Sales.RecordSale(ctx, in)
		if err != nil {
			return result, fmt.Errorf("sale %d: %w", i+1, err)
		}
		if i == 0 {
			returned = receipt.Document
		}
		result.Sales++
	}

	if _, err := h.Sales.RecordCreditNote(ctx, sales.CreditNoteInput{
		Motive:         "Damaged packaging",
		Items:          []pos.LineItem{line(yerba, 1)},
		OriginalSaleID: returned.ID,
	}); err != nil {
		return result, fmt.Errorf("credit note: %w", err)
	}
	result.CreditNotes++
	return result, nil
}

func loadAccountCustomersScenario(ctx context.Context, h *Handler) (ScenarioResultDTO, error) {
	var result ScenarioResultDTO

	owing, err := h.Ledger.CreateAccount(ctx, ledger.AccountInput{
		CustomerName: "Cliente A", Phone: "555-0101", CreditLimit: decimal.NewFromInt(2000),
	})
	if err != nil {
		return result, err
	}
	settled, err := h.Ledger.CreateAccount(ctx, ledger.AccountInput{
		CustomerName: "Cliente B", Email: "b@example.com", CreditLimit: decimal.NewFromInt(500),
	})
	if err != nil {
		return result, err
	}
	result.Accounts = 2

	movements := []ledger.MovementInput{
		{AccountID: owing.ID, Type: pos.MovementCharge, Amount: decimal.NewFromInt(1000), Concept: "Monthly groceries"},
		{AccountID: owing.ID, Type: pos.MovementPayment, Amount: decimal.NewFromInt(500), DiscountPercent: decimal.NewFromInt(10), Concept: "Partial payment"},
		{AccountID: settled.ID, Type: pos.MovementCharge, Amount: decimal.NewFromInt(200)},
		{AccountID: settled.ID, Type: pos.MovementPayment, Amount: decimal.NewFromInt(200)},
	}
	for _, in := range movements {
		m, err := h.Ledger.RecordMovement(ctx, in)
		if err != nil {
			return result, err
		}
		result.Movements++
		if m.Type == pos.MovementPayment {
			// Each payment is mirrored into sales.
			result.Sales++
		}
	}
	return result, nil
}
