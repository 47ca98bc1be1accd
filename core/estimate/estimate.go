package estimate

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"car-edition/core/catalog"
	"car-edition/core/pricing"
	"car-edition/core/types"
)

// Estimate is a priced selection for one vehicle
type Estimate struct {
	Vehicle      *types.VehicleDetails `json:"vehicle,omitempty"`
	LineItems    []types.LineItem      `json:"lineItems"`
	OtherService string                `json:"otherService,omitempty"`
	Total        decimal.Decimal       `json:"total"`
	Currency     types.Currency        `json:"currency"`

	// Skipped lists selected ids that are no longer in the catalog
	Skipped []string `json:"skipped,omitempty"`

	ReferenceYear int       `json:"referenceYear"`
	ComputedAt    time.Time `json:"computedAt"`
}

// Calculator prices selections against one catalog and one engine.
// Both are immutable, so a Calculator is safe for concurrent use.
type Calculator struct {
	catalog  *catalog.Catalog
	engine   *pricing.Engine
	currency types.Currency
}

// NewCalculator creates a calculator
func NewCalculator(cat *catalog.Catalog, engine *pricing.Engine, currency types.Currency) *Calculator {
	if currency == "" {
		currency = types.CurrencyGBP
	}
	return &Calculator{catalog: cat, engine: engine, currency: currency}
}

// Catalog returns the service catalog
func (c *Calculator) Catalog() *catalog.Catalog {
	return c.catalog
}

// Engine returns the pricing engine
func (c *Calculator) Engine() *pricing.Engine {
	return c.engine
}

// Currency returns the display currency
func (c *Calculator) Currency() types.Currency {
	return c.currency
}

// PriceCatalog prices every catalog service for a vehicle, in catalog order
func (c *Calculator) PriceCatalog(vehicle *types.VehicleDetails) []types.PricedService {
	return c.engine.PriceAll(c.catalog.List(), vehicle)
}

// LineItems prices each selected id that exists in the catalog, in selection order.
// Unknown ids are skipped.
func (c *Calculator) LineItems(sel *Selection, vehicle *types.VehicleDetails) []types.LineItem {
	items, _ := c.lineItems(sel, vehicle)
	return items
}

func (c *Calculator) lineItems(sel *Selection, vehicle *types.VehicleDetails) ([]types.LineItem, []string) {
	if sel == nil {
		return []types.LineItem{}, nil
	}

	items := make([]types.LineItem, 0, sel.Len())
	var skipped []string
	for _, id := range sel.ids {
		def, ok := c.catalog.Get(id)
		if !ok {
			skipped = append(skipped, id)
			continue
		}
		priced := c.engine.Price(def, vehicle)
		items = append(items, types.LineItem{
			ServiceID: def.ID,
			Name:      def.Name,
			BasePrice: def.BasePrice,
			Price:     priced.AdjustedPrice,
		})
	}
	return items, skipped
}

// ComputeTotal sums adjusted prices over exactly the selected ids found in the catalog.
// The other-service text contributes nothing.
func (c *Calculator) ComputeTotal(sel *Selection, vehicle *types.VehicleDetails) decimal.Decimal {
	return sum(c.LineItems(sel, vehicle))
}

// Compute builds the full estimate
func (c *Calculator) Compute(sel *Selection, vehicle *types.VehicleDetails) *Estimate {
	items, skipped := c.lineItems(sel, vehicle)
	e := &Estimate{
		Vehicle:       vehicle.Clone(),
		LineItems:     items,
		Total:         sum(items),
		Currency:      c.currency,
		Skipped:       skipped,
		ReferenceYear: c.engine.ReferenceYear(),
		ComputedAt:    time.Now().UTC(),
	}
	if sel != nil {
		e.OtherService = sel.OtherService()
	}
	return e
}

// ServicesSummary joins selected service names with ", " and appends the
// other-service text, e.g. "Full Service, Interim Service, wheel alignment".
func (c *Calculator) ServicesSummary(sel *Selection) string {
	if sel == nil {
		return ""
	}
	parts := make([]string, 0, sel.Len()+1)
	for _, id := range sel.ids {
		if def, ok := c.catalog.Get(id); ok {
			parts = append(parts, def.Name)
		}
	}
	if sel.other != "" {
		parts = append(parts, sel.other)
	}
	return strings.Join(parts, ", ")
}

func sum(items []types.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Price)
	}
	return total
}
