package estimate

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"car-edition/core/catalog"
	"car-edition/core/pricing"
	"car-edition/core/types"
)

const refYear = 2026

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testCalculator(t *testing.T) *Calculator {
	t.Helper()
	cat, err := catalog.New([]types.ServiceDefinition{
		{ID: "full-service", Name: "Full Service", BasePrice: d("249.00"), Category: types.CategoryCore},
		{ID: "interim-service", Name: "Interim Service", BasePrice: d("149.00"), Category: types.CategoryCore},
		{ID: "mot-test", Name: "MOT Test", BasePrice: d("54.85"), Category: types.CategoryCore},
		{ID: "diagnostics", Name: "Diagnostics", BasePrice: d("60.00"), Category: types.CategoryExtra},
	})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	rules, err := pricing.NewRules(
		[]pricing.MakeMultiplier{{Make: "BMW", Multiplier: d("1.1")}},
		[]pricing.AgeBracket{
			{MinAge: 0, MaxAge: 2, Adjustment: d("-10")},
			{MinAge: 8, MaxAge: 14, Adjustment: d("15")},
		},
	)
	if err != nil {
		t.Fatalf("NewRules: %v", err)
	}
	return NewCalculator(cat, pricing.NewEngine(rules, pricing.WithReferenceYear(refYear)), types.CurrencyGBP)
}

func TestSelectionIdempotentToggling(t *testing.T) {
	s := NewSelection()

	if !s.Add("full-service") {
		t.Error("first add should change membership")
	}
	if s.Add("full-service") {
		t.Error("second add should be a no-op")
	}
	if !reflect.DeepEqual(s.IDs(), []string{"full-service"}) {
		t.Errorf("ids = %v", s.IDs())
	}

	if s.Remove("mot-test") {
		t.Error("removing an absent id should be a no-op")
	}
	if !reflect.DeepEqual(s.IDs(), []string{"full-service"}) {
		t.Errorf("ids after no-op remove = %v", s.IDs())
	}

	if s.Toggle("full-service") {
		t.Error("toggle of a selected id should deselect it")
	}
	if !s.Empty() {
		t.Errorf("expected empty selection, got %v", s.IDs())
	}
	if !s.Toggle("mot-test") || !s.Has("mot-test") {
		t.Error("toggle of an absent id should select it")
	}
	if s.Add("") {
		t.Error("empty id must not be selectable")
	}
}

func TestSelectionIDsIsACopy(t *testing.T) {
	s := NewSelection("a", "b")
	ids := s.IDs()
	ids[0] = "mutated"
	if s.IDs()[0] != "a" {
		t.Error("IDs must not expose internal state")
	}

	c := s.Clone()
	c.Add("c")
	if s.Has("c") {
		t.Error("clone shares state with the original")
	}
}

func TestSumConsistency(t *testing.T) {
	c := testCalculator(t)
	vehicles := []*types.VehicleDetails{
		nil,
		{Make: "BMW", YearOfManufacture: refYear - 10},
		{Make: "Ford", YearOfManufacture: refYear},
		{Make: "bmw", YearOfManufacture: 0},
	}
	selections := [][]string{
		{},
		{"full-service"},
		{"full-service", "interim-service", "mot-test", "diagnostics"},
		{"mot-test", "ghost", "diagnostics"},
	}

	for _, v := range vehicles {
		for _, ids := range selections {
			sel := NewSelection(ids...)
			want := decimal.Zero
			for _, id := range sel.IDs() {
				def, ok := c.Catalog().Get(id)
				if !ok {
					continue
				}
				if v == nil {
					want = want.Add(def.BasePrice)
				} else {
					want = want.Add(c.Engine().PriceFor(def, v.Make, v.YearOfManufacture))
				}
			}
			if got := c.ComputeTotal(sel, v); !got.Equal(want) {
				t.Errorf("ComputeTotal(%v, %+v) = %s, want %s", ids, v, got, want)
			}
		}
	}
}

func TestUnknownIDsAreSkipped(t *testing.T) {
	c := testCalculator(t)
	sel := NewSelection("ghost", "mot-test")

	e := c.Compute(sel, &types.VehicleDetails{Make: "Ford", YearOfManufacture: refYear - 5})
	if !e.Total.Equal(d("54.85")) {
		t.Errorf("total = %s", e.Total)
	}
	if len(e.LineItems) != 1 || e.LineItems[0].ServiceID != "mot-test" {
		t.Errorf("line items = %+v", e.LineItems)
	}
	if !reflect.DeepEqual(e.Skipped, []string{"ghost"}) {
		t.Errorf("skipped = %v", e.Skipped)
	}
}

func TestSelectionScenario(t *testing.T) {
	c := testCalculator(t)
	vehicle := &types.VehicleDetails{RegistrationNumber: "BD16XYZ", Make: "BMW", YearOfManufacture: refYear - 10}

	sel := NewSelection("full-service", "interim-service")
	sel.SetOtherService("  wheel alignment ")

	e := c.Compute(sel, vehicle)
	// 249*1.1+15 and 149*1.1+15
	if !e.Total.Equal(d("288.90").Add(d("178.90"))) {
		t.Errorf("total = %s", e.Total)
	}
	if e.OtherService != "wheel alignment" {
		t.Errorf("other service = %q", e.OtherService)
	}
	if got := c.ServicesSummary(sel); got != "Full Service, Interim Service, wheel alignment" {
		t.Errorf("summary = %q", got)
	}
	if e.Vehicle == vehicle {
		t.Error("estimate should hold a copy of the vehicle")
	}
	if e.ReferenceYear != refYear || e.Currency != types.CurrencyGBP {
		t.Errorf("unexpected metadata: %d %s", e.ReferenceYear, e.Currency)
	}
}

func TestOtherServiceContributesNothing(t *testing.T) {
	c := testCalculator(t)
	sel := NewSelection("mot-test")
	before := c.ComputeTotal(sel, nil)
	sel.SetOtherService("check rattle in boot")
	if after := c.ComputeTotal(sel, nil); !after.Equal(before) {
		t.Errorf("other service changed total: %s -> %s", before, after)
	}

	only := NewSelection()
	only.SetOtherService("wheel alignment")
	if got := c.ServicesSummary(only); got != "wheel alignment" {
		t.Errorf("summary = %q", got)
	}
}

func TestPriceCatalog(t *testing.T) {
	c := testCalculator(t)
	priced := c.PriceCatalog(&types.VehicleDetails{Make: "BMW", YearOfManufacture: refYear - 10})
	if len(priced) != c.Catalog().Len() {
		t.Fatalf("expected %d priced services, got %d", c.Catalog().Len(), len(priced))
	}
	if priced[0].Service.ID != "full-service" || !priced[0].AdjustedPrice.Equal(d("288.90")) {
		t.Errorf("first priced service = %+v", priced[0])
	}
}

func TestSelectionJSON(t *testing.T) {
	sel := NewSelection("full-service", "mot-test")
	sel.SetOtherService("wipers")

	data, err := json.Marshal(sel)
	if err != nil {
		t.Fatal(err)
	}

	var back Selection
	if err := json.Unmarshal([]byte(`{"serviceIds":["a","a","b"],"otherService":" x "}`), &back); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back.IDs(), []string{"a", "b"}) || back.OtherService() != "x" {
		t.Errorf("decoded = %v %q", back.IDs(), back.OtherService())
	}

	var round Selection
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(round.IDs(), sel.IDs()) || round.OtherService() != "wipers" {
		t.Errorf("round trip lost data: %s", data)
	}
}
