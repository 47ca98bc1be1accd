package catalog

import (
	"testing"

	"github.com/shopspring/decimal"

	"car-edition/core/types"
	"car-edition/internal/errors"
)

func def(id, name, price string, cat types.ServiceCategory) types.ServiceDefinition {
	return types.ServiceDefinition{
		ID:        id,
		Name:      name,
		BasePrice: decimal.RequireFromString(price),
		Category:  cat,
	}
}

func TestCatalogKeepsOrder(t *testing.T) {
	c := MustNew([]types.ServiceDefinition{
		def("full-service", "Full Service", "249.00", types.CategoryCore),
		def("interim-service", "Interim Service", "149.00", types.CategoryCore),
		def("brake-pads", "Brake Pad Replacement", "120.00", types.CategoryExtra),
	})

	list := c.List()
	want := []string{"full-service", "interim-service", "brake-pads"}
	if len(list) != len(want) {
		t.Fatalf("expected %d services, got %d", len(want), len(list))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, list[i].ID)
		}
	}

	if got := len(c.ByCategory(types.CategoryCore)); got != 2 {
		t.Errorf("expected 2 core services, got %d", got)
	}
	if got := c.ByCategory(types.CategoryExtra); len(got) != 1 {
		t.Errorf("expected 1 extra service, got %d", len(got))
	}
}

func TestCatalogListIsACopy(t *testing.T) {
	c := MustNew([]types.ServiceDefinition{def("mot-test", "MOT Test", "54.85", types.CategoryCore)})

	list := c.List()
	list[0].Name = "changed"

	got, _ := c.Get("mot-test")
	if got.Name != "MOT Test" {
		t.Errorf("catalog was mutated through List(): %q", got.Name)
	}
}

func TestCatalogGetUnknown(t *testing.T) {
	c := MustNew(nil)

	if _, ok := c.Get("wash"); ok {
		t.Error("expected unknown id to be absent")
	}
	if _, err := c.Lookup("wash"); !errors.IsType(err, errors.TypeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestCatalogRejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		defs []types.ServiceDefinition
	}{
		{
			name: "duplicate id",
			defs: []types.ServiceDefinition{
				def("full-service", "Full Service", "249.00", types.CategoryCore),
				def("full-service", "Full Service Again", "199.00", types.CategoryCore),
			},
		},
		{
			name: "negative price",
			defs: []types.ServiceDefinition{def("refund", "Refund", "-1.00", types.CategoryExtra)},
		},
		{
			name: "missing name",
			defs: []types.ServiceDefinition{def("nameless", " ", "10.00", types.CategoryExtra)},
		},
		{
			name: "unknown category",
			defs: []types.ServiceDefinition{def("valet", "Valet", "10.00", "luxury")},
		},
		{
			name: "id with space",
			defs: []types.ServiceDefinition{def("full service", "Full Service", "10.00", types.CategoryCore)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.defs)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.IsType(err, errors.TypeConfig) {
				t.Errorf("expected CONFIG_ERROR, got %v", err)
			}
		})
	}
}

func TestZeroPriceIsAllowed(t *testing.T) {
	if _, err := New([]types.ServiceDefinition{def("health-check", "Free Health Check", "0", types.CategoryExtra)}); err != nil {
		t.Fatalf("zero base price should be valid: %v", err)
	}
}
