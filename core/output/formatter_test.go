package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"car-edition/core/estimate"
	"car-edition/core/types"
)

func sampleQuote() *Quote {
	d := decimal.RequireFromString
	return &Quote{
		Registration: "BD16 XYZ",
		Summary:      "Full Service, wheel alignment",
		Estimate: &estimate.Estimate{
			Vehicle: &types.VehicleDetails{RegistrationNumber: "BD16XYZ", Make: "BMW", Model: "3 Series", YearOfManufacture: 2016},
			LineItems: []types.LineItem{
				{ServiceID: "full-service", Name: "Full Service", BasePrice: d("249.00"), Price: d("288.90")},
			},
			OtherService:  "wheel alignment",
			Total:         d("288.90"),
			Currency:      types.CurrencyGBP,
			Skipped:       []string{"bogus"},
			ReferenceYear: 2026,
		},
	}
}

func TestCLIFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (CLIFormatter{}).Render(&buf, sampleQuote()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"BD16 XYZ  BMW 3 Series (2016)", "Full Service", "£288.90", "base £249.00", "Other: wheel alignment", "Estimated total", "Skipped unknown services: bogus"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCLIFormatterEmpty(t *testing.T) {
	q := &Quote{Estimate: &estimate.Estimate{Currency: types.CurrencyGBP, Total: decimal.Zero}}
	var buf bytes.Buffer
	if err := (CLIFormatter{}).Render(&buf, q); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No services selected") || !strings.Contains(buf.String(), "£0.00") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONFormatter{}).Render(&buf, sampleQuote()); err != nil {
		t.Fatal(err)
	}
	var back struct {
		Registration string `json:"registration"`
		Summary      string `json:"summary"`
		Estimate     struct {
			Total string `json:"total"`
		} `json:"estimate"`
	}
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if back.Estimate.Total != "288.9" || back.Summary != "Full Service, wheel alignment" {
		t.Errorf("decoded = %+v", back)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get(FormatCLI); !ok {
		t.Error("cli formatter missing")
	}
	if _, ok := r.Get("html"); ok {
		t.Error("html should not be registered")
	}
	if err := r.Register(JSONFormatter{}); err == nil {
		t.Error("duplicate registration should fail")
	}
	if got := strings.Join(r.Formats(), ","); got != "cli,json" {
		t.Errorf("formats = %s", got)
	}
}

func TestRenderServices(t *testing.T) {
	var buf bytes.Buffer
	RenderServices(&buf, []types.ServiceDefinition{
		{ID: "full-service", Name: "Full Service", BasePrice: decimal.RequireFromString("249"), Category: types.CategoryCore, Badge: "RECOMMENDED"},
	}, types.CurrencyGBP)
	if !strings.Contains(buf.String(), "£249.00") || !strings.Contains(buf.String(), "[RECOMMENDED]") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}
