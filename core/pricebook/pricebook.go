// Package pricebook loads the service catalog and pricing rule tables
// from HCL configuration. The default price book is embedded in the binary;
// operators may point the config at their own file.
package pricebook

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/shopspring/decimal"
	"github.com/zclconf/go-cty/cty"

	"car-edition/core/catalog"
	"car-edition/core/pricing"
	"car-edition/core/types"
	"car-edition/internal/errors"
)

//go:embed default.hcl
var defaultSource []byte

// DefaultFilename is the name reported for the embedded price book
const DefaultFilename = "default.hcl"

// PriceBook is the decoded, validated configuration
type PriceBook struct {
	Currency    types.Currency
	Services    []types.ServiceDefinition
	Multipliers []pricing.MakeMultiplier
	Brackets    []pricing.AgeBracket

	// Source is the file the book was read from
	Source string

	// ContentHash is the SHA-256 of the source bytes
	ContentHash string

	catalog *catalog.Catalog
	rules   *pricing.Rules
}

type fileSchema struct {
	Currency    *string           `hcl:"currency,optional"`
	Services    []serviceBlock    `hcl:"service,block"`
	Multipliers []multiplierBlock `hcl:"make_multiplier,block"`
	Brackets    []bracketBlock    `hcl:"age_bracket,block"`
}

type serviceBlock struct {
	ID          string    `hcl:"id,label"`
	Name        string    `hcl:"name"`
	Description string    `hcl:"description,optional"`
	BasePrice   cty.Value `hcl:"base_price"`
	Category    string    `hcl:"category,optional"`
	Badge       string    `hcl:"badge,optional"`
}

type multiplierBlock struct {
	Make       string    `hcl:"make,label"`
	Multiplier cty.Value `hcl:"multiplier"`
}

type bracketBlock struct {
	MinAge     int       `hcl:"min_age"`
	MaxAge     *int      `hcl:"max_age,optional"`
	Adjustment cty.Value `hcl:"adjustment"`
}

// Default returns the embedded price book
func Default() (*PriceBook, error) {
	return Parse(defaultSource, DefaultFilename)
}

// MustDefault returns the embedded price book, panicking if it is invalid
func MustDefault() *PriceBook {
	pb, err := Default()
	if err != nil {
		panic(err.Error())
	}
	return pb
}

// Load reads a price book from path, or the embedded default when path is empty
func Load(path string) (*PriceBook, error) {
	if path == "" {
		return Default()
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Config("failed to read price book", err).WithContext("path", path)
	}
	return Parse(src, path)
}

// Parse decodes and validates HCL source
func Parse(src []byte, filename string) (*PriceBook, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Parsing("invalid price book syntax", diagError(diags))
	}

	var schema fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &schema); diags.HasErrors() {
		return nil, errors.Parsing("invalid price book structure", diagError(diags))
	}

	sum := sha256.Sum256(src)
	pb := &PriceBook{
		Currency:    types.CurrencyGBP,
		Source:      filename,
		ContentHash: hex.EncodeToString(sum[:]),
	}
	if schema.Currency != nil && *schema.Currency != "" {
		pb.Currency = types.Currency(*schema.Currency)
	}

	for _, s := range schema.Services {
		price, err := toDecimal(s.BasePrice)
		if err != nil {
			return nil, errors.Parsing(fmt.Sprintf("service %q: base_price", s.ID), err)
		}
		category := types.ServiceCategory(s.Category)
		if category == "" {
			category = types.CategoryExtra
		}
		pb.Services = append(pb.Services, types.ServiceDefinition{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			BasePrice:   price,
			Category:    category,
			Badge:       s.Badge,
		})
	}

	for _, m := range schema.Multipliers {
		mult, err := toDecimal(m.Multiplier)
		if err != nil {
			return nil, errors.Parsing(fmt.Sprintf("make_multiplier %q", m.Make), err)
		}
		pb.Multipliers = append(pb.Multipliers, pricing.MakeMultiplier{Make: m.Make, Multiplier: mult})
	}

	for _, b := range schema.Brackets {
		adj, err := toDecimal(b.Adjustment)
		if err != nil {
			return nil, errors.Parsing(fmt.Sprintf("age_bracket from %d", b.MinAge), err)
		}
		maxAge := pricing.OpenEnded
		if b.MaxAge != nil {
			maxAge = *b.MaxAge
		}
		pb.Brackets = append(pb.Brackets, pricing.AgeBracket{MinAge: b.MinAge, MaxAge: maxAge, Adjustment: adj})
	}

	cat, err := catalog.New(pb.Services)
	if err != nil {
		return nil, err
	}
	rules, err := pricing.NewRules(pb.Multipliers, pb.Brackets)
	if err != nil {
		return nil, errors.Config("invalid pricing rules", err)
	}
	pb.catalog = cat
	pb.rules = rules

	return pb, nil
}

// Catalog returns the validated service catalog
func (pb *PriceBook) Catalog() *catalog.Catalog {
	return pb.catalog
}

// Rules returns the validated rule tables
func (pb *PriceBook) Rules() *pricing.Rules {
	return pb.rules
}

// Engine builds a pricing engine over this book's rules
func (pb *PriceBook) Engine(opts ...pricing.Option) *pricing.Engine {
	return pricing.NewEngine(pb.rules, opts...)
}

// toDecimal converts a number or numeric string without going through float64
func toDecimal(v cty.Value) (decimal.Decimal, error) {
	if v.IsNull() || !v.IsKnown() {
		return decimal.Zero, fmt.Errorf("value is required")
	}
	switch {
	case v.Type().Equals(cty.Number):
		return decimal.NewFromString(v.AsBigFloat().Text('f', -1))
	case v.Type().Equals(cty.String):
		return decimal.NewFromString(v.AsString())
	default:
		return decimal.Zero, fmt.Errorf("expected number, got %s", v.Type().FriendlyName())
	}
}

func diagError(diags hcl.Diagnostics) error {
	for _, diag := range diags {
		if diag.Severity != hcl.DiagError {
			continue
		}
		if diag.Subject != nil {
			return fmt.Errorf("%s:%d: %s: %s", diag.Subject.Filename, diag.Subject.Start.Line, diag.Summary, diag.Detail)
		}
		return fmt.Errorf("%s: %s", diag.Summary, diag.Detail)
	}
	return diags
}
