// Package types - Service catalog and pricing types
package types

import "github.com/shopspring/decimal"

// ServiceCategory groups catalog entries for display
type ServiceCategory string

const (
	// CategoryCore are the headline service packages (full, interim, major, MOT)
	CategoryCore ServiceCategory = "core"

	// CategoryExtra are individual jobs added alongside a package
	CategoryExtra ServiceCategory = "extra"
)

// Valid reports whether c is a known category
func (c ServiceCategory) Valid() bool {
	return c == CategoryCore || c == CategoryExtra
}

// ServiceDefinition is an offerable service
type ServiceDefinition struct {
	// ID is unique and stable across releases
	ID string `json:"id"`

	Name        string          `json:"name"`
	Description string          `json:"description"`
	BasePrice   decimal.Decimal `json:"basePrice"`
	Category    ServiceCategory `json:"category"`

	// Badge is an optional marketing label such as "RECOMMENDED"
	Badge string `json:"badge,omitempty"`
}

// PricedService is a ServiceDefinition evaluated against a specific vehicle
type PricedService struct {
	Service       ServiceDefinition `json:"service"`
	AdjustedPrice decimal.Decimal   `json:"adjustedPrice"`
}

// LineItem is one priced service within an estimate
type LineItem struct {
	ServiceID string          `json:"serviceId"`
	Name      string          `json:"name"`
	BasePrice decimal.Decimal `json:"basePrice"`
	Price     decimal.Decimal `json:"price"`
}
