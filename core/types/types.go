// Package types defines core domain types shared across all layers.
// This package contains NO business logic - only type definitions.
package types

import "github.com/shopspring/decimal"

// Currency represents a currency code
type Currency string

const (
	CurrencyGBP Currency = "GBP"
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
)

// String returns the string representation
func (c Currency) String() string {
	return string(c)
}

// Valid reports whether the currency is supported
func (c Currency) Valid() bool {
	return c == CurrencyGBP || c == CurrencyEUR || c == CurrencyUSD
}

// Symbol returns the display symbol for the currency
func (c Currency) Symbol() string {
	switch c {
	case CurrencyGBP:
		return "£"
	case CurrencyEUR:
		return "€"
	case CurrencyUSD:
		return "$"
	default:
		return string(c) + " "
	}
}

// Format renders an amount as currency with two decimal places
func (c Currency) Format(amount decimal.Decimal) string {
	return c.Symbol() + amount.StringFixed(2)
}

// Money is an amount with its currency, serialised as a decimal string
type Money struct {
	Amount   string   `json:"amount"`
	Currency Currency `json:"currency"`
}

// NewMoney builds a Money value rounded to the currency unit
func NewMoney(amount decimal.Decimal, currency Currency) Money {
	return Money{Amount: amount.StringFixed(2), Currency: currency}
}
