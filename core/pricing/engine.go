// Package pricing computes vehicle-specific service prices.
// The engine is a pure function of (base price, make, year of manufacture)
// at a fixed reference year; it never fails and never touches I/O.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"car-edition/core/types"
)

// FirstManufactureYear is the oldest plausible year of manufacture
const FirstManufactureYear = 1886

// Engine applies make and age rules to catalog base prices
type Engine struct {
	rules         *Rules
	referenceYear int
}

// Option configures an Engine
type Option func(*Engine)

// WithReferenceYear pins the year vehicle ages are measured from
func WithReferenceYear(year int) Option {
	return func(e *Engine) {
		e.referenceYear = year
	}
}

// WithClock takes the reference year from a clock
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.referenceYear = now().Year()
	}
}

// NewEngine creates an engine. The reference year defaults to the current year
// and is fixed for the engine's lifetime.
func NewEngine(rules *Rules, opts ...Option) *Engine {
	e := &Engine{
		rules:         rules,
		referenceYear: time.Now().Year(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the rule tables in use
func (e *Engine) Rules() *Rules {
	return e.rules
}

// ReferenceYear returns the year ages are measured from
func (e *Engine) ReferenceYear() int {
	return e.referenceYear
}

// Breakdown shows each step of a price calculation
type Breakdown struct {
	BasePrice       decimal.Decimal `json:"base_price"`
	Multiplier      decimal.Decimal `json:"multiplier"`
	AfterMultiplier decimal.Decimal `json:"after_multiplier"`
	Age             int             `json:"age"`
	AgeKnown        bool            `json:"age_known"`
	AgeAdjustment   decimal.Decimal `json:"age_adjustment"`
	Clamped         bool            `json:"clamped"`
	Price           decimal.Decimal `json:"price"`
}

// Explain prices a service and returns every intermediate value
func (e *Engine) Explain(service types.ServiceDefinition, manufacturer string, year int) Breakdown {
	b := Breakdown{
		BasePrice:     service.BasePrice,
		Multiplier:    e.rules.Multiplier(manufacturer),
		AgeAdjustment: decimal.Zero,
	}

	b.AfterMultiplier = b.BasePrice.Mul(b.Multiplier).Round(2)

	if age, ok := e.Age(year); ok {
		b.Age = age
		b.AgeKnown = true
		b.AgeAdjustment = e.rules.AgeAdjustment(age)
	}

	price := b.AfterMultiplier.Add(b.AgeAdjustment).Round(2)
	if price.IsNegative() {
		price = decimal.Zero
		b.Clamped = true
	}
	b.Price = price

	return b
}

// PriceFor returns the adjusted price of a service for a vehicle make and year
func (e *Engine) PriceFor(service types.ServiceDefinition, manufacturer string, year int) decimal.Decimal {
	return e.Explain(service, manufacturer, year).Price
}

// Price evaluates a service against a vehicle. A nil vehicle yields the base price.
func (e *Engine) Price(service types.ServiceDefinition, vehicle *types.VehicleDetails) types.PricedService {
	if vehicle == nil {
		return types.PricedService{Service: service, AdjustedPrice: service.BasePrice.Round(2)}
	}
	return types.PricedService{
		Service:       service,
		AdjustedPrice: e.PriceFor(service, vehicle.Make, vehicle.YearOfManufacture),
	}
}

// PriceAll prices every service for one vehicle, preserving order
func (e *Engine) PriceAll(services []types.ServiceDefinition, vehicle *types.VehicleDetails) []types.PricedService {
	out := make([]types.PricedService, 0, len(services))
	for _, s := range services {
		out = append(out, e.Price(s, vehicle))
	}
	return out
}

// Age returns the vehicle age at the reference year.
// Years outside [FirstManufactureYear, referenceYear+1] are not plausible.
func (e *Engine) Age(year int) (int, bool) {
	if year < FirstManufactureYear || year > e.referenceYear+1 {
		return 0, false
	}
	age := e.referenceYear - year
	if age < 0 {
		// registered ahead of the calendar year
		age = 0
	}
	return age, true
}
