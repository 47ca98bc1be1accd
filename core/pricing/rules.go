// Package pricing - Rule tables for vehicle-specific price adjustment.
// Tables are configuration: built once, never mutated, shared across sessions.
package pricing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// OpenEnded marks an age bracket without an upper bound
const OpenEnded = -1

// MakeMultiplier scales the base price for one manufacturer
type MakeMultiplier struct {
	Make       string          `json:"make"`
	Multiplier decimal.Decimal `json:"multiplier"`
}

// AgeBracket adds a fixed amount for vehicles within an age range (inclusive)
type AgeBracket struct {
	MinAge     int             `json:"min_age"`
	MaxAge     int             `json:"max_age"` // OpenEnded for no upper bound
	Adjustment decimal.Decimal `json:"adjustment"`
}

// Contains reports whether age falls inside the bracket
func (b AgeBracket) Contains(age int) bool {
	if age < b.MinAge {
		return false
	}
	return b.MaxAge == OpenEnded || age <= b.MaxAge
}

// Rules holds the make and age tables
type Rules struct {
	multipliers map[string]decimal.Decimal
	makes       []MakeMultiplier
	brackets    []AgeBracket
}

// NewRules validates and freezes the rule tables.
// Make matching is case-insensitive; brackets must not overlap.
func NewRules(multipliers []MakeMultiplier, brackets []AgeBracket) (*Rules, error) {
	r := &Rules{
		multipliers: make(map[string]decimal.Decimal, len(multipliers)),
		makes:       make([]MakeMultiplier, 0, len(multipliers)),
		brackets:    make([]AgeBracket, len(brackets)),
	}

	for _, m := range multipliers {
		key := normalizeMake(m.Make)
		if key == "" {
			return nil, fmt.Errorf("make multiplier with empty make")
		}
		if !m.Multiplier.IsPositive() {
			return nil, fmt.Errorf("make %s: multiplier must be positive, got %s", m.Make, m.Multiplier)
		}
		if _, dup := r.multipliers[key]; dup {
			return nil, fmt.Errorf("make %s listed twice", m.Make)
		}
		r.multipliers[key] = m.Multiplier
		r.makes = append(r.makes, m)
	}

	copy(r.brackets, brackets)
	sort.SliceStable(r.brackets, func(i, j int) bool {
		return r.brackets[i].MinAge < r.brackets[j].MinAge
	})

	for i, b := range r.brackets {
		if b.MinAge < 0 {
			return nil, fmt.Errorf("age bracket %d: min age must not be negative", i)
		}
		if b.MaxAge != OpenEnded && b.MaxAge < b.MinAge {
			return nil, fmt.Errorf("age bracket %d-%d: max below min", b.MinAge, b.MaxAge)
		}
		if i > 0 {
			prev := r.brackets[i-1]
			if prev.MaxAge == OpenEnded || prev.MaxAge >= b.MinAge {
				return nil, fmt.Errorf("age brackets overlap at age %d", b.MinAge)
			}
		}
	}

	return r, nil
}

// MustNewRules is NewRules for static tables known to be valid
func MustNewRules(multipliers []MakeMultiplier, brackets []AgeBracket) *Rules {
	r, err := NewRules(multipliers, brackets)
	if err != nil {
		panic(err.Error())
	}
	return r
}

// Multiplier returns the make multiplier, 1.0 for unknown makes
func (r *Rules) Multiplier(manufacturer string) decimal.Decimal {
	if m, ok := r.multipliers[normalizeMake(manufacturer)]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

// AgeAdjustment returns the additive adjustment for a vehicle age, zero when no bracket matches
func (r *Rules) AgeAdjustment(age int) decimal.Decimal {
	for _, b := range r.brackets {
		if b.Contains(age) {
			return b.Adjustment
		}
	}
	return decimal.Zero
}

// Makes returns the multiplier table in configuration order
func (r *Rules) Makes() []MakeMultiplier {
	out := make([]MakeMultiplier, len(r.makes))
	copy(out, r.makes)
	return out
}

// Brackets returns the age brackets sorted by minimum age
func (r *Rules) Brackets() []AgeBracket {
	out := make([]AgeBracket, len(r.brackets))
	copy(out, r.brackets)
	return out
}

func normalizeMake(manufacturer string) string {
	return strings.ToLower(strings.Join(strings.Fields(manufacturer), " "))
}
