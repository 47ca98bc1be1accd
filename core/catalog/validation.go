// Package catalog - Catalog validation
// Ensures catalog integrity and enforces invariants.
package catalog

import (
	"fmt"
	"strings"

	"car-edition/core/types"
)

// ValidationRule is a catalog validation rule
type ValidationRule func(types.ServiceDefinition) error

// DefaultValidationRules returns the standard validation rules
func DefaultValidationRules() []ValidationRule {
	return []ValidationRule{
		validateID,
		validateName,
		validateBasePrice,
		validateCategory,
	}
}

// Validate checks a catalog against validation rules
func (c *Catalog) Validate(rules []ValidationRule) []error {
	var errs []error

	for _, def := range c.ordered {
		for _, rule := range rules {
			if err := rule(def); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", def.ID, err))
			}
		}
	}

	return errs
}

func validateID(d types.ServiceDefinition) error {
	if d.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.ContainsAny(d.ID, " \t/") {
		return fmt.Errorf("id must not contain spaces or slashes")
	}
	return nil
}

func validateName(d types.ServiceDefinition) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// validateBasePrice enforces basePrice >= 0
func validateBasePrice(d types.ServiceDefinition) error {
	if d.BasePrice.IsNegative() {
		return fmt.Errorf("base price must not be negative, got %s", d.BasePrice)
	}
	return nil
}

func validateCategory(d types.ServiceDefinition) error {
	switch d.Category {
	case types.CategoryCore, types.CategoryExtra:
		return nil
	default:
		return fmt.Errorf("unknown category %q", d.Category)
	}
}
