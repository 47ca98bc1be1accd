// Package vehicle resolves registration numbers to vehicle details.
// It defines the lookup contract, registration normalisation, boundary
// validation and the deterministic mock registry used outside production.
package vehicle

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"car-edition/core/pricing"
	"car-edition/core/types"
	"car-edition/internal/errors"
)

// Lookup resolves a normalized registration to vehicle details.
// Implementations return TypeNotFound when the registry has no such vehicle
// and TypeLookupFailed for transport or payload problems.
type Lookup interface {
	LookupVehicle(ctx context.Context, registration string) (*types.VehicleDetails, error)
}

// LookupFunc adapts a function to the Lookup interface
type LookupFunc func(ctx context.Context, registration string) (*types.VehicleDetails, error)

// LookupVehicle calls f
func (f LookupFunc) LookupVehicle(ctx context.Context, registration string) (*types.VehicleDetails, error) {
	return f(ctx, registration)
}

// NormalizeRegistration trims, upper-cases and strips all whitespace
func NormalizeRegistration(registration string) string {
	var b strings.Builder
	b.Grow(len(registration))
	for _, r := range registration {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// FormatRegistration renders a registration for display, e.g. AB12CDE as "AB12 CDE"
func FormatRegistration(registration string) string {
	reg := NormalizeRegistration(registration)
	if len(reg) <= 4 {
		return reg
	}
	return reg[:4] + " " + reg[4:]
}

// ValidateRegistration normalizes a registration and rejects empty or
// non-alphanumeric input before any lookup is attempted.
func ValidateRegistration(registration string) (string, error) {
	reg := NormalizeRegistration(registration)
	if reg == "" {
		return "", errors.Validation("registration number is required")
	}
	if len(reg) > 8 {
		return "", errors.Validation("registration number is too long").WithContext("registration", reg)
	}
	for _, r := range reg {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", errors.Validation("registration number may only contain letters and digits").
				WithContext("registration", reg)
		}
	}
	return reg, nil
}

// Validate checks a resolved vehicle against the data model invariants.
// referenceYear is the current calendar year.
func Validate(v *types.VehicleDetails, referenceYear int) error {
	if v == nil {
		return errors.Validation("vehicle details are missing")
	}

	var problems []string
	if v.RegistrationNumber == "" {
		problems = append(problems, "registration number is empty")
	}
	if strings.TrimSpace(v.Make) == "" {
		problems = append(problems, "make is empty")
	}
	if v.YearOfManufacture < pricing.FirstManufactureYear || v.YearOfManufacture > referenceYear+1 {
		problems = append(problems, fmt.Sprintf("implausible year of manufacture %d", v.YearOfManufacture))
	}
	if v.EngineCapacity < 0 {
		problems = append(problems, fmt.Sprintf("negative engine capacity %d", v.EngineCapacity))
	}

	if len(problems) > 0 {
		return errors.Validation("invalid vehicle details: "+strings.Join(problems, "; ")).
			WithContext("registration", v.RegistrationNumber)
	}
	return nil
}
