// Package types - Vehicle types
package types

// FuelType is the fuel a vehicle runs on
type FuelType string

const (
	FuelPetrol   FuelType = "Petrol"
	FuelDiesel   FuelType = "Diesel"
	FuelHybrid   FuelType = "Hybrid"
	FuelElectric FuelType = "Electric"
)

// VehicleDetails is a single vehicle resolved from a registration number
type VehicleDetails struct {
	// RegistrationNumber is upper-case with no spaces
	RegistrationNumber string `json:"registrationNumber"`

	Make              string   `json:"make"`
	Model             string   `json:"model"`
	Color             string   `json:"color"`
	FuelType          FuelType `json:"fuelType"`
	EngineCapacity    int      `json:"engineCapacity"`
	YearOfManufacture int      `json:"yearOfManufacture"`
	Transmission      string   `json:"transmission"`
	BodyType          string   `json:"bodyType"`

	// Registry extras, absent for some lookups
	TaxStatus                string `json:"taxStatus,omitempty"`
	MotStatus                string `json:"motStatus,omitempty"`
	Wheelplan                string `json:"wheelplan,omitempty"`
	MonthOfFirstRegistration string `json:"monthOfFirstRegistration,omitempty"`
}

// Clone returns a copy safe to hand to another session
func (v *VehicleDetails) Clone() *VehicleDetails {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
