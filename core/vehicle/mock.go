package vehicle

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"regexp"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"car-edition/core/types"
	"car-edition/internal/errors"
	"car-edition/internal/logging"
)

// DefaultYear is used when a registration carries no two-digit age identifier
const DefaultYear = 2015

// FallbackMake and FallbackModel are used when the first letter is unmapped
const (
	FallbackMake  = "Ford"
	FallbackModel = "Generic Model"
)

// Makes maps the first letter of a registration to a manufacturer
var Makes = map[byte]string{
	'A': "Audi", 'B': "BMW", 'C': "Citroen", 'D': "Dacia", 'E': "Escort",
	'F': "Ford", 'G': "Geely", 'H': "Honda", 'I': "Infiniti", 'J': "Jaguar",
	'K': "Kia", 'L': "Land Rover", 'M': "Mercedes", 'N': "Nissan", 'O': "Opel",
	'P': "Peugeot", 'Q': "Qoros", 'R': "Renault", 'S': "Skoda", 'T': "Toyota",
	'U': "Ultima", 'V': "Volkswagen", 'W': "Wolseley", 'X': "Xpeng", 'Y': "Yamaha",
	'Z': "Zenvo",
}

// Models lists the models the mock may pick for each make
var Models = map[string][]string{
	"Audi":       {"A1", "A3", "A4", "A6", "Q5", "TT"},
	"BMW":        {"1 Series", "3 Series", "5 Series", "X3", "X5", "i8"},
	"Citroen":    {"C1", "C3", "C4", "Berlingo", "DS3"},
	"Dacia":      {"Sandero", "Duster", "Logan"},
	"Escort":     {"XR3i", "RS Turbo", "Cosworth"},
	"Ford":       {"Fiesta", "Focus", "Mondeo", "Kuga", "Mustang"},
	"Geely":      {"Emgrand", "GC9", "Boyue"},
	"Honda":      {"Civic", "Jazz", "CR-V", "HR-V", "Accord"},
	"Infiniti":   {"Q30", "Q50", "QX70"},
	"Jaguar":     {"XE", "XF", "F-Type", "F-Pace"},
	"Kia":        {"Picanto", "Rio", "Ceed", "Sportage", "Sorento"},
	"Land Rover": {"Discovery", "Range Rover", "Defender", "Evoque"},
	"Mercedes":   {"A-Class", "C-Class", "E-Class", "S-Class", "GLA"},
	"Nissan":     {"Micra", "Juke", "Qashqai", "X-Trail", "Leaf"},
	"Opel":       {"Corsa", "Astra", "Insignia", "Mokka"},
	"Peugeot":    {"108", "208", "308", "3008", "5008"},
	"Qoros":      {"3", "5", "7"},
	"Renault":    {"Clio", "Megane", "Captur", "Kadjar", "Zoe"},
	"Skoda":      {"Fabia", "Octavia", "Superb", "Kodiaq", "Karoq"},
	"Toyota":     {"Aygo", "Yaris", "Corolla", "Prius", "RAV4"},
	"Ultima":     {"GTR", "Evolution", "RS"},
	"Volkswagen": {"Polo", "Golf", "Passat", "Tiguan", "T-Roc"},
	"Wolseley":   {"1500", "6/99", "Hornet"},
	"Xpeng":      {"P7", "G3", "P5"},
	"Yamaha":     {"MT-07", "MT-09", "R1", "R6"},
	"Zenvo":      {"ST1", "TS1", "TSR"},
}

// Attribute sets the mock draws from
var (
	FuelTypes        = []types.FuelType{types.FuelPetrol, types.FuelDiesel, types.FuelHybrid, types.FuelElectric}
	Colors           = []string{"Black", "White", "Silver", "Blue", "Red", "Grey", "Green"}
	EngineCapacities = []int{1000, 1200, 1400, 1600, 1800, 2000, 2200, 2500, 3000}
	Transmissions    = []string{"Manual", "Automatic", "Semi-Automatic"}
	BodyTypes        = []string{"Hatchback", "Saloon", "Estate", "SUV", "Coupe", "Convertible"}
)

var twoDigits = regexp.MustCompile(`\d{2}`)

// MockLookup synthesizes plausible vehicles from the registration text.
// Make and year depend only on the registration. The remaining attributes
// are drawn from fixed sets using a generator seeded from the registration,
// unless a shared source is supplied with WithSource.
type MockLookup struct {
	mu     sync.Mutex
	source *rand.Rand
}

// MockOption configures a MockLookup
type MockOption func(*MockLookup)

// WithSource draws attributes from r instead of the registration-seeded generator
func WithSource(r *rand.Rand) MockOption {
	return func(m *MockLookup) {
		m.source = r
	}
}

// NewMockLookup creates a mock registry
func NewMockLookup(opts ...MockOption) *MockLookup {
	m := &MockLookup{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LookupVehicle implements Lookup
func (m *MockLookup) LookupVehicle(ctx context.Context, registration string) (*types.VehicleDetails, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.LookupFailed("lookup cancelled", err)
	}

	reg := NormalizeRegistration(registration)
	if reg == "" {
		return nil, errors.Validation("registration number is required")
	}

	manufacturer := MakeFor(reg)
	v := &types.VehicleDetails{
		RegistrationNumber: reg,
		Make:               manufacturer,
		YearOfManufacture:  YearFor(reg),
		TaxStatus:          "Taxed",
		MotStatus:          "Valid",
	}

	m.draw(reg, func(r *rand.Rand) {
		v.Model = FallbackModel
		if models := Models[manufacturer]; len(models) > 0 {
			v.Model = models[r.IntN(len(models))]
		}
		v.FuelType = FuelTypes[r.IntN(len(FuelTypes))]
		v.Color = Colors[r.IntN(len(Colors))]
		v.EngineCapacity = EngineCapacities[r.IntN(len(EngineCapacities))]
		v.Transmission = Transmissions[r.IntN(len(Transmissions))]
		v.BodyType = BodyTypes[r.IntN(len(BodyTypes))]
	})

	logging.Debug("mock vehicle lookup",
		logging.Registration(reg),
		zap.String("make", v.Make),
		zap.Int("year", v.YearOfManufacture),
	)

	return v, nil
}

func (m *MockLookup) draw(reg string, fn func(r *rand.Rand)) {
	if m.source == nil {
		fn(seeded(reg))
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.source)
}

func seeded(reg string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(reg))
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed>>1|1))
}

// YearFor estimates the year of manufacture from the first two-digit run:
// above 50 maps to 19xx, otherwise 20xx.
func YearFor(registration string) int {
	match := twoDigits.FindString(NormalizeRegistration(registration))
	if match == "" {
		return DefaultYear
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return DefaultYear
	}
	if n > 50 {
		return 1900 + n
	}
	return 2000 + n
}

// MakeFor maps the first letter of a registration to a manufacturer
func MakeFor(registration string) string {
	reg := NormalizeRegistration(registration)
	if reg == "" {
		return FallbackMake
	}
	if manufacturer, ok := Makes[reg[0]]; ok {
		return manufacturer
	}
	return FallbackMake
}
