// Package dvla provides the live vehicle lookup against the DVLA
// Vehicle Enquiry Service.
package dvla

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"car-edition/core/types"
	"car-edition/core/vehicle"
	"car-edition/internal/errors"
	"car-edition/internal/logging"
)

// DefaultEndpoint is the production Vehicle Enquiry endpoint
const DefaultEndpoint = "https://driver-vehicle-licensing.api.gov.uk/vehicle-enquiry/v1/vehicles"

const maxResponseBytes = 1 << 20

// Config configures the client
type Config struct {
	// Endpoint URL
	Endpoint string `json:"endpoint"`

	// APIKey is sent as the x-api-key header
	APIKey string `json:"-"`

	// Timeout for a single request; zero leaves the transport default
	Timeout time.Duration `json:"timeout"`

	// RequestsPerSecond caps outbound calls; zero disables the limiter
	RequestsPerSecond float64 `json:"requests_per_second"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Endpoint: DefaultEndpoint,
		Timeout:  10 * time.Second,
	}
}

// Client is the live registry lookup
type Client struct {
	config     *Config
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// New creates a client
func New(config *Config, opts ...Option) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}

	c := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: logging.Named("dvla"),
	}
	if config.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// enquiryRequest is the request body
type enquiryRequest struct {
	RegistrationNumber string `json:"registrationNumber"`
}

// enquiryResponse is the subset of the registry response we map
type enquiryResponse struct {
	RegistrationNumber       string `json:"registrationNumber"`
	Make                     string `json:"make"`
	Colour                   string `json:"colour"`
	FuelType                 string `json:"fuelType"`
	EngineCapacity           *int   `json:"engineCapacity"`
	YearOfManufacture        *int   `json:"yearOfManufacture"`
	TaxStatus                string `json:"taxStatus"`
	MotStatus                string `json:"motStatus"`
	Wheelplan                string `json:"wheelplan"`
	MonthOfFirstRegistration string `json:"monthOfFirstRegistration"`
}

// errorResponse is the registry's error envelope
type errorResponse struct {
	Errors []struct {
		Status string `json:"status"`
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// LookupVehicle implements vehicle.Lookup. It issues exactly one request.
func (c *Client) LookupVehicle(ctx context.Context, registration string) (*types.VehicleDetails, error) {
	reg := vehicle.NormalizeRegistration(registration)
	if reg == "" {
		return nil, errors.Validation("registration number is required")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.LookupFailed("lookup rate limit wait aborted", err).WithContext("registration", reg)
		}
	}

	body, err := json.Marshal(enquiryRequest{RegistrationNumber: reg})
	if err != nil {
		return nil, errors.Internal("failed to encode enquiry", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.LookupFailed("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("vehicle enquiry failed", logging.Registration(reg), zap.Error(err))
		return nil, errors.LookupFailed("vehicle registry unreachable", err).WithContext("registration", reg)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.LookupFailed("failed to read registry response", err).WithContext("registration", reg)
	}

	c.log.Debug("vehicle enquiry",
		logging.Registration(reg),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NotFound("vehicle", reg)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, errors.LookupFailed(fmt.Sprintf("vehicle registry returned %d", resp.StatusCode), registryError(data)).
			WithContext("registration", reg).
			WithContext("status", resp.StatusCode)
	}

	var payload enquiryResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, errors.LookupFailed("malformed registry response", err).WithContext("registration", reg)
	}

	v, err := payload.toVehicle(reg)
	if err != nil {
		return nil, errors.LookupFailed("registry response failed validation", err).WithContext("registration", reg)
	}
	if err := vehicle.Validate(v, time.Now().Year()); err != nil {
		return nil, errors.LookupFailed("registry response failed validation", err).WithContext("registration", reg)
	}

	return v, nil
}

func (r *enquiryResponse) toVehicle(requested string) (*types.VehicleDetails, error) {
	if r.YearOfManufacture == nil {
		return nil, fmt.Errorf("yearOfManufacture missing")
	}

	reg := vehicle.NormalizeRegistration(r.RegistrationNumber)
	if reg == "" {
		reg = requested
	}

	v := &types.VehicleDetails{
		RegistrationNumber:       reg,
		Make:                     strings.TrimSpace(r.Make),
		Color:                    titleCase(r.Colour),
		FuelType:                 mapFuel(r.FuelType),
		YearOfManufacture:        *r.YearOfManufacture,
		TaxStatus:                r.TaxStatus,
		MotStatus:                r.MotStatus,
		Wheelplan:                r.Wheelplan,
		MonthOfFirstRegistration: r.MonthOfFirstRegistration,
	}
	if r.EngineCapacity != nil {
		v.EngineCapacity = *r.EngineCapacity
	}
	return v, nil
}

// mapFuel folds registry fuel descriptions onto the four fuel types
func mapFuel(raw string) types.FuelType {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "HYBRID"):
		return types.FuelHybrid
	case strings.HasPrefix(s, "ELECTRIC"):
		return types.FuelElectric
	case s == "DIESEL":
		return types.FuelDiesel
	case s == "PETROL":
		return types.FuelPetrol
	default:
		return types.FuelType(titleCase(s))
	}
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func registryError(data []byte) error {
	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil && len(er.Errors) > 0 {
		e := er.Errors[0]
		if e.Detail != "" {
			return fmt.Errorf("%s: %s", e.Title, e.Detail)
		}
		return fmt.Errorf("%s", e.Title)
	}
	if len(data) > 200 {
		data = data[:200]
	}
	return fmt.Errorf("%s", strings.TrimSpace(string(data)))
}

var _ vehicle.Lookup = (*Client)(nil)
