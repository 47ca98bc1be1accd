// Package api - API types for the estimator.
// Money is rendered as decimal strings; the API never does pricing itself.
package api

import (
	"time"

	"car-edition/adapters/storage"
	"car-edition/core/estimate"
	"car-edition/core/types"
	"car-edition/core/workflow"
)

// EstimateRequest is the input to POST /estimate
type EstimateRequest struct {
	Registration string   `json:"registration"`
	ServiceIDs   []string `json:"service_ids,omitempty"`
	OtherService string   `json:"other_service,omitempty"`
}

// EstimateResponse is the stateless estimator page
type EstimateResponse struct {
	Vehicle    *types.VehicleDetails `json:"vehicle"`
	Display    string                `json:"display_registration"`
	Services   []PricedServiceView   `json:"services"`
	LineItems  []types.LineItem      `json:"line_items"`
	Summary    string                `json:"summary"`
	Total      types.Money           `json:"total"`
	Skipped    []string              `json:"skipped,omitempty"`
	ComputedAt time.Time             `json:"computed_at"`
}

// PricedServiceView is one catalog card with its vehicle price
type PricedServiceView struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Category    types.ServiceCategory `json:"category"`
	Badge       string                `json:"badge,omitempty"`
	BasePrice   types.Money           `json:"base_price"`
	Price       types.Money           `json:"price"`
	Selected    bool                  `json:"selected"`
}

// ServiceView is a catalog entry
type ServiceView struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Category    types.ServiceCategory `json:"category"`
	Badge       string                `json:"badge,omitempty"`
	BasePrice   types.Money           `json:"base_price"`
}

// RegistrationRequest is the input to POST /sessions/{id}/vehicle
type RegistrationRequest struct {
	Registration string `json:"registration"`
}

// OtherServiceRequest is the input to PUT /sessions/{id}/other-service
type OtherServiceRequest struct {
	Text string `json:"text"`
}

// DetailsRequest is the input to POST /sessions/{id}/details
type DetailsRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// StatusRequest is the input to PATCH /bookings/{id}
type StatusRequest struct {
	Status storage.Status `json:"status"`
}

// SessionResponse is a session with its current estimate
type SessionResponse struct {
	ID        string                `json:"id"`
	State     workflow.State        `json:"state"`
	Vehicle   *types.VehicleDetails `json:"vehicle,omitempty"`
	Selection *estimate.Selection   `json:"selection"`
	Customer  workflow.Customer     `json:"customer"`
	LineItems []types.LineItem      `json:"line_items"`
	Summary   string                `json:"summary"`
	Total     types.Money           `json:"total"`
	Receipt   *ReceiptView          `json:"receipt,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// ReceiptView reports a completed submission
type ReceiptView struct {
	BookingID   string      `json:"booking_id,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
	Summary     string      `json:"summary"`
	Total       types.Money `json:"total"`
}

// ErrorBody is the error envelope
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes an error
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}
