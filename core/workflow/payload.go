package workflow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"car-edition/core/types"
)

// Payload is handed to the booking submission collaborator
type Payload struct {
	SubmissionID     string           `json:"submissionId,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
	CarRegistration  string           `json:"carRegistration"`
	VehicleMake      string           `json:"vehicleMake"`
	VehicleModel     string           `json:"vehicleModel"`
	VehicleYear      int              `json:"vehicleYear"`
	SelectedServices string           `json:"selectedServices"`
	ServiceIDs       []string         `json:"serviceIds"`
	OtherService     string           `json:"otherService,omitempty"`
	LineItems        []types.LineItem `json:"lineItems"`
	TotalPrice       decimal.Decimal  `json:"totalPrice"`
	Currency         types.Currency   `json:"currency"`
	Notes            string           `json:"notes,omitempty"`
	Name             string           `json:"name,omitempty"`
	Email            string           `json:"email,omitempty"`
	Phone            string           `json:"phone"`
}

// Clone returns a deep copy
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	c := *p
	c.ServiceIDs = append([]string(nil), p.ServiceIDs...)
	c.LineItems = append([]types.LineItem(nil), p.LineItems...)
	return &c
}

// Submitter hands a payload to an external collaborator.
// Failures should be reported as SUBMISSION_FAILED; they are not retried.
type Submitter interface {
	Submit(ctx context.Context, payload *Payload) (*Receipt, error)
}

// SubmitterFunc adapts a function to the Submitter interface
type SubmitterFunc func(ctx context.Context, payload *Payload) (*Receipt, error)

// Submit calls f
func (f SubmitterFunc) Submit(ctx context.Context, payload *Payload) (*Receipt, error) {
	return f(ctx, payload)
}

// SessionStore persists sessions between steps. Implementations must hand
// out copies so callers never share a *Session.
type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}
