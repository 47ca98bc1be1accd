// Package workflow implements the three-step estimator flow:
// registration lookup, service selection and customer details, ending in
// submission. Session holds the state machine; Workflow performs the I/O
// around it and persists sessions between steps.
package workflow

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"car-edition/core/estimate"
	"car-edition/core/types"
	"car-edition/internal/errors"
)

// State is a workflow step
type State string

const (
	StateNoVehicle        State = "no_vehicle"
	StateVehicleSelected  State = "vehicle_selected"
	StateServicesSelected State = "services_selected"
	StateDetailsEntered   State = "details_entered"
	StateSubmitted        State = "submitted"
)

// rank orders the forward path
var rank = map[State]int{
	StateNoVehicle:        0,
	StateVehicleSelected:  1,
	StateServicesSelected: 2,
	StateDetailsEntered:   3,
	StateSubmitted:        4,
}

// Valid reports whether s is a known state
func (s State) Valid() bool {
	_, ok := rank[s]
	return ok
}

// AtLeast reports whether s is at or beyond other on the forward path
func (s State) AtLeast(other State) bool {
	return rank[s] >= rank[other]
}

// previous is the step Back returns to
func (s State) previous() State {
	switch s {
	case StateVehicleSelected:
		return StateNoVehicle
	case StateServicesSelected:
		return StateVehicleSelected
	case StateDetailsEntered:
		return StateServicesSelected
	default:
		return s
	}
}

// Customer holds contact details. Phone is required and kept as digits only;
// name and email are optional and stored as entered, trimmed.
type Customer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone"`
}

// NewCustomer normalizes and validates contact details
func NewCustomer(name, email, phone string) (Customer, error) {
	c := Customer{
		Name:  strings.TrimSpace(name),
		Email: strings.TrimSpace(email),
		Phone: DigitsOnly(phone),
	}
	if c.Phone == "" {
		return Customer{}, errors.Validation("phone number is required")
	}
	return c, nil
}

// DigitsOnly strips every non-digit character
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Receipt records a completed submission
type Receipt struct {
	BookingID   string    `json:"bookingId,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
	Payload     *Payload  `json:"payload"`
}

// Session is one customer's pass through the estimator.
// Total is derived from Vehicle and Selection and is refreshed by Workflow
// after every change to either.
type Session struct {
	ID        string                `json:"id"`
	State     State                 `json:"state"`
	Vehicle   *types.VehicleDetails `json:"vehicle,omitempty"`
	Selection *estimate.Selection   `json:"selection"`
	Customer  Customer              `json:"customer"`
	Total     decimal.Decimal       `json:"total"`
	Receipt   *Receipt              `json:"receipt,omitempty"`

	// SubmissionID is fixed once details are entered so a retried
	// submission reaches collaborators under the same reference
	SubmissionID string `json:"submissionId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession creates an empty session
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		State:     StateNoVehicle,
		Selection: estimate.NewSelection(),
		Total:     decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Vehicle = s.Vehicle.Clone()
	c.Selection = s.Selection.Clone()
	if s.Receipt != nil {
		r := *s.Receipt
		if r.Payload != nil {
			r.Payload = r.Payload.Clone()
		}
		c.Receipt = &r
	}
	return &c
}

func (s *Session) requireOpen() error {
	if s.State == StateSubmitted {
		return errors.InvalidState("session %s is already submitted; restart to begin a new estimate", s.ID)
	}
	return nil
}

// SetVehicle records a successful lookup and moves to service selection.
// Selections and contact details already entered are kept.
func (s *Session) SetVehicle(v *types.VehicleDetails) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if v == nil {
		return errors.Validation("vehicle details are missing")
	}
	s.Vehicle = v.Clone()
	s.State = StateVehicleSelected
	return nil
}

func (s *Session) requireVehicle() error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if s.Vehicle == nil || !s.State.AtLeast(StateVehicleSelected) {
		return errors.InvalidState("look up a vehicle before choosing services")
	}
	return nil
}

// AddService selects a service id
func (s *Session) AddService(id string) error {
	if err := s.requireVehicle(); err != nil {
		return err
	}
	s.Selection.Add(id)
	return nil
}

// RemoveService deselects a service id. Emptying the selection returns the
// session to service selection.
func (s *Session) RemoveService(id string) error {
	if err := s.requireVehicle(); err != nil {
		return err
	}
	s.Selection.Remove(id)
	if s.Selection.Empty() && s.State.AtLeast(StateServicesSelected) {
		s.State = StateVehicleSelected
	}
	return nil
}

// ToggleService flips a service id and reports whether it is now selected
func (s *Session) ToggleService(id string) (bool, error) {
	if s.Selection != nil && s.Selection.Has(id) {
		return false, s.RemoveService(id)
	}
	return true, s.AddService(id)
}

// SetOtherService records the free-text request
func (s *Session) SetOtherService(text string) error {
	if err := s.requireVehicle(); err != nil {
		return err
	}
	s.Selection.SetOtherService(text)
	return nil
}

// ConfirmServices moves to the details step. At least one service must be selected.
func (s *Session) ConfirmServices() error {
	if err := s.requireVehicle(); err != nil {
		return err
	}
	if s.Selection.Empty() {
		return errors.Validation("select at least one service")
	}
	if s.State == StateVehicleSelected {
		s.State = StateServicesSelected
	}
	return nil
}

// EnterDetails records contact details and moves to the submit step
func (s *Session) EnterDetails(c Customer) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if !s.State.AtLeast(StateServicesSelected) {
		return errors.InvalidState("confirm services before entering contact details")
	}
	if c.Phone == "" {
		return errors.Validation("phone number is required")
	}
	s.Customer = c
	s.State = StateDetailsEntered
	return nil
}

// ReadyToSubmit checks every precondition for submission
func (s *Session) ReadyToSubmit() error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if s.State != StateDetailsEntered {
		return errors.InvalidState("enter contact details before submitting")
	}
	if s.Vehicle == nil || s.Vehicle.RegistrationNumber == "" {
		return errors.Validation("vehicle information is missing")
	}
	if s.Selection.Empty() {
		return errors.Validation("no services selected")
	}
	if s.Customer.Phone == "" {
		return errors.Validation("phone number is required")
	}
	return nil
}

// MarkSubmitted clears the estimate and records the receipt
func (s *Session) MarkSubmitted(r *Receipt) {
	s.Receipt = r
	s.Vehicle = nil
	s.Selection = estimate.NewSelection()
	s.Customer = Customer{}
	s.Total = decimal.Zero
	s.SubmissionID = ""
	s.State = StateSubmitted
}

// Back moves one step towards the start without clearing entered data.
// It is a no-op at the first step and after submission.
func (s *Session) Back() {
	s.State = s.State.previous()
}

// Restart clears everything, keeping the session id
func (s *Session) Restart() {
	s.State = StateNoVehicle
	s.Vehicle = nil
	s.Selection = estimate.NewSelection()
	s.Customer = Customer{}
	s.Total = decimal.Zero
	s.Receipt = nil
	s.SubmissionID = ""
}
