package submission

import (
	"context"
	"time"

	"car-edition/adapters/storage"
	"car-edition/core/workflow"
	"car-edition/internal/errors"
)

// StoreSubmitter records the payload as a pending booking
type StoreSubmitter struct {
	store storage.Store
}

// NewStoreSubmitter creates a store submitter
func NewStoreSubmitter(store storage.Store) *StoreSubmitter {
	return &StoreSubmitter{store: store}
}

// BookingFromPayload maps a submission payload to a booking record.
// The submission id becomes the booking id so a retry updates the same record.
func BookingFromPayload(p *workflow.Payload) *storage.Booking {
	return &storage.Booking{
		ID: p.SubmissionID,
		Customer: storage.Customer{
			Name:  p.Name,
			Email: p.Email,
			Phone: p.Phone,
		},
		Vehicle: storage.Vehicle{
			RegistrationNumber: p.CarRegistration,
			Make:               p.VehicleMake,
			Model:              p.VehicleModel,
			YearOfManufacture:  p.VehicleYear,
		},
		ServiceIDs:       append([]string(nil), p.ServiceIDs...),
		SelectedServices: p.SelectedServices,
		OtherService:     p.OtherService,
		LineItems:        p.LineItems,
		TotalPrice:       p.TotalPrice,
		Currency:         p.Currency,
		Status:           storage.StatusPending,
	}
}

// Submit implements workflow.Submitter
func (s *StoreSubmitter) Submit(ctx context.Context, p *workflow.Payload) (*workflow.Receipt, error) {
	b := BookingFromPayload(p)
	if err := s.store.Save(ctx, b); err != nil {
		if errors.IsType(err, errors.TypeValidation) {
			return nil, err
		}
		return nil, errors.Submission("failed to record booking", err)
	}
	return &workflow.Receipt{BookingID: b.ID, SubmittedAt: b.CreatedAt}, nil
}

// MultiSubmitter runs submitters in order and stops at the first failure
type MultiSubmitter struct {
	submitters []workflow.Submitter
	now        func() time.Time
}

// NewMultiSubmitter combines submitters
func NewMultiSubmitter(submitters ...workflow.Submitter) *MultiSubmitter {
	return &MultiSubmitter{submitters: submitters, now: time.Now}
}

// Submit implements workflow.Submitter. The first booking id reported wins.
func (m *MultiSubmitter) Submit(ctx context.Context, p *workflow.Payload) (*workflow.Receipt, error) {
	if len(m.submitters) == 0 {
		return nil, errors.Config("no submission collaborator configured", nil)
	}
	out := &workflow.Receipt{}
	for _, s := range m.submitters {
		r, err := s.Submit(ctx, p)
		if err != nil {
			return nil, err
		}
		if r != nil && out.BookingID == "" {
			out.BookingID = r.BookingID
		}
		if r != nil && out.SubmittedAt.IsZero() {
			out.SubmittedAt = r.SubmittedAt
		}
	}
	if out.SubmittedAt.IsZero() {
		out.SubmittedAt = m.now().UTC()
	}
	return out, nil
}

var (
	_ workflow.Submitter = (*StoreSubmitter)(nil)
	_ workflow.Submitter = (*MultiSubmitter)(nil)
)
