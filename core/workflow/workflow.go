package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"car-edition/core/estimate"
	"car-edition/core/vehicle"
	"car-edition/internal/errors"
	"car-edition/internal/logging"
)

// Workflow drives sessions through the estimator steps
type Workflow struct {
	lookup    vehicle.Lookup
	calc      *estimate.Calculator
	submitter Submitter
	store     SessionStore
	now       func() time.Time
	newID     func() string
	log       *zap.Logger

	// locks serializes steps on the same session
	locks sessionLocks
}

// Option configures a Workflow
type Option func(*Workflow)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		w.now = now
	}
}

// WithIDGenerator overrides session id generation
func WithIDGenerator(fn func() string) Option {
	return func(w *Workflow) {
		w.newID = fn
	}
}

// New creates a workflow
func New(lookup vehicle.Lookup, calc *estimate.Calculator, submitter Submitter, store SessionStore, opts ...Option) *Workflow {
	w := &Workflow{
		lookup:    lookup,
		calc:      calc,
		submitter: submitter,
		store:     store,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		log:       logging.Named("workflow"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Calculator returns the estimate calculator
func (w *Workflow) Calculator() *estimate.Calculator {
	return w.calc
}

// Start creates and stores a new session
func (w *Workflow) Start(ctx context.Context) (*Session, error) {
	s := NewSession(w.newID(), w.now().UTC())
	if err := w.store.Save(ctx, s); err != nil {
		return nil, errors.Internal("failed to store session", err)
	}
	w.log.Info("session started", logging.Session(s.ID))
	return s.Clone(), nil
}

// Get returns a session
func (w *Workflow) Get(ctx context.Context, id string) (*Session, error) {
	return w.store.Get(ctx, id)
}

// Estimate prices a session's current selection
func (w *Workflow) Estimate(ctx context.Context, id string) (*estimate.Estimate, error) {
	s, err := w.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return w.calc.Compute(s.Selection, s.Vehicle), nil
}

// LookupVehicle resolves a registration and attaches the vehicle to the session.
// On failure the session is left unchanged.
func (w *Workflow) LookupVehicle(ctx context.Context, id, registration string) (*Session, error) {
	reg, err := vehicle.ValidateRegistration(registration)
	if err != nil {
		return nil, err
	}

	return w.update(ctx, id, func(s *Session) error {
		if err := s.requireOpen(); err != nil {
			return err
		}
		v, err := w.lookup.LookupVehicle(ctx, reg)
		if err != nil {
			w.log.Warn("vehicle lookup failed",
				logging.Session(id),
				logging.Registration(reg),
				zap.String("kind", string(errors.TypeOf(err))),
				zap.Error(err),
			)
			return lookupError(err, reg)
		}
		if v == nil {
			return errors.NotFound("vehicle", reg)
		}
		return s.SetVehicle(v)
	})
}

// AddService selects a catalog service
func (w *Workflow) AddService(ctx context.Context, id, serviceID string) (*Session, error) {
	if _, err := w.calc.Catalog().Lookup(serviceID); err != nil {
		return nil, err
	}
	return w.update(ctx, id, func(s *Session) error {
		return s.AddService(serviceID)
	})
}

// RemoveService deselects a service; unknown ids are allowed so stale selections can be cleared
func (w *Workflow) RemoveService(ctx context.Context, id, serviceID string) (*Session, error) {
	return w.update(ctx, id, func(s *Session) error {
		return s.RemoveService(serviceID)
	})
}

// ToggleService flips a catalog service
func (w *Workflow) ToggleService(ctx context.Context, id, serviceID string) (*Session, error) {
	return w.update(ctx, id, func(s *Session) error {
		if !s.Selection.Has(serviceID) {
			if _, err := w.calc.Catalog().Lookup(serviceID); err != nil {
				return err
			}
		}
		_, err := s.ToggleService(serviceID)
		return err
	})
}

// SetOtherService records the free-text request
func (w *Workflow) SetOtherService(ctx context.Context, id, text string) (*Session, error) {
	return w.update(ctx, id, func(s *Session) error {
		return s.SetOtherService(text)
	})
}

// ConfirmServices moves to the details step
func (w *Workflow) ConfirmServices(ctx context.Context, id string) (*Session, error) {
	return w.update(ctx, id, func(s *Session) error {
		return s.ConfirmServices()
	})
}

// EnterDetails validates and records contact details
func (w *Workflow) EnterDetails(ctx context.Context, id, name, email, phone string) (*Session, error) {
	c, err := NewCustomer(name, email, phone)
	if err != nil {
		return nil, err
	}
	return w.update(ctx, id, func(s *Session) error {
		if err := s.EnterDetails(c); err != nil {
			return err
		}
		if s.SubmissionID == "" {
			s.SubmissionID = w.newID()
		}
		return nil
	})
}

// Submit hands the estimate to the submitter. A failed submission leaves the
// session at the details step with everything intact.
func (w *Workflow) Submit(ctx context.Context, id string) (*Session, error) {
	return w.update(ctx, id, func(s *Session) error {
		if err := s.ReadyToSubmit(); err != nil {
			return err
		}

		payload := w.BuildPayload(s)
		receipt, err := w.submitter.Submit(ctx, payload)
		if err != nil {
			w.log.Warn("submission failed", logging.Session(id), zap.Error(err))
			if errors.IsType(err, errors.TypeSubmission) {
				return err
			}
			return errors.Submission("booking submission failed", err)
		}
		if receipt == nil {
			receipt = &Receipt{}
		}
		if receipt.SubmittedAt.IsZero() {
			receipt.SubmittedAt = payload.Timestamp
		}
		receipt.Payload = payload

		s.MarkSubmitted(receipt)
		w.log.Info("estimate submitted",
			logging.Session(id),
			zap.String("booking_id", receipt.BookingID),
			zap.String("total", payload.TotalPrice.StringFixed(2)),
		)
		return nil
	})
}

// Back moves one step towards the start
func (w *Workflow) Back(ctx context.Context, id string) (*Session, error) {
	return w.update(ctx, id, func(s *Session) error {
		s.Back()
		return nil
	})
}

// Restart clears the session
func (w *Workflow) Restart(ctx context.Context, id string) (*Session, error) {
	return w.update(ctx, id, func(s *Session) error {
		s.Restart()
		return nil
	})
}

// BuildPayload assembles the submission payload from a session
func (w *Workflow) BuildPayload(s *Session) *Payload {
	est := w.calc.Compute(s.Selection, s.Vehicle)
	p := &Payload{
		SubmissionID:     s.SubmissionID,
		Timestamp:        w.now().UTC(),
		SelectedServices: w.calc.ServicesSummary(s.Selection),
		ServiceIDs:       s.Selection.IDs(),
		OtherService:     s.Selection.OtherService(),
		LineItems:        est.LineItems,
		TotalPrice:       est.Total,
		Currency:         est.Currency,
		Notes:            s.Selection.OtherService(),
		Name:             s.Customer.Name,
		Email:            s.Customer.Email,
		Phone:            s.Customer.Phone,
	}
	if s.Vehicle != nil {
		p.CarRegistration = s.Vehicle.RegistrationNumber
		p.VehicleMake = s.Vehicle.Make
		p.VehicleModel = s.Vehicle.Model
		p.VehicleYear = s.Vehicle.YearOfManufacture
	}
	return p
}

// update loads a session, applies fn, refreshes the total and saves it.
// Nothing is saved when fn fails.
func (w *Workflow) update(ctx context.Context, id string, fn func(s *Session) error) (*Session, error) {
	unlock := w.locks.acquire(id)
	defer unlock()

	s, err := w.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := s.State

	if err := fn(s); err != nil {
		return nil, err
	}

	s.Total = w.total(s)
	s.UpdatedAt = w.now().UTC()
	if err := w.store.Save(ctx, s); err != nil {
		return nil, errors.Internal("failed to store session", err)
	}

	if s.State != from {
		w.log.Debug("session transition",
			logging.Session(id),
			zap.String("from", string(from)),
			zap.String("to", string(s.State)),
		)
	}
	return s.Clone(), nil
}

func (w *Workflow) total(s *Session) decimal.Decimal {
	return w.calc.ComputeTotal(s.Selection, s.Vehicle)
}

// Forget deletes a session, waiting for any step in flight on it
func (w *Workflow) Forget(ctx context.Context, id string) error {
	unlock := w.locks.acquire(id)
	defer unlock()
	return w.store.Delete(ctx, id)
}

// sessionLocks hands out one mutex per session id. An entry lives only
// while a caller holds or waits on it.
type sessionLocks struct {
	mu sync.Mutex
	m  map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

func (l *sessionLocks) acquire(id string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sessionLock)
	}
	sl, ok := l.m[id]
	if !ok {
		sl = &sessionLock{}
		l.m[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.Lock()
	return func() {
		sl.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// lookupError keeps NOT_FOUND and VALIDATION_ERROR and reports everything else as LOOKUP_FAILED
func lookupError(err error, reg string) error {
	switch errors.TypeOf(err) {
	case errors.TypeNotFound, errors.TypeLookupFailed, errors.TypeValidation:
		return err
	default:
		return errors.LookupFailed("vehicle lookup failed", err).WithContext("registration", reg)
	}
}
