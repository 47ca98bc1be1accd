// Package storage persists booking records and estimator sessions.
// Bookings support memory, file and PostgreSQL backends.
package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"car-edition/core/types"
	"car-edition/internal/errors"
)

// Backend is a storage backend type
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendFile     Backend = "file"
	BackendPostgres Backend = "postgres"
)

// Status is a booking's lifecycle status
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further status change is allowed
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Pagination defaults
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Store is the booking storage interface
type Store interface {
	// Save inserts a booking, assigning ID and timestamps when empty.
	// Saving an existing ID replaces its content but keeps the stored
	// status and creation time; only UpdateStatus changes status.
	Save(ctx context.Context, booking *Booking) error

	// Get retrieves a booking by ID
	Get(ctx context.Context, id string) (*Booking, error)

	// List returns one page of bookings, newest first
	List(ctx context.Context, filter *ListFilter) (*ListResult, error)

	// UpdateStatus moves a booking to a new status
	UpdateStatus(ctx context.Context, id string, status Status) (*Booking, error)

	// Delete removes a booking
	Delete(ctx context.Context, id string) error

	// Close closes the store
	Close() error
}

// Customer is the contact on a booking
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Vehicle is the vehicle on a booking
type Vehicle struct {
	RegistrationNumber string `json:"registrationNumber"`
	Make               string `json:"make"`
	Model              string `json:"model"`
	YearOfManufacture  int    `json:"yearOfManufacture"`
}

// Booking is a stored estimate submission
type Booking struct {
	ID               string           `json:"id"`
	Customer         Customer         `json:"customer"`
	Vehicle          Vehicle          `json:"vehicle"`
	ServiceIDs       []string         `json:"serviceIds"`
	SelectedServices string           `json:"selectedServices"`
	OtherService     string           `json:"otherService,omitempty"`
	LineItems        []types.LineItem `json:"lineItems"`
	TotalPrice       decimal.Decimal  `json:"totalPrice"`
	Currency         types.Currency   `json:"currency"`
	Status           Status           `json:"status"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Clone returns a deep copy
func (b *Booking) Clone() *Booking {
	c := *b
	c.ServiceIDs = append([]string(nil), b.ServiceIDs...)
	c.LineItems = append([]types.LineItem(nil), b.LineItems...)
	return &c
}

// ListFilter filters booking listing
type ListFilter struct {
	// Status matches exactly when set
	Status Status

	// Search matches case-insensitively against customer name, email and
	// phone and vehicle registration, make and model
	Search string

	// Page is 1-based
	Page  int
	Limit int
}

// Pagination describes one page of a listing
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ListResult is one page of bookings
type ListResult struct {
	Bookings   []*Booking `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// normalized returns a copy with defaults applied
func (f *ListFilter) normalized() ListFilter {
	var n ListFilter
	if f != nil {
		n = *f
	}
	n.Search = strings.TrimSpace(n.Search)
	if n.Page < 1 {
		n.Page = 1
	}
	if n.Limit < 1 {
		n.Limit = DefaultPageSize
	}
	if n.Limit > MaxPageSize {
		n.Limit = MaxPageSize
	}
	return n
}

func (f *ListFilter) offset() int {
	return (f.Page - 1) * f.Limit
}

// matches applies the filter to one booking
func (f *ListFilter) matches(b *Booking) bool {
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.Search == "" {
		return true
	}
	term := strings.ToLower(f.Search)
	for _, field := range []string{
		b.Customer.Name, b.Customer.Email, b.Customer.Phone,
		b.Vehicle.RegistrationNumber, b.Vehicle.Make, b.Vehicle.Model,
	} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// paginate filters, sorts newest first and slices one page
func paginate(all []*Booking, filter *ListFilter) *ListResult {
	f := filter.normalized()

	matched := make([]*Booking, 0, len(all))
	for _, b := range all {
		if f.matches(b) {
			matched = append(matched, b)
		}
	}
	sortNewestFirst(matched)

	page := []*Booking{}
	if off := f.offset(); off < len(matched) {
		end := off + f.Limit
		if end > len(matched) {
			end = len(matched)
		}
		for _, b := range matched[off:end] {
			page = append(page, b.Clone())
		}
	}

	return &ListResult{
		Bookings:   page,
		Pagination: newPagination(f, len(matched)),
	}
}

func newPagination(f ListFilter, total int) Pagination {
	return Pagination{
		Page:       f.Page,
		Limit:      f.Limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(f.Limit))),
	}
}

func sortNewestFirst(bookings []*Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		if !bookings[i].CreatedAt.Equal(bookings[j].CreatedAt) {
			return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
		}
		return bookings[i].ID > bookings[j].ID
	})
}

// prepare validates a booking before insert and fills defaults
func prepare(b *Booking, newID func() string, now time.Time) error {
	if b == nil {
		return errors.Validation("booking is required")
	}
	if b.Customer.Phone == "" {
		return errors.Validation("booking requires a customer phone number")
	}
	if b.Status == "" {
		b.Status = StatusPending
	}
	if !b.Status.Valid() {
		return errors.Validation(fmt.Sprintf("unknown booking status %q", b.Status))
	}
	if b.ID == "" {
		b.ID = newID()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	if b.Currency == "" {
		b.Currency = types.CurrencyGBP
	}
	return nil
}

// keepLifecycle carries status and creation time over from a stored booking
func keepLifecycle(b, existing *Booking) {
	b.Status = existing.Status
	b.CreatedAt = existing.CreatedAt
}

// checkTransition rejects unknown statuses and changes out of a terminal status
func checkTransition(id string, from, to Status) error {
	if !to.Valid() {
		return errors.Validation(fmt.Sprintf("unknown booking status %q", to))
	}
	if from == to {
		return nil
	}
	if from.Terminal() {
		return errors.InvalidState("booking %s is %s and cannot become %s", id, from, to)
	}
	return nil
}

// Options configures StoreFactory
type Options struct {
	// Path is the file backend directory
	Path string

	// DSN is the PostgreSQL connection string
	DSN string
}

// StoreFactory creates stores by backend type
func StoreFactory(ctx context.Context, backend Backend, opts Options) (Store, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendFile:
		path := opts.Path
		if path == "" {
			path = ".car-edition/bookings"
		}
		return NewFileStore(path)
	case BackendPostgres:
		return OpenPostgresStore(ctx, opts.DSN)
	default:
		return nil, errors.Newf(errors.TypeConfig, "unsupported storage backend: %s", backend)
	}
}
