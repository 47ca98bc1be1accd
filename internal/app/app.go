// Package app assembles the estimator from configuration.
package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"car-edition/adapters/dvla"
	"car-edition/adapters/storage"
	"car-edition/adapters/submission"
	"car-edition/api"
	"car-edition/core/estimate"
	"car-edition/core/pricebook"
	"car-edition/core/vehicle"
	"car-edition/core/workflow"
	"car-edition/internal/config"
	"car-edition/internal/errors"
	"car-edition/internal/logging"
)

// App holds the wired components
type App struct {
	Config     *config.Config
	PriceBook  *pricebook.PriceBook
	Calculator *estimate.Calculator
	Lookup     vehicle.Lookup
	Bookings   storage.Store
	Sessions   *storage.SessionStore
	Workflow   *workflow.Workflow
}

// New builds every component from cfg. Close releases the booking store.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logging.Named("app")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pb, err := pricebook.Load(cfg.Pricing.PriceBook)
	if err != nil {
		return nil, err
	}
	currency := pb.Currency
	if cfg.Pricing.Currency != "" {
		currency = cfg.Pricing.Currency
	}
	calc := estimate.NewCalculator(pb.Catalog(), pb.Engine(), currency)

	lookup, err := NewLookup(cfg.ResolvedLookup())
	if err != nil {
		return nil, err
	}

	bookings, err := storage.StoreFactory(ctx, storage.Backend(cfg.Storage.Backend), storage.Options{
		Path: cfg.Storage.Path,
		DSN:  cfg.Storage.DSN,
	})
	if err != nil {
		return nil, err
	}

	submitter, err := NewSubmitter(cfg.Submission, bookings)
	if err != nil {
		bookings.Close()
		return nil, err
	}

	sessions := storage.NewSessionStore(cfg.Storage.SessionTTL())

	log.Info("estimator ready",
		zap.String("price_book", pb.Source),
		zap.String("price_book_hash", pb.ContentHash[:12]),
		zap.Int("services", pb.Catalog().Len()),
		zap.String("lookup", cfg.ResolvedLookup().Mode),
		zap.String("storage", cfg.Storage.Backend),
		zap.Int("reference_year", calc.Engine().ReferenceYear()),
	)

	return &App{
		Config:     cfg,
		PriceBook:  pb,
		Calculator: calc,
		Lookup:     lookup,
		Bookings:   bookings,
		Sessions:   sessions,
		Workflow:   workflow.New(lookup, calc, submitter, sessions),
	}, nil
}

// NewLookup returns the mock generator or the live registry client
func NewLookup(cfg config.LookupConfig) (vehicle.Lookup, error) {
	switch cfg.Mode {
	case config.LookupMock, "":
		return vehicle.NewMockLookup(), nil
	case config.LookupLive:
		if cfg.APIKey == "" {
			return nil, errors.Config("live lookup requires an API key", nil)
		}
		return dvla.New(&dvla.Config{
			Endpoint:          cfg.Endpoint,
			APIKey:            cfg.APIKey,
			Timeout:           cfg.Timeout(),
			RequestsPerSecond: cfg.RPS,
		}), nil
	default:
		return nil, errors.Newf(errors.TypeConfig, "unknown lookup mode %q", cfg.Mode)
	}
}

// NewSubmitter combines the booking store and the form endpoint, store first
// so a booking exists even when the form post fails and is retried.
func NewSubmitter(cfg config.SubmissionConfig, bookings storage.Store) (workflow.Submitter, error) {
	var submitters []workflow.Submitter
	if cfg.StoreBookings && bookings != nil {
		submitters = append(submitters, submission.NewStoreSubmitter(bookings))
	}
	if cfg.FormEndpoint != "" {
		submitters = append(submitters, submission.NewFormSubmitter(&submission.FormConfig{
			Endpoint: cfg.FormEndpoint,
			Timeout:  cfg.Timeout(),
		}))
	}
	if len(submitters) == 0 {
		return nil, errors.Config("no submission target: enable store_bookings or set a form endpoint", nil)
	}
	return submission.NewMultiSubmitter(submitters...), nil
}

// Server builds the HTTP server
func (a *App) Server(version string) *api.Server {
	s := a.Config.Server
	return api.NewServer(api.Deps{
		Workflow: a.Workflow,
		Lookup:   a.Lookup,
		Bookings: a.Bookings,
	}, api.Config{
		Addr:         s.Addr,
		ReadTimeout:  s.ReadTimeout(),
		WriteTimeout: s.WriteTimeout(),
		MaxBodyBytes: s.MaxBodyBytes,
		CORSOrigins:  s.CORSOrigins,
		RateLimit:    s.RateLimit,
		RateBurst:    s.RateBurst,
		TrustProxy:   s.TrustProxy,
		PriceBook:    a.PriceBook.Source + "@" + a.PriceBook.ContentHash[:12],
	}, version)
}

// RunJanitor purges idle sessions until ctx is done
func (a *App) RunJanitor(ctx context.Context) {
	interval := a.Config.Storage.SessionTTL() / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	a.Sessions.RunJanitor(ctx, interval)
}

// Close releases the booking store
func (a *App) Close() error {
	if a.Bookings == nil {
		return nil
	}
	return a.Bookings.Close()
}
