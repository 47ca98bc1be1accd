// Package api - Thin HTTP layer over the estimator workflow.
// The API is ONLY responsible for: request decoding, workflow orchestration, response serialization.
// The API NEVER performs pricing logic.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"car-edition/adapters/storage"
	"car-edition/core/estimate"
	"car-edition/core/types"
	"car-edition/core/vehicle"
	"car-edition/core/workflow"
	"car-edition/internal/errors"
	"car-edition/internal/logging"
)

// Config holds HTTP server configuration
type Config struct {
	// Addr to listen on
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxBodyBytes limits request body size
	MaxBodyBytes int64

	// CORSOrigins lists allowed origins; "*" allows any
	CORSOrigins []string

	// RateLimit per client in requests per second; zero disables it
	RateLimit float64
	RateBurst int

	// TrustProxy keys rate limiting on the proxy-appended X-Forwarded-For hop
	TrustProxy bool

	// PriceBook identifies the loaded price book in /version
	PriceBook string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		MaxBodyBytes: 1 << 20,
		CORSOrigins:  []string{"*"},
		RateLimit:    10,
		RateBurst:    20,
	}
}

// Deps are the collaborators the server orchestrates
type Deps struct {
	Workflow *workflow.Workflow

	// Lookup serves the stateless estimator page
	Lookup vehicle.Lookup

	// Bookings is optional; booking routes are not registered without it
	Bookings storage.Store
}

// Server is the API server
type Server struct {
	workflow *workflow.Workflow
	calc     *estimate.Calculator
	lookup   vehicle.Lookup
	bookings storage.Store

	config  Config
	version string
	mux     *http.ServeMux
	handler http.Handler
	server  *http.Server
	log     *zap.Logger
}

// NewServer creates a new API server
func NewServer(deps Deps, config Config, version string) *Server {
	s := &Server{
		workflow: deps.Workflow,
		calc:     deps.Workflow.Calculator(),
		lookup:   deps.Lookup,
		bookings: deps.Bookings,
		config:   config,
		version:  version,
		mux:      http.NewServeMux(),
		log:      logging.Named("api"),
	}

	s.registerRoutes()
	s.handler = Chain(s.mux,
		Recover(s.log),
		OTel("car-edition"),
		Logger(s.log),
		CORS(config.CORSOrigins),
		RateLimit(config.RateLimit, config.RateBurst, config.TrustProxy),
		MaxBody(config.MaxBodyBytes),
	)
	return s
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /version", s.handleVersion)

	// Estimator page
	s.mux.HandleFunc("GET /services", s.handleServices)
	s.mux.HandleFunc("POST /estimate", s.handleEstimate)

	// Booking flow
	s.mux.HandleFunc("POST /sessions", s.handleStartSession)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	s.mux.HandleFunc("POST /sessions/{id}/vehicle", s.handleVehicle)
	s.mux.HandleFunc("PUT /sessions/{id}/services/{serviceID}", s.handleAddService)
	s.mux.HandleFunc("DELETE /sessions/{id}/services/{serviceID}", s.handleRemoveService)
	s.mux.HandleFunc("POST /sessions/{id}/services/{serviceID}/toggle", s.handleToggleService)
	s.mux.HandleFunc("PUT /sessions/{id}/other-service", s.handleOtherService)
	s.mux.HandleFunc("POST /sessions/{id}/services/confirm", s.handleConfirm)
	s.mux.HandleFunc("POST /sessions/{id}/details", s.handleDetails)
	s.mux.HandleFunc("POST /sessions/{id}/submit", s.handleSubmit)
	s.mux.HandleFunc("POST /sessions/{id}/back", s.handleBack)
	s.mux.HandleFunc("POST /sessions/{id}/restart", s.handleRestart)

	if s.bookings != nil {
		s.mux.HandleFunc("GET /bookings", s.handleListBookings)
		s.mux.HandleFunc("GET /bookings/{id}", s.handleGetBooking)
		s.mux.HandleFunc("PATCH /bookings/{id}", s.handleUpdateBooking)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe starts the server and blocks until it stops
func (s *Server) ListenAndServe() error {
	s.server = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.log.Info("listening", zap.String("addr", s.config.Addr))

	err := s.server.ListenAndServe()
	if stderrors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": s.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleVersion handles GET /version
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":        s.version,
		"engine":         "car-edition",
		"price_book":     s.config.PriceBook,
		"reference_year": strconv.Itoa(s.calc.Engine().ReferenceYear()),
		"currency":       s.calc.Currency().String(),
	})
}

// handleServices handles GET /services. ?category=core|extra narrows the
// list to one group of cards.
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	services := s.calc.Catalog().List()
	if c := r.URL.Query().Get("category"); c != "" {
		category := types.ServiceCategory(c)
		if !category.Valid() {
			writeError(w, errors.Newf(errors.TypeValidation, "unknown service category %q", c))
			return
		}
		services = s.calc.Catalog().ByCategory(category)
	}
	out := make([]ServiceView, 0, len(services))
	for _, def := range services {
		out = append(out, ServiceView{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Category:    def.Category,
			Badge:       def.Badge,
			BasePrice:   types.NewMoney(def.BasePrice, s.calc.Currency()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"services": out,
		"count":    len(out),
	})
}

// handleEstimate handles POST /estimate
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	reg, err := vehicle.ValidateRegistration(req.Registration)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := s.lookup.LookupVehicle(r.Context(), reg)
	if err != nil {
		writeError(w, err)
		return
	}
	if v == nil {
		writeError(w, errors.NotFound("vehicle", reg))
		return
	}

	sel := estimate.NewSelection(req.ServiceIDs...)
	sel.SetOtherService(req.OtherService)
	est := s.calc.Compute(sel, v)

	priced := s.calc.PriceCatalog(v)
	cards := make([]PricedServiceView, 0, len(priced))
	for _, p := range priced {
		cards = append(cards, PricedServiceView{
			ID:          p.Service.ID,
			Name:        p.Service.Name,
			Description: p.Service.Description,
			Category:    p.Service.Category,
			Badge:       p.Service.Badge,
			BasePrice:   types.NewMoney(p.Service.BasePrice, est.Currency),
			Price:       types.NewMoney(p.AdjustedPrice, est.Currency),
			Selected:    sel.Has(p.Service.ID),
		})
	}

	writeJSON(w, http.StatusOK, &EstimateResponse{
		Vehicle:    v,
		Display:    vehicle.FormatRegistration(v.RegistrationNumber),
		Services:   cards,
		LineItems:  est.LineItems,
		Summary:    s.calc.ServicesSummary(sel),
		Total:      types.NewMoney(est.Total, est.Currency),
		Skipped:    est.Skipped,
		ComputedAt: est.ComputedAt,
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.workflow.Start(r.Context())
	s.respondSession(w, http.StatusCreated, session, err)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.workflow.Get(r.Context(), r.PathValue("id"))
	s.respondSession(w, http.StatusOK, session, err)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.workflow.Forget(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVehicle(w http.ResponseWriter, r *http.Request) {
	var req RegistrationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	session, err := s.workflow.LookupVehicle(r.Context(), r.PathValue("id"), req.Registration)
	s.respondSession(w, http.StatusOK, session, err)
}

func (s *Server) handleAddService(w http.ResponseWriter, r *http.Request) {
	session, err := s.workflow.AddService(r.Context(), r.PathValue("id"), r.PathValue("serviceID"))
	s.respondSession(w, http.StatusOK, session, err)
}

func (s *Server) handleRemoveService(w http.ResponseWriter, r *http.Request) {
	session, err := s.workflow.RemoveService(r.Context(), r.PathValue("id"), r.PathValue("serviceID"))
	s.respondSession(w, http.StatusOK, session, err)
}

func (s *Server) handleToggleService(w http.ResponseWriter, r *http.Request) {
	session, err := s.workflow.ToggleService(r.Context(), r.PathValue("id"), r.PathValue("serviceID"))
	s.respondSession(w, http.StatusOK, session, err)
}

func (s *Server) handleOtherService(w http.ResponseWriter, r *http.Request) {
	var req OtherServiceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	session, err := s.workflow.SetOtherService(r.Context(), r.PathValue("id"), req.Text)
	s.respondSession(w, http.StatusOK, session, err)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	session, err := s.workflow.ConfirmServices(r.Context(), r.PathValue("id"))
	s.respondSession(w, http.StatusOK, session, err)
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	var req DetailsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	session, err := s.workflow.EnterDetails(r.Context(), r.PathValue("id"), req.Name, req.Email, req.Phone)
	s.respondSession(w, http.StatusOK, session, err)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	session, err := s.workflow.Submit(r.Context(), r.PathValue("id"))
	s.respondSession(w, http.StatusOK, session, err)
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	session, err := s.workflow.Back(r.Context(), r.PathValue("id"))
	s.respondSession(w, http.StatusOK, session, err)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	session, err := s.workflow.Restart(r.Context(), r.PathValue("id"))
	s.respondSession(w, http.StatusOK, session, err)
}

// handleListBookings handles GET /bookings?status&search&page&limit
func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &storage.ListFilter{
		Status: storage.Status(q.Get("status")),
		Search: q.Get("search"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, errors.Validation("unknown status "+strconv.Quote(string(filter.Status))))
		return
	}
	var err error
	if filter.Page, err = queryInt(q.Get("page")); err != nil {
		writeError(w, errors.Validation("page must be a number"))
		return
	}
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeError(w, errors.Validation("limit must be a number"))
		return
	}

	result, err := s.bookings.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.bookings.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleUpdateBooking(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	b, err := s.bookings.UpdateStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	s.log.Info("booking status changed", zap.String("booking_id", b.ID), zap.String("status", string(b.Status)))
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) respondSession(w http.ResponseWriter, status int, session *workflow.Session, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, s.sessionView(session))
}

func (s *Server) sessionView(session *workflow.Session) *SessionResponse {
	currency := s.calc.Currency()
	view := &SessionResponse{
		ID:        session.ID,
		State:     session.State,
		Vehicle:   session.Vehicle,
		Selection: session.Selection,
		Customer:  session.Customer,
		LineItems: s.calc.LineItems(session.Selection, session.Vehicle),
		Summary:   s.calc.ServicesSummary(session.Selection),
		Total:     types.NewMoney(session.Total, currency),
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}
	if rc := session.Receipt; rc != nil {
		view.Receipt = &ReceiptView{
			BookingID:   rc.BookingID,
			SubmittedAt: rc.SubmittedAt,
		}
		if rc.Payload != nil {
			view.Receipt.Summary = rc.Payload.SelectedServices
			view.Receipt.Total = types.NewMoney(rc.Payload.TotalPrice, rc.Payload.Currency)
		}
	}
	return view
}

// Helpers

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.Validation("request body too large")
		}
		return errors.Wrap(errors.TypeValidation, "invalid request body", err)
	}
	return nil
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps error kinds to HTTP statuses
func statusFor(t errors.Type) int {
	switch t {
	case errors.TypeValidation, errors.TypeParsing:
		return http.StatusBadRequest
	case errors.TypeNotFound:
		return http.StatusNotFound
	case errors.TypeInvalidState:
		return http.StatusConflict
	case errors.TypeLookupFailed, errors.TypeSubmission:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	e, ok := errors.As(err)
	if !ok {
		e = errors.Internal("internal server error", err)
	}

	status := statusFor(e.Type)
	message := e.Message
	if status == http.StatusInternalServerError {
		logging.Error("request failed", zap.Error(err))
		message = "internal server error"
	} else if e.Cause != nil && e.Type == errors.TypeValidation {
		message = e.Message + ": " + e.Cause.Error()
	}

	writeJSON(w, status, ErrorBody{Error: ErrorDetail{
		Code:      string(e.Type),
		Message:   message,
		Retryable: errors.Retryable(e),
	}})
}
