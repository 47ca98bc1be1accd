package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"car-edition/adapters/storage"
	"car-edition/adapters/submission"
	"car-edition/core/estimate"
	"car-edition/core/pricebook"
	"car-edition/core/pricing"
	"car-edition/core/types"
	"car-edition/core/vehicle"
	"car-edition/core/workflow"
	"car-edition/internal/errors"
)

func fakeLookup(ctx context.Context, reg string) (*types.VehicleDetails, error) {
	switch reg {
	case "BD16XYZ":
		return &types.VehicleDetails{
			RegistrationNumber: reg,
			Make:               "BMW",
			Model:              "3 Series",
			YearOfManufacture:  2016,
			FuelType:           types.FuelDiesel,
		}, nil
	case "DOWN1":
		return nil, errors.LookupFailed("registry unavailable", nil)
	case "EMPTY1":
		return nil, nil
	default:
		return nil, errors.NotFound("vehicle", reg)
	}
}

type fixture struct {
	server   *Server
	bookings *storage.MemoryStore
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	pb := pricebook.MustDefault()
	calc := estimate.NewCalculator(pb.Catalog(), pb.Engine(pricing.WithReferenceYear(2026)), pb.Currency)
	bookings := storage.NewMemoryStore()
	wf := workflow.New(
		vehicle.LookupFunc(fakeLookup),
		calc,
		submission.NewStoreSubmitter(bookings),
		storage.NewSessionStore(time.Hour),
	)
	return &fixture{
		server:   NewServer(Deps{Workflow: wf, Lookup: vehicle.LookupFunc(fakeLookup), Bookings: bookings}, cfg, "test"),
		bookings: bookings,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return v
}

func noLimit() Config {
	cfg := DefaultConfig()
	cfg.RateLimit = 0
	return cfg
}

func TestHealthAndVersion(t *testing.T) {
	f := newFixture(t, noLimit())

	if w := f.do(t, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health = %d", w.Code)
	}
	w := f.do(t, http.MethodGet, "/version", "")
	v := decode[map[string]string](t, w)
	if v["version"] != "test" || v["reference_year"] != "2026" || v["currency"] != "GBP" {
		t.Errorf("version body = %v", v)
	}
}

func TestServices(t *testing.T) {
	f := newFixture(t, noLimit())
	w := f.do(t, http.MethodGet, "/services", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decode[struct {
		Services []ServiceView `json:"services"`
		Count    int           `json:"count"`
	}](t, w)
	if body.Count != pricebook.MustDefault().Catalog().Len() || len(body.Services) != body.Count {
		t.Errorf("count = %d, services = %d", body.Count, len(body.Services))
	}
}

func TestServicesByCategory(t *testing.T) {
	f := newFixture(t, noLimit())
	cat := pricebook.MustDefault().Catalog()

	for _, category := range []types.ServiceCategory{types.CategoryCore, types.CategoryExtra} {
		w := f.do(t, http.MethodGet, "/services?category="+string(category), "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", category, w.Code)
		}
		body := decode[struct {
			Services []ServiceView `json:"services"`
		}](t, w)
		if len(body.Services) != len(cat.ByCategory(category)) {
			t.Errorf("%s: got %d services", category, len(body.Services))
		}
		for _, s := range body.Services {
			if s.Category != category {
				t.Errorf("%s: service %s has category %s", category, s.ID, s.Category)
			}
		}
	}

	if w := f.do(t, http.MethodGet, "/services?category=luxury", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown category = %d", w.Code)
	}
}

func TestEstimate(t *testing.T) {
	f := newFixture(t, noLimit())
	w := f.do(t, http.MethodPost, "/estimate",
		`{"registration":"bd16 xyz","service_ids":["full-service","interim-service","bogus"],"other_service":"wheel alignment"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}

	resp := decode[EstimateResponse](t, w)
	if resp.Total.Amount != "467.80" || resp.Total.Currency != types.CurrencyGBP {
		t.Errorf("total = %+v", resp.Total)
	}
	if resp.Summary != "Full Service, Interim Service, wheel alignment" {
		t.Errorf("summary = %q", resp.Summary)
	}
	if resp.Display != "BD16 XYZ" {
		t.Errorf("display = %q", resp.Display)
	}
	if len(resp.Skipped) != 1 || resp.Skipped[0] != "bogus" {
		t.Errorf("skipped = %v", resp.Skipped)
	}

	var full *PricedServiceView
	for i := range resp.Services {
		if resp.Services[i].ID == "full-service" {
			full = &resp.Services[i]
		}
	}
	if full == nil || full.Price.Amount != "288.90" || !full.Selected {
		t.Errorf("full service card = %+v", full)
	}
}

func TestEstimateErrors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		status    int
		code      errors.Type
		retryable bool
	}{
		{"malformed", `{`, http.StatusBadRequest, errors.TypeValidation, false},
		{"unknown field", `{"reg":"BD16XYZ"}`, http.StatusBadRequest, errors.TypeValidation, false},
		{"empty registration", `{"registration":"  "}`, http.StatusBadRequest, errors.TypeValidation, false},
		{"unknown vehicle", `{"registration":"ZZ99ZZZ"}`, http.StatusNotFound, errors.TypeNotFound, false},
		{"registry down", `{"registration":"DOWN1"}`, http.StatusBadGateway, errors.TypeLookupFailed, true},
		{"lookup without vehicle", `{"registration":"EMPTY1"}`, http.StatusNotFound, errors.TypeNotFound, false},
	}

	f := newFixture(t, noLimit())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/estimate", tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			body := decode[ErrorBody](t, w)
			if body.Error.Code != string(tt.code) || body.Error.Retryable != tt.retryable {
				t.Errorf("error = %+v", body.Error)
			}
		})
	}
}

func TestBookingFlow(t *testing.T) {
	f := newFixture(t, noLimit())

	w := f.do(t, http.MethodPost, "/sessions", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("start = %d", w.Code)
	}
	id := decode[SessionResponse](t, w).ID
	base := "/sessions/" + id

	steps := []struct {
		method, path, body string
		state              workflow.State
	}{
		{http.MethodPost, base + "/vehicle", `{"registration":"BD16 XYZ"}`, workflow.StateVehicleSelected},
		{http.MethodPut, base + "/services/full-service", "", workflow.StateVehicleSelected},
		{http.MethodPut, base + "/services/interim-service", "", workflow.StateVehicleSelected},
		{http.MethodPut, base + "/other-service", `{"text":"wheel alignment"}`, workflow.StateVehicleSelected},
		{http.MethodPost, base + "/services/confirm", "", workflow.StateServicesSelected},
		{http.MethodPost, base + "/details", `{"name":"Sam Driver","email":"sam@example.com","phone":"07700 900123"}`, workflow.StateDetailsEntered},
	}
	var last SessionResponse
	for _, step := range steps {
		w := f.do(t, step.method, step.path, step.body)
		if w.Code != http.StatusOK {
			t.Fatalf("%s %s = %d: %s", step.method, step.path, w.Code, w.Body)
		}
		last = decode[SessionResponse](t, w)
		if last.State != step.state {
			t.Fatalf("%s %s: state = %s, want %s", step.method, step.path, last.State, step.state)
		}
	}
	if last.Total.Amount != "467.80" || last.Customer.Phone != "07700900123" {
		t.Errorf("before submit: total %s, phone %s", last.Total.Amount, last.Customer.Phone)
	}

	w = f.do(t, http.MethodPost, base+"/submit", "")
	if w.Code != http.StatusOK {
		t.Fatalf("submit = %d: %s", w.Code, w.Body)
	}
	done := decode[SessionResponse](t, w)
	if done.State != workflow.StateSubmitted || done.Receipt == nil || done.Receipt.BookingID == "" {
		t.Fatalf("submitted session = %+v", done)
	}
	if done.Receipt.Total.Amount != "467.80" || done.Total.Amount != "0.00" || done.Vehicle != nil {
		t.Errorf("submit should clear the estimate and keep the receipt: %+v", done)
	}

	// the booking is visible to the admin listing
	w = f.do(t, http.MethodGet, "/bookings?search=bd16&status=pending", "")
	list := decode[storage.ListResult](t, w)
	if list.Pagination.Total != 1 || list.Bookings[0].ID != done.Receipt.BookingID {
		t.Fatalf("bookings = %+v", list)
	}

	w = f.do(t, http.MethodPatch, "/bookings/"+done.Receipt.BookingID, `{"status":"confirmed"}`)
	if w.Code != http.StatusOK || decode[storage.Booking](t, w).Status != storage.StatusConfirmed {
		t.Errorf("patch = %d: %s", w.Code, w.Body)
	}
	if w := f.do(t, http.MethodGet, "/bookings/"+done.Receipt.BookingID, ""); w.Code != http.StatusOK {
		t.Errorf("get booking = %d", w.Code)
	}

	// a second submit is refused until restart
	if w := f.do(t, http.MethodPost, base+"/submit", ""); w.Code != http.StatusConflict {
		t.Errorf("resubmit = %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, base+"/restart", ""); decode[SessionResponse](t, w).State != workflow.StateNoVehicle {
		t.Errorf("restart body = %s", w.Body)
	}
}

func TestSessionErrors(t *testing.T) {
	f := newFixture(t, noLimit())
	id := decode[SessionResponse](t, f.do(t, http.MethodPost, "/sessions", "")).ID
	base := "/sessions/" + id

	tests := []struct {
		name, method, path, body string
		status                   int
	}{
		{"unknown session", http.MethodGet, "/sessions/missing", "", http.StatusNotFound},
		{"service before vehicle", http.MethodPut, base + "/services/full-service", "", http.StatusConflict},
		{"confirm before vehicle", http.MethodPost, base + "/services/confirm", "", http.StatusConflict},
		{"empty registration", http.MethodPost, base + "/vehicle", `{"registration":""}`, http.StatusBadRequest},
		{"registry down", http.MethodPost, base + "/vehicle", `{"registration":"DOWN1"}`, http.StatusBadGateway},
		{"details before services", http.MethodPost, base + "/details", `{"phone":"07700900123"}`, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := f.do(t, tt.method, tt.path, tt.body); w.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.status, w.Body)
			}
		})
	}

	// a failed lookup leaves the session where it was
	if s := decode[SessionResponse](t, f.do(t, http.MethodGet, base, "")); s.State != workflow.StateNoVehicle {
		t.Errorf("state after failures = %s", s.State)
	}

	f.do(t, http.MethodPost, base+"/vehicle", `{"registration":"BD16XYZ"}`)
	if w := f.do(t, http.MethodPut, base+"/services/not-a-service", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown service = %d", w.Code)
	}
	if w := f.do(t, http.MethodPost, base+"/services/confirm", ""); w.Code != http.StatusBadRequest {
		t.Errorf("confirm with nothing selected = %d", w.Code)
	}

	if w := f.do(t, http.MethodDelete, base, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, base, ""); w.Code != http.StatusNotFound {
		t.Errorf("deleted session = %d", w.Code)
	}
}

func TestToggleAndBack(t *testing.T) {
	f := newFixture(t, noLimit())
	base := "/sessions/" + decode[SessionResponse](t, f.do(t, http.MethodPost, "/sessions", "")).ID

	f.do(t, http.MethodPost, base+"/vehicle", `{"registration":"BD16XYZ"}`)
	s := decode[SessionResponse](t, f.do(t, http.MethodPost, base+"/services/mot-test/toggle", ""))
	if !s.Selection.Has("mot-test") {
		t.Fatal("toggle should select")
	}
	s = decode[SessionResponse](t, f.do(t, http.MethodPost, base+"/services/mot-test/toggle", ""))
	if s.Selection.Has("mot-test") || s.Total.Amount != "0.00" {
		t.Fatalf("toggle should deselect: %+v", s)
	}

	s = decode[SessionResponse](t, f.do(t, http.MethodPost, base+"/back", ""))
	if s.State != workflow.StateNoVehicle || s.Vehicle == nil {
		t.Errorf("back should keep the vehicle: %+v", s)
	}
}

func TestListBookingsValidation(t *testing.T) {
	f := newFixture(t, noLimit())
	for _, q := range []string{"status=lost", "page=two", "limit=x"} {
		if w := f.do(t, http.MethodGet, "/bookings?"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", q, w.Code)
		}
	}
	if w := f.do(t, http.MethodGet, "/bookings/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing booking = %d", w.Code)
	}
	if w := f.do(t, http.MethodPatch, "/bookings/nope", `{"status":"confirmed"}`); w.Code != http.StatusNotFound {
		t.Errorf("patch missing booking = %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := noLimit()
	cfg.CORSOrigins = []string{"https://thecaredition.example"}
	f := newFixture(t, cfg)

	r := httptest.NewRequest(http.MethodOptions, "/estimate", nil)
	r.Header.Set("Origin", "https://thecaredition.example")
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, r)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://thecaredition.example" {
		t.Errorf("allow origin = %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set("Origin", "https://elsewhere.example")
	w = httptest.NewRecorder()
	f.server.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unlisted origin allowed: %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	f := newFixture(t, cfg)

	if w := f.do(t, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("first request = %d", w.Code)
	}
	w := f.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d", w.Code)
	}
	if !decode[ErrorBody](t, w).Error.Retryable {
		t.Error("rate limit should be retryable")
	}

	// another client has its own bucket
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.RemoteAddr = "198.51.100.7:4000"
	w = httptest.NewRecorder()
	f.server.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("other client = %d", w.Code)
	}
}

func TestRateLimitClientKey(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		forwarded  string
		trustProxy bool
		want       string
	}{
		{"peer address", "203.0.113.5:1234", "", false, "203.0.113.5"},
		{"forwarded header ignored by default", "203.0.113.5:1234", "10.0.0.1", false, "203.0.113.5"},
		{"last hop behind proxy", "10.0.0.2:80", "1.2.3.4, 198.51.100.9", true, "198.51.100.9"},
		{"proxy without header", "10.0.0.2:80", "", true, "10.0.0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/health", nil)
			r.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientKey(r, tt.trustProxy); got != tt.want {
				t.Errorf("clientKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimitIgnoresRotatingForwardedFor(t *testing.T) {
	limiter := newClientLimiter(1, 1)
	h := rateLimit(limiter, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	allowed := 0
	for i := 0; i < 50; i++ {
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		r.RemoteAddr = "203.0.113.5:1234"
		r.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code == http.StatusOK {
			allowed++
		}
	}
	if allowed != 1 {
		t.Errorf("allowed %d requests from one peer, want 1", allowed)
	}
	if n := limiter.size(); n != 1 {
		t.Errorf("buckets = %d, want 1", n)
	}
}

func TestRateLimitEvictsIdleClients(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	limiter := newClientLimiter(1, 1)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 100; i++ {
		limiter.allow(fmt.Sprintf("198.51.100.%d", i))
	}
	if n := limiter.size(); n != 100 {
		t.Fatalf("buckets = %d, want 100", n)
	}

	now = now.Add(limiterIdleTTL)
	if !limiter.allow("203.0.113.5") {
		t.Error("new client should be allowed")
	}
	if n := limiter.size(); n != 1 {
		t.Errorf("buckets after idle sweep = %d, want 1", n)
	}
}

func TestBodyLimit(t *testing.T) {
	cfg := noLimit()
	cfg.MaxBodyBytes = 16
	f := newFixture(t, cfg)

	body := `{"registration":"` + strings.Repeat("A", 64) + `"}`
	w := f.do(t, http.MethodPost, "/estimate", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestRecover(t *testing.T) {
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}), Recover(zap.NewNop()))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decode[ErrorBody](t, w); body.Error.Code != string(errors.TypeInternal) {
		t.Errorf("error = %+v", body.Error)
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, bytes.ErrTooLarge)
	body := decode[ErrorBody](t, w)
	if w.Code != http.StatusInternalServerError || body.Error.Message != "internal server error" {
		t.Errorf("foreign error leaked: %d %+v", w.Code, body.Error)
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[errors.Type]int{
		errors.TypeValidation:   http.StatusBadRequest,
		errors.TypeNotFound:     http.StatusNotFound,
		errors.TypeLookupFailed: http.StatusBadGateway,
		errors.TypeSubmission:   http.StatusBadGateway,
		errors.TypeInvalidState: http.StatusConflict,
		errors.TypeInternal:     http.StatusInternalServerError,
		errors.TypeConfig:       http.StatusInternalServerError,
	}
	for typ, want := range tests {
		if got := statusFor(typ); got != want {
			t.Errorf("statusFor(%s) = %d, want %d", typ, got, want)
		}
	}
}
