// Package submission hands completed estimates to booking collaborators:
// the external form endpoint and the booking record store.
package submission

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"car-edition/core/workflow"
	"car-edition/internal/errors"
	"car-edition/internal/logging"
)

// FormConfig configures form submission
type FormConfig struct {
	// Endpoint URL
	Endpoint string `json:"endpoint"`

	// Headers to include
	Headers map[string]string `json:"headers,omitempty"`

	// Timeout for the request; zero leaves the transport default
	Timeout time.Duration `json:"timeout"`
}

// FormSubmitter posts the payload as an HTML form, the way the booking
// spreadsheet script expects it. Each Submit issues exactly one request.
type FormSubmitter struct {
	config     *FormConfig
	httpClient *http.Client
	now        func() time.Time
	log        *zap.Logger
}

// FormOption configures a FormSubmitter
type FormOption func(*FormSubmitter)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) FormOption {
	return func(f *FormSubmitter) {
		f.httpClient = c
	}
}

// NewFormSubmitter creates a form submitter
func NewFormSubmitter(config *FormConfig, opts ...FormOption) *FormSubmitter {
	f := &FormSubmitter{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			// the script answers with a redirect to its result page
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		now: time.Now,
		log: logging.Named("submission"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// EncodeForm renders the payload as form fields
func EncodeForm(p *workflow.Payload) url.Values {
	v := url.Values{}
	v.Set("timestamp", p.Timestamp.UTC().Format(time.RFC3339))
	v.Set("carRegistration", p.CarRegistration)
	v.Set("vehicleMake", p.VehicleMake)
	v.Set("vehicleModel", p.VehicleModel)
	v.Set("vehicleYear", strconv.Itoa(p.VehicleYear))
	v.Set("selectedServices", p.SelectedServices)
	v.Set("totalPrice", p.TotalPrice.StringFixed(2))
	v.Set("notes", p.Notes)
	v.Set("name", p.Name)
	v.Set("email", p.Email)
	v.Set("phone", p.Phone)
	if p.SubmissionID != "" {
		v.Set("reference", p.SubmissionID)
	}
	return v
}

// Submit implements workflow.Submitter. 2xx and 3xx responses count as accepted.
func (f *FormSubmitter) Submit(ctx context.Context, p *workflow.Payload) (*workflow.Receipt, error) {
	if f.config.Endpoint == "" {
		return nil, errors.Config("form endpoint is not configured", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.config.Endpoint, strings.NewReader(EncodeForm(p).Encode()))
	if err != nil {
		return nil, errors.Submission("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range f.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, errors.Submission("form endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Submission(fmt.Sprintf("form endpoint returned %d", resp.StatusCode),
			fmt.Errorf("%s", strings.TrimSpace(string(body)))).
			WithContext("status", resp.StatusCode)
	}

	f.log.Info("estimate posted to form endpoint",
		logging.Registration(p.CarRegistration),
		zap.Int("status", resp.StatusCode),
	)
	return &workflow.Receipt{SubmittedAt: f.now().UTC()}, nil
}

var _ workflow.Submitter = (*FormSubmitter)(nil)
