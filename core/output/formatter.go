// Package output renders quotes for humans and machines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"car-edition/core/estimate"
	"car-edition/core/types"
)

// Format represents output format type
type Format string

const (
	// FormatCLI is a human-readable CLI table
	FormatCLI Format = "cli"

	// FormatJSON is machine-readable JSON
	FormatJSON Format = "json"
)

// Formatter produces output in a specific format
type Formatter interface {
	// Format returns the format type
	Format() Format

	// Render produces output for the given quote
	Render(w io.Writer, quote *Quote) error
}

// Quote is a priced selection ready for display
type Quote struct {
	// Registration is the display form, e.g. "AB12 CDE"
	Registration string             `json:"registration"`
	Estimate     *estimate.Estimate `json:"estimate"`

	// Summary is the selected service names plus any other-service text
	Summary string `json:"summary"`
}

// Registry manages formatters by format
type Registry struct {
	mu         sync.RWMutex
	formatters map[Format]Formatter
}

// NewRegistry returns a registry holding the built-in formatters
func NewRegistry() *Registry {
	r := &Registry{formatters: make(map[Format]Formatter)}
	_ = r.Register(CLIFormatter{})
	_ = r.Register(JSONFormatter{Indent: true})
	return r
}

// Register adds a formatter; a format can only be registered once
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.formatters[f.Format()]; dup {
		return fmt.Errorf("formatter %s already registered", f.Format())
	}
	r.formatters[f.Format()] = f
	return nil
}

// Get returns the formatter for a format
func (r *Registry) Get(format Format) (Formatter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formatters[format]
	return f, ok
}

// Formats lists registered formats, sorted
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.formatters))
	for f := range r.formatters {
		out = append(out, string(f))
	}
	sort.Strings(out)
	return out
}

// JSONFormatter renders the quote as JSON
type JSONFormatter struct {
	Indent bool
}

func (JSONFormatter) Format() Format { return FormatJSON }

func (f JSONFormatter) Render(w io.Writer, quote *Quote) error {
	enc := json.NewEncoder(w)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(quote)
}

// CLIFormatter renders a boxed table
type CLIFormatter struct{}

func (CLIFormatter) Format() Format { return FormatCLI }

const (
	nameWidth  = 44
	priceWidth = 14
)

func (CLIFormatter) Render(w io.Writer, quote *Quote) error {
	est := quote.Estimate
	rule := strings.Repeat("─", nameWidth+priceWidth+3)

	fmt.Fprintf(w, "┌%s┐\n", rule)
	if v := est.Vehicle; v != nil {
		title := fmt.Sprintf("%s  %s %s (%d)", quote.Registration, v.Make, v.Model, v.YearOfManufacture)
		fmt.Fprintf(w, "│ %-*s │\n", nameWidth+priceWidth+1, truncate(title, nameWidth+priceWidth+1))
		fmt.Fprintf(w, "├%s┤\n", rule)
	}

	if len(est.LineItems) == 0 {
		fmt.Fprintf(w, "│ %-*s │\n", nameWidth+priceWidth+1, "No services selected")
	}
	for _, item := range est.LineItems {
		fmt.Fprintf(w, "│ %-*s %*s │\n", nameWidth, truncate(item.Name, nameWidth), priceWidth, est.Currency.Format(item.Price))
		if !item.Price.Equal(item.BasePrice) {
			base := "base " + est.Currency.Format(item.BasePrice)
			fmt.Fprintf(w, "│   └─ %-*s %*s │\n", nameWidth-6, "", priceWidth, base)
		}
	}
	if est.OtherService != "" {
		fmt.Fprintf(w, "│ %-*s %*s │\n", nameWidth, truncate("Other: "+est.OtherService, nameWidth), priceWidth, "quote on request")
	}

	fmt.Fprintf(w, "├%s┤\n", rule)
	fmt.Fprintf(w, "│ %-*s %*s │\n", nameWidth, "Estimated total", priceWidth, est.Currency.Format(est.Total))
	fmt.Fprintf(w, "└%s┘\n", rule)

	if len(est.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped unknown services: %s\n", strings.Join(est.Skipped, ", "))
	}
	fmt.Fprintf(w, "Prices as of %d. Final price confirmed at booking.\n", est.ReferenceYear)
	return nil
}

// RenderServices writes the catalog as a table
func RenderServices(w io.Writer, services []types.ServiceDefinition, currency types.Currency) {
	for _, s := range services {
		badge := ""
		if s.Badge != "" {
			badge = " [" + s.Badge + "]"
		}
		fmt.Fprintf(w, "%-20s %-*s %*s  %s%s\n",
			s.ID, nameWidth-20, truncate(s.Name, nameWidth-20), priceWidth, currency.Format(s.BasePrice), s.Category, badge)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
