// Package cmd - lookup, services and quote commands
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"car-edition/core/estimate"
	"car-edition/core/output"
	"car-edition/core/pricebook"
	"car-edition/core/types"
	"car-edition/core/vehicle"
	"car-edition/internal/app"
	"car-edition/internal/config"
	"car-edition/internal/logging"
)

var (
	outputFormat  string
	otherService  string
	lookupTimeout time.Duration
)

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List the service catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		calc, err := newCalculator(config.Get())
		if err != nil {
			return err
		}
		output.RenderServices(cmd.OutOrStdout(), calc.Catalog().List(), calc.Currency())
		return nil
	},
}

var lookupCmd = &cobra.Command{
	Use:   "lookup <registration>",
	Short: "Look up a vehicle by registration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := lookupVehicle(cmd.Context(), config.Get(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	},
}

var quoteCmd = &cobra.Command{
	Use:   "quote <registration> [service-id...]",
	Short: "Price services for a vehicle",
	Long: `Look up a vehicle and price the selected services for it.
Without service ids every catalog service is priced.

Examples:
  car-edition quote BD16XYZ full-service interim-service
  car-edition quote "AB12 CDE" --other "wheel alignment" --format json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuote,
}

func init() {
	quoteCmd.Flags().StringVarP(&outputFormat, "format", "f", "cli", "output format (cli, json)")
	quoteCmd.Flags().StringVar(&otherService, "other", "", "free-text request for a service not in the catalog")
	for _, c := range []*cobra.Command{quoteCmd, lookupCmd} {
		c.Flags().DurationVar(&lookupTimeout, "timeout", 15*time.Second, "vehicle lookup timeout")
	}
}

func runQuote(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	formatter, ok := output.NewRegistry().Get(output.Format(outputFormat))
	if !ok {
		return fmt.Errorf("unknown format %q (want %s)", outputFormat, strings.Join(output.NewRegistry().Formats(), ", "))
	}

	calc, err := newCalculator(cfg)
	if err != nil {
		return err
	}
	v, err := lookupVehicle(cmd.Context(), cfg, args[0])
	if err != nil {
		return err
	}

	ids := args[1:]
	if len(ids) == 0 {
		for _, s := range calc.Catalog().List() {
			ids = append(ids, s.ID)
		}
	}
	sel := estimate.NewSelection(ids...)
	sel.SetOtherService(otherService)

	est := calc.Compute(sel, v)
	logging.Debug("quote computed", logging.Registration(v.RegistrationNumber))

	return formatter.Render(cmd.OutOrStdout(), &output.Quote{
		Registration: vehicle.FormatRegistration(v.RegistrationNumber),
		Estimate:     est,
		Summary:      calc.ServicesSummary(sel),
	})
}

func newCalculator(cfg *config.Config) (*estimate.Calculator, error) {
	pb, err := pricebook.Load(cfg.Pricing.PriceBook)
	if err != nil {
		return nil, err
	}
	currency := pb.Currency
	if cfg.Pricing.Currency != "" {
		currency = cfg.Pricing.Currency
	}
	return estimate.NewCalculator(pb.Catalog(), pb.Engine(), currency), nil
}

func lookupVehicle(ctx context.Context, cfg *config.Config, registration string) (*types.VehicleDetails, error) {
	reg, err := vehicle.ValidateRegistration(registration)
	if err != nil {
		return nil, err
	}
	lookup, err := app.NewLookup(cfg.ResolvedLookup())
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	return lookup.LookupVehicle(ctx, reg)
}
