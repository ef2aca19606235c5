package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"factcalc/pkg/core/calc"
	"factcalc/pkg/core/facts"
)

// periodFlags are shared by metric, explain and fact.
type periodFlags struct {
	period    string
	frequency string
	segment   string
}

func (p *periodFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.period, "period", "", `Fiscal period, e.g. "2024", "FY2024" or "2024-Q4" (required)`)
	cmd.Flags().StringVar(&p.frequency, "frequency", "annual", "annual or quarterly")
	cmd.Flags().StringVar(&p.segment, "segment", "", "Restrict to a segment member, e.g. us-gaap:ProductMember")
	_ = cmd.MarkFlagRequired("period")
}

func (p *periodFlags) parse() (facts.Frequency, error) {
	return facts.ParseFrequency(p.frequency)
}

type calcFlags struct {
	periodFlags
	ttm           bool
	crossValidate bool
	shares        float64
}

func newMetricCmd(env *commandEnv) *cobra.Command {
	flags := &calcFlags{}
	cmd := &cobra.Command{
		Use:   "metric <ticker> <metric>",
		Short: "Calculate a registry metric",
		Long: `Calculate a metric from the registry for one company and period.

Examples:
  factcalc metric AAPL gross_margin --period 2024
  factcalc metric MSFT roe --period 2024-Q4 --frequency quarterly --ttm
  factcalc metric AAPL gross_profit --period 2024 --cross-validate --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateNonNegative(flags.shares, "shares"); err != nil {
				return err
			}
			freq, err := flags.parse()
			if err != nil {
				return err
			}
			s, release, err := env.services(cmd)
			if err != nil {
				return err
			}
			defer release()

			res, err := s.Engine.CalculateMetric(cmd.Context(), calc.MetricRequest{
				Ticker:        args[0],
				Metric:        args[1],
				Period:        flags.period,
				Frequency:     freq,
				TTM:           flags.ttm,
				Segment:       flags.segment,
				CrossValidate: flags.crossValidate,
				Shares:        flags.shares,
			})
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), env.opts.format, res)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.ttm, "ttm", false, "Use trailing-twelve-month values for flow inputs")
	cmd.Flags().BoolVar(&flags.crossValidate, "cross-validate", false, "Compare with the reported value when the metric names one")
	cmd.Flags().Float64Var(&flags.shares, "shares", 0, "Share count for per_share (default: reported shares outstanding)")
	return cmd
}

func newExplainCmd(env *commandEnv) *cobra.Command {
	flags := &calcFlags{}
	cmd := &cobra.Command{
		Use:   "explain <ticker> <formula>",
		Short: "Evaluate an ad hoc formula",
		Long: `Evaluate formula text over resolved facts and show every citation.

Identifiers are internal concept names; a trailing "?" makes an input
optional (0 when missing). Functions: avg, ttm, yoy, qoq, cagr, per_share.

Examples:
  factcalc explain AAPL "revenue - costOfRevenue" --period 2024
  factcalc explain AAPL "(longTermDebt + shortTermDebt?) / stockholdersEquity" --period 2024`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateNonNegative(flags.shares, "shares"); err != nil {
				return err
			}
			freq, err := flags.parse()
			if err != nil {
				return err
			}
			s, release, err := env.services(cmd)
			if err != nil {
				return err
			}
			defer release()

			res, err := s.Engine.ExplainExpression(cmd.Context(), calc.ExpressionRequest{
				Ticker:    args[0],
				Formula:   args[1],
				Period:    flags.period,
				Frequency: freq,
				TTM:       flags.ttm,
				Segment:   flags.segment,
				Shares:    flags.shares,
			})
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), env.opts.format, res)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.ttm, "ttm", false, "Use trailing-twelve-month values for flow inputs")
	cmd.Flags().Float64Var(&flags.shares, "shares", 0, "Share count for per_share")
	return cmd
}

func newFactCmd(env *commandEnv) *cobra.Command {
	flags := &periodFlags{}
	var filingID string
	cmd := &cobra.Command{
		Use:   "fact <ticker> <concept>",
		Short: "Resolve one cited fact",
		Long: `Resolve a single fact by internal concept name or taxonomy id.

Examples:
  factcalc fact AAPL revenue --period 2024
  factcalc fact AAPL us-gaap:Assets --period 2024-Q2 --frequency quarterly`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			freq, err := flags.parse()
			if err != nil {
				return err
			}
			s, release, err := env.services(cmd)
			if err != nil {
				return err
			}
			defer release()

			f, err := s.Resolver.GetFact(cmd.Context(), facts.Query{
				Ticker:           args[0],
				Concept:          args[1],
				Period:           flags.period,
				Frequency:        freq,
				Segment:          flags.segment,
				RequiredFilingID: filingID,
			})
			if err != nil {
				return err
			}
			return printFact(cmd.OutOrStdout(), env.opts.format, f)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&filingID, "filing-id", "", "Require this accession number")
	return cmd
}

func newMetricsCmd(env *commandEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "List registry metrics",
		Long:  `List the metrics in the configured registry with their formulas and output types.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, release, err := env.services(cmd)
			if err != nil {
				return err
			}
			defer release()
			return printMetrics(cmd.OutOrStdout(), env.opts.format, s.Registry)
		},
	}
}

func validateNonNegative(v float64, name string) error {
	if v < 0 {
		return fmt.Errorf("%s must not be negative, got %v", name, v)
	}
	return nil
}
