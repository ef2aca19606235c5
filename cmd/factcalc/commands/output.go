package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"factcalc/pkg/core/calc"
	"factcalc/pkg/core/facts"
	"factcalc/pkg/core/metric"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(w io.Writer, format string, res *calc.Result) error {
	if format == "json" {
		return printJSON(w, res)
	}

	name := res.Metric
	if name == "" {
		name = res.Formula
	}
	fmt.Fprintf(w, "%s %s %s\n", res.Ticker, name, res.Period)
	fmt.Fprintf(w, "  value:   %s (%s)\n", formatValue(res.Value), res.OutputType)
	fmt.Fprintf(w, "  formula: %s\n", res.Formula)
	fmt.Fprintf(w, "  as:      %s\n", res.Metadata.Evaluated)
	if len(res.QualityFlags) > 0 {
		fmt.Fprintf(w, "  flags:   %s\n", strings.Join(res.QualityFlags, ", "))
	}
	if v := res.Metadata.Validation; v != nil {
		switch {
		case v.Error != "":
			fmt.Fprintf(w, "  check:   %s unavailable (%s)\n", v.Concept, v.Error)
		case v.Comparison != nil:
			fmt.Fprintf(w, "  check:   %s reported %s, passed=%t\n", v.Concept, formatValue(v.Comparison.Reported), v.Comparison.Passed)
		}
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INPUT\tCONCEPT\tVALUE\tUNIT\tPERIOD\tFILING")
	for _, c := range res.Citations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", c.Input, c.TaxonomyID, formatValue(c.Value), c.Unit, c.Period, c.FilingID)
	}
	return tw.Flush()
}

func printFact(w io.Writer, format string, f facts.Fact) error {
	if format == "json" {
		return printJSON(w, f)
	}
	fmt.Fprintf(w, "%s = %s %s\n", f.TaxonomyID, formatValue(f.Value), f.Unit)
	fmt.Fprintf(w, "  period: %s (%s)\n", f.Period, f.PeriodType)
	fmt.Fprintf(w, "  filing: %s %s filed %s\n", f.FilingID, f.Form, f.Filed.Format("2006-01-02"))
	fmt.Fprintf(w, "  source: %s\n", f.SourceURL)
	if len(f.QualityFlags) > 0 {
		fmt.Fprintf(w, "  flags:  %s\n", strings.Join(f.QualityFlags, ", "))
	}
	return nil
}

func printMetrics(w io.Writer, format string, reg *metric.Registry) error {
	names := reg.Names()
	sort.Strings(names)
	defs := make([]metric.Definition, 0, len(names))
	for _, n := range names {
		if d, ok := reg.Get(n); ok {
			defs = append(defs, d)
		}
	}
	if format == "json" {
		return printJSON(w, defs)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tFORMULA")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.OutputType, d.Formula)
	}
	return tw.Flush()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
