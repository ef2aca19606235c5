package facts

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Input is one named value of a multi-input lookup.
type Input struct {
	Name string
	// Concepts are internal names or taxonomy ids; empty means [Name].
	Concepts    []string
	PreferredID string
}

func (in Input) refs() []string {
	if len(in.Concepts) == 0 {
		return []string{in.Name}
	}
	return in.Concepts
}

// SameFilingQuery resolves several inputs against one filing.
type SameFilingQuery struct {
	Ticker    string
	Period    string
	Frequency Frequency
	Segment   string
	Inputs    []Input
}

// SameFilingResult holds what resolved and what did not. Missing lists
// inputs with no value under the anchor filing (unmapped inputs included),
// in request order. Unmapped is the subset with no concept mapping.
type SameFilingResult struct {
	Facts          map[string]Fact
	Missing        []string
	Unmapped       []string
	Flags          []string
	AnchorFilingID string
}

// GetFactsFromSameFiling resolves the first resolvable input without a
// filing constraint; its accession becomes the anchor and every remaining
// input is resolved concurrently inside that filing only. An input that
// exists only in other filings is reported missing and flagged
// ACCESSION_MISMATCH:<name>, never paired across filings. If the anchor
// carries no accession the inputs are resolved independently and the
// result is flagged ACCESSION_UNKNOWN.
//
// Errors are returned only for conditions that fail the whole lookup:
// unknown entity, upstream failure, invalid period, cancellation.
func (r *Resolver) GetFactsFromSameFiling(ctx context.Context, q SameFilingQuery) (*SameFilingResult, error) {
	ctx, span := r.tracer.Start(ctx, "facts.GetFactsFromSameFiling", trace.WithAttributes(
		attribute.String("ticker", q.Ticker),
		attribute.String("period", q.Period),
		attribute.Int("inputs", len(q.Inputs)),
	))
	defer span.End()

	period, err := ParsePeriod(q.Period, q.Frequency)
	if err != nil {
		return nil, recordErr(span, err)
	}
	ds, err := r.FetchDataset(ctx, q.Ticker)
	if err != nil {
		return nil, recordErr(span, err)
	}

	res := &SameFilingResult{Facts: make(map[string]Fact, len(q.Inputs))}
	outcomes := make([]inputOutcome, len(q.Inputs))

	anchor := -1
	for i, in := range q.Inputs {
		if err := ctx.Err(); err != nil {
			return nil, recordErr(span, err)
		}
		outcomes[i] = r.resolveInput(ctx, ds, in, period, q.Segment, "")
		if outcomes[i].err != nil {
			return nil, recordErr(span, outcomes[i].err)
		}
		if outcomes[i].found {
			anchor = i
			break
		}
	}

	flags := make(map[string]bool)
	if anchor >= 0 {
		res.AnchorFilingID = outcomes[anchor].fact.FilingID
		if res.AnchorFilingID == "" {
			flags[FlagAccessionUnknown] = true
			r.logger.Warn("facts: anchor has no filing id, resolving independently",
				"ticker", q.Ticker, "input", q.Inputs[anchor].Name)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := anchor + 1; i < len(q.Inputs); i++ {
			g.Go(func() error {
				out := r.resolveInput(gctx, ds, q.Inputs[i], period, q.Segment, res.AnchorFilingID)
				if out.notFound && res.AnchorFilingID != "" {
					out.elsewhere = r.existsElsewhere(gctx, ds, q.Inputs[i], period, q.Segment)
				}
				outcomes[i] = out
				return out.err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, recordErr(span, err)
		}
	}

	for i, in := range q.Inputs {
		out := outcomes[i]
		switch {
		case out.found:
			res.Facts[in.Name] = out.fact
		case out.unmapped:
			res.Unmapped = append(res.Unmapped, in.Name)
			res.Missing = append(res.Missing, in.Name)
		default:
			res.Missing = append(res.Missing, in.Name)
			if out.elsewhere {
				flags[fmt.Sprintf("%s:%s", FlagAccessionMismatch, in.Name)] = true
			}
		}
	}
	res.Flags = sortedFlags(flags)

	span.SetAttributes(
		attribute.String("anchor_filing_id", res.AnchorFilingID),
		attribute.Int("missing", len(res.Missing)),
	)
	return res, nil
}

type inputOutcome struct {
	fact      Fact
	found     bool
	notFound  bool
	unmapped  bool
	elsewhere bool
	err       error
}

// resolveInput classifies soft misses (not found, unmapped) into the
// outcome and leaves only hard failures in err.
func (r *Resolver) resolveInput(ctx context.Context, ds *RawFilingDataset, in Input, period Period, segment, filingID string) inputOutcome {
	if err := ctx.Err(); err != nil {
		return inputOutcome{err: err}
	}
	ids, err := r.expand(in.refs(), in.PreferredID)
	if errors.Is(err, ErrUnknownConcept) {
		return inputOutcome{unmapped: true}
	}
	if err != nil {
		return inputOutcome{err: err}
	}
	f, err := r.resolveIn(ctx, ds, in.Name, ids, period, segment, filingID)
	switch {
	case err == nil:
		return inputOutcome{fact: f, found: true}
	case errors.Is(err, ErrNotFound):
		return inputOutcome{notFound: true}
	default:
		return inputOutcome{err: err}
	}
}

func (r *Resolver) existsElsewhere(ctx context.Context, ds *RawFilingDataset, in Input, period Period, segment string) bool {
	out := r.resolveInput(ctx, ds, in, period, segment, "")
	return out.found
}
