package calc

import (
	"context"
	"fmt"

	"factcalc/pkg/core/facts"
)

// FactSource is the resolver surface the engine needs. *facts.Resolver
// implements it.
type FactSource interface {
	GetFact(ctx context.Context, q facts.Query) (facts.Fact, error)
	GetFactsFromSameFiling(ctx context.Context, q facts.SameFilingQuery) (*facts.SameFilingResult, error)
}

// HistoryQuery asks for an input's value some periods before the request.
type HistoryQuery struct {
	Ticker  string
	Input   facts.Input
	Period  facts.Period
	Segment string
	// Back counts periods of the request's class for qoq, ttm and avg, or
	// years for yoy and cagr when Years is set.
	Back  int
	Years bool
}

// Target returns the period the query points at.
func (q HistoryQuery) Target() facts.Period {
	if q.Years {
		return q.Period.YearEarlier(q.Back)
	}
	p := q.Period
	for i := 0; i < q.Back; i++ {
		p = p.Previous()
	}
	return p
}

// HistorySource supplies earlier values for the multi-period functions.
// A missing value is reported as facts.ErrNotFound.
type HistorySource interface {
	Prior(ctx context.Context, q HistoryQuery) (facts.Fact, error)
}

// ResolverHistory reads earlier periods through the facts resolver, so
// they share its dataset cache.
type ResolverHistory struct {
	facts FactSource
}

// NewResolverHistory returns a HistorySource backed by src.
func NewResolverHistory(src FactSource) *ResolverHistory {
	return &ResolverHistory{facts: src}
}

// Prior implements HistorySource.
func (h *ResolverHistory) Prior(ctx context.Context, q HistoryQuery) (facts.Fact, error) {
	if q.Back <= 0 {
		return facts.Fact{}, fmt.Errorf("history: back must be positive, got %d", q.Back)
	}
	target := q.Target()
	refs := q.Input.Concepts
	if len(refs) == 0 {
		refs = []string{q.Input.Name}
	}
	f, err := h.facts.GetFact(ctx, facts.Query{
		Ticker:      q.Ticker,
		Concept:     refs[0],
		Fallbacks:   refs[1:],
		Period:      target.Label(),
		Frequency:   target.Frequency(),
		PreferredID: q.Input.PreferredID,
		Segment:     q.Segment,
	})
	if err != nil {
		return facts.Fact{}, fmt.Errorf("history %s %s: %w", q.Input.Name, target.Label(), err)
	}
	return f, nil
}
