package calc

import (
	"context"
	"errors"
	"fmt"
	"math"

	"factcalc/pkg/core/calc/expr"
	"factcalc/pkg/core/facts"
	"factcalc/pkg/core/validate"
)

// Flags raised by the function slots.
const (
	FlagHistoryUnavailable = "HISTORY_UNAVAILABLE"
	FlagTTMApproximated    = "TTM_APPROXIMATED"
	FlagAvgApproximated    = "AVG_APPROXIMATED"
	FlagGrowthUndefined    = "GROWTH_UNDEFINED"
	FlagSharesPlaceholder  = "SHARES_PLACEHOLDER"
)

const (
	defaultAvgPeriods = 2
	defaultCAGRYears  = 3
	// sharesConcept is resolved when per_share has no share count.
	sharesConcept     = "sharesOutstanding"
	placeholderShares = 1.0
)

// call evaluates one function call to a number.
func (r *run) call(ctx context.Context, c expr.Call) (float64, error) {
	cur, ok := r.facts[c.Arg]
	if !ok {
		return 0, fmt.Errorf("%w: %s() argument %q did not resolve", expr.ErrUnsafe, c.Kind, c.Arg)
	}

	switch c.Kind {
	case expr.FuncAvg:
		n, err := intArg(c, defaultAvgPeriods)
		if err != nil {
			return 0, err
		}
		return r.average(ctx, c.Arg, cur, n)
	case expr.FuncTTM:
		return r.trailing(ctx, c.Arg)
	case expr.FuncYoY:
		return r.growth(ctx, c, cur, 1, true)
	case expr.FuncQoQ:
		return r.growth(ctx, c, cur, 1, false)
	case expr.FuncCAGR:
		n, err := intArg(c, defaultCAGRYears)
		if err != nil {
			return 0, err
		}
		return r.growth(ctx, c, cur, n, true)
	case expr.FuncPerShare:
		return r.perShare(ctx, c.Arg, cur)
	}
	return 0, fmt.Errorf("%w: function %s has no evaluator", expr.ErrUnsafe, c.Kind)
}

func intArg(c expr.Call, def int) (int, error) {
	if !c.HasN {
		return def, nil
	}
	if c.N < 1 || c.N != math.Trunc(c.N) || c.N > 40 {
		return 0, fmt.Errorf("%w: %s() count must be a whole number from 1 to 40, got %v", expr.ErrSyntax, c.Kind, c.N)
	}
	return int(c.N), nil
}

// prior asks the history collaborator for an earlier value. ok is false
// for soft misses; err is set only for failures that end the request.
func (r *run) prior(ctx context.Context, name string, back int, years bool) (facts.Fact, bool, error) {
	f, err := r.e.history.Prior(ctx, HistoryQuery{
		Ticker:  r.p.ticker,
		Input:   r.inputs[name],
		Period:  r.period,
		Segment: r.p.segment,
		Back:    back,
		Years:   years,
	})
	switch {
	case err == nil:
		return f, true, nil
	case errors.Is(err, facts.ErrNotFound), errors.Is(err, facts.ErrInvalidPeriod):
		return facts.Fact{}, false, nil
	}
	return facts.Fact{}, false, err
}

// average returns the mean over the current and n-1 earlier periods.
func (r *run) average(ctx context.Context, name string, cur facts.Fact, n int) (float64, error) {
	if n == 1 {
		return cur.Value, nil
	}
	if r.e.history != nil {
		sum := cur.Value
		var used []facts.Fact
		for back := 1; back < n; back++ {
			f, ok, err := r.prior(ctx, name, back, false)
			if err != nil {
				return 0, err
			}
			if !ok {
				break
			}
			sum += f.Value
			used = append(used, f)
		}
		if len(used) == n-1 {
			r.cite(fmt.Sprintf("avg(%s)", name), used...)
			return sum / float64(n), nil
		}
	}
	r.flag(FlagAvgApproximated)
	r.logger.Info("calc: avg approximated by the current value", "input", name, "periods", n)
	return cur.Value, nil
}

// trailing returns the trailing-twelve-month value of name. A full year
// is already twelve months; balances are returned unchanged.
func (r *run) trailing(ctx context.Context, name string) (float64, error) {
	cur := r.facts[name]
	if r.period.Quarter == 0 || cur.PeriodType == facts.PeriodInstant {
		return cur.Value, nil
	}
	if r.e.history != nil {
		sum := cur.Value
		var used []facts.Fact
		for back := 1; back <= 3; back++ {
			f, ok, err := r.prior(ctx, name, back, false)
			if err != nil {
				return 0, err
			}
			if !ok {
				break
			}
			sum += f.Value
			used = append(used, f)
		}
		if len(used) == 3 {
			r.cite(fmt.Sprintf("ttm(%s)", name), used...)
			return sum, nil
		}
	}
	r.flag(FlagTTMApproximated)
	r.logger.Info("calc: ttm approximated as four times the current quarter", "input", name)
	return cur.Value * 4, nil
}

// growth returns the rate of change against the value back periods (or
// years) earlier: a simple rate for one step, compound otherwise.
func (r *run) growth(ctx context.Context, c expr.Call, cur facts.Fact, back int, years bool) (float64, error) {
	if r.e.history == nil {
		r.flag(FlagHistoryUnavailable)
		r.logger.Info("calc: no history source, growth defaults to 0", "function", c.Kind.String(), "input", c.Arg)
		return 0, nil
	}
	f, ok, err := r.prior(ctx, c.Arg, back, years)
	if err != nil {
		return 0, err
	}
	if !ok {
		r.flag(FlagHistoryUnavailable)
		r.logger.Info("calc: earlier period not reported, growth defaults to 0", "function", c.Kind.String(), "input", c.Arg)
		return 0, nil
	}
	r.cite(fmt.Sprintf("%s(%s)", c.Kind, c.Arg), f)

	var rate float64
	if c.Kind == expr.FuncCAGR {
		rate, err = validate.CAGRRate(f.Value, cur.Value, float64(back))
	} else {
		rate, err = validate.GrowthRate(cur.Value, f.Value)
	}
	if err != nil {
		r.flag(FlagGrowthUndefined)
		r.logger.Info("calc: growth undefined", "function", c.Kind.String(), "input", c.Arg, "error", err)
		return 0, nil
	}
	return rate, nil
}

// perShare divides by the request's share count, else the reported shares
// outstanding, else a flagged placeholder.
func (r *run) perShare(ctx context.Context, name string, cur facts.Fact) (float64, error) {
	shares := r.p.shares
	if shares <= 0 {
		f, ok, err := r.sharesOutstanding(ctx)
		if err != nil {
			return 0, err
		}
		if ok && f.Value > 0 {
			shares = f.Value
			r.cite(fmt.Sprintf("per_share(%s)", name), f)
		}
	}
	if shares <= 0 {
		shares = placeholderShares
		r.flag(FlagSharesPlaceholder)
		r.logger.Info("calc: no share count, using placeholder", "input", name)
	}
	return cur.Value / shares, nil
}

func (r *run) sharesOutstanding(ctx context.Context) (facts.Fact, bool, error) {
	q := facts.Query{
		Ticker:           r.p.ticker,
		Concept:          sharesConcept,
		Period:           r.p.period,
		Frequency:        r.p.freq,
		RequiredFilingID: r.anchor,
	}
	f, err := r.e.facts.GetFact(ctx, q)
	if errors.Is(err, facts.ErrNotFound) && r.anchor != "" {
		q.RequiredFilingID = ""
		f, err = r.e.facts.GetFact(ctx, q)
	}
	switch {
	case err == nil:
		return f, true, nil
	case errors.Is(err, facts.ErrNotFound), errors.Is(err, facts.ErrUnknownConcept):
		return facts.Fact{}, false, nil
	}
	return facts.Fact{}, false, err
}

func (r *run) cite(input string, fs ...facts.Fact) {
	for _, f := range fs {
		r.citations = append(r.citations, citationFor(input, f))
	}
}
