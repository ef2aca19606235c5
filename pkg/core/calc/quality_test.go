package calc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"factcalc/pkg/core/calc/expr"
	"factcalc/pkg/core/facts"
	"factcalc/pkg/core/metric"
)

func testRun(t *testing.T, def *metric.Definition, fs map[string]facts.Fact) *run {
	t.Helper()
	fx := newFixture(t)
	r := &run{
		e:      fx.engine,
		p:      plan{def: def},
		logger: slog.New(slog.DiscardHandler),
		inputs: make(map[string]facts.Input),
		facts:  fs,
		flags:  make(map[string]bool),
	}
	for name := range fs {
		r.names = append(r.names, name)
		r.inputs[name] = facts.Input{Name: name}
	}
	return r
}

func fact(v float64, period string) facts.Fact {
	return facts.Fact{Value: v, Period: period, Filed: testNow.AddDate(0, -1, 0)}
}

func TestCheckPlausibility(t *testing.T) {
	tests := []struct {
		name  string
		def   *metric.Definition
		facts map[string]facts.Fact
		raw   float64
		want  []string
	}{
		{
			name:  "clean",
			facts: map[string]facts.Fact{"revenue": fact(1000, "2024-Q4"), "costOfRevenue": fact(600, "2024-Q4")},
			raw:   400,
			want:  []string{},
		},
		{
			name:  "gross profit input above revenue",
			facts: map[string]facts.Fact{"revenue": fact(1000, "2024-Q4"), "grossProfit": fact(1200, "2024-Q4")},
			raw:   1,
			want:  []string{FlagGrossProfitExceedsRevenue},
		},
		{
			name:  "computed gross profit above revenue",
			def:   &metric.Definition{Name: "gross_profit", ValidateAgainst: "grossProfit"},
			facts: map[string]facts.Fact{"revenue": fact(1000, "2024-Q4"), "costOfRevenue": fact(-200, "2024-Q4")},
			raw:   1200,
			want:  []string{FlagGrossProfitExceedsRevenue, FlagNegativeCostOfRevenue},
		},
		{
			name:  "mixed periods",
			facts: map[string]facts.Fact{"revenue": fact(1000, "2024-Q4"), "costOfRevenue": fact(600, "2024-Q3")},
			raw:   400,
			want:  []string{FlagMixedPeriods},
		},
		{
			name:  "zero result",
			facts: map[string]facts.Fact{"revenue": fact(600, "2024-Q4"), "costOfRevenue": fact(600, "2024-Q4")},
			raw:   0,
			want:  []string{FlagZeroResult},
		},
		{
			name:  "implausible magnitude",
			facts: map[string]facts.Fact{"revenue": fact(1e14, "2024-Q4")},
			raw:   1e14,
			want:  []string{FlagImplausibleMagnitude},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRun(t, tt.def, tt.facts)
			r.checkPlausibility(tt.raw, tt.raw)
			assert.ElementsMatch(t, tt.want, sortedFlags(r.flags))
		})
	}
}

func TestCheckPlausibility_StaleData(t *testing.T) {
	old := fact(1, "2024-Q4")
	old.Filed = testNow.Add(-DefaultStaleAfter - time.Hour)
	r := testRun(t, nil, map[string]facts.Fact{"revenue": old})
	r.checkPlausibility(1, 1)
	assert.Equal(t, []string{FlagStaleData}, sortedFlags(r.flags))
}

func TestInputFor_ThroughSlotConcepts(t *testing.T) {
	r := testRun(t, nil, map[string]facts.Fact{"sales": fact(10, "2024-Q4")})
	r.inputs["sales"] = facts.Input{Name: "sales", Concepts: []string{"revenue"}}

	f, ok := r.inputFor("revenue")
	assert.True(t, ok)
	assert.Equal(t, 10.0, f.Value)

	_, ok = r.inputFor("grossProfit")
	assert.False(t, ok)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{fmt.Errorf("fetch: %w", context.DeadlineExceeded), KindTimeout},
		{fmt.Errorf("x: %w", facts.ErrUnknownEntity), KindUnknownEntity},
		{fmt.Errorf("x: %w", facts.ErrUnknownConcept), KindUnknownConcept},
		{fmt.Errorf("x: %w", facts.ErrUpstreamUnavailable), KindUpstreamUnavailable},
		{fmt.Errorf("x: %w", facts.ErrInvalidPeriod), KindInvalidRequest},
		{fmt.Errorf("x: %w", expr.ErrUnsafe), KindUnsafeExpression},
		{fmt.Errorf("x: %w", expr.ErrSyntax), KindUnsafeExpression},
		{fmt.Errorf("x: %w", expr.ErrDivisionByZero), KindEvaluation},
		{fmt.Errorf("x: %w", expr.ErrNonFinite), KindEvaluation},
		{errors.New("boom"), KindInternal},
		{fmt.Errorf("wrapped: %w", newError(KindUnknownMetric, "m")), KindUnknownMetric},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			ce := classify(tt.err)
			assert.Equal(t, tt.want, ce.Kind)
			assert.Equal(t, tt.want, KindOf(ce))
		})
	}
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}

func TestError_Retryable(t *testing.T) {
	assert.True(t, (&Error{Kind: KindUpstreamUnavailable}).Retryable())
	assert.True(t, (&Error{Kind: KindTimeout}).Retryable())
	assert.False(t, (&Error{Kind: KindMissingInputs}).Retryable())
}
