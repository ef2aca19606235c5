package calc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"factcalc/pkg/core/calc/expr"
	"factcalc/pkg/core/facts"
	"factcalc/pkg/core/metric"
	"factcalc/pkg/core/validate"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultStaleAfter   = 550 * 24 * time.Hour
	DefaultMaxMagnitude = 1e13
	// DefaultTolerance applies when a definition asks for cross-validation
	// without a tolerance of its own.
	DefaultTolerance = 0.01
)

// State is a step of one calculation.
type State string

const (
	StateResolvingInputs State = "ResolvingInputs"
	StateEvaluating      State = "Evaluating"
	StateFormatting      State = "Formatting"
	StateCrossValidating State = "CrossValidating"
	StateCompleted       State = "Completed"
	StateFailed          State = "Failed"
)

// Engine evaluates metrics and formulas. Build one with NewEngine and
// share it; it holds no per-request state.
type Engine struct {
	facts        FactSource
	registry     *metric.Registry
	multipliers  metric.Multipliers
	history      HistorySource
	logger       *slog.Logger
	now          func() time.Time
	timeout      time.Duration
	staleAfter   time.Duration
	maxMagnitude float64
	tracer       trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithMultipliers replaces the output multiplier table.
func WithMultipliers(m metric.Multipliers) Option {
	return func(e *Engine) {
		if m != nil {
			e.multipliers = m
		}
	}
}

// WithHistory installs the collaborator behind avg, ttm, yoy, qoq and cagr.
// Without one those functions fall back to flagged approximations.
func WithHistory(h HistorySource) Option {
	return func(e *Engine) {
		e.history = h
	}
}

// WithLogger sets a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTimeout bounds each request. Zero disables the engine's own deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithStaleAfter sets the age after which an input's filing is flagged
// STALE_DATA.
func WithStaleAfter(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.staleAfter = d
		}
	}
}

// WithMaxMagnitude sets the ceiling above which a result is flagged
// IMPLAUSIBLE_MAGNITUDE.
func WithMaxMagnitude(v float64) Option {
	return func(e *Engine) {
		if v > 0 {
			e.maxMagnitude = v
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine builds an engine over a fact source and a metric registry.
func NewEngine(src FactSource, registry *metric.Registry, opts ...Option) *Engine {
	e := &Engine{
		facts:        src,
		registry:     registry,
		multipliers:  metric.DefaultMultipliers(),
		logger:       slog.Default(),
		now:          time.Now,
		timeout:      DefaultTimeout,
		staleAfter:   DefaultStaleAfter,
		maxMagnitude: DefaultMaxMagnitude,
		tracer:       otel.Tracer("factcalc/calc"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the metric registry.
func (e *Engine) Registry() *metric.Registry {
	return e.registry
}

// Calculate dispatches a wire request to CalculateMetric or
// ExplainExpression.
func (e *Engine) Calculate(ctx context.Context, req Request) (*Result, error) {
	freq, err := facts.ParseFrequency(req.Frequency)
	if err != nil {
		return nil, classify(err)
	}
	name := strings.TrimSpace(req.MetricName)
	formula := strings.TrimSpace(req.FormulaText)
	switch {
	case name != "" && formula != "":
		return nil, newError(KindInvalidRequest, "set metric_name or formula_text, not both")
	case name != "":
		return e.CalculateMetric(ctx, MetricRequest{
			Ticker:        req.Ticker,
			Metric:        name,
			Period:        req.Period,
			Frequency:     freq,
			TTM:           req.TrailingTwelveMonths,
			Segment:       req.Segment,
			CrossValidate: req.CrossValidate,
			Shares:        req.Shares,
		})
	case formula != "":
		return e.ExplainExpression(ctx, ExpressionRequest{
			Ticker:    req.Ticker,
			Formula:   formula,
			Period:    req.Period,
			Frequency: freq,
			TTM:       req.TrailingTwelveMonths,
			Segment:   req.Segment,
			Shares:    req.Shares,
		})
	}
	return nil, newError(KindInvalidRequest, "metric_name or formula_text is required")
}

// CalculateMetric evaluates a registry metric for one company and period.
func (e *Engine) CalculateMetric(ctx context.Context, req MetricRequest) (*Result, error) {
	def, ok := e.registry.Get(req.Metric)
	if !ok {
		return nil, newError(KindUnknownMetric, "no metric named %q", req.Metric)
	}
	return e.execute(ctx, plan{
		ticker:        req.Ticker,
		metricName:    def.Name,
		formula:       def.Formula,
		outputType:    def.OutputType,
		def:           &def,
		period:        req.Period,
		freq:          req.Frequency,
		ttm:           req.TTM,
		segment:       strings.TrimSpace(req.Segment),
		crossValidate: req.CrossValidate,
		shares:        req.Shares,
	})
}

// ExplainExpression evaluates formula text. Its identifiers are resolved as
// internal concept names and the result is an unscaled Value.
func (e *Engine) ExplainExpression(ctx context.Context, req ExpressionRequest) (*Result, error) {
	return e.execute(ctx, plan{
		ticker:     req.Ticker,
		formula:    req.Formula,
		outputType: metric.OutputValue,
		period:     req.Period,
		freq:       req.Frequency,
		ttm:        req.TTM,
		segment:    strings.TrimSpace(req.Segment),
		shares:     req.Shares,
	})
}

// plan is one request reduced to what the pipeline needs.
type plan struct {
	ticker        string
	metricName    string
	formula       string
	outputType    metric.OutputType
	def           *metric.Definition
	period        string
	freq          facts.Frequency
	ttm           bool
	segment       string
	crossValidate bool
	shares        float64
}

func (e *Engine) execute(ctx context.Context, p plan) (*Result, error) {
	p.ticker = strings.ToUpper(strings.TrimSpace(p.ticker))
	if p.freq == "" {
		p.freq = facts.Annual
	}

	ctx, span := e.tracer.Start(ctx, "calc.execute", trace.WithAttributes(
		attribute.String("ticker", p.ticker),
		attribute.String("metric", p.metricName),
		attribute.String("period", p.period),
	))
	defer span.End()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	id := uuid.NewString()
	r := &run{
		e:        e,
		p:        p,
		id:       id,
		started:  time.Now(),
		logger:   e.logger.With("request_id", id, "ticker", p.ticker, "period", p.period),
		inputs:   make(map[string]facts.Input),
		facts:    make(map[string]facts.Fact),
		values:   make(map[string]float64),
		adjusted: make(map[string]float64),
		flags:    make(map[string]bool),
	}
	res, err := r.do(ctx)
	if err != nil {
		ce := classify(err)
		r.enter(StateFailed)
		r.logger.Warn("calc: failed", "kind", ce.Kind, "reason", ce.Reason, "missing", ce.Missing)
		span.RecordError(ce)
		span.SetStatus(codes.Error, string(ce.Kind))
		return nil, ce
	}
	r.enter(StateCompleted)
	r.logger.Info("calc: completed",
		"metric", p.metricName, "value", res.Value, "flags", len(res.QualityFlags),
		"elapsed", time.Since(r.started))
	return res, nil
}

// run carries the state of one calculation.
type run struct {
	e       *Engine
	p       plan
	id      string
	started time.Time
	logger  *slog.Logger
	state   State

	period  facts.Period
	formula *expr.Formula
	names   []string
	inputs  map[string]facts.Input
	anchor  string

	facts     map[string]facts.Fact
	values    map[string]float64
	adjusted  map[string]float64
	flags     map[string]bool
	citations []Citation

	validation *Validation
}

func (r *run) enter(s State) {
	r.logger.Debug("calc: state", "from", r.state, "to", s)
	r.state = s
}

func (r *run) flag(f string) {
	r.flags[f] = true
}

func (r *run) do(ctx context.Context) (*Result, error) {
	r.enter(StateResolvingInputs)
	if r.p.ticker == "" {
		return nil, newError(KindInvalidRequest, "ticker is required")
	}
	period, err := facts.ParsePeriod(r.p.period, r.p.freq)
	if err != nil {
		return nil, err
	}
	r.period = period

	r.formula, err = expr.Analyze(r.p.formula)
	if err != nil {
		return nil, err
	}
	if err := r.resolveInputs(ctx); err != nil {
		return nil, err
	}
	if r.p.ttm && r.period.Quarter != 0 {
		if err := r.applyTTM(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.enter(StateEvaluating)
	text, err := r.formula.ExpandCalls(func(c expr.Call) (float64, error) {
		return r.call(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	text, err = expr.Substitute(text, func(name string, _ bool) (float64, error) {
		v, ok := r.values[name]
		if !ok {
			return 0, fmt.Errorf("%w: unresolved identifier %q", expr.ErrUnsafe, name)
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	raw, err := expr.Evaluate(text)
	if err != nil {
		return nil, err
	}

	r.enter(StateFormatting)
	value := raw * r.e.multipliers.ForPeriod(r.p.outputType, r.period.Quarter != 0 && !r.p.ttm)

	if r.p.crossValidate && r.p.def != nil && r.p.def.ValidateAgainst != "" {
		r.enter(StateCrossValidating)
		if err := r.crossValidate(ctx, raw); err != nil {
			return nil, err
		}
	}
	r.checkPlausibility(raw, value)

	// A deadline that expired while evaluating still fails the request.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.result(text, raw, value), nil
}

// resolveInputs gathers every identifier and call argument through one
// same-filing lookup. Optional misses become 0; required misses are
// collected and reported together.
func (r *run) resolveInputs(ctx context.Context) error {
	r.names = r.formula.Names()
	if len(r.names) == 0 {
		return nil
	}
	query := facts.SameFilingQuery{
		Ticker:    r.p.ticker,
		Period:    r.p.period,
		Frequency: r.p.freq,
		Segment:   r.p.segment,
	}
	for _, name := range r.names {
		in := facts.Input{Name: name}
		if r.p.def != nil {
			if slot, ok := r.p.def.Slot(name); ok {
				in.Concepts = slot.CandidateConcepts()
				in.PreferredID = slot.Preferred
			}
		}
		r.inputs[name] = in
		query.Inputs = append(query.Inputs, in)
	}

	res, err := r.e.facts.GetFactsFromSameFiling(ctx, query)
	if err != nil {
		return err
	}
	r.anchor = res.AnchorFilingID
	for _, f := range res.Flags {
		r.flag(f)
	}
	for _, name := range r.names {
		if f, ok := res.Facts[name]; ok {
			r.facts[name] = f
			r.values[name] = f.Value
			r.citations = append(r.citations, citationFor(name, f))
			for _, q := range f.QualityFlags {
				r.flag(q)
			}
		}
	}

	for _, name := range res.Unmapped {
		r.flag(FlagUnmapped + ":" + name)
	}
	var missing []string
	for _, name := range res.Missing {
		if r.optional(name) {
			r.values[name] = 0
			r.flag(FlagMissingOptional + ":" + name)
			r.logger.Debug("calc: optional input defaulted to 0", "input", name)
			continue
		}
		missing = append(missing, name)
	}
	if len(missing) > 0 {
		reason := fmt.Sprintf("required inputs unresolved for %s %s", r.p.ticker, r.period.Label())
		if r.anchor != "" {
			reason += " in filing " + r.anchor
		}
		return &Error{
			Kind:    KindMissingInputs,
			Reason:  reason,
			Missing: missing,
			Flags:   sortedFlags(r.flags),
		}
	}
	return nil
}

func (r *run) optional(name string) bool {
	if r.formula.IsOptional(name) {
		return true
	}
	if r.p.def != nil {
		if slot, ok := r.p.def.Slot(name); ok && slot.Optional {
			for _, c := range r.formula.Calls {
				if c.Arg == name {
					return false
				}
			}
			return true
		}
	}
	return false
}

// applyTTM replaces quarterly duration inputs with trailing-twelve-month
// values. Balances are left alone.
func (r *run) applyTTM(ctx context.Context) error {
	for _, name := range r.names {
		f, ok := r.facts[name]
		if !ok || f.PeriodType != facts.PeriodDuration {
			continue
		}
		v, err := r.trailing(ctx, name)
		if err != nil {
			return err
		}
		r.values[name] = v
		r.adjusted[name] = v
	}
	return nil
}

func (r *run) crossValidate(ctx context.Context, raw float64) error {
	def := r.p.def
	q := facts.Query{
		Ticker:           r.p.ticker,
		Concept:          def.ValidateAgainst,
		Period:           r.p.period,
		Frequency:        r.p.freq,
		RequiredFilingID: r.anchor,
		Segment:          r.p.segment,
	}
	f, err := r.e.facts.GetFact(ctx, q)
	if errors.Is(err, facts.ErrNotFound) && r.anchor != "" {
		q.RequiredFilingID = ""
		f, err = r.e.facts.GetFact(ctx, q)
	}
	v := &Validation{Concept: def.ValidateAgainst}
	r.validation = v
	switch {
	case err == nil:
	case errors.Is(err, facts.ErrNotFound), errors.Is(err, facts.ErrUnknownConcept):
		v.Error = err.Error()
		r.logger.Info("calc: reported value unavailable for cross-validation",
			"concept", def.ValidateAgainst, "error", err)
		return nil
	default:
		return err
	}

	tol := def.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}
	cmp := validate.CheckAgainstReported(raw, f.Value, tol)
	v.FilingID = f.FilingID
	v.Comparison = &cmp
	if !cmp.Passed {
		r.flag(FlagValidationFailed)
		r.logger.Warn("calc: cross-validation failed",
			"concept", def.ValidateAgainst, "computed", raw, "reported", f.Value, "relative_diff", cmp.RelativeDiff)
	}
	return nil
}

func (r *run) result(evaluated string, raw, value float64) *Result {
	inputs := make(map[string]facts.Fact, len(r.facts))
	for name, f := range r.facts {
		inputs[name] = f.Clone()
	}
	md := Metadata{
		CalculatedAt:   r.e.now().UTC(),
		EngineVersion:  EngineVersion,
		RequestID:      r.id,
		TTMApplied:     r.p.ttm && r.period.Quarter != 0,
		SegmentApplied: r.p.segment != "",
		Segment:        r.p.segment,
		AnchorFilingID: r.anchor,
		Evaluated:      evaluated,
		Validation:     r.validation,
	}
	if len(r.adjusted) > 0 {
		md.Adjusted = r.adjusted
	}
	return &Result{
		Ticker:       r.p.ticker,
		Metric:       r.p.metricName,
		Formula:      r.p.formula,
		Period:       r.period.Label(),
		Frequency:    r.p.freq,
		Value:        value,
		RawValue:     raw,
		OutputType:   r.p.outputType,
		Inputs:       inputs,
		Citations:    r.citations,
		QualityFlags: sortedFlags(r.flags),
		Metadata:     md,
	}
}

func sortedFlags(flags map[string]bool) []string {
	out := make([]string, 0, len(flags))
	for f := range flags {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
