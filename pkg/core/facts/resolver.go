package facts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"factcalc/pkg/core/concept"
	"factcalc/pkg/core/edgar"
	"factcalc/pkg/core/store"
)

// Fetcher is the upstream collaborator. *edgar.Client implements it.
type Fetcher interface {
	LookupCIK(ctx context.Context, ticker string) (string, error)
	CompanyFacts(ctx context.Context, cik string) (*edgar.CompanyFacts, error)
	FilingIndexURL(cik, accession string) string
}

// Query asks for one concept of one company and period.
type Query struct {
	Ticker string
	// Concept is an internal name ("revenue") or a taxonomy id
	// ("us-gaap:Revenues").
	Concept string
	// Fallbacks are further references tried after Concept's candidates.
	Fallbacks []string
	Period    string
	Frequency Frequency
	// PreferredID is tried before the concept map order.
	PreferredID string
	// RequiredFilingID restricts selection to one accession.
	RequiredFilingID string
	// Segment restricts selection to entries tagged with this member.
	Segment string
}

// Resolver resolves facts through the dataset cache. Construct one with
// NewResolver and share it; it is safe for concurrent use.
type Resolver struct {
	concepts      *concept.Map
	fetcher       Fetcher
	datasets      *store.Cache[*RawFilingDataset]
	facts         *store.Cache[Fact]
	durable       *store.DatasetStore
	fx            CurrencyNormalizer
	canonicalUnit string
	logger        *slog.Logger
	now           func() time.Time

	tracer  trace.Tracer
	fetches metric.Int64Counter
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDatasetCache shares a dataset cache, e.g. to control its TTL.
func WithDatasetCache(c *store.Cache[*RawFilingDataset]) Option {
	return func(r *Resolver) {
		if c != nil {
			r.datasets = c
		}
	}
}

// WithDatasetStore adds a durable tier consulted after a memory miss.
func WithDatasetStore(s *store.DatasetStore) Option {
	return func(r *Resolver) {
		r.durable = s
	}
}

// WithCurrencyNormalizer installs the FX collaborator. Without one,
// non-canonical currency facts keep their unit and are flagged.
func WithCurrencyNormalizer(n CurrencyNormalizer) Option {
	return func(r *Resolver) {
		r.fx = n
	}
}

// WithCanonicalUnit overrides DefaultCanonicalUnit.
func WithCanonicalUnit(unit string) Option {
	return func(r *Resolver) {
		if unit != "" {
			r.canonicalUnit = strings.ToUpper(unit)
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver builds a resolver over concepts and fetcher.
func NewResolver(concepts *concept.Map, fetcher Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		concepts:      concepts,
		fetcher:       fetcher,
		canonicalUnit: DefaultCanonicalUnit,
		logger:        slog.Default(),
		now:           time.Now,
		tracer:        otel.Tracer("factcalc/facts"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.datasets == nil {
		r.datasets = store.NewCache[*RawFilingDataset]()
	}
	r.facts = store.NewCache[Fact](store.WithTTL(r.datasets.TTL()))

	counter, err := otel.Meter("factcalc/facts").Int64Counter("facts.upstream_fetches",
		metric.WithDescription("Company-facts documents fetched from upstream"))
	if err == nil {
		r.fetches = counter
	}
	return r
}

// Close releases the caches' background goroutines.
func (r *Resolver) Close() {
	r.datasets.Close()
	r.facts.Close()
}

// CacheStats reports dataset cache counters.
func (r *Resolver) CacheStats() store.Stats {
	return r.datasets.Stats()
}

// GetFact resolves one concept. It returns ErrNotFound (wrapped) when no
// entry matches the period, ErrUnknownConcept when the concept is unmapped.
func (r *Resolver) GetFact(ctx context.Context, q Query) (Fact, error) {
	ctx, span := r.tracer.Start(ctx, "facts.GetFact", trace.WithAttributes(
		attribute.String("ticker", q.Ticker),
		attribute.String("concept", q.Concept),
		attribute.String("period", q.Period),
	))
	defer span.End()

	period, err := ParsePeriod(q.Period, q.Frequency)
	if err != nil {
		return Fact{}, recordErr(span, err)
	}
	ids, err := r.expand(append([]string{q.Concept}, q.Fallbacks...), q.PreferredID)
	if err != nil {
		return Fact{}, recordErr(span, err)
	}

	key := store.Key{
		Ticker:     q.Ticker,
		TaxonomyID: strings.Join(ids, ","),
		Period:     period.Label(),
		Frequency:  string(q.Frequency),
		FilingID:   q.RequiredFilingID,
		Segment:    q.Segment,
	}.String()
	if f, ok := r.facts.Get(key); ok {
		return f.Clone(), nil
	}

	ds, err := r.FetchDataset(ctx, q.Ticker)
	if err != nil {
		return Fact{}, recordErr(span, err)
	}
	f, err := r.resolveIn(ctx, ds, q.Concept, ids, period, q.Segment, q.RequiredFilingID)
	if err != nil {
		return Fact{}, recordErr(span, err)
	}
	r.facts.Set(key, f)
	span.SetAttributes(attribute.String("filing_id", f.FilingID))
	return f.Clone(), nil
}

// FetchDataset returns the company's dataset from the memory cache, the
// durable tier, or upstream, in that order. Concurrent misses for one
// ticker share a single upstream fetch.
func (r *Resolver) FetchDataset(ctx context.Context, ticker string) (*RawFilingDataset, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("%w: empty ticker", ErrUnknownEntity)
	}
	key := store.DatasetKey(ticker)
	return r.datasets.GetOrLoad(ctx, key, func(ctx context.Context) (*RawFilingDataset, error) {
		return r.loadDataset(ctx, key, ticker)
	})
}

func (r *Resolver) loadDataset(ctx context.Context, key, ticker string) (*RawFilingDataset, error) {
	ctx, span := r.tracer.Start(ctx, "facts.loadDataset", trace.WithAttributes(attribute.String("ticker", ticker)))
	defer span.End()

	if r.durable.Enabled() {
		var ds RawFilingDataset
		hit, err := r.durable.Load(ctx, key, r.datasets.TTL(), &ds)
		if err != nil {
			r.logger.Warn("facts: durable tier read failed", "ticker", ticker, "error", err)
		} else if hit {
			r.logger.Debug("facts: dataset from durable tier", "ticker", ticker)
			labelDataset(&ds)
			return &ds, nil
		}
	}

	start := time.Now()
	cik, err := r.fetcher.LookupCIK(ctx, ticker)
	if err != nil {
		if errors.Is(err, edgar.ErrTickerNotFound) {
			return nil, recordErr(span, fmt.Errorf("%w: %s", ErrUnknownEntity, ticker))
		}
		return nil, recordErr(span, fmt.Errorf("%w: lookup %s: %w", ErrUpstreamUnavailable, ticker, err))
	}
	cf, err := r.fetcher.CompanyFacts(ctx, cik)
	if err != nil {
		if errors.Is(err, edgar.ErrNotFound) {
			return nil, recordErr(span, fmt.Errorf("%w: no company facts for %s (CIK %s)", ErrUnknownEntity, ticker, cik))
		}
		return nil, recordErr(span, fmt.Errorf("%w: company facts %s: %w", ErrUpstreamUnavailable, ticker, err))
	}
	if r.fetches != nil {
		r.fetches.Add(ctx, 1)
	}

	ds := Normalize(cf, ticker, r.now().UTC())
	if ds.CIK == "" {
		ds.CIK = cik
	}
	r.logger.Info("facts: dataset fetched",
		"ticker", ticker, "cik", ds.CIK, "concepts", len(ds.Facts), "elapsed", time.Since(start))

	if r.durable.Enabled() {
		if err := r.durable.Save(ctx, key, ds); err != nil {
			r.logger.Warn("facts: durable tier write failed", "ticker", ticker, "error", err)
		}
	}
	return ds, nil
}

// expand turns concept references into ordered taxonomy ids: a preferred
// id first, then each reference's candidates in map order, without
// duplicates. Taxonomy ids pass through unchanged.
func (r *Resolver) expand(refs []string, preferred string) ([]string, error) {
	mapped := false
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if concept.IsQualified(ref) || r.concepts.Has(ref) {
			mapped = true
		}
	}
	if !mapped {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConcept, strings.Join(refs, ","))
	}

	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(strings.TrimSpace(preferred))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if concept.IsQualified(ref) {
			add(ref)
			continue
		}
		for _, id := range r.concepts.Candidates(ref) {
			add(id)
		}
	}
	return ids, nil
}

// resolveIn walks ids in order and returns the first selected entry.
func (r *Resolver) resolveIn(ctx context.Context, ds *RawFilingDataset, name string, ids []string, period Period, segment, filingID string) (Fact, error) {
	c := criteria{
		period:        period,
		segment:       segment,
		filingID:      filingID,
		canonicalUnit: r.canonicalUnit,
	}
	for _, id := range ids {
		sel, ok := selectEntry(ds.Entries(id), c)
		if !ok {
			continue
		}
		return r.buildFact(ctx, ds, name, id, sel, segment), nil
	}
	where := ""
	if filingID != "" {
		where = " in filing " + filingID
	}
	return Fact{}, fmt.Errorf("%w: %s for %s %s%s", ErrNotFound, name, ds.Ticker, period.Label(), where)
}

func (r *Resolver) buildFact(ctx context.Context, ds *RawFilingDataset, name, id string, sel selection, segment string) Fact {
	e := sel.entry
	taxonomy, _, _ := concept.SplitID(id)
	flags := make(map[string]bool)

	f := Fact{
		Concept:      name,
		Value:        e.Value,
		Unit:         e.Unit,
		Period:       periodLabel(e, sel.class),
		PeriodType:   e.PeriodType(),
		FilingID:     e.FilingID,
		SourceURL:    r.fetcher.FilingIndexURL(ds.CIK, e.FilingID),
		Taxonomy:     taxonomy,
		TaxonomyID:   id,
		FiscalYear:   e.FiscalYear,
		FiscalPeriod: e.FiscalPeriod,
		Form:         e.Form,
		Filed:        e.Filed,
		End:          e.End,
	}
	if e.Start != nil {
		s := *e.Start
		f.Start = &s
	}
	if len(e.Dimensions) > 0 {
		f.Dimensions = append([]Dimension(nil), e.Dimensions...)
	}
	if e.Restated {
		flags[FlagRestated] = true
	}
	if e.Estimated {
		flags[FlagEstimated] = true
	}
	if sel.nearest {
		flags[FlagNearestPeriod] = true
	}
	if strings.TrimSpace(segment) != "" {
		flags[FlagSegmentFiltered] = true
	}

	if isCurrency(e.Unit) && e.Unit != r.canonicalUnit {
		if r.fx == nil {
			flags[FlagNonCanonicalUnit] = true
		} else {
			v, prov, err := r.fx.Normalize(ctx, e.Value, e.Unit, r.canonicalUnit, f.Period)
			if err != nil {
				r.logger.Warn("facts: currency conversion failed",
					"concept", name, "unit", e.Unit, "error", err)
				flags[FlagNonCanonicalUnit] = true
			} else {
				f.Value = v
				f.Unit = r.canonicalUnit
				f.Conversion = &prov
				flags[FlagFXConverted] = true
			}
		}
	}

	f.QualityFlags = sortedFlags(flags)
	return f
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
