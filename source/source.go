// Package source orchestrates data loading for grid-style consumers: it
// normalizes load options, runs the hook pipeline, consults the result
// cache, and dispatches to the configured backend (static rows, an OData v4
// service, or a user-supplied store).
package source

import (
	"io"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/tesseradata/tessera/cache"
	"github.com/tesseradata/tessera/config"
	"github.com/tesseradata/tessera/errs"
	"github.com/tesseradata/tessera/observability"
	"github.com/tesseradata/tessera/odata"
	"github.com/tesseradata/tessera/query"
	"github.com/tesseradata/tessera/schema"
	"github.com/tesseradata/tessera/store"
)

// State is the observable load lifecycle. The orchestrator is its only
// writer; Snapshot hands out copies.
type State struct {
	Loading      bool
	Loaded       bool
	Err          *errs.E
	RetryCount   int
	LastLoadTime time.Time
	LastOptions  *query.LoadOptions
}

// DataSource loads, caches, and mutates rows behind one of the closed
// backend variants. All methods are safe for concurrent use. Overlapping
// loads race benignly: the last writer wins the state.
type DataSource struct {
	cfg        config.Config
	kind       config.Kind
	accessor   schema.Accessor
	evaluator  query.Evaluator
	comparator *query.Comparator
	client     *odata.Client
	custom     store.Store
	results    *cache.Store
	keyFunc    func(query.LoadOptions) string

	log      observability.Logger
	reporter observability.Reporter
	metrics  observability.Metrics
	now      func() time.Time

	mu        sync.RWMutex
	data      []schema.Row
	last      []schema.Row
	state     State
	filterKey string

	closeOnce sync.Once
	closeErr  error
}

// Option adjusts a DataSource during construction.
type Option func(*DataSource)

// WithLogger injects the logger.
func WithLogger(log observability.Logger) Option {
	return func(ds *DataSource) {
		if log != nil {
			ds.log = log
		}
	}
}

// WithReporter injects the error reporter every classified load failure is
// handed to.
func WithReporter(r observability.Reporter) Option {
	return func(ds *DataSource) {
		if r != nil {
			ds.reporter = r
		}
	}
}

// WithMetrics injects the metrics sink.
func WithMetrics(m observability.Metrics) Option {
	return func(ds *DataSource) {
		if m != nil {
			ds.metrics = m
		}
	}
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(ds *DataSource) {
		if now != nil {
			ds.now = now
		}
	}
}

// New validates cfg, resolves the backend variant, and builds the
// orchestrator around it.
func New(cfg config.Config, opts ...Option) (*DataSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kind, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	ds := &DataSource{
		cfg:      cfg,
		kind:     kind,
		accessor: cfg.Accessor(),
		log:      observability.NopLogger(),
		reporter: observability.NopReporter(),
		metrics:  observability.NopMetrics(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ds)
		}
	}

	ds.evaluator = query.Evaluator{Accessor: ds.accessor}
	tag := language.Und
	if cfg.Language != "" {
		parsed, parseErr := language.Parse(cfg.Language)
		if parseErr != nil {
			return nil, errs.New("source", errs.CodeConfig,
				errs.WithMessage("unrecognized language tag"),
				errs.WithField("language", cfg.Language),
				errs.WithCause(parseErr))
		}
		tag = parsed
	}
	ds.comparator = query.NewComparatorForLanguage(ds.accessor, tag)

	switch kind {
	case config.KindLocal:
		ds.data = cloneRows(cfg.Local.Data)
	case config.KindOData:
		ds.client = odata.NewClient(cfg.Remote.URL, cfg.Remote.Timeout,
			odata.WithHeaders(cfg.Remote.Headers),
			odata.WithRateLimit(cfg.Remote.RateLimit, cfg.Remote.RateBurst),
			odata.WithLogger(ds.log),
		)
	case config.KindCustom:
		ds.custom = cfg.Custom.Store
	}

	if cfg.Cache.Enabled {
		ds.results = cache.New(
			cache.WithTTL(cfg.Cache.Duration),
			cache.WithCapacity(cfg.Cache.Capacity),
			cache.WithClock(ds.now),
		)
	}
	ds.keyFunc = cfg.Cache.KeyFunc
	if ds.keyFunc == nil {
		ds.keyFunc = func(o query.LoadOptions) string { return o.Fingerprint() }
	}
	return ds, nil
}

// Kind reports the resolved backend variant.
func (ds *DataSource) Kind() config.Kind { return ds.kind }

// Snapshot returns a copy of the load state. LastOptions is cloned so the
// caller cannot mutate the orchestrator's view.
func (ds *DataSource) Snapshot() State {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	out := ds.state
	if ds.state.LastOptions != nil {
		cloned := ds.state.LastOptions.Clone()
		out.LastOptions = &cloned
	}
	return out
}

// SetData swaps the Local backing rows and drops every cached result. Only
// the Local variant carries backing rows.
func (ds *DataSource) SetData(rows []schema.Row) error {
	if ds.kind != config.KindLocal {
		return errs.New("source", errs.CodeConfig,
			errs.WithMessage("SetData requires the local backend"),
			errs.WithField("kind", string(ds.kind)))
	}
	ds.mu.Lock()
	ds.data = cloneRows(rows)
	ds.mu.Unlock()
	ds.ClearCache()
	return nil
}

// ClearCache drops every cached result set.
func (ds *DataSource) ClearCache() {
	if ds.results != nil {
		ds.results.Clear()
	}
}

// Close releases backend resources. A custom store that implements
// io.Closer is closed; calling Close more than once is a no-op.
func (ds *DataSource) Close() error {
	ds.closeOnce.Do(func() {
		ds.ClearCache()
		if closer, ok := ds.custom.(io.Closer); ok {
			ds.closeErr = closer.Close()
		}
	})
	return ds.closeErr
}

// searchFields resolves the fields a search term runs over: the configured
// list first, then string-typed columns when metadata is present. An open
// schema returns nil, which the evaluator treats as "every field".
func (ds *DataSource) searchFields() []string {
	if len(ds.cfg.SearchFields) > 0 {
		return ds.cfg.SearchFields
	}
	if ds.accessor.Open() {
		return nil
	}
	var fields []string
	for _, col := range ds.accessor.Columns() {
		if col.Type == schema.TypeString || col.Type == schema.TypeAuto {
			fields = append(fields, col.Field)
		}
	}
	return fields
}

func cloneRows(rows []schema.Row) []schema.Row {
	if rows == nil {
		return nil
	}
	out := make([]schema.Row, len(rows))
	for i, row := range rows {
		out[i] = row.Clone()
	}
	return out
}
