package source

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tesseradata/tessera/config"
	"github.com/tesseradata/tessera/errs"
	"github.com/tesseradata/tessera/observability"
	"github.com/tesseradata/tessera/query"
	"github.com/tesseradata/tessera/schema"
)

// Load runs one load through the full pipeline: normalize, OnBeforeLoad,
// pagination reset, cache consult, backend dispatch, TransformResponse,
// OnAfterLoad, cache write. It never panics; failures come back as a
// classified *errs.E that is also recorded in state and handed to the
// OnLoadError hook and the reporter.
func (ds *DataSource) Load(ctx context.Context, opts query.LoadOptions) (query.Result, error) {
	return ds.load(ctx, opts, 0)
}

// load is the shared pipeline. attempt carries the retry ordinal so state
// reflects how many retries the most recent load consumed.
func (ds *DataSource) load(ctx context.Context, opts query.LoadOptions, attempt int) (query.Result, error) {
	started := ds.now()
	requestID := uuid.NewString()

	effective := opts.Normalize()
	if hook := ds.cfg.Hooks.OnBeforeLoad; hook != nil {
		effective = hook(effective).Normalize()
	}

	// A changed filter or search term invalidates the caller's page
	// position, so the window snaps back to the first page.
	filterKey := effective.FilterFingerprint()
	ds.mu.Lock()
	if ds.filterKey != "" && ds.filterKey != filterKey {
		effective.Skip = 0
	}
	ds.filterKey = filterKey
	snapshot := effective.Clone()
	ds.state.Loading = true
	ds.state.LastOptions = &snapshot
	ds.mu.Unlock()

	if e := ds.validateOptions(effective); e != nil {
		return ds.failLoad(e, attempt)
	}

	key := ds.keyFunc(effective)
	if ds.results != nil {
		if entry, ok := ds.results.Get(key); ok {
			res := ds.buildResult(entry.Data, entry.Total, effective)
			res.SetMeta("requestId", requestID)
			res.SetMeta("cache", true)
			ds.finishLoad(res.Data, attempt)
			ds.metrics.IncCounter("cache_hits_total", 1, map[string]string{"kind": string(ds.kind)})
			ds.observeLoad(started, "hit")
			return res, nil
		}
	}

	var (
		res query.Result
		e   *errs.E
	)
	switch ds.kind {
	case config.KindLocal:
		res, e = ds.loadLocal(ctx, effective)
	case config.KindOData:
		res, e = ds.loadRemote(ctx, effective)
	case config.KindCustom:
		res, e = ds.loadCustom(ctx, effective)
	}
	if e != nil {
		ds.observeLoad(started, "error")
		return ds.failLoad(e, attempt)
	}

	if transform := ds.cfg.Hooks.TransformResponse; transform != nil {
		res.Data = transform(res.Data)
		res.ActualPageSize = len(res.Data)
	}
	res.SetMeta("requestId", requestID)
	if hook := ds.cfg.Hooks.OnAfterLoad; hook != nil {
		res = hook(res)
	}

	if ds.results != nil {
		ds.results.Set(key, res.Data, res.TotalCount)
	}
	ds.finishLoad(res.Data, attempt)
	ds.observeLoad(started, "ok")
	return res, nil
}

// Reload drops every cached result and replays the most recent effective
// options through the full pipeline. Before any load has run it replays the
// zero options.
func (ds *DataSource) Reload(ctx context.Context) (query.Result, error) {
	ds.ClearCache()
	ds.mu.RLock()
	var opts query.LoadOptions
	if ds.state.LastOptions != nil {
		opts = ds.state.LastOptions.Clone()
	}
	ds.mu.RUnlock()
	return ds.Load(ctx, opts)
}

// validateOptions rejects options referencing fields the declared columns
// do not carry, and logs conditions whose operator is outside the closed
// set; those conditions match permissively downstream.
func (ds *DataSource) validateOptions(opts query.LoadOptions) *errs.E {
	for _, cond := range opts.Filter {
		if !cond.Op.Valid() {
			ds.log.Info("unknown filter operator, condition matches all rows",
				observability.Field{Key: "field", Value: cond.Field},
				observability.Field{Key: "op", Value: string(cond.Op)},
			)
		}
	}
	if ds.accessor.Open() {
		return nil
	}
	if err := ds.accessor.Validate(opts.Fields()...); err != nil {
		return errs.AsE("source", errs.CodeValidation, err)
	}
	return nil
}

// failLoad records the classified failure, feeds the hook and reporter,
// and returns the zero result.
func (ds *DataSource) failLoad(e *errs.E, attempt int) (query.Result, error) {
	if hook := ds.cfg.Hooks.OnLoadError; hook != nil {
		hook(e)
	}
	ds.reporter.Report(e)

	ds.mu.Lock()
	ds.state.Loading = false
	ds.state.Err = e
	ds.state.RetryCount = attempt
	ds.mu.Unlock()

	ds.metrics.IncCounter("load_total", 1, map[string]string{
		"kind":    string(ds.kind),
		"outcome": "error",
	})
	return query.Result{}, e
}

// finishLoad commits a successful load into state and remembers the page
// for ByKey scans.
func (ds *DataSource) finishLoad(rows []schema.Row, attempt int) {
	ds.mu.Lock()
	ds.state.Loading = false
	ds.state.Loaded = true
	ds.state.Err = nil
	ds.state.RetryCount = attempt
	ds.state.LastLoadTime = ds.now()
	ds.last = cloneRows(rows)
	ds.mu.Unlock()

	ds.metrics.IncCounter("load_total", 1, map[string]string{
		"kind":    string(ds.kind),
		"outcome": "ok",
	})
}

func (ds *DataSource) observeLoad(started time.Time, outcome string) {
	ds.metrics.ObserveHistogram("load_duration_seconds", ds.now().Sub(started).Seconds(), map[string]string{
		"kind":    string(ds.kind),
		"outcome": outcome,
	})
}

// buildResult assembles the result envelope around a page of rows. When a
// backend returned a short page while the total shows more rows remained,
// the shortfall is surfaced as the server's page-size cap.
func (ds *DataSource) buildResult(rows []schema.Row, total int, opts query.LoadOptions) query.Result {
	if rows == nil {
		rows = []schema.Row{}
	}
	res := query.Result{
		Data:           rows,
		TotalCount:     total,
		Skip:           opts.Skip,
		Take:           opts.Take,
		ActualPageSize: len(rows),
	}
	if opts.Take > 0 && len(rows) > 0 && len(rows) < opts.Take && total > opts.Skip+len(rows) {
		res.ServerPageSizeLimit = len(rows)
	}
	return res
}
