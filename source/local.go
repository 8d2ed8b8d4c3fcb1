package source

import (
	"context"

	"github.com/tesseradata/tessera/errs"
	"github.com/tesseradata/tessera/query"
	"github.com/tesseradata/tessera/schema"
)

// loadLocal runs the in-memory pipeline: search, then every filter
// conjunctively, then sort, then the pagination window. TotalCount is the
// post-filter pre-page length. Returned rows are copies; callers never see
// the backing slice.
func (ds *DataSource) loadLocal(ctx context.Context, opts query.LoadOptions) (query.Result, *errs.E) {
	if err := ctx.Err(); err != nil {
		return query.Result{}, errs.New("source", errs.CodeTimeout, errs.WithCause(err))
	}

	ds.mu.RLock()
	rows := ds.data
	ds.mu.RUnlock()

	if opts.Search != "" {
		rows = ds.evaluator.Search(rows, opts.Search, ds.searchFields())
	}
	rows = ds.evaluator.Filter(rows, opts.Filter)

	if len(opts.Sort) > 0 {
		sorted := append([]schema.Row(nil), rows...)
		ds.comparator.Sort(sorted, opts.Sort)
		rows = sorted
	}

	total := len(rows)
	page := window(rows, opts.Skip, opts.Take)
	return ds.buildResult(cloneRows(page), total, opts), nil
}

// window slices [skip, skip+take) with take zero meaning "to the end".
func window(rows []schema.Row, skip, take int) []schema.Row {
	if skip >= len(rows) {
		return nil
	}
	rows = rows[skip:]
	if take > 0 && take < len(rows) {
		rows = rows[:take]
	}
	return rows
}
