package source

import (
	"context"

	"github.com/tesseradata/tessera/errs"
	"github.com/tesseradata/tessera/odata"
	"github.com/tesseradata/tessera/query"
)

// loadRemote translates the options into OData system query options and
// fetches one page. Grouped options come back as group rollup rows and are
// flagged in metadata. A short page with more rows remaining surfaces the
// server's enforced page cap through the result.
func (ds *DataSource) loadRemote(ctx context.Context, opts query.LoadOptions) (query.Result, *errs.E) {
	qry, err := odata.BuildQuery(opts, ds.searchFields())
	if err != nil {
		return query.Result{}, errs.New("source", errs.CodeValidation,
			errs.WithMessage("options cannot be translated for the remote backend"),
			errs.WithCause(err))
	}

	env, err := ds.client.Fetch(ctx, qry)
	if err != nil {
		return query.Result{}, errs.AsE("odata", errs.CodeNetwork, err)
	}

	total := env.Count
	if total < 0 {
		// The service omitted the count; the window end is the best bound.
		total = opts.Skip + len(env.Rows)
	}

	res := ds.buildResult(env.Rows, total, opts)
	for key, value := range env.Annotations {
		res.SetMeta(key, value)
	}
	if len(opts.Group) > 0 {
		res.SetMeta("grouped", true)
	}
	return res, nil
}
