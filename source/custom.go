package source

import (
	"context"
	"errors"

	"github.com/tesseradata/tessera/errs"
	"github.com/tesseradata/tessera/query"
	"github.com/tesseradata/tessera/store"
)

// loadCustom delegates to the user-supplied store. How much of the options
// the store honors is its own contract; the orchestrator only normalizes
// the count.
func (ds *DataSource) loadCustom(ctx context.Context, opts query.LoadOptions) (query.Result, *errs.E) {
	out, err := ds.custom.Load(ctx, opts.Clone())
	if err != nil {
		return query.Result{}, classifyStoreError(err, errs.CodeNetwork, "custom store load")
	}
	total := out.Total
	if total < 0 {
		total = len(out.Data)
	}
	return ds.buildResult(out.Data, total, opts), nil
}

// classifyStoreError folds a store failure into the taxonomy, passing
// through errors the store already classified.
func classifyStoreError(err error, code errs.Code, op string) *errs.E {
	var e *errs.E
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.New("source", errs.CodeTimeout, errs.WithCause(err))
	}
	if errors.Is(err, store.ErrNotImplemented) {
		return errs.NotSupported("source", code, op)
	}
	return errs.New("source", code, errs.WithMessage(op+" failed"), errs.WithCause(err))
}
