package source

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tesseradata/tessera/errs"
	"github.com/tesseradata/tessera/observability"
	"github.com/tesseradata/tessera/query"
)

const (
	// DefaultMaxRetries is the retry budget when the caller passes a
	// negative one.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the pause between attempts when the caller
	// passes a non-positive one.
	DefaultRetryDelay = time.Second
)

// LoadWithRetry runs Load with up to maxRetries additional attempts spaced
// by a constant delay. Only transport-level failures are retried; auth,
// validation, and configuration errors return immediately. Negative
// maxRetries falls back to the default budget, non-positive delay to the
// default pause. Cancellation between attempts stops the loop.
func (ds *DataSource) LoadWithRetry(ctx context.Context, opts query.LoadOptions, maxRetries int, delay time.Duration) (query.Result, error) {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	policy := backoff.NewConstantBackOff(delay)

	for attempt := 0; ; attempt++ {
		res, err := ds.load(ctx, opts, attempt)
		if err == nil {
			return res, nil
		}
		var e *errs.E
		if !errors.As(err, &e) || !e.Retriable() || attempt >= maxRetries {
			return res, err
		}

		ds.log.Info("load failed, retrying",
			observability.Field{Key: "attempt", Value: attempt + 1},
			observability.Field{Key: "max_retries", Value: maxRetries},
			observability.Field{Key: "code", Value: string(e.Code)},
		)
		ds.metrics.IncCounter("load_retries_total", 1, map[string]string{"kind": string(ds.kind)})

		select {
		case <-ctx.Done():
			return query.Result{}, errs.New("source", errs.CodeTimeout, errs.WithCause(ctx.Err()))
		case <-time.After(policy.NextBackOff()):
		}
	}
}
