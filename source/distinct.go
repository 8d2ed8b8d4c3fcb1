package source

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/tesseradata/tessera/config"
	"github.com/tesseradata/tessera/errs"
	"github.com/tesseradata/tessera/query"
	"github.com/tesseradata/tessera/schema"
)

// distinctSampleCap bounds how many rows a custom store is asked for when
// deduplicating client-side.
const distinctSampleCap = 5000

// DistinctValues lists the distinct values of one column with occurrence
// counts, optionally narrowed by a case-insensitive search term. Local data
// is counted exactly; the remote backend uses the service's aggregation
// with a sampled fallback; custom stores are sampled and deduplicated here.
func (ds *DataSource) DistinctValues(ctx context.Context, field, search string) ([]query.FieldValue, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, errs.New("source", errs.CodeValidation,
			errs.WithMessage("distinct values require a field"))
	}
	if !ds.accessor.Open() {
		if err := ds.accessor.Validate(field); err != nil {
			return nil, errs.AsE("source", errs.CodeValidation, err)
		}
	}

	switch ds.kind {
	case config.KindOData:
		return ds.client.DistinctValues(ctx, field, search)
	case config.KindCustom:
		opts := query.LoadOptions{Take: distinctSampleCap}
		if search != "" {
			opts.Filter = []query.FilterCondition{{Field: field, Op: query.OpContains, Value: search}}
		}
		out, err := ds.custom.Load(ctx, opts)
		if err != nil {
			return nil, classifyStoreError(err, errs.CodeNetwork, "distinct values load")
		}
		return distinctOver(out.Data, field, search), nil
	default:
		ds.mu.RLock()
		rows := ds.data
		ds.mu.RUnlock()
		return distinctOver(rows, field, search), nil
	}
}

// DistinctValuesMulti resolves several columns concurrently through a
// bounded worker pool, one backend round trip per field. The map carries
// every field that succeeded; the error is the first failure in field
// order, if any.
func (ds *DataSource) DistinctValuesMulti(ctx context.Context, fields []string, search string) (map[string][]query.FieldValue, error) {
	results := make(map[string][]query.FieldValue, len(fields))
	if len(fields) == 0 {
		return results, nil
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > len(fields) {
		workers = len(fields)
	}

	var mu sync.Mutex
	failures := make([]error, len(fields))
	p := pool.New().WithMaxGoroutines(workers)
	for idx, field := range fields {
		i, f := idx, field
		p.Go(func() {
			values, err := ds.DistinctValues(ctx, f, search)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[i] = err
				return
			}
			results[f] = values
		})
	}
	p.Wait()

	for _, err := range failures {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// distinctOver folds rows into distinct values with counts, narrowed by the
// search term even when the backend already filtered, since a custom store
// may have ignored the condition. Values sort ascending with nulls first.
func distinctOver(rows []schema.Row, field, search string) []query.FieldValue {
	term := strings.ToLower(strings.TrimSpace(search))
	counts := make(map[string]*query.FieldValue)
	var order []string
	for _, row := range rows {
		v := row[field]
		if term != "" && !strings.Contains(strings.ToLower(renderValue(v)), term) {
			continue
		}
		key := fmt.Sprintf("%T:%v", v, v)
		if existing, ok := counts[key]; ok {
			existing.Count++
			continue
		}
		counts[key] = &query.FieldValue{Value: v, Count: 1}
		order = append(order, key)
	}

	values := make([]query.FieldValue, 0, len(order))
	for _, key := range order {
		values = append(values, *counts[key])
	}
	sort.SliceStable(values, func(i, j int) bool {
		a, b := values[i].Value, values[j].Value
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		if c, ok := query.CompareValues(a, b); ok {
			return c < 0
		}
		return renderValue(a) < renderValue(b)
	})
	return values
}

func renderValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
