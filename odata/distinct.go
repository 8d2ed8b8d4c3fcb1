package odata

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tesseradata/tessera/observability"
	"github.com/tesseradata/tessera/query"
	"github.com/tesseradata/tessera/schema"
)

// distinctSampleCap bounds the fallback sample when the service rejects
// $apply.
const distinctSampleCap = 5000

// DistinctValues lists the distinct values of field, optionally narrowed by
// a case-insensitive search term. It first asks the service to aggregate
// via $apply; services that reject the pipeline fall back to a bounded
// sample deduplicated locally. Counts are exact under aggregation and
// sampled otherwise.
func (c *Client) DistinctValues(ctx context.Context, field, search string) ([]query.FieldValue, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, fmt.Errorf("distinct values require a field")
	}

	values, err := c.distinctByAggregation(ctx, field, search)
	if err == nil {
		return values, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	c.log.Debug("odata distinct aggregation rejected, sampling",
		observability.Field{Key: "field", Value: field},
		observability.Field{Key: "cause", Value: err},
	)
	return c.distinctBySample(ctx, field, search)
}

func (c *Client) distinctByAggregation(ctx context.Context, field, search string) ([]query.FieldValue, error) {
	pipeline := fmt.Sprintf("groupby((%s),aggregate($count as Count))", field)
	if search != "" {
		filter := fmt.Sprintf("contains(tolower(%s),%s)", field, stringLiteral(strings.ToLower(search)))
		pipeline = fmt.Sprintf("filter(%s)/%s", filter, pipeline)
	}

	qry := url.Values{}
	qry.Set("$apply", pipeline)
	qry.Set("$orderby", field)

	env, err := c.Fetch(ctx, qry)
	if err != nil {
		return nil, err
	}

	values := make([]query.FieldValue, 0, len(env.Rows))
	for _, row := range env.Rows {
		fv := query.FieldValue{Value: row[field]}
		if n, ok := asCount(row["Count"]); ok {
			fv.Count = n
		}
		values = append(values, fv)
	}
	return values, nil
}

func (c *Client) distinctBySample(ctx context.Context, field, search string) ([]query.FieldValue, error) {
	qry := url.Values{}
	qry.Set("$select", field)
	qry.Set("$top", strconv.Itoa(distinctSampleCap))
	qry.Set("$orderby", field)
	if search != "" {
		qry.Set("$filter", fmt.Sprintf("contains(tolower(%s),%s)", field, stringLiteral(strings.ToLower(search))))
	}

	env, err := c.Fetch(ctx, qry)
	if err != nil {
		return nil, err
	}
	return dedupeSample(env.Rows, field), nil
}

// dedupeSample folds sampled rows into distinct values with occurrence
// counts. The sample arrives ordered by the field, so first-seen order is
// already sorted.
func dedupeSample(rows []schema.Row, field string) []query.FieldValue {
	counts := make(map[string]*query.FieldValue)
	order := make([]string, 0, len(rows))
	for _, row := range rows {
		v := row[field]
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
	return values
}
