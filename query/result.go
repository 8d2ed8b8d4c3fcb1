package query

import "github.com/tesseradata/tessera/schema"

// Result is one page of loaded data plus its pagination accounting.
// TotalCount is the pre-pagination row count of the filtered set. When a
// remote backend returned fewer rows than requested while more remained,
// ServerPageSizeLimit carries the cap it enforced; zero means none observed.
type Result struct {
	Data                []schema.Row   `json:"data"`
	TotalCount          int            `json:"totalCount"`
	Skip                int            `json:"skip"`
	Take                int            `json:"take"`
	ActualPageSize      int            `json:"actualPageSize"`
	ServerPageSizeLimit int            `json:"serverPageSizeLimit,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy whose rows and metadata are independent of the
// receiver's.
func (r Result) Clone() Result {
	out := r
	if r.Data != nil {
		out.Data = make([]schema.Row, len(r.Data))
		for i, row := range r.Data {
			out.Data[i] = row.Clone()
		}
	}
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// SetMeta stores a metadata entry, allocating the map on first use.
func (r *Result) SetMeta(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any, 1)
	}
	r.Metadata[key] = value
}

// FieldValue is one distinct column value with its occurrence count, the
// shape filter panels consume. Count may be sampled rather than exact
// depending on the backend strategy.
type FieldValue struct {
	Value any `json:"value"`
	Count int `json:"count"`
}
