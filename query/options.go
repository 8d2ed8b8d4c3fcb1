// Package query models grid load options and implements the pure data
// operations behind them: filter evaluation, multi-key sorting, and canonical
// fingerprinting for cache identity.
package query

import (
	"fmt"
	"strings"
)

// Operator identifies a filter comparison. The set is closed; the evaluator
// treats anything outside it as a permissive no-op and reports it.
type Operator string

const (
	// OpEquals matches values that are loosely equal after type coercion.
	OpEquals Operator = "eq"
	// OpNotEquals is the negation of OpEquals.
	OpNotEquals Operator = "neq"
	// OpContains matches rows whose string form contains the operand.
	OpContains Operator = "contains"
	// OpStartsWith matches rows whose string form starts with the operand.
	OpStartsWith Operator = "startswith"
	// OpEndsWith matches rows whose string form ends with the operand.
	OpEndsWith Operator = "endswith"
	// OpGreaterThan matches values strictly above the operand.
	OpGreaterThan Operator = "gt"
	// OpGreaterThanOrEqual matches values at or above the operand.
	OpGreaterThanOrEqual Operator = "gte"
	// OpLessThan matches values strictly below the operand.
	OpLessThan Operator = "lt"
	// OpLessThanOrEqual matches values at or below the operand.
	OpLessThanOrEqual Operator = "lte"
	// OpIn matches values loosely equal to any operand in the list.
	OpIn Operator = "in"
	// OpBetween matches numeric values inside the inclusive [Value, Value2] range.
	OpBetween Operator = "between"
	// OpIsNull matches absent or nil values.
	OpIsNull Operator = "isnull"
	// OpIsNotNull matches present non-nil values.
	OpIsNotNull Operator = "isnotnull"
	// OpIsEmpty matches nil values and empty strings.
	OpIsEmpty Operator = "isempty"
	// OpIsNotEmpty is the negation of OpIsEmpty.
	OpIsNotEmpty Operator = "isnotempty"
)

// Valid reports whether the operator belongs to the closed set.
func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith,
		OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual,
		OpIn, OpBetween, OpIsNull, OpIsNotNull, OpIsEmpty, OpIsNotEmpty:
		return true
	default:
		return false
	}
}

// operatorAliases maps accepted spellings to canonical operators. Symbolic
// forms cover config files and CLI flags.
var operatorAliases = map[string]Operator{
	"eq": OpEquals, "=": OpEquals, "==": OpEquals, "equals": OpEquals,
	"neq": OpNotEquals, "!=": OpNotEquals, "<>": OpNotEquals, "notequals": OpNotEquals,
	"contains":   OpContains,
	"startswith": OpStartsWith,
	"endswith":   OpEndsWith,
	"gt": OpGreaterThan, ">": OpGreaterThan,
	"gte": OpGreaterThanOrEqual, ">=": OpGreaterThanOrEqual, "ge": OpGreaterThanOrEqual,
	"lt": OpLessThan, "<": OpLessThan,
	"lte": OpLessThanOrEqual, "<=": OpLessThanOrEqual, "le": OpLessThanOrEqual,
	"in":      OpIn,
	"between": OpBetween,
	"isnull": OpIsNull, "null": OpIsNull,
	"isnotnull": OpIsNotNull, "notnull": OpIsNotNull,
	"isempty":    OpIsEmpty,
	"isnotempty": OpIsNotEmpty,
}

// ParseOperator resolves an operator spelling to its canonical form.
func ParseOperator(s string) (Operator, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if op, ok := operatorAliases[key]; ok {
		return op, nil
	}
	return "", fmt.Errorf("unknown filter operator %q", s)
}

// SortDescriptor orders one field; Desc reverses the direction.
type SortDescriptor struct {
	Field string `json:"field" yaml:"field"`
	Desc  bool   `json:"desc,omitempty" yaml:"desc,omitempty"`
}

// GroupDescriptor groups by one field; Desc reverses the group ordering.
type GroupDescriptor struct {
	Field string `json:"field" yaml:"field"`
	Desc  bool   `json:"desc,omitempty" yaml:"desc,omitempty"`
}

// FilterCondition is a single field comparison. Value2 is only meaningful
// for OpBetween; OpIn reads Value as a list.
type FilterCondition struct {
	Field  string   `json:"field" yaml:"field"`
	Op     Operator `json:"op" yaml:"op"`
	Value  any      `json:"value,omitempty" yaml:"value,omitempty"`
	Value2 any      `json:"value2,omitempty" yaml:"value2,omitempty"`
}

// Values returns the operand list for OpIn conditions. A scalar Value is
// treated as a single-element list.
func (c FilterCondition) Values() []any {
	switch v := c.Value.(type) {
	case nil:
		return []any{nil}
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return []any{v}
	}
}

// LoadOptions is the caller's request: pagination window, sort order, filter
// conjunction, grouping, and a free-text search term. The orchestrator
// snapshots options at dispatch; callers may reuse and mutate their copy.
type LoadOptions struct {
	Skip   int               `json:"skip" yaml:"skip"`
	Take   int               `json:"take" yaml:"take"`
	Sort   []SortDescriptor  `json:"sort,omitempty" yaml:"sort,omitempty"`
	Filter []FilterCondition `json:"filter,omitempty" yaml:"filter,omitempty"`
	Group  []GroupDescriptor `json:"group,omitempty" yaml:"group,omitempty"`
	Search string            `json:"search,omitempty" yaml:"search,omitempty"`
}

// Clone returns an independent copy. Descriptor slices are copied; operand
// lists inside In conditions are copied one level deep.
func (o LoadOptions) Clone() LoadOptions {
	out := o
	if len(o.Sort) > 0 {
		out.Sort = make([]SortDescriptor, len(o.Sort))
		copy(out.Sort, o.Sort)
	}
	if len(o.Group) > 0 {
		out.Group = make([]GroupDescriptor, len(o.Group))
		copy(out.Group, o.Group)
	}
	if len(o.Filter) > 0 {
		out.Filter = make([]FilterCondition, len(o.Filter))
		copy(out.Filter, o.Filter)
		for i, cond := range out.Filter {
			if list, ok := cond.Value.([]any); ok {
				copied := make([]any, len(list))
				copy(copied, list)
				out.Filter[i].Value = copied
			}
		}
	}
	return out
}

// Normalize clones the options and clamps the pagination window to
// non-negative values. Take of zero means "no limit".
func (o LoadOptions) Normalize() LoadOptions {
	out := o.Clone()
	if out.Skip < 0 {
		out.Skip = 0
	}
	if out.Take < 0 {
		out.Take = 0
	}
	out.Search = strings.TrimSpace(out.Search)
	return out
}

// Fields lists every field name the options reference, for validation
// against column metadata.
func (o LoadOptions) Fields() []string {
	var out []string
	for _, s := range o.Sort {
		out = append(out, s.Field)
	}
	for _, f := range o.Filter {
		out = append(out, f.Field)
	}
	for _, g := range o.Group {
		out = append(out, g.Field)
	}
	return out
}
