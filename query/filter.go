package query

import (
	"strings"

	"github.com/tesseradata/tessera/schema"
)

// Evaluator applies filter conditions and search terms to rows. Conditions
// are conjunctive: a row must satisfy every one. Unknown operators include
// the row rather than dropping it, and are surfaced through Unknown so the
// caller can log the latent risk.
type Evaluator struct {
	Accessor schema.Accessor
	// Unknown, when set, receives every condition whose operator is outside
	// the closed set.
	Unknown func(FilterCondition)
}

// Match reports whether the row satisfies all conditions.
func (ev Evaluator) Match(row schema.Row, conds []FilterCondition) bool {
	for _, cond := range conds {
		if !ev.matchOne(row, cond) {
			return false
		}
	}
	return true
}

// Filter returns the rows satisfying all conditions, preserving order.
func (ev Evaluator) Filter(rows []schema.Row, conds []FilterCondition) []schema.Row {
	if len(conds) == 0 {
		return rows
	}
	out := make([]schema.Row, 0, len(rows))
	for _, row := range rows {
		if ev.Match(row, conds) {
			out = append(out, row)
		}
	}
	return out
}

func (ev Evaluator) matchOne(row schema.Row, cond FilterCondition) bool {
	value, _ := ev.Accessor.Value(row, cond.Field)

	switch cond.Op {
	case OpIsNull:
		return isNilValue(value)
	case OpIsNotNull:
		return !isNilValue(value)
	case OpIsEmpty:
		return isEmptyValue(value)
	case OpIsNotEmpty:
		return !isEmptyValue(value)
	case OpEquals:
		return looseEqual(value, cond.Value)
	case OpNotEquals:
		return !looseEqual(value, cond.Value)
	case OpContains:
		return !isNilValue(value) && containsFold(asString(value), asString(cond.Value))
	case OpStartsWith:
		return !isNilValue(value) && hasPrefixFold(asString(value), asString(cond.Value))
	case OpEndsWith:
		return !isNilValue(value) && hasSuffixFold(asString(value), asString(cond.Value))
	case OpGreaterThan:
		c, ok := compareValues(value, cond.Value)
		return ok && c > 0
	case OpGreaterThanOrEqual:
		c, ok := compareValues(value, cond.Value)
		return ok && c >= 0
	case OpLessThan:
		c, ok := compareValues(value, cond.Value)
		return ok && c < 0
	case OpLessThanOrEqual:
		c, ok := compareValues(value, cond.Value)
		return ok && c <= 0
	case OpIn:
		for _, operand := range cond.Values() {
			if isEmptyValue(operand) {
				if isEmptyValue(value) {
					return true
				}
				continue
			}
			if looseEqual(value, operand) {
				return true
			}
		}
		return false
	case OpBetween:
		dv, ok := asDecimal(value)
		if !ok {
			return false
		}
		lo, ok := asDecimal(cond.Value)
		if !ok {
			return false
		}
		hi, ok := asDecimal(cond.Value2)
		if !ok {
			return false
		}
		return dv.Cmp(lo) >= 0 && dv.Cmp(hi) <= 0
	default:
		if ev.Unknown != nil {
			ev.Unknown(cond)
		}
		return true
	}
}

// MatchSearch reports whether any of the fields contains term as a
// case-insensitive substring. With no fields given, every field present on
// the row is searched. An empty term matches everything.
func (ev Evaluator) MatchSearch(row schema.Row, term string, fields []string) bool {
	term = strings.TrimSpace(term)
	if term == "" {
		return true
	}
	if len(fields) == 0 {
		for _, value := range row {
			if !isNilValue(value) && containsFold(asString(value), term) {
				return true
			}
		}
		return false
	}
	for _, field := range fields {
		value, ok := ev.Accessor.Value(row, field)
		if ok && !isNilValue(value) && containsFold(asString(value), term) {
			return true
		}
	}
	return false
}

// Search returns the rows matching the term, preserving order.
func (ev Evaluator) Search(rows []schema.Row, term string, fields []string) []schema.Row {
	if strings.TrimSpace(term) == "" {
		return rows
	}
	out := make([]schema.Row, 0, len(rows))
	for _, row := range rows {
		if ev.MatchSearch(row, term, fields) {
			out = append(out, row)
		}
	}
	return out
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func hasPrefixFold(s, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix))
}

func hasSuffixFold(s, suffix string) bool {
	return strings.HasSuffix(strings.ToLower(s), strings.ToLower(suffix))
}
