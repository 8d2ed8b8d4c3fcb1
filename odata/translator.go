// Package odata speaks OData v4 to remote collections: translating load
// options into system query options, fetching with classified failures, and
// discovering distinct column values.
package odata

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tesseradata/tessera/query"
)

// BuildQuery translates options into OData v4 system query options. Search
// terms become an or-joined contains() over searchFields. Conditions whose
// operator is outside the closed set are skipped; the caller reports them.
// Grouped options translate into an $apply pipeline instead of $filter.
func BuildQuery(opts query.LoadOptions, searchFields []string) (url.Values, error) {
	norm := opts.Normalize()
	values := url.Values{}
	values.Set("$count", "true")

	if norm.Skip > 0 {
		values.Set("$skip", strconv.Itoa(norm.Skip))
	}
	if norm.Take > 0 {
		values.Set("$top", strconv.Itoa(norm.Take))
	}

	filter, err := filterExpr(norm, searchFields)
	if err != nil {
		return nil, err
	}

	if len(norm.Group) > 0 {
		values.Set("$apply", applyExpr(norm.Group, filter))
	} else if filter != "" {
		values.Set("$filter", filter)
	}

	if orderby := orderByExpr(norm.Sort); orderby != "" {
		values.Set("$orderby", orderby)
	}

	return values, nil
}

// filterExpr renders the conjunction of filter conditions and the search
// clause.
func filterExpr(opts query.LoadOptions, searchFields []string) (string, error) {
	var clauses []string
	for _, cond := range opts.Filter {
		if !cond.Op.Valid() {
			continue
		}
		clause, err := conditionExpr(cond)
		if err != nil {
			return "", err
		}
		if clause != "" {
			clauses = append(clauses, clause)
		}
	}

	if opts.Search != "" {
		search, err := searchExpr(opts.Search, searchFields)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, search)
	}

	switch len(clauses) {
	case 0:
		return "", nil
	case 1:
		return clauses[0], nil
	default:
		return strings.Join(clauses, " and "), nil
	}
}

func searchExpr(term string, fields []string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("search requires searchable fields for a remote source")
	}
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("contains(tolower(%s),%s)", field, stringLiteral(strings.ToLower(term))))
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " or ") + ")", nil
}

func conditionExpr(cond query.FilterCondition) (string, error) {
	field := strings.TrimSpace(cond.Field)
	if field == "" {
		return "", fmt.Errorf("filter condition requires a field")
	}

	switch cond.Op {
	case query.OpEquals:
		return field + " eq " + literal(cond.Value), nil
	case query.OpNotEquals:
		return field + " ne " + literal(cond.Value), nil
	case query.OpGreaterThan:
		return field + " gt " + literal(cond.Value), nil
	case query.OpGreaterThanOrEqual:
		return field + " ge " + literal(cond.Value), nil
	case query.OpLessThan:
		return field + " lt " + literal(cond.Value), nil
	case query.OpLessThanOrEqual:
		return field + " le " + literal(cond.Value), nil
	case query.OpContains:
		return stringFnExpr("contains", field, cond.Value), nil
	case query.OpStartsWith:
		return stringFnExpr("startswith", field, cond.Value), nil
	case query.OpEndsWith:
		return stringFnExpr("endswith", field, cond.Value), nil
	case query.OpIn:
		return inExpr(field, cond.Values()), nil
	case query.OpBetween:
		return fmt.Sprintf("(%s ge %s and %s le %s)", field, literal(cond.Value), field, literal(cond.Value2)), nil
	case query.OpIsNull:
		return field + " eq null", nil
	case query.OpIsNotNull:
		return field + " ne null", nil
	case query.OpIsEmpty:
		return fmt.Sprintf("(%s eq null or %s eq '')", field, field), nil
	case query.OpIsNotEmpty:
		return fmt.Sprintf("(%s ne null and %s ne '')", field, field), nil
	default:
		return "", nil
	}
}

// stringFnExpr renders the case-insensitive string functions, matching the
// local evaluator's folded comparison.
func stringFnExpr(fn, field string, operand any) string {
	lowered := strings.ToLower(literalString(operand))
	return fmt.Sprintf("%s(tolower(%s),%s)", fn, field, stringLiteral(lowered))
}

func inExpr(field string, operands []any) string {
	literals := make([]string, 0, len(operands))
	matchEmpty := false
	for _, operand := range operands {
		if operand == nil {
			matchEmpty = true
			continue
		}
		if s, ok := operand.(string); ok && s == "" {
			matchEmpty = true
			continue
		}
		literals = append(literals, literal(operand))
	}

	var expr string
	switch len(literals) {
	case 0:
	case 1:
		expr = field + " eq " + literals[0]
	default:
		expr = field + " in (" + strings.Join(literals, ",") + ")"
	}

	if matchEmpty {
		emptyExpr := fmt.Sprintf("(%s eq null or %s eq '')", field, field)
		if expr == "" {
			return emptyExpr
		}
		return "(" + expr + " or " + emptyExpr + ")"
	}
	if expr == "" {
		// An empty operand list can never match.
		return "(" + field + " ne " + field + ")"
	}
	return expr
}

func orderByExpr(descs []query.SortDescriptor) string {
	if len(descs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(descs))
	for _, d := range descs {
		field := strings.TrimSpace(d.Field)
		if field == "" {
			continue
		}
		if d.Desc {
			parts = append(parts, field+" desc")
		} else {
			parts = append(parts, field)
		}
	}
	return strings.Join(parts, ",")
}

// applyExpr renders the $apply pipeline for grouped loads: an optional
// filter stage followed by groupby with a row count aggregate.
func applyExpr(groups []query.GroupDescriptor, filter string) string {
	fields := make([]string, 0, len(groups))
	for _, g := range groups {
		if field := strings.TrimSpace(g.Field); field != "" {
			fields = append(fields, field)
		}
	}
	groupby := fmt.Sprintf("groupby((%s),aggregate($count as Count))", strings.Join(fields, ","))
	if filter == "" {
		return groupby
	}
	return fmt.Sprintf("filter(%s)/%s", filter, groupby)
}

// literal renders a Go value as an OData v4 literal. Strings escape single
// quotes by doubling them.
func literal(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return stringLiteral(t)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case decimal.Decimal:
		return t.String()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(t)
	default:
		return stringLiteral(fmt.Sprint(t))
	}
}

// literalString renders the raw string form used inside string functions.
func literalString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func stringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
