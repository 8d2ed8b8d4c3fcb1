package postgres

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tesseradata/tessera/query"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// builder numbers bind parameters across the statements sharing it.
type builder struct {
	args []any
}

func (b *builder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (t *Table) column(name string) (string, error) {
	name = strings.TrimSpace(name)
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("postgres store: invalid column %q", name)
	}
	if t.columns != nil && !t.columns[name] {
		return "", fmt.Errorf("postgres store: unknown column %q", name)
	}
	return quoteIdent(name), nil
}

func (t *Table) whereClause(b *builder, opts query.LoadOptions) (string, error) {
	var clauses []string
	for _, cond := range opts.Filter {
		expr, err := t.condExpr(b, cond)
		if err != nil {
			return "", err
		}
		if expr != "" {
			clauses = append(clauses, expr)
		}
	}
	if term := strings.TrimSpace(opts.Search); term != "" {
		expr, err := t.searchExpr(b, term)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, expr)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), nil
}

// condExpr renders one condition. Unknown operators render nothing, the
// same as the in-memory evaluator treating them as match-all.
func (t *Table) condExpr(b *builder, cond query.FilterCondition) (string, error) {
	col, err := t.column(cond.Field)
	if err != nil {
		return "", err
	}
	switch cond.Op {
	case query.OpEquals:
		return col + " IS NOT DISTINCT FROM " + b.bind(cond.Value), nil
	case query.OpNotEquals:
		return col + " IS DISTINCT FROM " + b.bind(cond.Value), nil
	case query.OpGreaterThan:
		return col + " > " + b.bind(cond.Value), nil
	case query.OpGreaterThanOrEqual:
		return col + " >= " + b.bind(cond.Value), nil
	case query.OpLessThan:
		return col + " < " + b.bind(cond.Value), nil
	case query.OpLessThanOrEqual:
		return col + " <= " + b.bind(cond.Value), nil
	case query.OpContains:
		return col + "::text ILIKE " + b.bind("%"+escapeLike(cond.Value)+"%"), nil
	case query.OpStartsWith:
		return col + "::text ILIKE " + b.bind(escapeLike(cond.Value)+"%"), nil
	case query.OpEndsWith:
		return col + "::text ILIKE " + b.bind("%"+escapeLike(cond.Value)), nil
	case query.OpIn:
		return inExpr(b, col, cond.Values()), nil
	case query.OpBetween:
		return "(" + col + " BETWEEN " + b.bind(cond.Value) + " AND " + b.bind(cond.Value2) + ")", nil
	case query.OpIsNull:
		return col + " IS NULL", nil
	case query.OpIsNotNull:
		return col + " IS NOT NULL", nil
	case query.OpIsEmpty:
		return "(" + col + " IS NULL OR " + col + "::text = '')", nil
	case query.OpIsNotEmpty:
		return "(" + col + " IS NOT NULL AND " + col + "::text <> '')", nil
	default:
		return "", nil
	}
}

// inExpr splits null and empty-string operands into their own branch so a
// filter panel's blank choice matches both representations.
func inExpr(b *builder, col string, values []any) string {
	var literals []string
	matchEmpty := false
	for _, v := range values {
		if v == nil || v == "" {
			matchEmpty = true
			continue
		}
		literals = append(literals, b.bind(v))
	}
	var branches []string
	if len(literals) > 0 {
		branches = append(branches, col+" IN ("+strings.Join(literals, ", ")+")")
	}
	if matchEmpty {
		branches = append(branches, "("+col+" IS NULL OR "+col+"::text = '')")
	}
	switch len(branches) {
	case 0:
		return "FALSE"
	case 1:
		return branches[0]
	default:
		return "(" + strings.Join(branches, " OR ") + ")"
	}
}

func (t *Table) searchExpr(b *builder, term string) (string, error) {
	if len(t.searchColumns) == 0 {
		return "", fmt.Errorf("postgres store: search requires search columns")
	}
	pattern := b.bind("%" + escapeLike(term) + "%")
	branches := make([]string, 0, len(t.searchColumns))
	for _, name := range t.searchColumns {
		col, err := t.column(name)
		if err != nil {
			return "", err
		}
		branches = append(branches, col+"::text ILIKE "+pattern)
	}
	if len(branches) == 1 {
		return branches[0], nil
	}
	return "(" + strings.Join(branches, " OR ") + ")", nil
}

// orderClause renders the sort. Unsorted loads order by the key column when
// one is configured; pages are unstable otherwise.
func (t *Table) orderClause(opts query.LoadOptions) (string, error) {
	if len(opts.Sort) == 0 {
		if t.key == "" {
			return "", nil
		}
		return " ORDER BY " + quoteIdent(t.key), nil
	}
	terms := make([]string, 0, len(opts.Sort))
	for _, s := range opts.Sort {
		col, err := t.column(s.Field)
		if err != nil {
			return "", err
		}
		if s.Desc {
			col += " DESC"
		}
		terms = append(terms, col)
	}
	return " ORDER BY " + strings.Join(terms, ", "), nil
}

func pageClause(b *builder, opts query.LoadOptions) string {
	var out string
	if opts.Take > 0 {
		out += " LIMIT " + b.bind(opts.Take)
	}
	if opts.Skip > 0 {
		out += " OFFSET " + b.bind(opts.Skip)
	}
	return out
}

// escapeLike neutralizes LIKE wildcards in user terms. Backslash is the
// default escape character in Postgres.
func escapeLike(v any) string {
	s := fmt.Sprint(v)
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
