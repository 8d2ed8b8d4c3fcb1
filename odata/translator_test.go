package odata

import (
	"testing"
	"time"

	"github.com/tesseradata/tessera/query"
)

func TestBuildQueryPagination(t *testing.T) {
	values, err := BuildQuery(query.LoadOptions{Skip: 40, Take: 20}, nil)
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	if got := values.Get("$count"); got != "true" {
		t.Fatalf("$count = %q, want true", got)
	}
	if got := values.Get("$skip"); got != "40" {
		t.Fatalf("$skip = %q, want 40", got)
	}
	if got := values.Get("$top"); got != "20" {
		t.Fatalf("$top = %q, want 20", got)
	}
}

func TestBuildQueryZeroTakeOmitsTop(t *testing.T) {
	values, err := BuildQuery(query.LoadOptions{}, nil)
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	if values.Has("$top") || values.Has("$skip") {
		t.Fatalf("unexpected paging options: %v", values)
	}
}

func TestBuildQueryOrderBy(t *testing.T) {
	values, err := BuildQuery(query.LoadOptions{
		Sort: []query.SortDescriptor{{Field: "name"}, {Field: "age", Desc: true}},
	}, nil)
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	if got := values.Get("$orderby"); got != "name,age desc" {
		t.Fatalf("$orderby = %q", got)
	}
}

func TestBuildQueryFilterExpressions(t *testing.T) {
	cases := []struct {
		name string
		cond query.FilterCondition
		want string
	}{
		{"equals string", query.FilterCondition{Field: "name", Op: query.OpEquals, Value: "O'Brien"}, "name eq 'O''Brien'"},
		{"not equals", query.FilterCondition{Field: "status", Op: query.OpNotEquals, Value: "closed"}, "status ne 'closed'"},
		{"greater than int", query.FilterCondition{Field: "age", Op: query.OpGreaterThan, Value: 30}, "age gt 30"},
		{"greater or equal float", query.FilterCondition{Field: "score", Op: query.OpGreaterThanOrEqual, Value: 0.5}, "score ge 0.5"},
		{"less than", query.FilterCondition{Field: "age", Op: query.OpLessThan, Value: 65}, "age lt 65"},
		{"less or equal", query.FilterCondition{Field: "age", Op: query.OpLessThanOrEqual, Value: 65}, "age le 65"},
		{"equals bool", query.FilterCondition{Field: "active", Op: query.OpEquals, Value: true}, "active eq true"},
		{"equals nil", query.FilterCondition{Field: "city", Op: query.OpEquals, Value: nil}, "city eq null"},
		{"contains folds case", query.FilterCondition{Field: "name", Op: query.OpContains, Value: "Ann"}, "contains(tolower(name),'ann')"},
		{"starts with", query.FilterCondition{Field: "name", Op: query.OpStartsWith, Value: "Dr"}, "startswith(tolower(name),'dr')"},
		{"ends with", query.FilterCondition{Field: "mail", Op: query.OpEndsWith, Value: ".ORG"}, "endswith(tolower(mail),'.org')"},
		{"in list", query.FilterCondition{Field: "city", Op: query.OpIn, Value: []any{"Austin", "Boston"}}, "city in ('Austin','Boston')"},
		{"in single", query.FilterCondition{Field: "city", Op: query.OpIn, Value: []any{"Austin"}}, "city eq 'Austin'"},
		{"in with null", query.FilterCondition{Field: "city", Op: query.OpIn, Value: []any{"Austin", nil}}, "(city eq 'Austin' or (city eq null or city eq ''))"},
		{"in empty list", query.FilterCondition{Field: "city", Op: query.OpIn, Value: []any{}}, "(city ne city)"},
		{"between", query.FilterCondition{Field: "age", Op: query.OpBetween, Value: 18, Value2: 65}, "(age ge 18 and age le 65)"},
		{"is null", query.FilterCondition{Field: "city", Op: query.OpIsNull}, "city eq null"},
		{"is not null", query.FilterCondition{Field: "city", Op: query.OpIsNotNull}, "city ne null"},
		{"is empty", query.FilterCondition{Field: "city", Op: query.OpIsEmpty}, "(city eq null or city eq '')"},
		{"is not empty", query.FilterCondition{Field: "city", Op: query.OpIsNotEmpty}, "(city ne null and city ne '')"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values, err := BuildQuery(query.LoadOptions{Filter: []query.FilterCondition{tc.cond}}, nil)
			if err != nil {
				t.Fatalf("BuildQuery: %v", err)
			}
			if got := values.Get("$filter"); got != tc.want {
				t.Fatalf("$filter = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildQueryTimeLiteral(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	values, err := BuildQuery(query.LoadOptions{
		Filter: []query.FilterCondition{{Field: "created", Op: query.OpGreaterThanOrEqual, Value: at}},
	}, nil)
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	if got := values.Get("$filter"); got != "created ge 2024-03-01T12:30:00Z" {
		t.Fatalf("$filter = %q", got)
	}
}

func TestBuildQueryConjunction(t *testing.T) {
	values, err := BuildQuery(query.LoadOptions{
		Filter: []query.FilterCondition{
			{Field: "age", Op: query.OpGreaterThan, Value: 21},
			{Field: "city", Op: query.OpEquals, Value: "Austin"},
		},
	}, nil)
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	want := "age gt 21 and city eq 'Austin'"
	if got := values.Get("$filter"); got != want {
		t.Fatalf("$filter = %q, want %q", got, want)
	}
}

func TestBuildQueryUnknownOperatorSkipped(t *testing.T) {
	values, err := BuildQuery(query.LoadOptions{
		Filter: []query.FilterCondition{
			{Field: "age", Op: "regex", Value: ".*"},
			{Field: "city", Op: query.OpEquals, Value: "Austin"},
		},
	}, nil)
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	if got := values.Get("$filter"); got != "city eq 'Austin'" {
		t.Fatalf("$filter = %q", got)
	}
}

func TestBuildQuerySearch(t *testing.T) {
	values, err := BuildQuery(query.LoadOptions{Search: "Ann"}, []string{"name", "city"})
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	want := "(contains(tolower(name),'ann') or contains(tolower(city),'ann'))"
	if got := values.Get("$filter"); got != want {
		t.Fatalf("$filter = %q, want %q", got, want)
	}
}

func TestBuildQuerySearchJoinsFilter(t *testing.T) {
	values, err := BuildQuery(query.LoadOptions{
		Filter: []query.FilterCondition{{Field: "age", Op: query.OpGreaterThan, Value: 21}},
		Search: "ann",
	}, []string{"name"})
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	want := "age gt 21 and contains(tolower(name),'ann')"
	if got := values.Get("$filter"); got != want {
		t.Fatalf("$filter = %q, want %q", got, want)
	}
}

func TestBuildQuerySearchRequiresFields(t *testing.T) {
	if _, err := BuildQuery(query.LoadOptions{Search: "ann"}, nil); err == nil {
		t.Fatal("expected error for search without searchable fields")
	}
}

func TestBuildQueryGrouped(t *testing.T) {
	values, err := BuildQuery(query.LoadOptions{
		Group:  []query.GroupDescriptor{{Field: "city"}},
		Filter: []query.FilterCondition{{Field: "age", Op: query.OpGreaterThan, Value: 21}},
	}, nil)
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	want := "filter(age gt 21)/groupby((city),aggregate($count as Count))"
	if got := values.Get("$apply"); got != want {
		t.Fatalf("$apply = %q, want %q", got, want)
	}
	if values.Has("$filter") {
		t.Fatal("$filter should fold into $apply for grouped loads")
	}
}

func TestBuildQueryGroupedWithoutFilter(t *testing.T) {
	values, err := BuildQuery(query.LoadOptions{
		Group: []query.GroupDescriptor{{Field: "city"}, {Field: "state"}},
	}, nil)
	if err != nil {
		t.Fatalf("BuildQuery: %v", err)
	}
	if got := values.Get("$apply"); got != "groupby((city,state),aggregate($count as Count))" {
		t.Fatalf("$apply = %q", got)
	}
}
