package query

import "testing"

func TestNormalizeClampsWindow(t *testing.T) {
	opts := LoadOptions{Skip: -5, Take: -1, Search: "  term  "}
	norm := opts.Normalize()

	if norm.Skip != 0 || norm.Take != 0 {
		t.Fatalf("expected clamped window, got skip=%d take=%d", norm.Skip, norm.Take)
	}
	if norm.Search != "term" {
		t.Fatalf("expected trimmed search, got %q", norm.Search)
	}
	if opts.Skip != -5 {
		t.Fatalf("normalize must not mutate the receiver")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	opts := LoadOptions{
		Sort:   []SortDescriptor{{Field: "a"}},
		Filter: []FilterCondition{{Field: "b", Op: OpIn, Value: []any{1, 2}}},
	}
	clone := opts.Clone()
	clone.Sort[0].Field = "changed"
	clone.Filter[0].Value.([]any)[0] = 99

	if opts.Sort[0].Field != "a" {
		t.Fatalf("clone shares sort backing array")
	}
	if opts.Filter[0].Value.([]any)[0] != 1 {
		t.Fatalf("clone shares In operand list")
	}
}

func TestParseOperatorAliases(t *testing.T) {
	cases := map[string]Operator{
		"=":          OpEquals,
		"==":         OpEquals,
		"eq":         OpEquals,
		"<>":         OpNotEquals,
		"!=":         OpNotEquals,
		">=":         OpGreaterThanOrEqual,
		"GT":         OpGreaterThan,
		" contains ": OpContains,
		"notnull":    OpIsNotNull,
		"between":    OpBetween,
	}
	for in, want := range cases {
		got, err := ParseOperator(in)
		if err != nil {
			t.Fatalf("ParseOperator(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseOperator(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := ParseOperator("regexp"); err == nil {
		t.Fatalf("expected error for unknown operator")
	}
}

func TestOperatorValid(t *testing.T) {
	if !OpBetween.Valid() {
		t.Fatalf("between is part of the closed set")
	}
	if Operator("regexp").Valid() {
		t.Fatalf("operators outside the closed set must be invalid")
	}
}

func TestFingerprintStableAcrossEquivalentOptions(t *testing.T) {
	a := LoadOptions{Skip: -1, Take: 20, Search: " x "}
	b := LoadOptions{Skip: 0, Take: 20, Search: "x"}

	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("normalized-equal options must share a fingerprint")
	}

	c := LoadOptions{Skip: 0, Take: 21, Search: "x"}
	if a.Fingerprint() == c.Fingerprint() {
		t.Fatalf("different windows must not collide")
	}
}

func TestFilterFingerprintIgnoresPagination(t *testing.T) {
	filter := []FilterCondition{{Field: "a", Op: OpEquals, Value: 1}}
	a := LoadOptions{Skip: 0, Take: 10, Filter: filter, Search: "x"}
	b := LoadOptions{Skip: 50, Take: 25, Filter: filter, Search: "x"}

	if a.FilterFingerprint() != b.FilterFingerprint() {
		t.Fatalf("pagination must not affect the filter fingerprint")
	}

	c := LoadOptions{Filter: []FilterCondition{{Field: "a", Op: OpEquals, Value: 2}}, Search: "x"}
	if a.FilterFingerprint() == c.FilterFingerprint() {
		t.Fatalf("different filter values must produce different fingerprints")
	}
}

func TestConditionValuesNormalizesScalars(t *testing.T) {
	if got := (FilterCondition{Value: "solo"}).Values(); len(got) != 1 || got[0] != "solo" {
		t.Fatalf("scalar operand should become a single-element list, got %v", got)
	}
	if got := (FilterCondition{Value: []string{"a", "b"}}).Values(); len(got) != 2 || got[1] != "b" {
		t.Fatalf("string slice operand should widen, got %v", got)
	}
	if got := (FilterCondition{}).Values(); len(got) != 1 || got[0] != nil {
		t.Fatalf("nil operand should stay a one-element nil list, got %v", got)
	}
}
