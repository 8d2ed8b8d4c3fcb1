package query

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/tesseradata/tessera/schema"
)

// Comparator orders rows by a sequence of sort descriptors. Comparison is
// type-aware: numeric columns compare numerically, date columns by instant,
// strings through a collator, with a raw string-form fallback for mixed or
// unknown values. Nil values sort last ascending and first descending.
type Comparator struct {
	accessor schema.Accessor
	collator *collate.Collator
}

// NewComparator builds a comparator over the given accessor using the
// language-neutral collation order.
func NewComparator(accessor schema.Accessor) *Comparator {
	return NewComparatorForLanguage(accessor, language.Und)
}

// NewComparatorForLanguage builds a comparator collating strings for the
// given language.
func NewComparatorForLanguage(accessor schema.Accessor, tag language.Tag) *Comparator {
	return &Comparator{
		accessor: accessor,
		collator: collate.New(tag),
	}
}

// Sort orders rows in place, stably, by the descriptors. Rows that compare
// equal on every key keep their relative order.
func (c *Comparator) Sort(rows []schema.Row, descs []SortDescriptor) {
	if len(descs) == 0 || len(rows) < 2 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return c.Compare(rows[i], rows[j], descs) < 0
	})
}

// Compare orders two rows by the descriptors, returning the usual
// negative/zero/positive contract.
func (c *Comparator) Compare(a, b schema.Row, descs []SortDescriptor) int {
	for _, desc := range descs {
		if cmp := c.compareField(a, b, desc); cmp != 0 {
			return cmp
		}
	}
	return 0
}

func (c *Comparator) compareField(a, b schema.Row, desc SortDescriptor) int {
	va, _ := c.accessor.Value(a, desc.Field)
	vb, _ := c.accessor.Value(b, desc.Field)

	cmp := c.compareTyped(va, vb, c.accessor.Type(desc.Field))
	if desc.Desc {
		cmp = -cmp
	}
	return cmp
}

// compareTyped orders two values ascending with nils greater than everything,
// so that a descending pass (negation) surfaces them first.
func (c *Comparator) compareTyped(a, b any, colType schema.Type) int {
	switch {
	case isNilValue(a) && isNilValue(b):
		return 0
	case isNilValue(a):
		return 1
	case isNilValue(b):
		return -1
	}

	switch colType {
	case schema.TypeNumber:
		if cmp, ok := compareNumeric(a, b); ok {
			return cmp
		}
	case schema.TypeDate, schema.TypeDateTime:
		if cmp, ok := compareTemporal(a, b); ok {
			return cmp
		}
	case schema.TypeString:
		return c.collator.CompareString(asString(a), asString(b))
	case schema.TypeBool:
		if cmp, ok := compareBool(a, b); ok {
			return cmp
		}
	}

	// TypeAuto and coercion misses: infer from the values themselves.
	if cmp, ok := compareInferred(a, b); ok {
		return cmp
	}
	if sa, aok := a.(string); aok {
		if sb, bok := b.(string); bok {
			return c.collator.CompareString(sa, sb)
		}
	}
	return strings.Compare(asString(a), asString(b))
}

func compareNumeric(a, b any) (int, bool) {
	da, ok := asDecimal(a)
	if !ok {
		return 0, false
	}
	db, ok := asDecimal(b)
	if !ok {
		return 0, false
	}
	return da.Cmp(db), true
}

func compareTemporal(a, b any) (int, bool) {
	ta, ok := asTime(a)
	if !ok {
		return 0, false
	}
	tb, ok := asTime(b)
	if !ok {
		return 0, false
	}
	return ta.Compare(tb), true
}

func compareBool(a, b any) (int, bool) {
	ba, aok := a.(bool)
	bb, bok := b.(bool)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case ba == bb:
		return 0, true
	case bb:
		return -1, true
	default:
		return 1, true
	}
}

// compareInferred handles untyped columns whose runtime values agree on a
// comparable kind. Strings are left to the caller's collator.
func compareInferred(a, b any) (int, bool) {
	if _, isStr := a.(string); isStr {
		return 0, false
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb), true
		}
		return 0, false
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return compareBool(ba, bb)
		}
		return 0, false
	}
	if da, ok := asDecimal(a); ok {
		if db, ok := asDecimal(b); ok {
			return da.Cmp(db), true
		}
	}
	return 0, false
}
