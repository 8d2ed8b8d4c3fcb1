package source

import (
	"context"
	"errors"
	"testing"

	"github.com/tesseradata/tessera/config"
	"github.com/tesseradata/tessera/errs"
	"github.com/tesseradata/tessera/query"
	"github.com/tesseradata/tessera/schema"
)

func TestInsertLocalRoundTrip(t *testing.T) {
	ds := mustSource(t, localConfig())
	ctx := context.Background()

	if err := ds.Insert(ctx, schema.Row{"id": 7, "name": "Gus", "age": 19, "city": "Dallas", "active": true}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	row, err := ds.ByKey(ctx, 7)
	if err != nil {
		t.Fatalf("ByKey: %v", err)
	}
	if row["name"] != "Gus" {
		t.Fatalf("row = %v", row)
	}

	res, err := ds.Load(ctx, query.LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.TotalCount != 7 {
		t.Fatalf("TotalCount = %d, want 7", res.TotalCount)
	}
}

func TestInsertCopiesRow(t *testing.T) {
	ds := mustSource(t, localConfig())
	ctx := context.Background()

	row := schema.Row{"id": 8, "name": "Hana"}
	if err := ds.Insert(ctx, row); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	row["name"] = "changed"

	got, err := ds.ByKey(ctx, 8)
	if err != nil {
		t.Fatalf("ByKey: %v", err)
	}
	if got["name"] != "Hana" {
		t.Fatalf("stored row aliases the caller's map: %v", got)
	}
}

func TestUpdateLocalPatches(t *testing.T) {
	ds := mustSource(t, localConfig())
	ctx := context.Background()

	if err := ds.Update(ctx, 2, schema.Row{"city": "Denver"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	row, err := ds.ByKey(ctx, 2)
	if err != nil {
		t.Fatalf("ByKey: %v", err)
	}
	if row["city"] != "Denver" {
		t.Fatalf("city = %v", row["city"])
	}
	if row["name"] != "Bob" || row["age"] != 41 {
		t.Fatalf("patch clobbered untouched fields: %v", row)
	}
}

func TestRemoveLocal(t *testing.T) {
	ds := mustSource(t, localConfig())
	ctx := context.Background()

	if err := ds.Remove(ctx, 3); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, err := ds.ByKey(ctx, 3); err == nil {
		t.Fatal("removed row still found")
	}
	res, err := ds.Load(ctx, query.LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.TotalCount != 5 {
		t.Fatalf("TotalCount = %d, want 5", res.TotalCount)
	}
}

func TestMutationMissingKey(t *testing.T) {
	ds := mustSource(t, localConfig())
	ctx := context.Background()

	for _, err := range []error{
		ds.Update(ctx, 99, schema.Row{"name": "x"}),
		ds.Remove(ctx, 99),
	} {
		var e *errs.E
		if !errors.As(err, &e) {
			t.Fatalf("error %v is not *errs.E", err)
		}
		if e.Code != errs.CodeNotFound {
			t.Fatalf("code = %s, want %s", e.Code, errs.CodeNotFound)
		}
	}
}

func TestKeyedOpsRequireKeyField(t *testing.T) {
	cfg := config.Apply(config.Default(),
		config.WithData(peopleRows()),
		config.WithColumns(peopleColumns),
	)
	ds := mustSource(t, cfg)
	ctx := context.Background()

	// Insert appends without consulting the key field.
	if err := ds.Insert(ctx, schema.Row{"id": 9, "name": "Ines"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	for _, err := range []error{
		func() error { _, e := ds.ByKey(ctx, 1); return e }(),
		ds.Update(ctx, 1, schema.Row{"name": "x"}),
		ds.Remove(ctx, 1),
	} {
		var e *errs.E
		if !errors.As(err, &e) {
			t.Fatalf("error %v is not *errs.E", err)
		}
		if e.Code != errs.CodeConfig {
			t.Fatalf("code = %s, want %s", e.Code, errs.CodeConfig)
		}
	}
}

func TestMutationReplaysLastOptions(t *testing.T) {
	ds := mustSource(t, localConfig())
	ctx := context.Background()

	if _, err := ds.Load(ctx, query.LoadOptions{Take: 3}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := ds.Insert(ctx, schema.Row{"id": 7, "name": "Gus"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	st := ds.Snapshot()
	if st.LastOptions == nil || st.LastOptions.Take != 3 {
		t.Fatalf("LastOptions = %+v, want the pre-mutation page replayed", st.LastOptions)
	}
	// The appended row sits past the replayed page but is still reachable.
	if _, err := ds.ByKey(ctx, 7); err != nil {
		t.Fatalf("ByKey: %v", err)
	}
}
