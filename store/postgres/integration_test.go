package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	dbmigrations "github.com/tesseradata/tessera/db/migrations"
	"github.com/tesseradata/tessera/query"
	"github.com/tesseradata/tessera/schema"
)

var (
	testPool *pgxpool.Pool
	setupErr error
)

// TestMain provisions a throwaway Postgres when Docker is reachable. Tests
// needing it skip otherwise; the SQL builder tests run either way.
func TestMain(m *testing.M) {
	ctx := context.Background()
	code := func() int {
		req := testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "tessera"},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
		}
		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			setupErr = fmt.Errorf("start postgres container: %w", err)
			return m.Run()
		}
		defer func() { _ = container.Terminate(ctx) }()

		host, err := container.Host(ctx)
		if err != nil {
			setupErr = fmt.Errorf("container host: %w", err)
			return m.Run()
		}
		port, err := container.MappedPort(ctx, "5432/tcp")
		if err != nil {
			setupErr = fmt.Errorf("container port: %w", err)
			return m.Run()
		}
		dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/tessera?sslmode=disable", host, port.Port())

		if err := Migrate(ctx, dsn, dbmigrations.Files, nil); err != nil {
			setupErr = fmt.Errorf("apply migrations: %w", err)
			return m.Run()
		}

		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			setupErr = fmt.Errorf("pgx pool: %w", err)
			return m.Run()
		}
		defer pool.Close()
		testPool = pool
		return m.Run()
	}()
	os.Exit(code)
}

func requirePool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testPool == nil {
		t.Skipf("postgres unavailable: %v", setupErr)
	}
	return testPool
}

func seedPeople(t *testing.T, tbl *Table) map[string]any {
	t.Helper()
	ctx := context.Background()
	if _, err := testPool.Exec(ctx, "TRUNCATE people RESTART IDENTITY"); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	keys := make(map[string]any)
	for _, r := range []schema.Row{
		{"name": "Ann", "age": 34, "city": "Austin", "balance": decimal.NewFromFloat(120.5), "active": true},
		{"name": "Bob", "age": 41, "city": "Boston", "balance": decimal.NewFromFloat(80), "active": false},
		{"name": "Cleo", "age": 29, "city": "Austin", "balance": decimal.NewFromFloat(200), "active": true},
		{"name": "Dan", "age": 52, "city": nil, "balance": decimal.NewFromFloat(15.25), "active": true},
	} {
		stored, err := tbl.Insert(ctx, r)
		if err != nil {
			t.Fatalf("insert %v: %v", r["name"], err)
		}
		if stored["id"] == nil {
			t.Fatalf("stored row missing generated key: %v", stored)
		}
		keys[stored["name"].(string)] = stored["id"]
	}
	return keys
}

func TestIntegrationLoadFilterSortPage(t *testing.T) {
	pool := requirePool(t)
	tbl, err := New(pool, Config{Table: "people", Key: "id", SearchColumns: []string{"name", "city"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	seedPeople(t, tbl)
	ctx := context.Background()

	out, err := tbl.Load(ctx, query.LoadOptions{
		Filter: []query.FilterCondition{{Field: "city", Op: query.OpEquals, Value: "Austin"}},
		Sort:   []query.SortDescriptor{{Field: "age", Desc: true}},
		Take:   1,
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Total != 2 {
		t.Fatalf("Total = %d, want 2", out.Total)
	}
	if len(out.Data) != 1 || out.Data[0]["name"] != "Ann" {
		t.Fatalf("Data = %v", out.Data)
	}
	balance, ok := out.Data[0]["balance"].(decimal.Decimal)
	if !ok || !balance.Equal(decimal.NewFromFloat(120.5)) {
		t.Fatalf("balance = %v (%T)", out.Data[0]["balance"], out.Data[0]["balance"])
	}

	out, err = tbl.Load(ctx, query.LoadOptions{Search: "bos"})
	if err != nil {
		t.Fatalf("search load: %v", err)
	}
	if out.Total != 1 || out.Data[0]["name"] != "Bob" {
		t.Fatalf("search result = %+v", out)
	}

	out, err = tbl.Load(ctx, query.LoadOptions{
		Filter: []query.FilterCondition{{Field: "city", Op: query.OpIsNull}},
	})
	if err != nil {
		t.Fatalf("null filter load: %v", err)
	}
	if out.Total != 1 || out.Data[0]["name"] != "Dan" {
		t.Fatalf("null filter result = %+v", out)
	}
}

func TestIntegrationMutations(t *testing.T) {
	pool := requirePool(t)
	tbl, err := New(pool, Config{Table: "people", Key: "id"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	keys := seedPeople(t, tbl)
	ctx := context.Background()

	updated, err := tbl.Update(ctx, keys["Bob"], schema.Row{"city": "Denver"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated["city"] != "Denver" || updated["age"] != int32(41) {
		t.Fatalf("updated = %v", updated)
	}

	row, err := tbl.ByKey(ctx, keys["Bob"])
	if err != nil {
		t.Fatalf("ByKey: %v", err)
	}
	if row["city"] != "Denver" {
		t.Fatalf("row = %v", row)
	}

	if err := tbl.Remove(ctx, keys["Cleo"]); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := tbl.Remove(ctx, keys["Cleo"]); err == nil {
		t.Fatal("second remove of the same key succeeded")
	}

	out, err := tbl.Load(ctx, query.LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Total != 3 {
		t.Fatalf("Total = %d, want 3", out.Total)
	}
}
