// Package postgres backs a custom data source with a single PostgreSQL
// table via pgx. Filters, sorts, search, and pagination push down to SQL;
// rows come back as generic maps keyed by column name.
package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tesseradata/tessera/query"
	"github.com/tesseradata/tessera/schema"
	"github.com/tesseradata/tessera/store"
)

// Config names the table and the columns the store may touch.
type Config struct {
	// Table is the table or view to read. Required.
	Table string
	// Key is the column mutations and key lookups address rows by.
	Key string
	// Columns restricts filterable and sortable columns. Empty allows any
	// identifier-shaped field.
	Columns []string
	// SearchColumns are matched by the free-text search term.
	SearchColumns []string
}

// Table serves load and mutation traffic for one table. Grouping is not
// pushed down; grouped loads read as plain pages.
type Table struct {
	pool          *pgxpool.Pool
	table         string
	key           string
	columns       map[string]bool
	searchColumns []string
}

// New validates the configuration against identifier rules and returns a
// ready store. Column names are quoted into every statement; values always
// travel as bind parameters. A nil pool is tolerated here and rejected per
// operation.
func New(pool *pgxpool.Pool, cfg Config) (*Table, error) {
	name := strings.TrimSpace(cfg.Table)
	if !identPattern.MatchString(name) {
		return nil, fmt.Errorf("postgres store: invalid table %q", cfg.Table)
	}
	t := &Table{pool: pool, table: quoteIdent(name), key: strings.TrimSpace(cfg.Key)}
	if t.key != "" && !identPattern.MatchString(t.key) {
		return nil, fmt.Errorf("postgres store: invalid key column %q", cfg.Key)
	}
	if len(cfg.Columns) > 0 {
		t.columns = make(map[string]bool, len(cfg.Columns))
		for _, c := range cfg.Columns {
			c = strings.TrimSpace(c)
			if !identPattern.MatchString(c) {
				return nil, fmt.Errorf("postgres store: invalid column %q", c)
			}
			t.columns[c] = true
		}
	}
	for _, c := range cfg.SearchColumns {
		if _, err := t.column(c); err != nil {
			return nil, err
		}
		t.searchColumns = append(t.searchColumns, strings.TrimSpace(c))
	}
	return t, nil
}

// Load pages the table. The total is counted with the same predicate the
// page is read with.
func (t *Table) Load(ctx context.Context, opts query.LoadOptions) (store.Result, error) {
	if t.pool == nil {
		return store.Result{}, fmt.Errorf("postgres store: nil pool")
	}
	b := &builder{}
	where, err := t.whereClause(b, opts)
	if err != nil {
		return store.Result{}, err
	}

	var total int
	countSQL := "SELECT count(*) FROM " + t.table + where
	if err := t.pool.QueryRow(ctx, countSQL, b.args...).Scan(&total); err != nil {
		return store.Result{}, fmt.Errorf("postgres store: count: %w", err)
	}

	order, err := t.orderClause(opts)
	if err != nil {
		return store.Result{}, err
	}
	selectSQL := "SELECT * FROM " + t.table + where + order + pageClause(b, opts)
	rows, err := t.pool.Query(ctx, selectSQL, b.args...)
	if err != nil {
		return store.Result{}, fmt.Errorf("postgres store: select: %w", err)
	}
	defer rows.Close()

	data, err := collectRows(rows)
	if err != nil {
		return store.Result{}, err
	}
	return store.Result{Data: data, Total: total}, nil
}

// Insert writes one row and returns it as stored, defaults and generated
// columns included.
func (t *Table) Insert(ctx context.Context, row schema.Row) (schema.Row, error) {
	if t.pool == nil {
		return nil, fmt.Errorf("postgres store: nil pool")
	}
	if len(row) == 0 {
		return nil, fmt.Errorf("postgres store: insert: empty row")
	}
	b := &builder{}
	cols := make([]string, 0, len(row))
	vals := make([]string, 0, len(row))
	for _, field := range sortedFields(row) {
		col, err := t.column(field)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		vals = append(vals, b.bind(row[field]))
	}
	sql := "INSERT INTO " + t.table +
		" (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ") RETURNING *"
	stored, err := t.queryOne(ctx, sql, b.args)
	if err != nil {
		return nil, fmt.Errorf("postgres store: insert: %w", err)
	}
	return stored, nil
}

// Update patches the row addressed by key and returns the stored form.
func (t *Table) Update(ctx context.Context, key any, patch schema.Row) (schema.Row, error) {
	if t.pool == nil {
		return nil, fmt.Errorf("postgres store: nil pool")
	}
	keyCol, err := t.requireKey()
	if err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, fmt.Errorf("postgres store: update: empty patch")
	}
	b := &builder{}
	sets := make([]string, 0, len(patch))
	for _, field := range sortedFields(patch) {
		col, err := t.column(field)
		if err != nil {
			return nil, err
		}
		sets = append(sets, col+" = "+b.bind(patch[field]))
	}
	sql := "UPDATE " + t.table + " SET " + strings.Join(sets, ", ") +
		" WHERE " + keyCol + " = " + b.bind(key) + " RETURNING *"
	stored, err := t.queryOne(ctx, sql, b.args)
	if err != nil {
		return nil, fmt.Errorf("postgres store: update: %w", err)
	}
	return stored, nil
}

// Remove deletes the row addressed by key.
func (t *Table) Remove(ctx context.Context, key any) error {
	if t.pool == nil {
		return fmt.Errorf("postgres store: nil pool")
	}
	keyCol, err := t.requireKey()
	if err != nil {
		return err
	}
	tag, err := t.pool.Exec(ctx, "DELETE FROM "+t.table+" WHERE "+keyCol+" = $1", key)
	if err != nil {
		return fmt.Errorf("postgres store: remove: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres store: remove: no row with key %v", key)
	}
	return nil
}

// ByKey fetches the row addressed by key.
func (t *Table) ByKey(ctx context.Context, key any) (schema.Row, error) {
	if t.pool == nil {
		return nil, fmt.Errorf("postgres store: nil pool")
	}
	keyCol, err := t.requireKey()
	if err != nil {
		return nil, err
	}
	row, err := t.queryOne(ctx, "SELECT * FROM "+t.table+" WHERE "+keyCol+" = $1 LIMIT 1", []any{key})
	if err != nil {
		return nil, fmt.Errorf("postgres store: lookup: %w", err)
	}
	return row, nil
}

func (t *Table) queryOne(ctx context.Context, sql string, args []any) (schema.Row, error) {
	rows, err := t.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no row returned")
	}
	return out[0], nil
}

func (t *Table) requireKey() (string, error) {
	if t.key == "" {
		return "", fmt.Errorf("postgres store: key column not configured")
	}
	return quoteIdent(t.key), nil
}

func collectRows(rows pgx.Rows) ([]schema.Row, error) {
	fields := rows.FieldDescriptions()
	out := []schema.Row{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres store: read row: %w", err)
		}
		row := make(schema.Row, len(fields))
		for i, fd := range fields {
			if i < len(values) {
				row[fd.Name] = normalizeValue(values[i])
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: iterate rows: %w", err)
	}
	return out, nil
}

// normalizeValue maps pgx decode products onto the value vocabulary the
// rest of the module filters and sorts on.
func normalizeValue(v any) any {
	switch n := v.(type) {
	case pgtype.Numeric:
		if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite {
			return nil
		}
		return decimal.NewFromBigInt(n.Int, n.Exp)
	case [16]byte:
		return uuid.UUID(n).String()
	default:
		return v
	}
}

func sortedFields(row schema.Row) []string {
	fields := make([]string, 0, len(row))
	for field := range row {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

var (
	_ store.Store    = (*Table)(nil)
	_ store.Inserter = (*Table)(nil)
	_ store.Updater  = (*Table)(nil)
	_ store.Remover  = (*Table)(nil)
	_ store.ByKeyer  = (*Table)(nil)
)
