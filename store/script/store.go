package script

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/dop251/goja"

	"github.com/tesseradata/tessera/query"
	"github.com/tesseradata/tessera/schema"
	"github.com/tesseradata/tessera/store"
)

var errMissingExport = errors.New("script store: export missing")

// Store runs one module on its own runtime. The engine is not goroutine
// safe, so every call is serialized onto a single store goroutine.
type Store struct {
	module  *Module
	rt      *goja.Runtime
	exports *goja.Object
	queue   chan func()
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	once    sync.Once
}

// New evaluates the module on a fresh runtime and starts the call loop.
func New(module *Module) (*Store, error) {
	if module == nil {
		return nil, fmt.Errorf("script store: module required")
	}
	rt := goja.New()
	exports, err := runModule(rt, module.program)
	if err != nil {
		return nil, fmt.Errorf("script store: execute %s: %w", module.name, err)
	}
	s := &Store{module: module, rt: rt, exports: exports, queue: make(chan func())}
	s.wg.Add(1)
	go s.loop()
	return s, nil
}

func (s *Store) loop() {
	defer s.wg.Done()
	for cb := range s.queue {
		cb()
	}
}

type callResult struct {
	value any
	err   error
}

// call invokes the named export on the store goroutine and exports the
// return value to plain Go data before handing it back.
func (s *Store) call(ctx context.Context, fn string, args ...any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wait := make(chan callResult, 1)

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("script store: closed")
	}
	s.queue <- func() {
		value, err := s.invoke(fn, args)
		var exported any
		if err == nil && value != nil {
			exported = value.Export()
		}
		wait <- callResult{value: exported, err: err}
	}
	s.mu.RUnlock()

	select {
	case out := <-wait:
		return out.value, out.err
	case <-ctx.Done():
		// The script runs to completion; only the wait is abandoned.
		return nil, ctx.Err()
	}
}

func (s *Store) invoke(fn string, args []any) (goja.Value, error) {
	value := s.exports.Get(fn)
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, errMissingExport
	}
	callable, ok := goja.AssertFunction(value)
	if !ok {
		return nil, fmt.Errorf("script store: export %q not callable", fn)
	}
	params := make([]goja.Value, len(args))
	for i, arg := range args {
		params[i] = s.rt.ToValue(arg)
	}
	out, err := callable(goja.Undefined(), params...)
	if err != nil {
		return nil, fmt.Errorf("script store: %s: %w", fn, err)
	}
	return out, nil
}

// Load calls the module's load export with the options as a plain object.
// The script may return a bare array or a {data, total} envelope.
func (s *Store) Load(ctx context.Context, opts query.LoadOptions) (store.Result, error) {
	out, err := s.call(ctx, "load", opts)
	if err != nil {
		return store.Result{}, err
	}
	return shapeResult(out)
}

// Insert calls the module's insert export.
func (s *Store) Insert(ctx context.Context, row schema.Row) (schema.Row, error) {
	out, err := s.call(ctx, "insert", row)
	if err != nil {
		return nil, capability(err)
	}
	return shapeRow(out, row)
}

// Update calls the module's update export.
func (s *Store) Update(ctx context.Context, key any, patch schema.Row) (schema.Row, error) {
	out, err := s.call(ctx, "update", key, patch)
	if err != nil {
		return nil, capability(err)
	}
	return shapeRow(out, nil)
}

// Remove calls the module's remove export.
func (s *Store) Remove(ctx context.Context, key any) error {
	if _, err := s.call(ctx, "remove", key); err != nil {
		return capability(err)
	}
	return nil
}

// ByKey calls the module's byKey export. A null or undefined return reads
// as key not found.
func (s *Store) ByKey(ctx context.Context, key any) (schema.Row, error) {
	out, err := s.call(ctx, "byKey", key)
	if err != nil {
		return nil, capability(err)
	}
	if out == nil {
		return nil, fmt.Errorf("script store: byKey: no row for key %v", key)
	}
	row, err := toRow(out)
	if err != nil {
		return nil, fmt.Errorf("script store: byKey: %w", err)
	}
	return row, nil
}

// Close stops the call loop. Calls after Close fail.
func (s *Store) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		s.wg.Wait()
	})
	return nil
}

func capability(err error) error {
	if errors.Is(err, errMissingExport) {
		return store.ErrNotImplemented
	}
	return err
}

func shapeResult(v any) (store.Result, error) {
	switch out := v.(type) {
	case nil:
		return store.Result{Total: -1}, nil
	case []any:
		rows, err := toRows(out)
		if err != nil {
			return store.Result{}, fmt.Errorf("script store: load: %w", err)
		}
		return store.Result{Data: rows, Total: -1}, nil
	case map[string]any:
		res := store.Result{Total: -1}
		if raw, ok := out["data"]; ok && raw != nil {
			list, ok := raw.([]any)
			if !ok {
				return store.Result{}, fmt.Errorf("script store: load: data is %T, want an array", raw)
			}
			rows, err := toRows(list)
			if err != nil {
				return store.Result{}, fmt.Errorf("script store: load: %w", err)
			}
			res.Data = rows
		}
		if raw, ok := out["total"]; ok && raw != nil {
			n, ok := asInt(raw)
			if !ok {
				return store.Result{}, fmt.Errorf("script store: load: total is %T, want a number", raw)
			}
			res.Total = n
		}
		return res, nil
	default:
		return store.Result{}, fmt.Errorf("script store: load returned %T, want rows or a {data, total} envelope", v)
	}
}

// shapeRow turns a mutation's return value into a row. Scripts that return
// nothing fall back to the row the caller supplied.
func shapeRow(v any, fallback schema.Row) (schema.Row, error) {
	if v == nil {
		return fallback, nil
	}
	row, err := toRow(v)
	if err != nil {
		return nil, fmt.Errorf("script store: %w", err)
	}
	return row, nil
}

func toRows(list []any) ([]schema.Row, error) {
	rows := make([]schema.Row, 0, len(list))
	for i, item := range list {
		row, err := toRow(item)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func toRow(v any) (schema.Row, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("value is %T, want an object", v)
	}
	return schema.Row(m), nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

var (
	_ store.Store    = (*Store)(nil)
	_ store.Inserter = (*Store)(nil)
	_ store.Updater  = (*Store)(nil)
	_ store.Remover  = (*Store)(nil)
	_ store.ByKeyer  = (*Store)(nil)
)
