// Package store defines the contract custom data-source backends implement.
// Load is the only required operation; mutation and key lookup are optional
// capabilities discovered by interface assertion.
package store

import (
	"context"
	"errors"

	"github.com/tesseradata/tessera/query"
	"github.com/tesseradata/tessera/schema"
)

// ErrNotImplemented reports that a backend declares a capability interface
// but does not back the specific operation. Callers treat it the same as a
// missing capability.
var ErrNotImplemented = errors.New("store: operation not implemented")

// Result is what a custom backend returns from Load. A negative Total means
// the backend did not count; the orchestrator falls back to len(Data).
type Result struct {
	Data  []schema.Row
	Total int
}

// Store loads rows for the given options. Implementations decide how much of
// the options they honor; whatever they ignore is visible to callers as
// unfiltered or unpaged data.
type Store interface {
	Load(ctx context.Context, opts query.LoadOptions) (Result, error)
}

// Inserter adds a row and returns the stored form.
type Inserter interface {
	Insert(ctx context.Context, row schema.Row) (schema.Row, error)
}

// Updater patches the row identified by key and returns the stored form.
type Updater interface {
	Update(ctx context.Context, key any, patch schema.Row) (schema.Row, error)
}

// Remover deletes the row identified by key.
type Remover interface {
	Remove(ctx context.Context, key any) error
}

// ByKeyer fetches a single row by key.
type ByKeyer interface {
	ByKey(ctx context.Context, key any) (schema.Row, error)
}

// Funcs adapts plain callbacks into a Store, for callers that configure
// backends with closures instead of types. Operations whose callback is nil
// fail with ErrNotImplemented.
type Funcs struct {
	LoadFunc   func(ctx context.Context, opts query.LoadOptions) (Result, error)
	InsertFunc func(ctx context.Context, row schema.Row) (schema.Row, error)
	UpdateFunc func(ctx context.Context, key any, patch schema.Row) (schema.Row, error)
	RemoveFunc func(ctx context.Context, key any) error
	ByKeyFunc  func(ctx context.Context, key any) (schema.Row, error)
}

func (f Funcs) Load(ctx context.Context, opts query.LoadOptions) (Result, error) {
	if f.LoadFunc == nil {
		return Result{}, ErrNotImplemented
	}
	return f.LoadFunc(ctx, opts)
}

func (f Funcs) Insert(ctx context.Context, row schema.Row) (schema.Row, error) {
	if f.InsertFunc == nil {
		return nil, ErrNotImplemented
	}
	return f.InsertFunc(ctx, row)
}

func (f Funcs) Update(ctx context.Context, key any, patch schema.Row) (schema.Row, error) {
	if f.UpdateFunc == nil {
		return nil, ErrNotImplemented
	}
	return f.UpdateFunc(ctx, key, patch)
}

func (f Funcs) Remove(ctx context.Context, key any) error {
	if f.RemoveFunc == nil {
		return ErrNotImplemented
	}
	return f.RemoveFunc(ctx, key)
}

func (f Funcs) ByKey(ctx context.Context, key any) (schema.Row, error) {
	if f.ByKeyFunc == nil {
		return nil, ErrNotImplemented
	}
	return f.ByKeyFunc(ctx, key)
}
