package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/tesseradata/tessera/config"
	"github.com/tesseradata/tessera/errs"
	"github.com/tesseradata/tessera/query"
	"github.com/tesseradata/tessera/schema"
	"github.com/tesseradata/tessera/store"
)

// Insert adds a row. On the Local variant the row is appended to the
// backing slice and a full Reload runs before returning; on Custom the
// store's Inserter capability is used and the cache is invalidated. The
// remote variant does not support mutation.
func (ds *DataSource) Insert(ctx context.Context, row schema.Row) error {
	switch ds.kind {
	case config.KindLocal:
		// Writers replace the slice and never patch shared row maps, so
		// loads that grabbed the previous snapshot keep reading it safely.
		ds.mu.Lock()
		next := make([]schema.Row, 0, len(ds.data)+1)
		next = append(next, ds.data...)
		ds.data = append(next, row.Clone())
		ds.mu.Unlock()
		return ds.reloadAfterMutation(ctx)
	case config.KindCustom:
		inserter, ok := ds.custom.(store.Inserter)
		if !ok {
			return errs.NotSupported("source", errs.CodeInsert, "insert")
		}
		if _, err := inserter.Insert(ctx, row); err != nil {
			return classifyStoreError(err, errs.CodeInsert, "insert")
		}
		ds.ClearCache()
		return nil
	default:
		return errs.NotSupported("source", errs.CodeInsert, "insert")
	}
}

// Update patches the row identified by key. Local rows are located by a
// linear scan over the configured key field and patched in place, followed
// by a full Reload.
func (ds *DataSource) Update(ctx context.Context, key any, patch schema.Row) error {
	switch ds.kind {
	case config.KindLocal:
		if e := ds.patchLocal(key, patch); e != nil {
			return e
		}
		return ds.reloadAfterMutation(ctx)
	case config.KindCustom:
		updater, ok := ds.custom.(store.Updater)
		if !ok {
			return errs.NotSupported("source", errs.CodeEdit, "update")
		}
		if _, err := updater.Update(ctx, key, patch); err != nil {
			return classifyStoreError(err, errs.CodeEdit, "update")
		}
		ds.ClearCache()
		return nil
	default:
		return errs.NotSupported("source", errs.CodeEdit, "update")
	}
}

// Remove deletes the row identified by key, with the same per-variant
// behavior as Update.
func (ds *DataSource) Remove(ctx context.Context, key any) error {
	switch ds.kind {
	case config.KindLocal:
		if e := ds.removeLocal(key); e != nil {
			return e
		}
		return ds.reloadAfterMutation(ctx)
	case config.KindCustom:
		remover, ok := ds.custom.(store.Remover)
		if !ok {
			return errs.NotSupported("source", errs.CodeDelete, "remove")
		}
		if err := remover.Remove(ctx, key); err != nil {
			return classifyStoreError(err, errs.CodeDelete, "remove")
		}
		ds.ClearCache()
		return nil
	default:
		return errs.NotSupported("source", errs.CodeDelete, "remove")
	}
}

// ByKey fetches a single row by key without touching the network: the
// custom store's ByKeyer capability when present, the full backing slice on
// Local, and the most recently loaded page otherwise.
func (ds *DataSource) ByKey(ctx context.Context, key any) (schema.Row, error) {
	if ds.kind == config.KindCustom {
		if byKeyer, ok := ds.custom.(store.ByKeyer); ok {
			row, err := byKeyer.ByKey(ctx, key)
			if err == nil {
				return row, nil
			}
			if !errors.Is(err, store.ErrNotImplemented) {
				return nil, classifyStoreError(err, errs.CodeNotFound, "lookup by key")
			}
		}
	}

	keyField, e := ds.keyField()
	if e != nil {
		return nil, e
	}

	ds.mu.RLock()
	defer ds.mu.RUnlock()
	rows := ds.last
	if ds.kind == config.KindLocal {
		rows = ds.data
	}
	for _, row := range rows {
		if query.EqualValues(row[keyField], key) {
			return row.Clone(), nil
		}
	}
	return nil, keyNotFound(key)
}

func (ds *DataSource) patchLocal(key any, patch schema.Row) *errs.E {
	keyField, e := ds.keyField()
	if e != nil {
		return e
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for i, row := range ds.data {
		if query.EqualValues(row[keyField], key) {
			next := append([]schema.Row(nil), ds.data...)
			patched := row.Clone()
			for k, v := range patch {
				patched[k] = v
			}
			next[i] = patched
			ds.data = next
			return nil
		}
	}
	return keyNotFound(key)
}

func (ds *DataSource) removeLocal(key any) *errs.E {
	keyField, e := ds.keyField()
	if e != nil {
		return e
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for i, row := range ds.data {
		if query.EqualValues(row[keyField], key) {
			next := make([]schema.Row, 0, len(ds.data)-1)
			next = append(next, ds.data[:i]...)
			ds.data = append(next, ds.data[i+1:]...)
			return nil
		}
	}
	return keyNotFound(key)
}

// reloadAfterMutation replays the last load so callers observe the mutated
// set. A reload failure is the mutation's failure: the write happened, the
// refreshed view did not.
func (ds *DataSource) reloadAfterMutation(ctx context.Context) error {
	if _, err := ds.Reload(ctx); err != nil {
		return err
	}
	return nil
}

func (ds *DataSource) keyField() (string, *errs.E) {
	if ds.cfg.Key == "" {
		return "", errs.New("source", errs.CodeConfig,
			errs.WithMessage("operation requires a configured key field"))
	}
	return ds.cfg.Key, nil
}

func keyNotFound(key any) *errs.E {
	return errs.New("source", errs.CodeNotFound,
		errs.WithField("key", fmt.Sprint(key)))
}
