package state

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"git.home.luguber.info/inful/statekeep/internal/cache"
	"git.home.luguber.info/inful/statekeep/internal/foundation/errors"
)

// Document is a JSON state file of type T with a read-through cache. Reads
// never take the lock; writes go through the Writer. Values handed to Save or
// returned by Load are shared with the cache and must be treated as read-only.
type Document[T any] struct {
	resource string
	path     string
	writer   *Writer
	cache    *cache.ReadCache[T]
}

// NewDocument binds path to resource. A non-positive ttl uses cache.DefaultTTL.
func NewDocument[T any](w *Writer, resource, path string, ttl time.Duration, opts ...cache.Option) *Document[T] {
	return &Document[T]{
		resource: resource,
		path:     path,
		writer:   w,
		cache:    cache.New[T](ttl, opts...),
	}
}

// Path returns the file path.
func (d *Document[T]) Path() string { return d.path }

// Resource returns the lock name guarding the file.
func (d *Document[T]) Resource() string { return d.resource }

// Cache exposes the read cache, mainly for status reporting.
func (d *Document[T]) Cache() *cache.ReadCache[T] { return d.cache }

// Load returns the cached value or reads and decodes the file. A missing or
// empty file yields the zero value.
func (d *Document[T]) Load(ctx context.Context) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	return d.cache.GetOrLoad(func() (T, error) {
		current, _, err := readIfExists(d.path)
		if err != nil {
			var zero T
			return zero, err
		}
		return d.decode(current)
	})
}

// Save commits v and refreshes the cache before the lock is released, so
// the cache never holds an older value than the file.
func (d *Document[T]) Save(ctx context.Context, v T) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	return d.writer.commit(ctx, d.resource, d.path,
		func() ([]byte, error) { return data, nil },
		func() { d.cache.Set(v) })
}

// Update decodes the current file, applies fn and commits the result under
// the resource lock. The committed value is returned and cached under the
// same lock. fn may
// return ErrNoChange to skip the write.
func (d *Document[T]) Update(ctx context.Context, fn func(*T) error) (T, error) {
	var result T
	err := d.writer.update(ctx, d.resource, d.path, func(current []byte, _ bool) ([]byte, error) {
		v, err := d.decode(current)
		if err != nil {
			return nil, err
		}
		result = v
		if err := fn(&v); err != nil {
			return nil, err
		}
		result = v
		return encode(v)
	}, func() { d.cache.Set(result) })
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Invalidate drops the cached value.
func (d *Document[T]) Invalidate() { d.cache.Invalidate() }

func (d *Document[T]) decode(data []byte) (T, error) {
	var v T
	if len(bytes.TrimSpace(data)) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, errors.NewError(errors.CategoryFileSystem, "failed to decode state document").
			WithCause(err).
			WithContext("path", d.path).
			Build()
	}
	return v, nil
}

func encode(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "failed to marshal state document").Build()
	}
	return append(data, '\n'), nil
}
