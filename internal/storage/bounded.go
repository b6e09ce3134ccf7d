package storage

import (
	"context"
	"time"

	"salesbot/pkg"
)

// BoundedStore gives every CRMStore call its own deadline, so a slow store
// cannot hold a turn for longer than timeout per call
type BoundedStore struct {
	inner   CRMStore
	timeout time.Duration
}

// NewBoundedStore wraps store. A non-positive timeout returns store unchanged.
func NewBoundedStore(store CRMStore, timeout time.Duration) CRMStore {
	if timeout <= 0 {
		return store
	}
	return &BoundedStore{inner: store, timeout: timeout}
}

func (b *BoundedStore) Query(ctx context.Context, q Query) (*QueryResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.inner.Query(ctx, q)
}

func (b *BoundedStore) Get(ctx context.Context, table string, id int64) (pkg.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.inner.Get(ctx, table, id)
}

func (b *BoundedStore) Create(ctx context.Context, table string, fields pkg.Record) (pkg.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.inner.Create(ctx, table, fields)
}

func (b *BoundedStore) Update(ctx context.Context, table string, id int64, fields pkg.Record) (pkg.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.inner.Update(ctx, table, id, fields)
}

func (b *BoundedStore) Delete(ctx context.Context, table string, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.inner.Delete(ctx, table, id)
}
