// Package storage persists family documents. The whole document is the unit
// of persistence: loads return the stored JSON verbatim and saves replace it,
// guarded by a version counter for optimistic concurrency.
package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("family document not found")
	ErrVersionConflict = errors.New("family document version conflict")
)

// Record is one stored family document. Doc is the raw JSON as persisted;
// schema migration happens above this layer so old shapes survive on disk
// until a write replaces them.
type Record struct {
	Slug      string
	Doc       []byte
	Version   int64
	CreatedAt string
	UpdatedAt string
}

// Store is the document persistence seam. Save with baseVersion 0 inserts a
// new document; any other baseVersion must match the stored version or the
// save fails with ErrVersionConflict. Slugs enumerates every stored family
// for the export worker's catch-up sweep.
type Store interface {
	Load(ctx context.Context, slug string) (Record, error)
	Save(ctx context.Context, slug string, doc []byte, baseVersion int64) (Record, error)
	Slugs(ctx context.Context) ([]string, error)
	Close() error
}
