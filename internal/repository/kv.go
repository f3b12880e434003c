package repository

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// ListPage is one page of a key enumeration. Cursor is opaque and only
// meaningful to the driver that produced it.
type ListPage struct {
	Keys     []string
	Cursor   string
	Complete bool
}

// KV is the external key-value collaborator records live in. Listing may lag
// behind writes.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, cursor string, limit int) (*ListPage, error)
}
