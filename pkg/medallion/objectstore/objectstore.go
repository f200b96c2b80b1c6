// Package objectstore defines the read-only view of the bucket holding the
// raw source files.
package objectstore

import (
	"context"
	"path"
	"strings"
)

// Object is one listed key.
type Object struct {
	Key  string
	Size int64
}

// Name returns the base name of the key.
func (o Object) Name() string { return path.Base(o.Key) }

// Store lists and downloads source files.
type Store interface {
	// List returns every object under prefix, recursively, in key order.
	List(ctx context.Context, prefix string) ([]Object, error)
	// Get downloads the full contents of key. A missing key wraps
	// internalerr.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
}

// CleanPrefix normalizes a listing prefix: no leading slash, and a trailing
// slash when non-empty.
func CleanPrefix(prefix string) string {
	prefix = strings.TrimLeft(strings.TrimSpace(prefix), "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}
