// Package storage keeps uploaded and generated files (purchase order scans,
// rendered quotations) in an object store.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// Object is a stored file.
type Object struct {
	Key         string
	ContentType string
	Data        []byte
}

// Store persists objects by key. Put returns the reference callers keep.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) (Object, error)
}

// NewKey builds a collision-free key under prefix that keeps the extension
// of filename.
func NewKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, "\\", "/")))
	if len(ext) > 10 || strings.ContainsAny(ext, " /?#%") {
		ext = ""
	}
	return path.Join(strings.Trim(prefix, "/"), uuid.NewString()+ext)
}
