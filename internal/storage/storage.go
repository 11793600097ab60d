// Package storage archives generated documents on the local filesystem or in
// an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// Providers accepted by STORAGE_PROVIDER.
const (
	ProviderLocal = "local"
	ProviderS3    = "s3"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid storage key")
)

// Storage is an object store addressed by slash separated keys.
type Storage interface {
	// Put stores data at key, replacing any previous object.
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
	// Get returns the object at key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Error wraps a failed storage operation.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// QuotePDFKey is the archive key of a quote's PDF.
// Format: quotes/{userID}/devis-{number}.pdf
func QuotePDFKey(userID uint, filename string) string {
	return fmt.Sprintf("quotes/%d/%s", userID, path.Base(filename))
}

// cleanKey rejects empty keys, absolute keys and any ".." component.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return "", ErrInvalidKey
		}
	}
	return key, nil
}

func contentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	case ".html":
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
