// Package storage stores backup artifacts on the local filesystem or in an
// S3-compatible object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

var (
	ErrNotFound             = errors.New("object not found")
	ErrSignedURLUnsupported = errors.New("storage backend cannot sign download URLs")
	ErrInvalidName          = errors.New("invalid object name")
)

// Object describes a committed artifact.
type Object struct {
	Name string
	Size int64
	// LocalPath is set for artifacts kept on the local filesystem.
	LocalPath string
}

type UploadHooks struct {
	// OnProgress receives the running byte count after each write.
	OnProgress func(written int64)
	// OnFinish runs once the artifact is committed, before Close returns.
	OnFinish func(Object)
}

// Upload is a streaming write of one artifact. Close commits it;
// CloseWithError discards whatever was written.
type Upload interface {
	io.WriteCloser
	CloseWithError(err error) error
}

// Backend is implemented by Local and S3.
type Backend interface {
	Upload(ctx context.Context, name, contentType string, hooks UploadHooks) (Upload, error)
	// Download returns the artifact and its size.
	Download(ctx context.Context, name string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, name string) error
	SignedURL(ctx context.Context, name string, ttl time.Duration) (string, error)
	// LocalPath returns the artifact's path on disk, or "" for remote backends.
	LocalPath(name string) string
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
