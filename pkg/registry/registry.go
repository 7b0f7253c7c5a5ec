package registry

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no payload exists for a content address.
var ErrNotFound = errors.New("content not found")

// Registry is a content-addressed byte store. Upload returns the address
// derived from the payload; payloads are immutable once stored.
type Registry interface {
	Upload(ctx context.Context, r io.Reader) (string, error)
	Fetch(ctx context.Context, address string) (io.ReadCloser, error)
}
