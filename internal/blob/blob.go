// Package blob abstracts object storage for re-hosted media assets.
package blob

import (
	"context"
	"io"
)

// Store persists binary objects and returns a URL the chat platform can
// fetch them from.
type Store interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
