// Package backends provides destinations that produced export archives are
// mirrored to, such as S3 object storage.
package backends

import (
	"context"
	"io"
)

// Sink receives copies of export files
type Sink interface {
	// Name identifies the sink in logs and metrics
	Name() string

	// Put stores size bytes from reader under key
	Put(ctx context.Context, key string, reader io.Reader, size int64) error

	// Close closes any resources used by the sink
	Close() error
}
