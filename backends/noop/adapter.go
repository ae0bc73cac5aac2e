package noop

import (
	"context"
	"io"

	"github.com/ebogdum/vizgate/backends"
)

// NoopSink discards everything. It is used when no mirror is configured.
type NoopSink struct{}

// NewNoopSink creates a new noop sink
func NewNoopSink() backends.Sink {
	return &NoopSink{}
}

func (n *NoopSink) Name() string {
	return "noop"
}

// Put drains the reader and reports success
func (n *NoopSink) Put(ctx context.Context, key string, reader io.Reader, size int64) error {
	_, err := io.Copy(io.Discard, reader)
	return err
}

func (n *NoopSink) Close() error {
	return nil
}
