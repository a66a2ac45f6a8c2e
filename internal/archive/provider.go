// Package archive persists raw API response snapshots before normalization,
// so a run can be replayed or audited without re-fetching.
package archive

import (
	"context"
	"strings"
)

// Provider writes raw snapshot objects. Implementations: local filesystem,
// GCS, and a no-op used when archiving is disabled.
type Provider interface {
	// Save writes data under the given object name and returns a URI for it.
	Save(ctx context.Context, objectName string, data []byte) (string, error)

	Close() error
}

// WithPrefix wraps a provider so every object name is written under the
// given prefix. An empty prefix returns the provider unchanged.
func WithPrefix(p Provider, prefix string) Provider {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return p
	}
	return prefixed{inner: p, prefix: prefix}
}

type prefixed struct {
	inner  Provider
	prefix string
}

func (p prefixed) Save(ctx context.Context, objectName string, data []byte) (string, error) {
	return p.inner.Save(ctx, p.prefix+"/"+objectName, data)
}

func (p prefixed) Close() error { return p.inner.Close() }

// NoOp discards snapshots.
type NoOp struct{}

// Save discards the data and returns an empty URI.
func (NoOp) Save(_ context.Context, _ string, _ []byte) (string, error) {
	return "", nil
}

// Close does nothing.
func (NoOp) Close() error { return nil }
