package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
)

// Fetcher retrieves the bytes of a remote dataset. The returned length is the
// expected total size when the transport knows it, or -1.
type Fetcher interface {
	Fetch(ctx context.Context, source string) (io.ReadCloser, int64, error)
}

// Registry resolves a fetcher by source scheme.
type Registry struct {
	fetchers map[string]Fetcher
}

func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[string]Fetcher)}
}

// Register binds a fetcher to a URL scheme, replacing any previous binding.
func (r *Registry) Register(scheme string, f Fetcher) {
	r.fetchers[scheme] = f
}

// For returns the fetcher responsible for the source's scheme.
func (r *Registry) For(source string) (Fetcher, error) {
	u, err := url.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("invalid source %q: %w", source, err)
	}

	f, ok := r.fetchers[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for scheme %q", u.Scheme)
	}

	return f, nil
}
