package fetch

import (
	"context"
	"io"

	"github.com/cinemetrics/datasetd/internal/telemetry"
)

// InstrumentedFetcher wraps a Fetcher with telemetry: a span per fetch and
// per-scheme operation counters.
type InstrumentedFetcher struct {
	fetcher   Fetcher
	telemetry *telemetry.Telemetry
	scheme    string
}

func NewInstrumentedFetcher(f Fetcher, tel *telemetry.Telemetry, scheme string) *InstrumentedFetcher {
	return &InstrumentedFetcher{
		fetcher:   f,
		telemetry: tel,
		scheme:    scheme,
	}
}

func (f *InstrumentedFetcher) Fetch(ctx context.Context, source string) (io.ReadCloser, int64, error) {
	var body io.ReadCloser

	var length int64

	var err error

	instrumentedErr := f.telemetry.InstrumentOperation(ctx, "fetch", f.scheme, func(ctx context.Context) error {
		body, length, err = f.fetcher.Fetch(ctx, source)

		return err
	})
	if instrumentedErr != nil {
		return nil, 0, instrumentedErr
	}

	return body, length, nil
}
