package fetch

import "io"

// ProgressReader wraps an io.Reader and reports transfer progress through a
// callback every reportInterval bytes.
type ProgressReader struct {
	reader         io.Reader
	total          int64
	onProgress     func(received int64, total int64)
	received       int64
	sinceLastCall  int64
	reportInterval int64
}

func NewProgressReader(r io.Reader, total int64, interval int64, cb func(received int64, total int64)) *ProgressReader {
	return &ProgressReader{
		reader:         r,
		total:          total,
		onProgress:     cb,
		reportInterval: interval,
	}
}

func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.received += int64(n)
		pr.sinceLastCall += int64(n)

		if pr.onProgress != nil && pr.sinceLastCall >= pr.reportInterval {
			pr.onProgress(pr.received, pr.total)
			pr.sinceLastCall = 0
		}
	}

	return n, err
}

// Received returns the cumulative number of bytes read so far.
func (pr *ProgressReader) Received() int64 {
	return pr.received
}
