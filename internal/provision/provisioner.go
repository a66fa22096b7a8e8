// Package provision guarantees that the datasets named by the catalog exist
// on local disk and are valid before anything data-dependent runs.
package provision

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/cinemetrics/datasetd/internal/dataset"
	"github.com/cinemetrics/datasetd/internal/fetch"
	"github.com/cinemetrics/datasetd/internal/logctx"
	"github.com/cinemetrics/datasetd/internal/storage"
	"github.com/cinemetrics/datasetd/internal/telemetry"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	dirPerm = 0755

	progressInterval = int64(64 * 1024 * 1024) // 64MB
)

// Provisioner performs the check-then-fetch-then-install sequence for
// dataset specs. Concurrent calls for the same dataset id coalesce into a
// single download; the atomic rename on install is the only cross-process
// guarantee.
type Provisioner struct {
	dataDir     string
	fetchers    *fetch.Registry
	recorder    storage.ProvisionWriteRepository
	tel         *telemetry.Telemetry
	maxParallel int
	instanceID  string

	// Retry policy for transient fetch failures. Not-found and integrity
	// failures are never retried.
	MaxAttempts          uint
	RetryInitialInterval time.Duration

	group singleflight.Group
}

func NewProvisioner(
	dataDir string,
	fetchers *fetch.Registry,
	recorder storage.ProvisionWriteRepository,
	tel *telemetry.Telemetry,
	maxParallel int,
) *Provisioner {
	if maxParallel < 1 {
		maxParallel = 1
	}

	return &Provisioner{
		dataDir:              dataDir,
		fetchers:             fetchers,
		recorder:             recorder,
		tel:                  tel,
		maxParallel:          maxParallel,
		instanceID:           storage.GenerateInstanceID(),
		MaxAttempts:          3,
		RetryInitialInterval: 500 * time.Millisecond,
	}
}

// TargetPath returns the final install path for a non-archive spec.
func (p *Provisioner) TargetPath(spec dataset.Spec) string {
	return filepath.Join(p.dataDir, spec.Filename)
}

// Ensure guarantees the dataset exists at its target path and is valid.
// It blocks until the dataset is usable or the attempt failed; a valid
// cached copy is answered with zero network I/O. The returned error, when
// non-nil, is also carried in the result.
func (p *Provisioner) Ensure(ctx context.Context, spec dataset.Spec) (*dataset.Result, error) {
	v, _, _ := p.group.Do(spec.ID, func() (interface{}, error) {
		return p.ensure(ctx, spec), nil
	})

	res := v.(*dataset.Result)

	return res, res.Err
}

// EnsureAll provisions every spec with bounded parallelism. All specs are
// attempted even when some fail; the first failure is returned after the
// whole catalog has been tried.
func (p *Provisioner) EnsureAll(ctx context.Context, specs []dataset.Spec) ([]*dataset.Result, error) {
	results := make([]*dataset.Result, len(specs))

	var wg errgroup.Group

	sem := make(chan struct{}, p.maxParallel)

	for i := range specs {
		idx := i
		spec := specs[i]
		sem <- struct{}{}

		wg.Go(func() error {
			defer func() { <-sem }() // release the slot

			res, err := p.Ensure(ctx, spec)
			results[idx] = res

			return err
		})
	}

	if err := wg.Wait(); err != nil {
		return results, fmt.Errorf("failed to provision datasets: %w", err)
	}

	return results, nil
}

func (p *Provisioner) ensure(ctx context.Context, spec dataset.Spec) *dataset.Result {
	start := time.Now()
	logger := logctx.LoggerFromContext(ctx).With("dataset_id", spec.ID)
	res := &dataset.Result{DatasetID: spec.ID}

	defer func() {
		res.Duration = time.Since(start)
		p.tel.RecordProvision(string(res.Outcome), string(res.Reason), res.Duration)
		p.record(ctx, res)
	}()

	if err := spec.Validate(); err != nil {
		res.Outcome = dataset.OutcomeFailed
		res.Err = err

		return res
	}

	present, err := p.validateExisting(ctx, spec)
	if err != nil {
		return p.fail(res, err)
	}

	if present {
		logger.DebugContext(ctx, "dataset already present and valid")

		res.Outcome = dataset.OutcomeAlreadyPresent

		return res
	}

	if err := os.MkdirAll(p.dataDir, dirPerm); err != nil {
		return p.fail(res, &dataset.WriteError{Path: p.dataDir, Op: "mkdir", Err: err})
	}

	fetcher, err := p.fetchers.For(spec.Source)
	if err != nil {
		return p.fail(res, err)
	}

	p.tel.IncrementActiveDownloads()
	defer p.tel.DecrementActiveDownloads()

	operation := func() (int64, error) {
		n, err := p.downloadAndInstall(ctx, spec, fetcher)
		if err != nil && !dataset.Retryable(err) {
			return 0, backoff.Permanent(err)
		}

		return n, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.RetryInitialInterval

	written, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(p.MaxAttempts),
	)
	if err != nil {
		logger.ErrorContext(ctx, "provisioning failed", "source", spec.Source, "err", err)

		return p.fail(res, err)
	}

	res.Outcome = dataset.OutcomeDownloaded
	res.Bytes = written
	p.tel.AddDownloadedBytes(written)

	logger.InfoContext(ctx, "dataset installed",
		"source", spec.Source,
		"bytes", humanize.Bytes(uint64(written)),
	)

	return res
}

// validateExisting reports whether a valid cache entry already exists.
// An entry that exists but fails validation is reported absent so the caller
// re-fetches; the stale file stays in place until the replacing rename.
func (p *Provisioner) validateExisting(ctx context.Context, spec dataset.Spec) (bool, error) {
	logger := logctx.LoggerFromContext(ctx)

	if spec.IsArchive() {
		for _, member := range spec.ExtractMembers {
			info, err := os.Stat(filepath.Join(p.dataDir, member))
			if err != nil {
				if os.IsNotExist(err) {
					return false, nil
				}

				return false, &dataset.WriteError{Path: member, Op: "stat", Err: err}
			}

			if info.IsDir() {
				return false, nil
			}
		}

		return true, nil
	}

	target := p.TargetPath(spec)

	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, &dataset.WriteError{Path: target, Op: "stat", Err: err}
	}

	if info.IsDir() {
		return false, nil
	}

	if spec.Size > 0 && info.Size() != spec.Size {
		logger.WarnContext(ctx, "cached dataset failed size validation, refetching",
			"path", target, "size", info.Size(), "expected", spec.Size)

		return false, nil
	}

	if !spec.Checksum.IsZero() {
		ok, err := checksumMatches(target, spec.Checksum)
		if err != nil {
			return false, err
		}

		if !ok {
			logger.WarnContext(ctx, "cached dataset failed checksum validation, refetching",
				"path", target, "expected", spec.Checksum.String())

			return false, nil
		}
	}

	return true, nil
}

// downloadAndInstall performs one fetch attempt: stream to a temporary file
// in the target directory, verify, then atomically rename into place (or
// extract, for archive specs). No failure path leaves a partial file at the
// final location.
func (p *Provisioner) downloadAndInstall(ctx context.Context, spec dataset.Spec, fetcher fetch.Fetcher) (int64, error) {
	logger := logctx.LoggerFromContext(ctx).With("dataset_id", spec.ID)
	target := p.TargetPath(spec)

	body, total, err := fetcher.Fetch(ctx, spec.Source)
	if err != nil {
		return 0, err
	}

	defer body.Close()

	tmp, err := os.CreateTemp(p.dataDir, "."+spec.Filename+".part-")
	if err != nil {
		return 0, &dataset.WriteError{Path: p.dataDir, Op: "create", Err: err}
	}

	tmpPath := tmp.Name()
	installed := false

	defer func() {
		tmp.Close()

		if !installed {
			os.Remove(tmpPath)
		}
	}()

	if total > 0 {
		logger.InfoContext(ctx, "downloading dataset", "source", spec.Source, "size", humanize.Bytes(uint64(total)))
	} else {
		logger.InfoContext(ctx, "downloading dataset", "source", spec.Source)
	}

	var hasher hash.Hash

	var w io.Writer = tmp

	if !spec.Checksum.IsZero() {
		hasher = spec.Checksum.NewHash()
		w = io.MultiWriter(tmp, hasher)
	}

	pr := fetch.NewProgressReader(body, total, progressInterval, func(received, totalBytes int64) {
		if totalBytes > 0 {
			logger.DebugContext(ctx, "download progress",
				"received", humanize.Bytes(uint64(received)),
				"total", humanize.Bytes(uint64(totalBytes)),
				"percent", humanize.FtoaWithDigits(float64(received)*100/float64(totalBytes), 2))
		} else {
			logger.DebugContext(ctx, "download progress", "received", humanize.Bytes(uint64(received)))
		}
	})

	written, err := io.Copy(w, pr)
	if err != nil {
		return written, &dataset.InterruptedError{Source: spec.Source, Bytes: written, Err: err}
	}

	if total > 0 && written != total {
		return written, &dataset.InterruptedError{Source: spec.Source, Bytes: written, Err: io.ErrUnexpectedEOF}
	}

	if spec.Size > 0 && written != spec.Size {
		return written, &dataset.IntegrityError{Path: target, WantSize: spec.Size, GotSize: written}
	}

	if hasher != nil {
		got := hex.EncodeToString(hasher.Sum(nil))
		if !spec.Checksum.Matches(got) {
			return written, &dataset.IntegrityError{
				Path: target,
				Algo: spec.Checksum.Algo,
				Want: spec.Checksum.Hex,
				Got:  got,
			}
		}
	}

	if err := tmp.Sync(); err != nil {
		return written, &dataset.WriteError{Path: tmpPath, Op: "write", Err: err}
	}

	if err := tmp.Close(); err != nil {
		return written, &dataset.WriteError{Path: tmpPath, Op: "write", Err: err}
	}

	if spec.IsArchive() {
		// The verified archive is only a vehicle for its members; the
		// deferred cleanup removes it after extraction.
		return written, extractMembers(tmpPath, p.dataDir, spec.ExtractMembers)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		return written, &dataset.WriteError{Path: target, Op: "rename", Err: err}
	}

	installed = true

	return written, nil
}

func (p *Provisioner) fail(res *dataset.Result, err error) *dataset.Result {
	res.Outcome = dataset.OutcomeFailed
	res.Reason = dataset.ReasonForError(err)
	res.Err = err

	return res
}

func (p *Provisioner) record(ctx context.Context, res *dataset.Result) {
	if p.recorder == nil {
		return
	}

	rec := storage.ProvisionRecord{
		DatasetID:  res.DatasetID,
		Outcome:    string(res.Outcome),
		Reason:     string(res.Reason),
		Bytes:      res.Bytes,
		DurationMS: res.Duration.Milliseconds(),
		InstanceID: p.instanceID,
		CheckedAt:  time.Now(),
	}

	if err := p.recorder.RecordResult(rec); err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to record provisioning outcome",
			"dataset_id", res.DatasetID, "err", err)
	}
}

func checksumMatches(path string, cs dataset.Checksum) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, &dataset.WriteError{Path: path, Op: "open", Err: err}
	}

	defer f.Close()

	h := cs.NewHash()
	if _, err := io.Copy(h, f); err != nil {
		return false, &dataset.WriteError{Path: path, Op: "read", Err: err}
	}

	return cs.Matches(hex.EncodeToString(h.Sum(nil))), nil
}
