package dataset

import (
	"context"
	"errors"
	"fmt"
)

// UnreachableError represents transport failures reaching the remote source:
// DNS/dial errors, TLS failures and non-success server responses that are not
// client errors.
type UnreachableError struct {
	Source     string
	StatusCode int // HTTP status code, 0 for non-HTTP failures
	Err        error
}

func (e *UnreachableError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote source %s unreachable (HTTP %d)", e.Source, e.StatusCode)
	}

	return fmt.Sprintf("remote source %s unreachable: %v", e.Source, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// NotFoundError represents a remote source that answered with a not-found or
// other client-error status. Retrying cannot help.
type NotFoundError struct {
	Source     string
	StatusCode int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("remote source %s not found (HTTP %d)", e.Source, e.StatusCode)
}

// InterruptedError represents a transfer that started but did not complete:
// connection drops, truncated bodies, cancelled contexts.
type InterruptedError struct {
	Source string
	Bytes  int64 // bytes received before the interruption
	Err    error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("transfer from %s interrupted after %d bytes: %v", e.Source, e.Bytes, e.Err)
}

func (e *InterruptedError) Unwrap() error {
	return e.Err
}

// IntegrityError represents downloaded or cached bytes that fail the
// configured size or checksum validation.
type IntegrityError struct {
	Path     string
	Algo     string // set for a checksum mismatch
	Want     string
	Got      string
	WantSize int64
	GotSize  int64
	Member   string // set when an expected archive member is missing
}

func (e *IntegrityError) Error() string {
	switch {
	case e.Algo != "":
		return fmt.Sprintf("integrity mismatch for %s: %s digest %s, expected %s", e.Path, e.Algo, e.Got, e.Want)
	case e.Member != "":
		return fmt.Sprintf("integrity mismatch for %s: archive member %s missing", e.Path, e.Member)
	default:
		return fmt.Sprintf("integrity mismatch for %s: size %d, expected %d", e.Path, e.GotSize, e.WantSize)
	}
}

// WriteError represents local filesystem failures: unwritable target
// directory, full disk, failed rename.
type WriteError struct {
	Path string
	Op   string // "mkdir", "create", "write", "rename", "extract"
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// ReasonForError maps an error chain to its failure reason code. Unclassified
// errors fall into the network bucket since the fetch path is the only place
// untyped errors can originate.
func ReasonForError(err error) Reason {
	if err == nil {
		return ReasonNone
	}

	var (
		unreachable *UnreachableError
		notFound    *NotFoundError
		interrupted *InterruptedError
		integrity   *IntegrityError
		write       *WriteError
	)

	switch {
	case errors.As(err, &notFound):
		return ReasonRemoteNotFound
	case errors.As(err, &interrupted):
		return ReasonTransferInterrupted
	case errors.As(err, &integrity):
		return ReasonIntegrityMismatch
	case errors.As(err, &write):
		return ReasonLocalWriteFailed
	case errors.As(err, &unreachable):
		return ReasonNetworkUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonTransferInterrupted
	default:
		return ReasonNetworkUnavailable
	}
}

// Retryable reports whether a failure is transient enough that retrying the
// fetch may succeed. Not-found, integrity and local write failures are final.
func Retryable(err error) bool {
	switch ReasonForError(err) {
	case ReasonNetworkUnavailable, ReasonTransferInterrupted:
		return !errors.Is(err, context.Canceled)
	default:
		return false
	}
}
