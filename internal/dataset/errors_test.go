package dataset

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestUnreachableError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *UnreachableError
		want string
	}{
		{
			name: "with HTTP status code",
			err:  &UnreachableError{Source: "https://example.org/data.tsv", StatusCode: 503},
			want: "remote source https://example.org/data.tsv unreachable (HTTP 503)",
		},
		{
			name: "without HTTP status code",
			err:  &UnreachableError{Source: "https://example.org/data.tsv", Err: errors.New("dial tcp: timeout")},
			want: "remote source https://example.org/data.tsv unreachable: dial tcp: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIntegrityError_Error(t *testing.T) {
	checksumErr := &IntegrityError{
		Path: "/data/movie.metadata.tsv",
		Algo: "sha256",
		Want: "aaaa",
		Got:  "bbbb",
	}
	want := "integrity mismatch for /data/movie.metadata.tsv: sha256 digest bbbb, expected aaaa"

	if got := checksumErr.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	sizeErr := &IntegrityError{
		Path:     "/data/movie.metadata.tsv",
		WantSize: 100,
		GotSize:  42,
	}
	want = "integrity mismatch for /data/movie.metadata.tsv: size 42, expected 100"

	if got := sizeErr.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("disk full")

	tests := []struct {
		name string
		err  error
	}{
		{name: "UnreachableError", err: &UnreachableError{Source: "src", Err: cause}},
		{name: "InterruptedError", err: &InterruptedError{Source: "src", Bytes: 10, Err: cause}},
		{name: "WriteError", err: &WriteError{Path: "/data/x", Op: "rename", Err: cause}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if unwrapped := errors.Unwrap(tt.err); unwrapped != cause {
				t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
			}

			wrapped := fmt.Errorf("context: %w", tt.err)
			if !errors.Is(wrapped, cause) {
				t.Error("errors.Is() should find cause through the wrapped chain")
			}
		})
	}
}

func TestReasonForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{name: "nil", err: nil, want: ReasonNone},
		{
			name: "not found",
			err:  fmt.Errorf("fetch: %w", &NotFoundError{Source: "src", StatusCode: 404}),
			want: ReasonRemoteNotFound,
		},
		{
			name: "unreachable",
			err:  &UnreachableError{Source: "src", Err: errors.New("no route to host")},
			want: ReasonNetworkUnavailable,
		},
		{
			name: "interrupted",
			err:  fmt.Errorf("copy: %w", &InterruptedError{Source: "src", Bytes: 1024, Err: errors.New("connection reset")}),
			want: ReasonTransferInterrupted,
		},
		{
			name: "integrity",
			err:  &IntegrityError{Path: "/data/x", Algo: "sha256", Want: "aa", Got: "bb"},
			want: ReasonIntegrityMismatch,
		},
		{
			name: "write",
			err:  &WriteError{Path: "/data/x", Op: "rename", Err: errors.New("read-only file system")},
			want: ReasonLocalWriteFailed,
		},
		{name: "context cancelled", err: context.Canceled, want: ReasonTransferInterrupted},
		{name: "untyped", err: errors.New("something odd"), want: ReasonNetworkUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReasonForError(tt.err); got != tt.want {
				t.Errorf("ReasonForError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "unreachable is transient", err: &UnreachableError{Source: "src", StatusCode: 502}, want: true},
		{name: "interrupted is transient", err: &InterruptedError{Source: "src", Err: errors.New("reset")}, want: true},
		{name: "not found is final", err: &NotFoundError{Source: "src", StatusCode: 404}, want: false},
		{name: "integrity is final", err: &IntegrityError{Path: "x", Algo: "sha256"}, want: false},
		{name: "write failure is final", err: &WriteError{Path: "x", Op: "create", Err: errors.New("denied")}, want: false},
		{name: "cancellation is final", err: context.Canceled, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
