package dataset

import (
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
	"net/url"
	"strings"
	"time"
)

// Outcome is the result class of one provisioning attempt.
type Outcome string

const (
	OutcomeAlreadyPresent Outcome = "already_present"
	OutcomeDownloaded     Outcome = "downloaded"
	OutcomeFailed         Outcome = "failed"
)

// Reason is a machine-distinguishable failure code. It is only set when the
// outcome is OutcomeFailed, so callers can decide between retrying, prompting
// the user, or aborting startup.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonNetworkUnavailable  Reason = "network_unavailable"
	ReasonRemoteNotFound      Reason = "remote_not_found"
	ReasonTransferInterrupted Reason = "transfer_interrupted"
	ReasonIntegrityMismatch   Reason = "integrity_mismatch"
	ReasonLocalWriteFailed    Reason = "local_write_failed"
)

// Spec describes one required dataset. Specs are defined by the manifest at
// configuration time and never mutated afterwards.
type Spec struct {
	ID       string
	Filename string
	Source   string
	Size     int64
	Checksum Checksum

	// ExtractMembers lists files to extract from the downloaded archive into
	// the data directory. When set, the spec describes a tar.gz archive and
	// presence is judged by the extracted members, not the archive itself.
	ExtractMembers []string
}

// IsArchive reports whether the spec's artifact is an archive whose members
// are the actual cache entries.
func (s Spec) IsArchive() bool {
	return len(s.ExtractMembers) > 0
}

// Validate checks that the spec is complete enough to provision.
func (s Spec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("dataset spec has no id")
	}

	if s.Filename == "" || strings.ContainsAny(s.Filename, "/\\") {
		return fmt.Errorf("dataset %q has an invalid filename %q", s.ID, s.Filename)
	}

	u, err := url.Parse(s.Source)
	if err != nil {
		return fmt.Errorf("dataset %q has an invalid source: %w", s.ID, err)
	}

	switch u.Scheme {
	case "http", "https", "s3":
	default:
		return fmt.Errorf("dataset %q has an unsupported source scheme %q", s.ID, u.Scheme)
	}

	for _, m := range s.ExtractMembers {
		if m == "" || strings.ContainsAny(m, "/\\") {
			return fmt.Errorf("dataset %q has an invalid extract member %q", s.ID, m)
		}
	}

	return nil
}

// Checksum is an expected content digest in "algo:hex" form.
type Checksum struct {
	Algo string
	Hex  string
}

// ParseChecksum parses "sha256:<hex>" or "sha1:<hex>".
func ParseChecksum(s string) (Checksum, error) {
	algo, hexDigest, ok := strings.Cut(s, ":")
	if !ok {
		return Checksum{}, fmt.Errorf("checksum %q is not in algo:hex form", s)
	}

	algo = strings.ToLower(algo)
	hexDigest = strings.ToLower(hexDigest)

	var wantLen int

	switch algo {
	case "sha256":
		wantLen = sha256.Size * 2
	case "sha1":
		wantLen = sha1.Size * 2
	default:
		return Checksum{}, fmt.Errorf("unsupported checksum algorithm %q", algo)
	}

	if len(hexDigest) != wantLen {
		return Checksum{}, fmt.Errorf("checksum %q has wrong digest length for %s", s, algo)
	}

	for _, r := range hexDigest {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return Checksum{}, fmt.Errorf("checksum %q contains non-hex characters", s)
		}
	}

	return Checksum{Algo: algo, Hex: hexDigest}, nil
}

// IsZero reports whether no checksum is configured.
func (c Checksum) IsZero() bool {
	return c.Algo == "" && c.Hex == ""
}

// NewHash returns a fresh hasher for the checksum's algorithm.
func (c Checksum) NewHash() hash.Hash {
	if c.Algo == "sha1" {
		return sha1.New()
	}

	return sha256.New()
}

// Matches reports whether the hex digest equals the expected one.
func (c Checksum) Matches(hexDigest string) bool {
	return strings.EqualFold(c.Hex, hexDigest)
}

func (c Checksum) String() string {
	if c.IsZero() {
		return ""
	}

	return c.Algo + ":" + c.Hex
}

// Result is the outcome of one provisioning attempt. It is produced fresh on
// every check and handed to the caller; it is never persisted as-is.
type Result struct {
	DatasetID string
	Outcome   Outcome
	Reason    Reason
	Bytes     int64
	Duration  time.Duration
	Err       error
}

// OK reports whether the dataset is usable after this attempt.
func (r *Result) OK() bool {
	return r.Outcome == OutcomeAlreadyPresent || r.Outcome == OutcomeDownloaded
}
