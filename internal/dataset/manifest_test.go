package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `
datasets:
  - id: movie-metadata
    filename: movie.metadata.tsv
    source: https://data.example.org/movie.metadata.tsv
    size: 81273749
    checksum: sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08
  - id: movie-summaries
    filename: MovieSummaries.tar.gz
    source: s3://cinemetrics-datasets/MovieSummaries.tar.gz
    extract_members:
      - movie.metadata.tsv
      - character.metadata.tsv
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)
	require.Len(t, m.Datasets, 2)

	meta := m.Datasets[0]
	assert.Equal(t, "movie-metadata", meta.ID)
	assert.Equal(t, int64(81273749), meta.Size)
	assert.Equal(t, "sha256", meta.Checksum.Algo)
	assert.False(t, meta.IsArchive())

	summaries := m.Datasets[1]
	assert.True(t, summaries.IsArchive())
	assert.Equal(t, []string{"movie.metadata.tsv", "character.metadata.tsv"}, summaries.ExtractMembers)

	spec, ok := m.Lookup("movie-summaries")
	require.True(t, ok)
	assert.Equal(t, summaries, spec)

	_, ok = m.Lookup("unknown")
	assert.False(t, ok)
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "empty catalog",
			yaml:    "datasets: []",
			wantErr: "no datasets",
		},
		{
			name: "missing id",
			yaml: `
datasets:
  - filename: x.tsv
    source: https://example.org/x.tsv
`,
			wantErr: "no id",
		},
		{
			name: "filename with path separator",
			yaml: `
datasets:
  - id: bad
    filename: ../x.tsv
    source: https://example.org/x.tsv
`,
			wantErr: "invalid filename",
		},
		{
			name: "unsupported scheme",
			yaml: `
datasets:
  - id: bad
    filename: x.tsv
    source: ftp://example.org/x.tsv
`,
			wantErr: "unsupported source scheme",
		},
		{
			name: "malformed checksum",
			yaml: `
datasets:
  - id: bad
    filename: x.tsv
    source: https://example.org/x.tsv
    checksum: md5:abc
`,
			wantErr: "unsupported checksum algorithm",
		},
		{
			name: "duplicate ids",
			yaml: `
datasets:
  - id: dup
    filename: a.tsv
    source: https://example.org/a.tsv
  - id: dup
    filename: b.tsv
    source: https://example.org/b.tsv
`,
			wantErr: "duplicate dataset id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datasets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleManifest), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Len(t, m.Datasets, 2)

	_, err = LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseChecksum(t *testing.T) {
	digest := strings.Repeat("ab", 32)

	cs, err := ParseChecksum("sha256:" + digest)
	require.NoError(t, err)
	assert.Equal(t, "sha256", cs.Algo)
	assert.True(t, cs.Matches(strings.ToUpper(digest)))
	assert.Equal(t, "sha256:"+digest, cs.String())

	sha1Digest := strings.Repeat("12", 20)
	cs, err = ParseChecksum("SHA1:" + sha1Digest)
	require.NoError(t, err)
	assert.Equal(t, "sha1", cs.Algo)

	for _, bad := range []string{
		"deadbeef",            // no algorithm
		"sha256:xyz",          // wrong length
		"sha256:" + digest[:10], // truncated
		"md5:" + digest,       // unsupported algorithm
		"sha256:" + strings.Repeat("zz", 32), // non-hex
	} {
		_, err := ParseChecksum(bad)
		assert.Error(t, err, "expected error for %q", bad)
	}
}
