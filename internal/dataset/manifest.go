package dataset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the dataset catalog loaded at startup. The catalog is the only
// place specs come from; nothing mutates it at runtime.
type Manifest struct {
	Datasets []Spec
}

type manifestFile struct {
	Datasets []specEntry `yaml:"datasets"`
}

type specEntry struct {
	ID             string   `yaml:"id"`
	Filename       string   `yaml:"filename"`
	Source         string   `yaml:"source"`
	Size           int64    `yaml:"size,omitempty"`
	Checksum       string   `yaml:"checksum,omitempty"`
	ExtractMembers []string `yaml:"extract_members,omitempty"`
}

// LoadManifest reads and validates the YAML dataset catalog.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	return ParseManifest(raw)
}

// ParseManifest parses and validates manifest bytes.
func ParseManifest(raw []byte) (*Manifest, error) {
	var mf manifestFile
	if err := yaml.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if len(mf.Datasets) == 0 {
		return nil, fmt.Errorf("manifest declares no datasets")
	}

	m := &Manifest{Datasets: make([]Spec, 0, len(mf.Datasets))}
	seen := make(map[string]bool, len(mf.Datasets))

	for _, e := range mf.Datasets {
		spec := Spec{
			ID:             e.ID,
			Filename:       e.Filename,
			Source:         e.Source,
			Size:           e.Size,
			ExtractMembers: e.ExtractMembers,
		}

		if e.Checksum != "" {
			cs, err := ParseChecksum(e.Checksum)
			if err != nil {
				return nil, fmt.Errorf("dataset %q: %w", e.ID, err)
			}

			spec.Checksum = cs
		}

		if err := spec.Validate(); err != nil {
			return nil, err
		}

		if seen[spec.ID] {
			return nil, fmt.Errorf("duplicate dataset id %q in manifest", spec.ID)
		}

		seen[spec.ID] = true

		m.Datasets = append(m.Datasets, spec)
	}

	return m, nil
}

// Lookup returns the spec with the given id, or false.
func (m *Manifest) Lookup(id string) (Spec, bool) {
	for _, s := range m.Datasets {
		if s.ID == id {
			return s, true
		}
	}

	return Spec{}, false
}
