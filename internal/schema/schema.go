// Package schema holds the declared canonical column tables per modality
// and the validator that enforces them. The tables are embedded so that
// the validator and the output header generator can never drift apart.
package schema

import (
	"fmt"
	"time"

	_ "embed"

	"gopkg.in/yaml.v2"

	"sensorstd/pkg/contracts/domain"
)

//go:embed schemas.yaml
var schemasYAML []byte

// ModalitySchema declares the canonical layout and expectations for one
// modality. Immutable for the duration of a run.
type ModalitySchema struct {
	Modality              domain.Modality     `yaml:"-"`
	DisplayName           string              `yaml:"display_name"`
	Manufacturer          string              `yaml:"manufacturer"`
	Model                 string              `yaml:"model"`
	Dataset               string              `yaml:"dataset"`
	LicenseURL            string              `yaml:"license_url"`
	ProcessingDescription string              `yaml:"processing_description"`
	SamplingIntervalSecs  int                 `yaml:"sampling_interval_seconds"`
	GapMultiple           float64             `yaml:"gap_multiple"`
	Columns               []domain.ColumnSpec `yaml:"columns"`
}

// SamplingInterval returns the nominal interval between observations.
func (m ModalitySchema) SamplingInterval() time.Duration {
	return time.Duration(m.SamplingIntervalSecs) * time.Second
}

// GapThreshold returns the interval above which a gap between
// consecutive samples is flagged.
func (m ModalitySchema) GapThreshold() time.Duration {
	return time.Duration(float64(m.SamplingInterval()) * m.GapMultiple)
}

// ValueColumns returns the column specs excluding the leading timestamp.
func (m ModalitySchema) ValueColumns() []domain.ColumnSpec {
	return m.Columns[1:]
}

// ColumnNames returns all declared column names in order.
func (m ModalitySchema) ColumnNames() []string {
	names := make([]string, len(m.Columns))
	for i, c := range m.Columns {
		names[i] = c.Name
	}
	return names
}

type schemaFile struct {
	Modalities map[string]ModalitySchema `yaml:"modalities"`
}

// Registry provides lookup of modality schemas. Loaded once at startup
// and read-only afterwards.
type Registry struct {
	schemas map[domain.Modality]ModalitySchema
}

// Load parses the embedded schema tables.
func Load() (*Registry, error) {
	return loadFrom(schemasYAML)
}

func loadFrom(data []byte) (*Registry, error) {
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse schema tables: %w", err)
	}
	if len(f.Modalities) == 0 {
		return nil, fmt.Errorf("schema tables declare no modalities")
	}

	schemas := make(map[domain.Modality]ModalitySchema, len(f.Modalities))
	for name, ms := range f.Modalities {
		ms.Modality = domain.Modality(name)
		if err := checkSchema(ms); err != nil {
			return nil, fmt.Errorf("modality %s: %w", name, err)
		}
		schemas[ms.Modality] = ms
	}
	return &Registry{schemas: schemas}, nil
}

func checkSchema(ms ModalitySchema) error {
	if len(ms.Columns) < 2 {
		return fmt.Errorf("needs a timestamp column plus at least one value column")
	}
	if ms.Columns[0].Type != domain.ColumnTimestamp {
		return fmt.Errorf("first column must be the timestamp, got %s", ms.Columns[0].Type)
	}
	if ms.SamplingIntervalSecs <= 0 {
		return fmt.Errorf("sampling_interval_seconds must be positive")
	}
	if ms.GapMultiple <= 0 {
		return fmt.Errorf("gap_multiple must be positive")
	}
	seen := make(map[string]bool, len(ms.Columns))
	for _, c := range ms.Columns {
		if c.Name == "" {
			return fmt.Errorf("column with empty name")
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate column %s", c.Name)
		}
		seen[c.Name] = true
		if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
			return fmt.Errorf("column %s: min %v above max %v", c.Name, *c.Min, *c.Max)
		}
	}
	return nil
}

// Get returns the schema for a modality.
func (r *Registry) Get(m domain.Modality) (ModalitySchema, error) {
	ms, ok := r.schemas[m]
	if !ok {
		return ModalitySchema{}, fmt.Errorf("no schema declared for modality %q", m)
	}
	return ms, nil
}

// Modalities lists all declared modalities.
func (r *Registry) Modalities() []domain.Modality {
	out := make([]domain.Modality, 0, len(r.schemas))
	for m := range r.schemas {
		out = append(out, m)
	}
	return out
}
