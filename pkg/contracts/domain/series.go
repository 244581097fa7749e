package domain

import (
	"time"
)

// Modality identifies a category of sensing device.
type Modality string

const (
	ModalityEnvSensor      Modality = "env_sensor"
	ModalityECG            Modality = "ecg"
	ModalityFitnessTracker Modality = "fitness_tracker"
)

// RawFileRef points at one raw device export discovered on disk.
// It is created during discovery and consumed once by a parser adapter.
type RawFileRef struct {
	Path         string    `json:"path"`
	Modality     Modality  `json:"modality"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// ValueKind describes how a cell value was interpreted by a parser.
type ValueKind int

const (
	ValueMissing ValueKind = iota
	ValueNumeric
	ValueInteger
	ValueBoolean
	// ValueInvalid keeps the raw token for cells that could not be
	// interpreted. The token is written out unchanged; the validator
	// flags it, never coerces it.
	ValueInvalid
)

// Value is one cell of a canonical sample. Raw always holds the token as
// it appeared in the source file so output stays faithful to input.
type Value struct {
	Kind ValueKind `json:"kind"`
	Raw  string    `json:"raw"`
	Num  float64   `json:"num,omitempty"`
	Bool bool      `json:"bool,omitempty"`
}

// CanonicalSample is one timestamped observation in the common record
// model. Values are aligned with the modality's column specs, excluding
// the leading timestamp column. Never mutated after creation.
type CanonicalSample struct {
	Timestamp time.Time `json:"timestamp"`
	Values    []Value   `json:"values"`
	// Seq is the zero-based position within the source file, used to
	// break sort ties deterministically.
	Seq int `json:"seq"`
}

// SampleBatch is the parse product of a single raw file: the device
// identifier the parser extracted plus the samples, in file order.
// Issues carries non-fatal parse findings, such as dropped unreadable
// rows; the engine folds them into the merged series.
type SampleBatch struct {
	File      RawFileRef        `json:"file"`
	FileIndex int               `json:"file_index"`
	DeviceID  string            `json:"device_id"`
	Samples   []CanonicalSample `json:"samples"`
	Metadata  DeviceMetadata    `json:"metadata"`
	Issues    []ValidationIssue `json:"issues,omitempty"`
}

// DeviceMetadata carries whatever a parser could recover about the
// device that produced a raw file. Empty fields render as "placeholder"
// in the output header.
type DeviceMetadata struct {
	Manufacturer    string `json:"manufacturer,omitempty"`
	Model           string `json:"model,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
}

// StandardizedSeries is the single chronologically ordered series built
// for one participant/modality. Owned exclusively by its conversion
// task; timestamps are strictly increasing after deduplication.
type StandardizedSeries struct {
	ParticipantID string            `json:"participant_id"`
	VisitID       string            `json:"visit_id"`
	Modality      Modality          `json:"modality"`
	Columns       []ColumnSpec      `json:"columns"`
	Samples       []CanonicalSample `json:"samples"`
	Issues        []ValidationIssue `json:"issues"`
	Device        DeviceMetadata    `json:"device"`
	DeviceID      string            `json:"device_id"`
}

// AddIssue appends a validation issue to the series.
func (s *StandardizedSeries) AddIssue(issue ValidationIssue) {
	s.Issues = append(s.Issues, issue)
}

// Extent returns the span between the first and last observation.
func (s *StandardizedSeries) Extent() time.Duration {
	if len(s.Samples) < 2 {
		return 0
	}
	return s.Samples[len(s.Samples)-1].Timestamp.Sub(s.Samples[0].Timestamp)
}
