// Package header generates the self-documenting header block embedded
// at the top of every canonical output file. The block restates the
// column table from the same source of truth the validator uses, so
// the embedded documentation can never drift from what was enforced.
package header

import (
	"fmt"
	"strconv"
	"strings"

	"sensorstd/internal/schema"
	"sensorstd/pkg/contracts"
	"sensorstd/pkg/contracts/domain"
)

// Placeholder substitutes device metadata a parser could not recover.
const Placeholder = "placeholder"

// Block is the ordered header line list for one canonical file. Line
// order and formatting are fixed so reruns on identical input are
// byte-identical.
type Block struct {
	Lines []string
}

// Build computes the header block for a standardized series.
func Build(series *domain.StandardizedSeries, ms schema.ModalitySchema) Block {
	extentDays := series.Extent().Hours() / 24

	lines := []string{
		kv("version", contracts.DataFormatVersion),
		kv("dataset", ms.Dataset),
		kv("dataset_license", ms.LicenseURL),
		kv("processing_description", ms.ProcessingDescription),
		kv("meta_device_manufacturer", orPlaceholder(series.Device.Manufacturer)),
		kv("meta_device_model", orPlaceholder(series.Device.Model)),
		kv("meta_device_firmware_version", orPlaceholder(series.Device.FirmwareVersion)),
		kv("meta_sampling_interval_seconds", strconv.Itoa(ms.SamplingIntervalSecs)),
		kv("meta_sensor_id", orPlaceholder(series.DeviceID)),
		kv("meta_participant_id", series.ParticipantID),
		kv("meta_visit_id", orPlaceholder(series.VisitID)),
		kv("meta_number_of_observations", strconv.Itoa(len(series.Samples))),
		kv("meta_extent_of_observation_in_days", strconv.FormatFloat(round1(extentDays), 'f', 1, 64)),
		kv("meta_number_of_columns", strconv.Itoa(len(ms.Columns))),
		kv("meta_columns", strings.Join(ms.ColumnNames(), ", ")),
	}
	for _, col := range ms.Columns {
		lines = append(lines, columnLine(col))
	}
	return Block{Lines: lines}
}

// ColumnCount returns the declared column count restated by the block,
// for cross-checking against data rows.
func (b Block) ColumnCount() (int, bool) {
	for _, line := range b.Lines {
		if v, ok := strings.CutPrefix(line, "# meta_number_of_columns: "); ok {
			n, err := strconv.Atoi(v)
			return n, err == nil
		}
	}
	return 0, false
}

func kv(key, value string) string {
	return fmt.Sprintf("# %s: %s", key, value)
}

func orPlaceholder(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return s
}

// columnLine renders one declared column as
// "# column <name>: <type> [min, max] <description>, <unit>".
func columnLine(col domain.ColumnSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# column %s: %s", col.Name, col.Type)
	if col.HasRange() {
		b.WriteString(" [")
		b.WriteString(bound(col.Min))
		b.WriteString(", ")
		b.WriteString(bound(col.Max))
		b.WriteString("]")
	}
	if col.Description != "" {
		b.WriteString(" ")
		b.WriteString(col.Description)
	}
	if col.Unit != "" {
		b.WriteString(", ")
		b.WriteString(col.Unit)
	}
	return b.String()
}

func bound(v *float64) string {
	if v == nil {
		return "unbounded"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
