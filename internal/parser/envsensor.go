package parser

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"sensorstd/internal/errors"
	"sensorstd/internal/schema"
	"sensorstd/pkg/contracts/domain"
)

// Raw environmental sensor exports are per-day CSV files with a short
// self header written by the firmware:
//
//	# fw_version: 1.2.4
//	# sen55_id: F491437702FA6836
//	ts,lux,pm1,...
//	2024-01-01T00:00:05Z,123.4,...
//
// The sen55 id doubles as the device identifier looked up in the
// roster.
type EnvSensorParser struct {
	schema schema.ModalitySchema
	logger *slog.Logger
}

// NewEnvSensorParser creates the environmental sensor adapter.
func NewEnvSensorParser(ms schema.ModalitySchema, logger *slog.Logger) *EnvSensorParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnvSensorParser{
		schema: ms,
		logger: logger.With(slog.String("component", "parser.env_sensor")),
	}
}

// Modality implements Parser.
func (p *EnvSensorParser) Modality() domain.Modality {
	return domain.ModalityEnvSensor
}

// Parse implements Parser.
func (p *EnvSensorParser) Parse(ctx context.Context, ref domain.RawFileRef) (*domain.SampleBatch, error) {
	f, err := os.Open(ref.Path)
	if err != nil {
		return nil, errors.Malformed(ref.Path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	meta := domain.DeviceMetadata{
		Manufacturer: p.schema.Manufacturer,
		Model:        p.schema.Model,
	}
	var deviceID string

	// Self header: "# key: value" lines until the column-name row.
	var columnLine string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			columnLine = line
			break
		}
		key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "#")), ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "fw_version":
			meta.FirmwareVersion = strings.TrimSpace(value)
		case "sen55_id":
			deviceID = strings.TrimSpace(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Malformed(ref.Path, err)
	}
	if deviceID == "" {
		return nil, errors.Unsupported(ref.Path, "missing sen55_id header, not a recognized sensor export")
	}
	if columnLine == "" {
		return nil, errors.Malformed(ref.Path, fmt.Errorf("no column row found"))
	}

	// The file's self-declared layout must match the canonical table
	// exactly; a disagreement is structural, not a row-level issue.
	declared := splitCSVLine(columnLine)
	expected := p.schema.ColumnNames()
	if len(declared) != len(expected) {
		return nil, fmt.Errorf("%w: %s declares %d columns, schema expects %d",
			errors.ErrStructuralMismatch, ref.Path, len(declared), len(expected))
	}
	for i := range declared {
		if declared[i] != expected[i] {
			return nil, fmt.Errorf("%w: %s column %d is %q, schema expects %q",
				errors.ErrStructuralMismatch, ref.Path, i, declared[i], expected[i])
		}
	}

	valueCols := p.schema.ValueColumns()
	batch := &domain.SampleBatch{
		File:     ref,
		DeviceID: deviceID,
		Metadata: meta,
	}

	seq := 0
	corrupt := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := splitCSVLine(line)
		if len(fields) != len(expected) {
			corrupt++
			continue
		}
		ts, ok := parseTimestamp(fields[0])
		if !ok {
			corrupt++
			continue
		}

		values := make([]domain.Value, len(valueCols))
		for i, col := range valueCols {
			values[i] = parseToken(fields[i+1], col)
		}
		batch.Samples = append(batch.Samples, domain.CanonicalSample{
			Timestamp: ts,
			Values:    values,
			Seq:       seq,
		})
		seq++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Malformed(ref.Path, err)
	}
	if len(batch.Samples) == 0 {
		return nil, errors.Malformed(ref.Path, fmt.Errorf("no readable data rows (%d corrupt)", corrupt))
	}
	if corrupt > 0 {
		batch.Issues = append(batch.Issues, domain.ValidationIssue{
			Kind:    domain.IssueMalformedFile,
			Row:     -1,
			File:    ref.Path,
			Message: fmt.Sprintf("%d unreadable data lines dropped", corrupt),
		})
		p.logger.Warn("skipped corrupt lines",
			slog.String("file", ref.Path),
			slog.Int("corrupt_lines", corrupt),
			slog.Int("kept_rows", len(batch.Samples)))
	}
	return batch, nil
}

// splitCSVLine splits a simple comma-separated line. Sensor firmware
// never quotes fields, so a plain split is faithful and keeps raw
// tokens intact.
func splitCSVLine(line string) []string {
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
