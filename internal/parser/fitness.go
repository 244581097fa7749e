package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"sensorstd/internal/errors"
	"sensorstd/internal/schema"
	"sensorstd/pkg/contracts/domain"
)

// Fitness tracker exports are JSON documents with a device block and a
// flat sample array:
//
//	{
//	  "device": {"id": "GRMN-0815", "manufacturer": "Garmin",
//	             "model": "Vivosmart 5", "firmware": "5.10"},
//	  "samples": [
//	    {"timestamp": "2024-01-01T08:00:00Z", "heart_rate": 61, "on_wrist": true}
//	  ]
//	}
type FitnessParser struct {
	schema schema.ModalitySchema
	logger *slog.Logger
}

type fitnessExport struct {
	Device struct {
		ID           string `json:"id"`
		Manufacturer string `json:"manufacturer"`
		Model        string `json:"model"`
		Firmware     string `json:"firmware"`
	} `json:"device"`
	Samples []fitnessSample `json:"samples"`
}

type fitnessSample struct {
	Timestamp string       `json:"timestamp"`
	HeartRate *json.Number `json:"heart_rate"`
	OnWrist   *bool        `json:"on_wrist"`
}

// NewFitnessParser creates the fitness tracker adapter.
func NewFitnessParser(ms schema.ModalitySchema, logger *slog.Logger) *FitnessParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &FitnessParser{
		schema: ms,
		logger: logger.With(slog.String("component", "parser.fitness_tracker")),
	}
}

// Modality implements Parser.
func (p *FitnessParser) Modality() domain.Modality {
	return domain.ModalityFitnessTracker
}

// Parse implements Parser.
func (p *FitnessParser) Parse(ctx context.Context, ref domain.RawFileRef) (*domain.SampleBatch, error) {
	data, err := os.ReadFile(ref.Path)
	if err != nil {
		return nil, errors.Malformed(ref.Path, err)
	}

	var doc fitnessExport
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Malformed(ref.Path, err)
	}
	if doc.Device.ID == "" {
		return nil, errors.Unsupported(ref.Path, "missing device.id, not a recognized tracker export")
	}
	if len(doc.Samples) == 0 {
		return nil, errors.Malformed(ref.Path, fmt.Errorf("export contains no samples"))
	}

	meta := domain.DeviceMetadata{
		Manufacturer:    doc.Device.Manufacturer,
		Model:           doc.Device.Model,
		FirmwareVersion: doc.Device.Firmware,
	}
	if meta.Manufacturer == "" {
		meta.Manufacturer = p.schema.Manufacturer
	}
	if meta.Model == "" {
		meta.Model = p.schema.Model
	}

	valueCols := p.schema.ValueColumns()
	batch := &domain.SampleBatch{
		File:     ref,
		DeviceID: doc.Device.ID,
		Metadata: meta,
	}

	seq := 0
	corrupt := 0
	for _, s := range doc.Samples {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ts, ok := parseTimestamp(s.Timestamp)
		if !ok {
			corrupt++
			continue
		}
		values := make([]domain.Value, len(valueCols))
		for i, col := range valueCols {
			switch col.Name {
			case "heart_rate":
				if s.HeartRate == nil {
					values[i] = domain.Value{Kind: domain.ValueMissing}
				} else {
					values[i] = parseToken(s.HeartRate.String(), col)
				}
			case "on_wrist":
				if s.OnWrist == nil {
					values[i] = domain.Value{Kind: domain.ValueMissing}
				} else {
					values[i] = domain.Value{
						Kind: domain.ValueBoolean,
						Raw:  strconv.FormatBool(*s.OnWrist),
						Bool: *s.OnWrist,
					}
				}
			default:
				values[i] = domain.Value{Kind: domain.ValueMissing}
			}
		}
		batch.Samples = append(batch.Samples, domain.CanonicalSample{
			Timestamp: ts,
			Values:    values,
			Seq:       seq,
		})
		seq++
	}
	if len(batch.Samples) == 0 {
		return nil, errors.Malformed(ref.Path, fmt.Errorf("no samples with readable timestamps (%d corrupt)", corrupt))
	}
	if corrupt > 0 {
		batch.Issues = append(batch.Issues, domain.ValidationIssue{
			Kind:    domain.IssueMalformedFile,
			Row:     -1,
			File:    ref.Path,
			Message: fmt.Sprintf("%d samples with unreadable timestamps dropped", corrupt),
		})
		p.logger.Warn("skipped samples with unreadable timestamps",
			slog.String("file", ref.Path),
			slog.Int("corrupt", corrupt))
	}
	return batch, nil
}
