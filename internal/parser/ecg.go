package parser

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"time"

	"sensorstd/internal/errors"
	"sensorstd/internal/schema"
	"sensorstd/pkg/contracts/domain"
)

// ECG recorders export one XML document per recording with device
// attributes on the root element and per-beat annotations relative to
// the acquisition start:
//
//	<ecgExport deviceId="TC30-0042" model="TC30" firmware="B.05">
//	  <acquisition start="2024-01-01T09:30:00Z"/>
//	  <beats>
//	    <beat offsetMs="0" heartRate="72" rrMs="833" qtMs="380"/>
//	  </beats>
//	</ecgExport>
type ECGParser struct {
	schema schema.ModalitySchema
	logger *slog.Logger
}

type ecgExport struct {
	XMLName     xml.Name `xml:"ecgExport"`
	DeviceID    string   `xml:"deviceId,attr"`
	Model       string   `xml:"model,attr"`
	Firmware    string   `xml:"firmware,attr"`
	Acquisition struct {
		Start string `xml:"start,attr"`
	} `xml:"acquisition"`
	Beats []ecgBeat `xml:"beats>beat"`
}

type ecgBeat struct {
	OffsetMs  int64  `xml:"offsetMs,attr"`
	HeartRate string `xml:"heartRate,attr"`
	RRMs      string `xml:"rrMs,attr"`
	QTMs      string `xml:"qtMs,attr"`
}

// NewECGParser creates the ECG adapter.
func NewECGParser(ms schema.ModalitySchema, logger *slog.Logger) *ECGParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &ECGParser{
		schema: ms,
		logger: logger.With(slog.String("component", "parser.ecg")),
	}
}

// Modality implements Parser.
func (p *ECGParser) Modality() domain.Modality {
	return domain.ModalityECG
}

// Parse implements Parser.
func (p *ECGParser) Parse(ctx context.Context, ref domain.RawFileRef) (*domain.SampleBatch, error) {
	data, err := os.ReadFile(ref.Path)
	if err != nil {
		return nil, errors.Malformed(ref.Path, err)
	}

	var doc ecgExport
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Malformed(ref.Path, err)
	}
	if doc.DeviceID == "" {
		return nil, errors.Unsupported(ref.Path, "missing deviceId attribute, not a recognized ECG export")
	}
	start, err := time.Parse(time.RFC3339, doc.Acquisition.Start)
	if err != nil {
		return nil, errors.Unsupported(ref.Path, fmt.Sprintf("unrecognized acquisition start %q", doc.Acquisition.Start))
	}
	if len(doc.Beats) == 0 {
		return nil, errors.Malformed(ref.Path, fmt.Errorf("recording contains no beat annotations"))
	}

	valueCols := p.schema.ValueColumns()
	batch := &domain.SampleBatch{
		File:     ref,
		DeviceID: doc.DeviceID,
		Metadata: domain.DeviceMetadata{
			Manufacturer:    p.schema.Manufacturer,
			Model:           doc.Model,
			FirmwareVersion: doc.Firmware,
		},
	}
	if batch.Metadata.Model == "" {
		batch.Metadata.Model = p.schema.Model
	}

	for seq, beat := range doc.Beats {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ts := start.Add(time.Duration(beat.OffsetMs) * time.Millisecond).UTC().Truncate(time.Second)
		tokens := []string{beat.HeartRate, beat.RRMs, beat.QTMs}
		if len(tokens) != len(valueCols) {
			return nil, fmt.Errorf("%w: %s beat carries %d fields, schema expects %d",
				errors.ErrStructuralMismatch, ref.Path, len(tokens), len(valueCols))
		}
		values := make([]domain.Value, len(valueCols))
		for i, col := range valueCols {
			values[i] = parseToken(tokens[i], col)
		}
		batch.Samples = append(batch.Samples, domain.CanonicalSample{
			Timestamp: ts,
			Values:    values,
			Seq:       seq,
		})
	}

	p.logger.Debug("parsed ECG recording",
		slog.String("file", ref.Path),
		slog.String("device_id", doc.DeviceID),
		slog.Int("beats", len(batch.Samples)),
		slog.String("start", start.Format(time.RFC3339)))
	return batch, nil
}
