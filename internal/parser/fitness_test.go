package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "sensorstd/internal/errors"
	"sensorstd/internal/schema"
	"sensorstd/pkg/contracts/domain"
)

func fitnessSchema(t *testing.T) schema.ModalitySchema {
	t.Helper()
	reg, err := schema.Load()
	require.NoError(t, err)
	ms, err := reg.Get(domain.ModalityFitnessTracker)
	require.NoError(t, err)
	return ms
}

func writeFitness(t *testing.T, content string) domain.RawFileRef {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return domain.RawFileRef{Path: path, Modality: domain.ModalityFitnessTracker}
}

func TestFitnessParse_HappyPath(t *testing.T) {
	content := `{
  "device": {"id": "GRMN-0815", "manufacturer": "Garmin", "model": "Vivosmart 5", "firmware": "5.10"},
  "samples": [
    {"timestamp": "2024-03-01T08:00:00Z", "heart_rate": 61, "on_wrist": true},
    {"timestamp": "2024-03-01T08:01:00Z", "heart_rate": 63, "on_wrist": false}
  ]
}`
	p := NewFitnessParser(fitnessSchema(t), nil)
	batch, err := p.Parse(context.Background(), writeFitness(t, content))
	require.NoError(t, err)

	assert.Equal(t, "GRMN-0815", batch.DeviceID)
	assert.Equal(t, "Garmin", batch.Metadata.Manufacturer)
	assert.Equal(t, "5.10", batch.Metadata.FirmwareVersion)
	require.Len(t, batch.Samples, 2)

	first := batch.Samples[0]
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), first.Timestamp)
	require.Len(t, first.Values, 2)
	assert.Equal(t, domain.Value{Kind: domain.ValueInteger, Raw: "61", Num: 61}, first.Values[0])
	assert.Equal(t, domain.Value{Kind: domain.ValueBoolean, Raw: "true", Bool: true}, first.Values[1])
}

func TestFitnessParse_NullFieldsAreMissing(t *testing.T) {
	content := `{
  "device": {"id": "GRMN-0815"},
  "samples": [
    {"timestamp": "2024-03-01T08:00:00Z"}
  ]
}`
	p := NewFitnessParser(fitnessSchema(t), nil)
	batch, err := p.Parse(context.Background(), writeFitness(t, content))
	require.NoError(t, err)

	require.Len(t, batch.Samples, 1)
	assert.Equal(t, domain.ValueMissing, batch.Samples[0].Values[0].Kind)
	assert.Equal(t, domain.ValueMissing, batch.Samples[0].Values[1].Kind)
}

func TestFitnessParse_SchemaMetadataFallback(t *testing.T) {
	content := `{
  "device": {"id": "GRMN-0815"},
  "samples": [{"timestamp": "2024-03-01T08:00:00Z", "heart_rate": 61}]
}`
	p := NewFitnessParser(fitnessSchema(t), nil)
	batch, err := p.Parse(context.Background(), writeFitness(t, content))
	require.NoError(t, err)
	assert.Equal(t, "Garmin", batch.Metadata.Manufacturer)
	assert.Equal(t, "Vivosmart 5", batch.Metadata.Model)
}

func TestFitnessParse_MissingDeviceIDIsUnsupported(t *testing.T) {
	content := `{"samples": [{"timestamp": "2024-03-01T08:00:00Z", "heart_rate": 61}]}`
	p := NewFitnessParser(fitnessSchema(t), nil)
	_, err := p.Parse(context.Background(), writeFitness(t, content))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFormat)
}

func TestFitnessParse_InvalidJSONIsMalformed(t *testing.T) {
	p := NewFitnessParser(fitnessSchema(t), nil)
	_, err := p.Parse(context.Background(), writeFitness(t, "{not json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedFile)
}

func TestFitnessParse_NoSamplesIsMalformed(t *testing.T) {
	content := `{"device": {"id": "GRMN-0815"}, "samples": []}`
	p := NewFitnessParser(fitnessSchema(t), nil)
	_, err := p.Parse(context.Background(), writeFitness(t, content))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedFile)
}

func TestFitnessParse_UnreadableTimestampsSkipped(t *testing.T) {
	content := `{
  "device": {"id": "GRMN-0815"},
  "samples": [
    {"timestamp": "whenever", "heart_rate": 61},
    {"timestamp": "2024-03-01T08:00:00Z", "heart_rate": 62}
  ]
}`
	p := NewFitnessParser(fitnessSchema(t), nil)
	batch, err := p.Parse(context.Background(), writeFitness(t, content))
	require.NoError(t, err)
	assert.Len(t, batch.Samples, 1)

	require.Len(t, batch.Issues, 1, "dropped samples are reported, never silent")
	assert.Equal(t, domain.IssueMalformedFile, batch.Issues[0].Kind)
	assert.Contains(t, batch.Issues[0].Message, "1 samples with unreadable timestamps")
}
