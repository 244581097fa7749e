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
	"sensorstd/internal/testutil"
	"sensorstd/pkg/contracts/domain"
)

const envHeader = "ts,lux,pm1,pm2_5,pm4,pm10,humidity,temperature,voc_index,nox_index,screen_on"

func envSchema(t *testing.T) schema.ModalitySchema {
	t.Helper()
	reg, err := schema.Load()
	require.NoError(t, err)
	ms, err := reg.Get(domain.ModalityEnvSensor)
	require.NoError(t, err)
	return ms
}

func writeRaw(t *testing.T, name, content string) domain.RawFileRef {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return domain.RawFileRef{Path: path, Modality: domain.ModalityEnvSensor}
}

func TestEnvSensorParse_HappyPath(t *testing.T) {
	content := `# fw_version: 1.2.4
# sen55_id: F491437702FA6836
` + envHeader + `
2024-03-01T08:00:00Z,123.4,1.1,2.2,3.3,4.4,45.0,21.5,100,50,1
2024-03-01T08:00:05Z,124.0,1.2,2.3,3.4,4.5,45.1,21.6,101,51,0
`
	p := NewEnvSensorParser(envSchema(t), nil)
	batch, err := p.Parse(context.Background(), writeRaw(t, "day1.csv", content))
	require.NoError(t, err)

	assert.Equal(t, "F491437702FA6836", batch.DeviceID)
	assert.Equal(t, "1.2.4", batch.Metadata.FirmwareVersion)
	assert.Equal(t, "LeeLab", batch.Metadata.Manufacturer)
	require.Len(t, batch.Samples, 2)

	first := batch.Samples[0]
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), first.Timestamp)
	require.Len(t, first.Values, 10)
	assert.Equal(t, domain.Value{Kind: domain.ValueNumeric, Raw: "123.4", Num: 123.4}, first.Values[0])
	assert.Equal(t, domain.Value{Kind: domain.ValueBoolean, Raw: "1", Bool: true}, first.Values[9])
	assert.Equal(t, 0, first.Seq)
	assert.Equal(t, 1, batch.Samples[1].Seq)
}

func TestEnvSensorParse_MissingSensorIDIsUnsupported(t *testing.T) {
	content := `# fw_version: 1.2.4
` + envHeader + `
2024-03-01T08:00:00Z,123.4,1.1,2.2,3.3,4.4,45.0,21.5,100,50,1
`
	p := NewEnvSensorParser(envSchema(t), nil)
	_, err := p.Parse(context.Background(), writeRaw(t, "day1.csv", content))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFormat)
	assert.True(t, apperrors.FileSkippable(err))
}

func TestEnvSensorParse_ColumnDisagreementIsStructural(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"wrong width", "ts,lux,pm1"},
		{"renamed column", "ts,lux,pm1,pm2_5,pm4,pm10,humidity,temp_c,voc_index,nox_index,screen_on"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "# sen55_id: F491437702FA6836\n" + tt.header + "\n2024-03-01T08:00:00Z,1,1,1\n"
			p := NewEnvSensorParser(envSchema(t), nil)
			_, err := p.Parse(context.Background(), writeRaw(t, "day1.csv", content))
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrStructuralMismatch)
			assert.False(t, apperrors.FileSkippable(err),
				"structural mismatch must abort the conversion, not skip the file")
		})
	}
}

func TestEnvSensorParse_CorruptLinesSkipped(t *testing.T) {
	content := `# sen55_id: F491437702FA6836
` + envHeader + `
2024-03-01T08:00:00Z,123.4,1.1,2.2,3.3,4.4,45.0,21.5,100,50,1
this line is garbage
not-a-time,123.4,1.1,2.2,3.3,4.4,45.0,21.5,100,50,1
2024-03-01T08:00:05Z,124.0,1.2,2.3,3.4,4.5,45.1,21.6,101,51,0
`
	logger, captured := testutil.NewLogger(t)
	p := NewEnvSensorParser(envSchema(t), logger)
	batch, err := p.Parse(context.Background(), writeRaw(t, "day1.csv", content))
	require.NoError(t, err)

	assert.Len(t, batch.Samples, 2, "readable rows survive corrupt neighbors")
	assert.True(t, captured.ContainsMessage("skipped corrupt lines"))

	require.Len(t, batch.Issues, 1, "dropped rows are reported, never silent")
	assert.Equal(t, domain.IssueMalformedFile, batch.Issues[0].Kind)
	assert.Contains(t, batch.Issues[0].Message, "2 unreadable data lines")
}

func TestEnvSensorParse_NoDataRowsIsMalformed(t *testing.T) {
	content := "# sen55_id: F491437702FA6836\n" + envHeader + "\ngarbage\n"
	p := NewEnvSensorParser(envSchema(t), nil)
	_, err := p.Parse(context.Background(), writeRaw(t, "day1.csv", content))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedFile)
}

func TestEnvSensorParse_MissingFileIsMalformed(t *testing.T) {
	p := NewEnvSensorParser(envSchema(t), nil)
	_, err := p.Parse(context.Background(), domain.RawFileRef{Path: filepath.Join(t.TempDir(), "absent.csv")})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedFile)
}

func TestEnvSensorParse_RetainsInvalidTokens(t *testing.T) {
	content := `# sen55_id: F491437702FA6836
` + envHeader + `
2024-03-01T08:00:00Z,oops,1.1,2.2,3.3,4.4,45.0,21.5,100,50,1
`
	p := NewEnvSensorParser(envSchema(t), nil)
	batch, err := p.Parse(context.Background(), writeRaw(t, "day1.csv", content))
	require.NoError(t, err)

	require.Len(t, batch.Samples, 1)
	assert.Equal(t, domain.Value{Kind: domain.ValueInvalid, Raw: "oops"}, batch.Samples[0].Values[0],
		"unparseable tokens keep their raw text for the validator to flag")
}
