package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorstd/pkg/contracts/domain"
)

func TestLoad_EmbeddedTables(t *testing.T) {
	reg, err := Load()
	require.NoError(t, err)

	modalities := reg.Modalities()
	assert.Len(t, modalities, 3)

	for _, m := range []domain.Modality{
		domain.ModalityEnvSensor,
		domain.ModalityECG,
		domain.ModalityFitnessTracker,
	} {
		ms, err := reg.Get(m)
		require.NoError(t, err, "modality %s", m)
		assert.Equal(t, m, ms.Modality)
		assert.Equal(t, domain.ColumnTimestamp, ms.Columns[0].Type,
			"first column of %s must be the timestamp", m)
		assert.NotEmpty(t, ms.Dataset)
		assert.NotEmpty(t, ms.ProcessingDescription)
	}
}

func TestLoad_GapThresholds(t *testing.T) {
	reg, err := Load()
	require.NoError(t, err)

	tests := []struct {
		modality domain.Modality
		interval time.Duration
		gap      time.Duration
	}{
		{domain.ModalityEnvSensor, 5 * time.Second, 15 * time.Second},
		{domain.ModalityECG, 1 * time.Second, 2 * time.Second},
		{domain.ModalityFitnessTracker, 60 * time.Second, 12 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(string(tt.modality), func(t *testing.T) {
			ms, err := reg.Get(tt.modality)
			require.NoError(t, err)
			assert.Equal(t, tt.interval, ms.SamplingInterval())
			assert.Equal(t, tt.gap, ms.GapThreshold())
		})
	}
}

func TestLoad_EnvSensorColumns(t *testing.T) {
	reg, err := Load()
	require.NoError(t, err)

	ms, err := reg.Get(domain.ModalityEnvSensor)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ts", "lux", "pm1", "pm2_5", "pm4", "pm10",
		"humidity", "temperature", "voc_index", "nox_index", "screen_on",
	}, ms.ColumnNames())
	assert.Len(t, ms.ValueColumns(), 10)
}

func TestGet_UnknownModality(t *testing.T) {
	reg, err := Load()
	require.NoError(t, err)

	_, err = reg.Get(domain.Modality("sleep_mat"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no schema declared")
}

func TestLoadFrom_RejectsBadTables(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "not yaml",
			yaml: "{{{",
			want: "failed to parse",
		},
		{
			name: "no modalities",
			yaml: "modalities: {}",
			want: "no modalities",
		},
		{
			name: "first column not timestamp",
			yaml: `
modalities:
  thing:
    sampling_interval_seconds: 5
    gap_multiple: 3
    columns:
      - {name: hr, type: integer}
      - {name: ts, type: timestamp}
`,
			want: "first column must be the timestamp",
		},
		{
			name: "missing sampling interval",
			yaml: `
modalities:
  thing:
    gap_multiple: 3
    columns:
      - {name: ts, type: timestamp}
      - {name: hr, type: integer}
`,
			want: "sampling_interval_seconds",
		},
		{
			name: "min above max",
			yaml: `
modalities:
  thing:
    sampling_interval_seconds: 5
    gap_multiple: 3
    columns:
      - {name: ts, type: timestamp}
      - {name: hr, type: integer, min: 10, max: 5}
`,
			want: "min",
		},
		{
			name: "duplicate column",
			yaml: `
modalities:
  thing:
    sampling_interval_seconds: 5
    gap_multiple: 3
    columns:
      - {name: ts, type: timestamp}
      - {name: hr, type: integer}
      - {name: hr, type: integer}
`,
			want: "duplicate column",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadFrom([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
