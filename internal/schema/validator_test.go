package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "sensorstd/internal/errors"
	"sensorstd/pkg/contracts/domain"
)

func floatPtr(v float64) *float64 { return &v }

func testColumns() []domain.ColumnSpec {
	return []domain.ColumnSpec{
		{Name: "ts", Type: domain.ColumnTimestamp},
		{Name: "hr", Type: domain.ColumnInteger, Min: floatPtr(20), Max: floatPtr(250)},
		{Name: "temp", Type: domain.ColumnNumeric, Min: floatPtr(-10), Max: floatPtr(60)},
		{Name: "worn", Type: domain.ColumnBoolean},
	}
}

func sampleAt(sec int, values ...domain.Value) domain.CanonicalSample {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.CanonicalSample{
		Timestamp: base.Add(time.Duration(sec) * time.Second),
		Values:    values,
		Seq:       sec,
	}
}

func TestValidate_CleanSeries(t *testing.T) {
	series := &domain.StandardizedSeries{
		Modality: domain.ModalityFitnessTracker,
		Columns:  testColumns(),
		Samples: []domain.CanonicalSample{
			sampleAt(0,
				domain.Value{Kind: domain.ValueInteger, Raw: "72", Num: 72},
				domain.Value{Kind: domain.ValueNumeric, Raw: "21.5", Num: 21.5},
				domain.Value{Kind: domain.ValueBoolean, Raw: "true", Bool: true},
			),
		},
	}

	err := NewValidator(nil).Validate(series)
	require.NoError(t, err)
	assert.Empty(t, series.Issues)
}

func TestValidate_OutOfRangeIsFlaggedAndRetained(t *testing.T) {
	series := &domain.StandardizedSeries{
		Modality: domain.ModalityFitnessTracker,
		Columns:  testColumns(),
		Samples: []domain.CanonicalSample{
			sampleAt(0,
				domain.Value{Kind: domain.ValueInteger, Raw: "400", Num: 400},
				domain.Value{Kind: domain.ValueNumeric, Raw: "21.5", Num: 21.5},
				domain.Value{Kind: domain.ValueBoolean, Raw: "true", Bool: true},
			),
		},
	}

	err := NewValidator(nil).Validate(series)
	require.NoError(t, err)

	require.Len(t, series.Issues, 1, "exactly one issue for one violation")
	assert.Equal(t, domain.IssueOutOfRange, series.Issues[0].Kind)
	assert.Equal(t, 0, series.Issues[0].Row)
	assert.Equal(t, "hr", series.Issues[0].Column)

	// Retain-and-flag: the offending sample stays, value untouched.
	require.Len(t, series.Samples, 1)
	assert.Equal(t, float64(400), series.Samples[0].Values[0].Num)
}

func TestValidate_ValueFindings(t *testing.T) {
	tests := []struct {
		name   string
		values []domain.Value
		kind   domain.IssueKind
		column string
	}{
		{
			name: "missing value",
			values: []domain.Value{
				{Kind: domain.ValueMissing},
				{Kind: domain.ValueNumeric, Raw: "20", Num: 20},
				{Kind: domain.ValueBoolean, Raw: "false"},
			},
			kind:   domain.IssueMissing,
			column: "hr",
		},
		{
			name: "uncoercible token",
			values: []domain.Value{
				{Kind: domain.ValueInteger, Raw: "72", Num: 72},
				{Kind: domain.ValueInvalid, Raw: "N/A"},
				{Kind: domain.ValueBoolean, Raw: "false"},
			},
			kind:   domain.IssueWrongType,
			column: "temp",
		},
		{
			name: "fractional value in integer column",
			values: []domain.Value{
				{Kind: domain.ValueNumeric, Raw: "72.4", Num: 72.4},
				{Kind: domain.ValueNumeric, Raw: "20", Num: 20},
				{Kind: domain.ValueBoolean, Raw: "false"},
			},
			kind:   domain.IssueWrongType,
			column: "hr",
		},
		{
			name: "numeric token in boolean column",
			values: []domain.Value{
				{Kind: domain.ValueInteger, Raw: "72", Num: 72},
				{Kind: domain.ValueNumeric, Raw: "20", Num: 20},
				{Kind: domain.ValueNumeric, Raw: "3", Num: 3},
			},
			kind:   domain.IssueWrongType,
			column: "worn",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := &domain.StandardizedSeries{
				Columns: testColumns(),
				Samples: []domain.CanonicalSample{sampleAt(0, tt.values...)},
			}
			err := NewValidator(nil).Validate(series)
			require.NoError(t, err)
			require.Len(t, series.Issues, 1)
			assert.Equal(t, tt.kind, series.Issues[0].Kind)
			assert.Equal(t, tt.column, series.Issues[0].Column)
			assert.Len(t, series.Samples, 1, "sample must be retained")
		})
	}
}

func TestValidate_StructuralMismatchAborts(t *testing.T) {
	series := &domain.StandardizedSeries{
		Columns: testColumns(),
		Samples: []domain.CanonicalSample{
			sampleAt(0,
				domain.Value{Kind: domain.ValueInteger, Raw: "72", Num: 72},
			),
		},
	}

	err := NewValidator(nil).Validate(series)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStructuralMismatch)
}
