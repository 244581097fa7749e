package schema

import (
	"fmt"
	"log/slog"
	"math"

	"sensorstd/internal/errors"
	"sensorstd/pkg/contracts/domain"
)

// Validator enforces the declared column table over a standardized
// series. Policy is retain-and-flag: every violation becomes a
// ValidationIssue and the sample stays in the series. The only fatal
// finding is a structural width mismatch between a sample and the
// declared layout.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a schema validator.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{logger: logger.With(slog.String("component", "validator"))}
}

// Validate checks every sample of the series against its column specs,
// attaching issues in place. It returns a StructuralMismatch error when
// a sample's width disagrees with the declared layout; all other
// findings are non-fatal.
func (v *Validator) Validate(series *domain.StandardizedSeries) error {
	valueCols := series.Columns[1:]

	before := len(series.Issues)
	for row, sample := range series.Samples {
		if len(sample.Values) != len(valueCols) {
			return fmt.Errorf("%w: row %d has %d values, schema declares %d",
				errors.ErrStructuralMismatch, row, len(sample.Values), len(valueCols))
		}
		for ci, col := range valueCols {
			checkValue(series, row, col, sample.Values[ci])
		}
	}

	v.logger.Debug("series validated",
		slog.String("participant_id", series.ParticipantID),
		slog.String("modality", string(series.Modality)),
		slog.Int("rows", len(series.Samples)),
		slog.Int("new_issues", len(series.Issues)-before))
	return nil
}

func checkValue(series *domain.StandardizedSeries, row int, col domain.ColumnSpec, val domain.Value) {
	switch val.Kind {
	case domain.ValueMissing:
		series.AddIssue(domain.ValidationIssue{
			Kind:    domain.IssueMissing,
			Row:     row,
			Column:  col.Name,
			Message: "value missing",
		})
		return
	case domain.ValueInvalid:
		series.AddIssue(domain.ValidationIssue{
			Kind:    domain.IssueWrongType,
			Row:     row,
			Column:  col.Name,
			Message: fmt.Sprintf("token %q is not coercible to %s", val.Raw, col.Type),
		})
		return
	}

	switch col.Type {
	case domain.ColumnBoolean:
		if val.Kind != domain.ValueBoolean {
			series.AddIssue(domain.ValidationIssue{
				Kind:    domain.IssueWrongType,
				Row:     row,
				Column:  col.Name,
				Message: fmt.Sprintf("token %q is not a boolean", val.Raw),
			})
		}
	case domain.ColumnInteger:
		if val.Kind == domain.ValueBoolean {
			series.AddIssue(domain.ValidationIssue{
				Kind:    domain.IssueWrongType,
				Row:     row,
				Column:  col.Name,
				Message: fmt.Sprintf("token %q is not an integer", val.Raw),
			})
			return
		}
		if val.Num != math.Trunc(val.Num) {
			series.AddIssue(domain.ValidationIssue{
				Kind:    domain.IssueWrongType,
				Row:     row,
				Column:  col.Name,
				Message: fmt.Sprintf("token %q has a fractional part", val.Raw),
			})
			return
		}
		checkRange(series, row, col, val.Num)
	case domain.ColumnNumeric:
		if val.Kind == domain.ValueBoolean {
			series.AddIssue(domain.ValidationIssue{
				Kind:    domain.IssueWrongType,
				Row:     row,
				Column:  col.Name,
				Message: fmt.Sprintf("token %q is not numeric", val.Raw),
			})
			return
		}
		checkRange(series, row, col, val.Num)
	}
}

func checkRange(series *domain.StandardizedSeries, row int, col domain.ColumnSpec, v float64) {
	if !col.HasRange() || col.InRange(v) {
		return
	}
	series.AddIssue(domain.ValidationIssue{
		Kind:    domain.IssueOutOfRange,
		Row:     row,
		Column:  col.Name,
		Message: fmt.Sprintf("value %v outside declared range %s", v, rangeString(col)),
	})
}

func rangeString(col domain.ColumnSpec) string {
	min, max := "-inf", "+inf"
	if col.Min != nil {
		min = fmt.Sprintf("%v", *col.Min)
	}
	if col.Max != nil {
		max = fmt.Sprintf("%v", *col.Max)
	}
	return fmt.Sprintf("[%s, %s]", min, max)
}
