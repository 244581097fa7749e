// Package writer serializes a standardized series to its canonical
// destination. Writes go to a temporary file in the destination
// directory and are renamed into place only on success, so a failed or
// cancelled conversion never leaves a partial artifact behind.
package writer

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sensorstd/internal/errors"
	"sensorstd/internal/header"
	"sensorstd/pkg/contracts/domain"
)

// Writer persists canonical output files.
type Writer struct {
	logger *slog.Logger
}

// NewWriter creates a canonical output writer.
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger.With(slog.String("component", "writer"))}
}

// Write serializes the header block and data rows to destPath. The row
// order matches the series order exactly; formatting is fixed so
// reruns on identical input produce byte-identical files.
func (w *Writer) Write(ctx context.Context, series *domain.StandardizedSeries, block header.Block, destPath string) (domain.ConversionResult, error) {
	result := domain.ConversionResult{
		ParticipantID: series.ParticipantID,
		VisitID:       series.VisitID,
		Modality:      series.Modality,
		RowCount:      len(series.Samples),
		IssueCount:    len(series.Issues),
	}

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return result, fmt.Errorf("%w: failed to create directory %s: %v", errors.ErrWriteFailure, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".standardize-*.tmp")
	if err != nil {
		return result, fmt.Errorf("%w: failed to create temp file: %v", errors.ErrWriteFailure, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	buf := bufio.NewWriter(tmp)

	for _, line := range block.Lines {
		if _, err := buf.WriteString(line + "\n"); err != nil {
			cleanup()
			return result, fmt.Errorf("%w: %v", errors.ErrWriteFailure, err)
		}
	}

	columnNames := make([]string, len(series.Columns))
	for i, c := range series.Columns {
		columnNames[i] = c.Name
	}
	if _, err := buf.WriteString(strings.Join(columnNames, ",") + "\n"); err != nil {
		cleanup()
		return result, fmt.Errorf("%w: %v", errors.ErrWriteFailure, err)
	}

	for i, sample := range series.Samples {
		// Keep cancellation responsive on long series without paying
		// for a select on every row.
		if i%4096 == 0 {
			select {
			case <-ctx.Done():
				cleanup()
				return result, fmt.Errorf("%w: %v", errors.ErrWriteFailure, ctx.Err())
			default:
			}
		}
		if _, err := buf.WriteString(formatRow(sample) + "\n"); err != nil {
			cleanup()
			return result, fmt.Errorf("%w: %v", errors.ErrWriteFailure, err)
		}
	}

	if err := buf.Flush(); err != nil {
		cleanup()
		return result, fmt.Errorf("%w: %v", errors.ErrWriteFailure, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return result, fmt.Errorf("%w: %v", errors.ErrWriteFailure, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return result, fmt.Errorf("%w: failed to place output file: %v", errors.ErrWriteFailure, err)
	}

	result.Success = true
	result.OutputFile = destPath

	w.logger.Info("canonical file written",
		slog.String("participant_id", series.ParticipantID),
		slog.String("modality", string(series.Modality)),
		slog.String("path", destPath),
		slog.Int("rows", result.RowCount),
		slog.Int("issues", result.IssueCount))
	return result, nil
}

// formatRow renders one data row in the declared column order.
func formatRow(sample domain.CanonicalSample) string {
	fields := make([]string, 0, len(sample.Values)+1)
	fields = append(fields, sample.Timestamp.UTC().Format(time.RFC3339))
	for _, v := range sample.Values {
		fields = append(fields, formatValue(v))
	}
	return strings.Join(fields, ",")
}

// formatValue canonicalizes a parsed value. Invalid tokens pass
// through unchanged: the retain-and-flag policy forbids coercing or
// dropping them.
func formatValue(v domain.Value) string {
	switch v.Kind {
	case domain.ValueMissing:
		return ""
	case domain.ValueBoolean:
		return strconv.FormatBool(v.Bool)
	case domain.ValueNumeric, domain.ValueInteger:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	default:
		return v.Raw
	}
}

// OutputPath returns the canonical destination for a series:
// <outDir>/<participant>/<modality>/<participant>_<MOD>.csv
func OutputPath(outDir string, series *domain.StandardizedSeries) string {
	suffix := modalitySuffix(series.Modality)
	name := fmt.Sprintf("%s_%s.csv", series.ParticipantID, suffix)
	return filepath.Join(outDir, series.ParticipantID, string(series.Modality), name)
}

func modalitySuffix(m domain.Modality) string {
	switch m {
	case domain.ModalityEnvSensor:
		return "ENV"
	case domain.ModalityECG:
		return "ECG"
	case domain.ModalityFitnessTracker:
		return "FIT"
	default:
		return strings.ToUpper(string(m))
	}
}
