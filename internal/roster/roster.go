// Package roster loads the study's participant/visit roster export and
// resolves device identifiers against it. The roster is loaded once per
// run and treated as read-only shared state afterwards.
package roster

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"

	"sensorstd/pkg/contracts/domain"
)

// Roster is the immutable device-identifier index built from the
// tabular export. Safe for concurrent readers.
type Roster struct {
	byDevice map[string]domain.ParticipantVisit
	skipped  int
}

// Resolve looks up the participant/visit mapping for a device
// identifier. Lookup is exact-match; a miss is reported to the caller,
// never papered over.
func (r *Roster) Resolve(deviceID string) (domain.ParticipantVisit, bool) {
	pv, ok := r.byDevice[deviceID]
	return pv, ok
}

// Len returns the number of mapped device identifiers.
func (r *Roster) Len() int {
	return len(r.byDevice)
}

// Skipped returns the number of rows dropped during load because they
// were incomplete or failed validation.
func (r *Roster) Skipped() int {
	return r.skipped
}

// Load reads a roster export, xlsx or csv by extension, into an
// immutable index keyed by device identifier.
func Load(path string, logger *slog.Logger) (*Roster, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "roster"))

	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xls":
		rows, err = readExcelRows(path)
	case ".csv":
		rows, err = readCSVRows(path)
	default:
		return nil, fmt.Errorf("unsupported roster format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	roster, err := buildFromRows(rows, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("roster loaded",
		slog.String("path", path),
		slog.Int("mapped_devices", roster.Len()),
		slog.Int("skipped_rows", roster.Skipped()))
	return roster, nil
}

func readExcelRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster workbook: %w", err)
	}
	defer f.Close()

	// The export is expected on the first sheet; REDCap-style exports
	// occasionally carry a cover sheet, so fall back to the first sheet
	// that yields a recognizable header row.
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil || len(rows) == 0 {
			continue
		}
		if _, ok := findHeaderRow(rows); ok {
			return rows, nil
		}
	}
	return nil, fmt.Errorf("no sheet with a recognizable roster header in %s", path)
}

func readCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open roster file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read roster csv: %w", err)
	}
	return rows, nil
}

// columnMap maps logical roster fields to column indexes.
type columnMap map[string]int

// findHeaderRow locates the header row and maps column positions by
// name. Matching is tolerant of the naming drift seen across site
// exports (device_id vs sensor id, participant_id vs pid).
func findHeaderRow(rows [][]string) (int, bool) {
	for i, row := range rows {
		cm := mapColumns(row)
		if _, okDev := cm["device_id"]; okDev {
			if _, okPart := cm["participant_id"]; okPart {
				return i, true
			}
		}
	}
	return -1, false
}

func mapColumns(row []string) columnMap {
	cm := make(columnMap)
	for j, header := range row {
		h := strings.ToLower(strings.TrimSpace(header))
		switch {
		case strings.Contains(h, "device") && strings.Contains(h, "id"),
			strings.Contains(h, "sensor") && strings.Contains(h, "id"):
			cm["device_id"] = j
		case strings.Contains(h, "participant") || h == "pid" || h == "pppp":
			cm["participant_id"] = j
		// Date columns first: "visit_date" must not swallow the visit
		// identifier match below.
		case strings.Contains(h, "enroll") && strings.Contains(h, "start"),
			strings.Contains(h, "visit_date"):
			cm["enrollment_start"] = j
		case strings.Contains(h, "enroll") && strings.Contains(h, "end"),
			strings.Contains(h, "return_date"):
			cm["enrollment_end"] = j
		case strings.Contains(h, "visit"):
			cm["visit_id"] = j
		case strings.Contains(h, "site"):
			cm["site"] = j
		}
	}
	return cm
}

func buildFromRows(rows [][]string, logger *slog.Logger) (*Roster, error) {
	headerRow, ok := findHeaderRow(rows)
	if !ok {
		return nil, fmt.Errorf("could not find roster header row (need device and participant id columns)")
	}
	cm := mapColumns(rows[headerRow])

	validate := validator.New()
	byDevice := make(map[string]domain.ParticipantVisit)
	skipped := 0

	cell := func(row []string, field string) string {
		idx, ok := cm[field]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		pv := domain.ParticipantVisit{
			DeviceID:      cell(row, "device_id"),
			ParticipantID: cell(row, "participant_id"),
			VisitID:       cell(row, "visit_id"),
			Site:          cell(row, "site"),
		}
		if pv.DeviceID == "" && pv.ParticipantID == "" {
			continue // blank filler row
		}
		pv.EnrollmentStart = parseDate(cell(row, "enrollment_start"))
		pv.EnrollmentEnd = parseDate(cell(row, "enrollment_end"))

		if err := validate.Struct(&pv); err != nil {
			skipped++
			logger.Warn("skipping malformed roster row",
				slog.Int("row", i+1),
				slog.String("device_id", pv.DeviceID),
				slog.String("error", err.Error()))
			continue
		}
		if prev, dup := byDevice[pv.DeviceID]; dup {
			skipped++
			logger.Warn("duplicate device identifier in roster, keeping first",
				slog.String("device_id", pv.DeviceID),
				slog.String("kept_participant", prev.ParticipantID),
				slog.String("dropped_participant", pv.ParticipantID))
			continue
		}
		byDevice[pv.DeviceID] = pv
	}

	if len(byDevice) == 0 {
		return nil, fmt.Errorf("roster contains no usable rows")
	}
	return &Roster{byDevice: byDevice, skipped: skipped}, nil
}

// parseDate accepts the date layouts seen in site exports.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02", "1/2/2006", "01/02/2006", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
