package domain

import (
	"time"
)

// ParticipantVisit maps a device identifier to the participant and
// visit that carried it, as recorded in the study roster. Loaded once
// per run and treated as read-only afterwards.
type ParticipantVisit struct {
	DeviceID        string    `json:"device_id" validate:"required"`
	ParticipantID   string    `json:"participant_id" validate:"required"`
	VisitID         string    `json:"visit_id" validate:"required"`
	Site            string    `json:"site,omitempty"`
	EnrollmentStart time.Time `json:"enrollment_start,omitempty"`
	EnrollmentEnd   time.Time `json:"enrollment_end,omitempty"`
}

// ConversionResult is the one record a conversion attempt hands back to
// the caller. Immutable once returned.
type ConversionResult struct {
	ParticipantID string        `json:"participant_id"`
	VisitID       string        `json:"visit_id,omitempty"`
	Modality      Modality      `json:"modality"`
	Success       bool          `json:"success"`
	OutputFile    string        `json:"output_file,omitempty"`
	RowCount      int           `json:"row_count"`
	IssueCount    int           `json:"issue_count"`
	Error         string        `json:"error,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
}

// RunSummary aggregates the conversion results of a whole run.
type RunSummary struct {
	RunID      string             `json:"run_id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at,omitempty"`
	Units      int                `json:"units"`
	Succeeded  int                `json:"succeeded"`
	Failed     int                `json:"failed"`
	Results    []ConversionResult `json:"results"`
}
