package parser

import (
	"strconv"
	"strings"
	"time"

	"sensorstd/pkg/contracts/domain"
)

// parseToken interprets one cell token against its declared column
// type. Unparseable tokens keep their raw text and are marked invalid
// so the validator can flag them; values are never coerced or clamped.
func parseToken(token string, col domain.ColumnSpec) domain.Value {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Value{Kind: domain.ValueMissing}
	}

	switch col.Type {
	case domain.ColumnBoolean:
		switch strings.ToLower(token) {
		case "1", "true", "t", "yes", "on":
			return domain.Value{Kind: domain.ValueBoolean, Raw: token, Bool: true}
		case "0", "false", "f", "no", "off":
			return domain.Value{Kind: domain.ValueBoolean, Raw: token, Bool: false}
		}
		return domain.Value{Kind: domain.ValueInvalid, Raw: token}
	case domain.ColumnInteger:
		if n, err := strconv.ParseInt(token, 10, 64); err == nil {
			return domain.Value{Kind: domain.ValueInteger, Raw: token, Num: float64(n)}
		}
		// Keep fractional tokens as numeric so the validator reports
		// wrong-type with the real value in hand.
		if f, err := strconv.ParseFloat(token, 64); err == nil {
			return domain.Value{Kind: domain.ValueNumeric, Raw: token, Num: f}
		}
		return domain.Value{Kind: domain.ValueInvalid, Raw: token}
	case domain.ColumnNumeric:
		if f, err := strconv.ParseFloat(token, 64); err == nil {
			return domain.Value{Kind: domain.ValueNumeric, Raw: token, Num: f}
		}
		return domain.Value{Kind: domain.ValueInvalid, Raw: token}
	}
	return domain.Value{Kind: domain.ValueInvalid, Raw: token}
}

// timestampLayouts are the observation time formats seen across device
// exports.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 15:04:05",
}

// parseTimestamp parses an observation time and truncates it to second
// precision in UTC, the canonical resolution of the output format.
func parseTimestamp(token string) (time.Time, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, token); err == nil {
			return t.UTC().Truncate(time.Second), true
		}
	}
	// Epoch seconds, as written by older sensor firmware.
	if n, err := strconv.ParseInt(token, 10, 64); err == nil && n > 0 {
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}
