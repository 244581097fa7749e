package domain

// ColumnType is the declared type of a canonical column.
type ColumnType string

const (
	ColumnNumeric   ColumnType = "numeric"
	ColumnInteger   ColumnType = "integer"
	ColumnBoolean   ColumnType = "boolean"
	ColumnTimestamp ColumnType = "timestamp"
)

// ColumnSpec declares one column of a modality's canonical layout:
// name, type, inclusive value range, unit, and a short description.
// The same table drives validation and the generated output header.
type ColumnSpec struct {
	Name        string     `json:"name" yaml:"name"`
	Type        ColumnType `json:"type" yaml:"type"`
	Min         *float64   `json:"min,omitempty" yaml:"min"`
	Max         *float64   `json:"max,omitempty" yaml:"max"`
	Unit        string     `json:"unit,omitempty" yaml:"unit"`
	Description string     `json:"description,omitempty" yaml:"description"`
}

// HasRange reports whether the column declares an inclusive bound.
func (c ColumnSpec) HasRange() bool {
	return c.Min != nil || c.Max != nil
}

// InRange reports whether v satisfies the declared inclusive bounds.
func (c ColumnSpec) InRange(v float64) bool {
	if c.Min != nil && v < *c.Min {
		return false
	}
	if c.Max != nil && v > *c.Max {
		return false
	}
	return true
}
