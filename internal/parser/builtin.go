package parser

import (
	"log/slog"

	"sensorstd/internal/schema"
	"sensorstd/pkg/contracts/domain"
)

// Builtin returns constructors for the in-tree device family parsers,
// keyed by modality. Callers hand each constructor the modality's
// schema and register the result.
func Builtin(logger *slog.Logger) map[domain.Modality]func(schema.ModalitySchema) Parser {
	return map[domain.Modality]func(schema.ModalitySchema) Parser{
		domain.ModalityEnvSensor: func(ms schema.ModalitySchema) Parser {
			return NewEnvSensorParser(ms, logger)
		},
		domain.ModalityECG: func(ms schema.ModalitySchema) Parser {
			return NewECGParser(ms, logger)
		},
		domain.ModalityFitnessTracker: func(ms schema.ModalitySchema) Parser {
			return NewFitnessParser(ms, logger)
		},
	}
}
