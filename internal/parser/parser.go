// Package parser defines the adapter contract for device-family raw
// file parsers and the registry that dispatches by modality. Each
// device family implements one capability: parse one raw file of its
// modality into canonical samples plus raw metadata. Nothing above the
// adapter knows device byte layouts, and no adapter ever infers
// participant identity beyond extracting the raw device identifier.
package parser

import (
	"context"
	"fmt"
	"sync"

	"sensorstd/pkg/contracts/domain"
)

// Parser converts one raw device file into a canonical sample batch.
type Parser interface {
	// Modality returns the device family's modality.
	Modality() domain.Modality

	// Parse reads one raw file. Errors wrap ErrMalformedFile when the
	// file is present but corrupt, or ErrUnsupportedFormat when the
	// version/variant is not recognized; both disqualify only the one
	// file.
	Parse(ctx context.Context, ref domain.RawFileRef) (*domain.SampleBatch, error)
}

// Registry maps modalities to their parser implementations.
type Registry struct {
	mu      sync.RWMutex
	parsers map[domain.Modality]Parser
	order   []domain.Modality
}

// NewRegistry creates an empty parser registry.
func NewRegistry() *Registry {
	return &Registry{
		parsers: make(map[domain.Modality]Parser),
	}
}

// Register adds a parser to the registry.
func (r *Registry) Register(p Parser) error {
	if p == nil {
		return fmt.Errorf("cannot register nil parser")
	}
	m := p.Modality()
	if m == "" {
		return fmt.Errorf("parser modality cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.parsers[m]; exists {
		return fmt.Errorf("parser for modality %s already registered", m)
	}
	r.parsers[m] = p
	r.order = append(r.order, m)
	return nil
}

// Get retrieves the parser for a modality.
func (r *Registry) Get(m domain.Modality) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.parsers[m]
	if !exists {
		return nil, fmt.Errorf("no parser registered for modality %s", m)
	}
	return p, nil
}

// Has checks if a parser is registered for the modality.
func (r *Registry) Has(m domain.Modality) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.parsers[m]
	return exists
}

// Modalities returns the registered modalities in registration order.
func (r *Registry) Modalities() []domain.Modality {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Modality, len(r.order))
	copy(out, r.order)
	return out
}
