package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensorstd/internal/schema"
	"sensorstd/pkg/contracts/domain"
)

func TestRegistry_RegisterAndDispatch(t *testing.T) {
	reg, err := schema.Load()
	require.NoError(t, err)

	r := NewRegistry()
	for modality, construct := range Builtin(nil) {
		ms, err := reg.Get(modality)
		require.NoError(t, err)
		require.NoError(t, r.Register(construct(ms)))
	}

	assert.Len(t, r.Modalities(), 3)
	for _, m := range []domain.Modality{
		domain.ModalityEnvSensor,
		domain.ModalityECG,
		domain.ModalityFitnessTracker,
	} {
		require.True(t, r.Has(m))
		p, err := r.Get(m)
		require.NoError(t, err)
		assert.Equal(t, m, p.Modality())
	}
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	ms := envSchema(t)
	r := NewRegistry()
	require.NoError(t, r.Register(NewEnvSensorParser(ms, nil)))

	err := r.Register(NewEnvSensorParser(ms, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_RejectsNil(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil))
}

func TestRegistry_UnknownModality(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(domain.ModalityECG)
	assert.Error(t, err)
	assert.False(t, r.Has(domain.ModalityECG))
}
