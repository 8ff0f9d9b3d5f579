package analysis

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pserrors "github.com/antonypamo/ProSavantEngine/errors"
)

func TestAnalyzeEmptyVector(t *testing.T) {
	a := NewAnalyzer()

	_, err := a.Analyze(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, pserrors.ErrInvalidData)
	assert.True(t, pserrors.IsInvalid(err))
}

func TestAnalyzeEnergy(t *testing.T) {
	a := NewAnalyzer()

	// vector [3, 4]: kinetic 25, mass term 7, potential ln(1+5).
	m, err := a.Analyze([]float64{3, 4})
	require.NoError(t, err)

	expected := 25.0 + 7.0 + math.Log(6)
	assert.InDelta(t, expected, m.Energy, 1e-12)
}

func TestAnalyzeDominantFrequency(t *testing.T) {
	a := NewAnalyzer()

	// Strongest component at index 0 lands on the base of the scale.
	m, err := a.Analyze([]float64{5, 1, 1})
	require.NoError(t, err)
	assert.InDelta(t, 27.5, m.DominantFrequency, 1e-12)

	// Twelve semitones up doubles the frequency.
	vec := make([]float64, 20)
	vec[12] = -9 // magnitude decides dominance, not sign
	m, err = a.Analyze(vec)
	require.NoError(t, err)
	assert.InDelta(t, 55.0, m.DominantFrequency, 1e-9)
}

func TestCoherenceBoundedAndSmoothed(t *testing.T) {
	a := NewAnalyzer()

	var prev float64
	for i := 0; i < 50; i++ {
		m, err := a.Analyze([]float64{1, 2, 3})
		require.NoError(t, err)
		assert.Greater(t, m.Coherence, 0.0)
		assert.LessOrEqual(t, m.Coherence, 1.0)
		if i > 0 {
			// Identical inputs keep the average fixed.
			assert.InDelta(t, prev, m.Coherence, 1e-12)
		}
		prev = m.Coherence
	}
}

func TestCoherenceTracksEnergyShift(t *testing.T) {
	a := NewAnalyzer()

	calm, err := a.Analyze([]float64{0.1})
	require.NoError(t, err)

	// A much larger energy pulls the average down.
	after, err := a.Analyze([]float64{100})
	require.NoError(t, err)
	assert.Less(t, after.Coherence, calm.Coherence)
}
