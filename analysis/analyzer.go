// Package analysis computes scalar diagnostics (dominant frequency, energy,
// coherence) from embedding vectors.
//
// These are numeric diagnostics over vector geometry, not a physical model.
// The analyzer is called by applications independently of the relay; the
// broker and clients never consume it.
package analysis

import (
	"math"
	"sync"

	"github.com/antonypamo/ProSavantEngine/errors"
)

// Metrics are the diagnostics produced for one vector.
type Metrics struct {
	// DominantFrequency maps the strongest vector component onto an
	// equal-tempered scale, in Hz.
	DominantFrequency float64
	// Energy is the discrete Hamiltonian-style sum: kinetic term plus mass
	// term plus logarithmic potential of the vector norm.
	Energy float64
	// Coherence is an exponential moving average in (0, 1] tracking how
	// stable recent energies have been.
	Coherence float64
}

const (
	// baseFrequency anchors the equal-tempered mapping (A0).
	baseFrequency = 27.5
	// semitonesPerOctave for the equal-tempered scale.
	semitonesPerOctave = 12.0
	// scaleRange keeps mapped frequencies inside a piano-like range.
	scaleRange = 88
	// coherenceAlpha is the EMA smoothing factor.
	coherenceAlpha = 0.1
)

// Analyzer derives Metrics from vectors. It carries a small amount of state:
// the coherence average evolves across calls, so one Analyzer should observe
// one stream of vectors. Safe for concurrent use.
type Analyzer struct {
	mass float64

	mu        sync.Mutex
	coherence float64
	samples   int
}

// NewAnalyzer creates an analyzer with unit mass.
func NewAnalyzer() *Analyzer {
	return &Analyzer{mass: 1.0}
}

// Analyze computes diagnostics for vector. An empty vector is invalid.
func (a *Analyzer) Analyze(vector []float64) (Metrics, error) {
	if len(vector) == 0 {
		return Metrics{}, errors.WrapInvalid(errors.ErrInvalidData,
			"Analyzer", "Analyze", "vector must contain at least one component")
	}

	var kinetic, massTerm, normSq float64
	maxIdx := 0
	maxAbs := math.Abs(vector[0])
	for i, v := range vector {
		kinetic += v * v
		massTerm += v
		normSq += v * v
		if abs := math.Abs(v); abs > maxAbs {
			maxAbs = abs
			maxIdx = i
		}
	}

	norm := math.Sqrt(normSq)
	potential := math.Log(1 + norm)
	energy := kinetic + a.mass*massTerm + potential

	semitone := float64(maxIdx % scaleRange)
	frequency := baseFrequency * math.Pow(2, semitone/semitonesPerOctave)

	return Metrics{
		DominantFrequency: frequency,
		Energy:            energy,
		Coherence:         a.updateCoherence(energy),
	}, nil
}

// updateCoherence folds one energy observation into the moving average.
// Energies are squashed into (0, 1] first so coherence stays bounded no
// matter how large the vectors get.
func (a *Analyzer) updateCoherence(energy float64) float64 {
	observation := 1.0 / (1.0 + math.Abs(energy))

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.samples == 0 {
		a.coherence = observation
	} else {
		a.coherence = (1-coherenceAlpha)*a.coherence + coherenceAlpha*observation
	}
	a.samples++
	return a.coherence
}
