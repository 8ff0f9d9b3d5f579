// Package projection reduces high-dimensional field vectors to 3-D points and
// renders each full-buffer snapshot for visualization.
//
// Projection is recomputed from scratch over the whole buffer on every render,
// so the axes may rotate between snapshots as new points reshape the variance
// structure. Consumers that need stable axes should align successive frames
// themselves.
package projection

import (
	"math"
	"math/rand"

	"github.com/antonypamo/ProSavantEngine/errors"
)

// OutputDimensions is the dimensionality of projected points.
const OutputDimensions = 3

const (
	powerIterations = 100
	convergenceTol  = 1e-10
)

// Point is one projected vector.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PCA projects vectors onto their top three principal components using power
// iteration with deflation. Fewer than OutputDimensions input vectors, or
// inputs with fewer than OutputDimensions components, pad the missing axes
// with zeros.
func PCA(vectors [][]float64) ([]Point, error) {
	if len(vectors) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"projection", "PCA", "no vectors to project")
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidData,
			"projection", "PCA", "vectors must have at least one component")
	}
	for _, v := range vectors {
		if len(v) != dim {
			return nil, errors.WrapInvalid(errors.ErrInvalidData,
				"projection", "PCA", "vectors must share one dimension")
		}
	}

	centered := center(vectors, dim)

	components := min(OutputDimensions, min(dim, len(vectors)))
	axes := make([][]float64, 0, components)
	// Deterministic seed keeps projections reproducible run to run.
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < components; i++ {
		axis := principalAxis(centered, dim, axes, rng)
		if axis == nil {
			break // remaining variance is numerically zero
		}
		axes = append(axes, axis)
	}

	points := make([]Point, len(centered))
	for i, row := range centered {
		var coords [OutputDimensions]float64
		for j, axis := range axes {
			coords[j] = dot(row, axis)
		}
		points[i] = Point{X: coords[0], Y: coords[1], Z: coords[2]}
	}
	return points, nil
}

// center subtracts the column mean from every row.
func center(vectors [][]float64, dim int) [][]float64 {
	mean := make([]float64, dim)
	for _, v := range vectors {
		for j, x := range v {
			mean[j] += x
		}
	}
	n := float64(len(vectors))
	for j := range mean {
		mean[j] /= n
	}

	centered := make([][]float64, len(vectors))
	for i, v := range vectors {
		row := make([]float64, dim)
		for j, x := range v {
			row[j] = x - mean[j]
		}
		centered[i] = row
	}
	return centered
}

// principalAxis finds the dominant eigenvector of the covariance of rows,
// orthogonal to the axes already found. Returns nil when the data carries no
// variance along any remaining direction.
func principalAxis(rows [][]float64, dim int, prior [][]float64, rng *rand.Rand) []float64 {
	axis := make([]float64, dim)
	for j := range axis {
		axis[j] = rng.NormFloat64()
	}
	orthogonalize(axis, prior)
	if normalize(axis) == 0 {
		return nil
	}

	next := make([]float64, dim)
	for iter := 0; iter < powerIterations; iter++ {
		// next = C * axis without materializing the covariance matrix:
		// C*a = (1/n) * sum_i row_i * (row_i . a).
		for j := range next {
			next[j] = 0
		}
		for _, row := range rows {
			p := dot(row, axis)
			for j, x := range row {
				next[j] += p * x
			}
		}

		orthogonalize(next, prior)
		if normalize(next) == 0 {
			return nil
		}

		var diff float64
		for j := range axis {
			diff += (next[j] - axis[j]) * (next[j] - axis[j])
		}
		copy(axis, next)
		if diff < convergenceTol {
			break
		}
	}
	return axis
}

// orthogonalize removes the projection of v onto each basis vector in place.
func orthogonalize(v []float64, basis [][]float64) {
	for _, b := range basis {
		p := dot(v, b)
		for j := range v {
			v[j] -= p * b[j]
		}
	}
}

// normalize scales v to unit length and returns the original norm.
func normalize(v []float64) float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if norm < 1e-12 {
		return 0
	}
	for j := range v {
		v[j] /= norm
	}
	return norm
}

func dot(a, b []float64) float64 {
	var s float64
	for i, x := range a {
		s += x * b[i]
	}
	return s
}
