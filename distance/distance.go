// Package distance provides the distance metrics used by the index engines.
package distance

import (
	"fmt"
	"math"
	"slices"
)

// Metric represents the distance/similarity function used for vector comparison.
type Metric int

const (
	// MetricL2 is squared Euclidean distance. Smaller is closer.
	MetricL2 Metric = iota
	// MetricInnerProduct is the raw dot product. Larger is more similar.
	MetricInnerProduct
)

// String returns a string representation of the Metric.
func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricInnerProduct:
		return "InnerProduct"
	default:
		return "Unknown"
	}
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	return m == MetricL2 || m == MetricInnerProduct
}

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Score computes the comparison value for the given metric.
// For MetricL2 this is squared distance, for MetricInnerProduct the dot product.
func Score(m Metric, a, b []float32) float32 {
	if m == MetricInnerProduct {
		return Dot(a, b)
	}
	return SquaredL2(a, b)
}

// Better reports whether score a beats score b under the given metric.
func Better(m Metric, a, b float32) bool {
	if m == MetricInnerProduct {
		return a > b
	}
	return a < b
}

// Magnitude calculates the L2 norm of v.
func Magnitude(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := Dot(v, v)
	if norm2 == 0 {
		return false
	}
	inv := 1 / float32(math.Sqrt(float64(norm2)))
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// ParseMetric resolves a metric by its stable name.
func ParseMetric(name string) (Metric, error) {
	switch name {
	case "L2":
		return MetricL2, nil
	case "InnerProduct":
		return MetricInnerProduct, nil
	default:
		return 0, fmt.Errorf("unknown metric: %q", name)
	}
}
