// Package engine provides the vector index engines behind the vecdex handle.
//
// Engines are consumed through the narrow Engine capability interface; the
// wrapping handle never inspects engine internals or persisted byte layouts.
// Concrete implementations are selected by a factory keyed on Kind.
package engine

import (
	"io"

	"github.com/hupe1980/vecdex/distance"
)

// Kind identifies a concrete engine implementation.
type Kind uint8

// Supported engine kinds.
const (
	KindFlatL2 Kind = iota + 1
	KindFlatIP
	KindIVFFlat
	KindHNSW
)

// String returns a string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindFlatL2:
		return "FLAT_L2"
	case KindFlatIP:
		return "FLAT_IP"
	case KindIVFFlat:
		return "IVF_FLAT"
	case KindHNSW:
		return "HNSW"
	default:
		return "Unknown"
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k >= KindFlatL2 && k <= KindHNSW
}

// Metric returns the comparison metric used by engines of this kind.
func (k Kind) Metric() distance.Metric {
	if k == KindFlatIP {
		return distance.MetricInnerProduct
	}
	return distance.MetricL2
}

// Params contains construction parameters for all engine kinds.
// Kinds ignore parameters that do not apply to them.
type Params struct {
	// Dims is the fixed vector dimensionality. Must be > 0.
	Dims int

	// Nlist is the number of inverted-file partitions (IVF only).
	Nlist int
	// Nprobe is the number of partitions probed per search (IVF only).
	Nprobe int

	// M is the graph degree (HNSW only).
	M int
	// EfConstruction is the construction-time beam width (HNSW only).
	EfConstruction int
	// EfSearch is the search-time beam width (HNSW only).
	EfSearch int
}

// Engine is the capability interface of one index engine instance.
//
// Implementations are not safe for concurrent use; the owning handle
// serializes access with its own lock.
type Engine interface {
	// Kind returns the engine kind.
	Kind() Kind

	// Params returns the construction parameters.
	Params() Params

	// Dims returns the configured vector dimensionality.
	Dims() int

	// Ntotal returns the number of stored vectors.
	Ntotal() int

	// Trained reports whether the engine is ready to accept vectors.
	Trained() bool

	// Train prepares the engine from a flat buffer of training vectors.
	// Kinds without a training stage succeed as a no-op.
	Train(vectors []float32) error

	// Add appends the vectors in the flat buffer, assigning sequential labels
	// starting at the current Ntotal.
	Add(vectors []float32) error

	// Search returns exactly min(k, Ntotal) scores and labels for a single
	// query, best first. For L2 engines scores ascend, for inner-product
	// engines they descend. Approximate engines mark slots they cannot fill
	// with label -1 and an infinite distance.
	Search(query []float32, k int) ([]float32, []int64, error)

	// RangeSearch returns all matches within radius for a single query.
	// L2 engines include results with distance strictly below radius,
	// inner-product engines results with score strictly above it.
	// Result ordering within the segment is unspecified.
	RangeSearch(query []float32, radius float32) ([]float32, []int64, error)

	// Reset removes all stored vectors. The trained state is preserved.
	Reset()

	// MergeFrom appends all of other's vectors to this engine, assigning
	// labels starting at the current Ntotal. other is left unchanged.
	MergeFrom(other Engine) error

	// SetNprobe adjusts the probe breadth. Kinds without partitions ignore it.
	SetNprobe(n int)

	// WriteTo streams the engine's self-describing byte representation.
	WriteTo(w io.Writer) (int64, error)
}

// vectorSource exposes the raw stored vectors for move-merge support.
// All in-package engines implement it.
type vectorSource interface {
	rawVectors() []float32
}

// New constructs an engine of the given kind.
// Params must already be validated and defaulted by the caller.
func New(kind Kind, p Params) (Engine, error) {
	if p.Dims <= 0 {
		return nil, &ErrInvalidDimension{Dimension: p.Dims}
	}

	switch kind {
	case KindFlatL2:
		return newFlat(distance.MetricL2, p), nil
	case KindFlatIP:
		return newFlat(distance.MetricInnerProduct, p), nil
	case KindIVFFlat:
		return newIVFFlat(p), nil
	case KindHNSW:
		return newHNSW(p), nil
	default:
		return nil, &ErrUnknownKind{Kind: kind}
	}
}

// mergeInto re-adds all raw vectors of src into dst.
// Shared by every MergeFrom implementation.
func mergeInto(dst, src Engine) error {
	if src.Dims() != dst.Dims() {
		return &ErrDimensionMismatch{Expected: dst.Dims(), Actual: src.Dims()}
	}
	vs, ok := src.(vectorSource)
	if !ok {
		return &ErrUnknownKind{Kind: src.Kind()}
	}
	raw := vs.rawVectors()
	if len(raw) == 0 {
		return nil
	}
	if !dst.Trained() {
		return ErrNotTrained
	}
	return dst.Add(raw)
}
