package engine

import (
	"bytes"
	"math"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// basisVectors returns the four 4-dimensional standard basis vectors as one
// flat buffer.
func basisVectors() []float32 {
	return []float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

func TestFlatL2(t *testing.T) {
	e, err := New(KindFlatL2, Params{Dims: 4})
	require.NoError(t, err)

	t.Run("EmptySearch", func(t *testing.T) {
		_, _, err := e.Search([]float32{1, 0, 0, 0}, 1)
		assert.ErrorIs(t, err, ErrEmptyIndex)
	})

	require.NoError(t, e.Add(basisVectors()))
	assert.Equal(t, 4, e.Ntotal())

	t.Run("Search", func(t *testing.T) {
		scores, labels, err := e.Search([]float32{1, 0, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, labels, 2)

		assert.Equal(t, int64(0), labels[0])
		assert.Equal(t, float32(0), scores[0])
		assert.Equal(t, float32(2), scores[1])
	})

	t.Run("KClamped", func(t *testing.T) {
		scores, labels, err := e.Search([]float32{1, 0, 0, 0}, 100)
		require.NoError(t, err)
		assert.Len(t, labels, 4)
		assert.Len(t, scores, 4)
	})

	t.Run("RangeSearchStrict", func(t *testing.T) {
		// Exact matches have distance 0, all others distance 2.
		scores, labels, err := e.RangeSearch([]float32{1, 0, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, labels, 1)
		assert.Equal(t, int64(0), labels[0])
		assert.Equal(t, float32(0), scores[0])
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		err := e.Add([]float32{1, 2, 3})

		var dimErr *ErrDimensionMismatch
		require.ErrorAs(t, err, &dimErr)
		assert.Equal(t, 4, dimErr.Expected)
	})

	t.Run("Reset", func(t *testing.T) {
		e.Reset()
		assert.Equal(t, 0, e.Ntotal())
		assert.True(t, e.Trained())
	})
}

func TestFlatIP(t *testing.T) {
	e, err := New(KindFlatIP, Params{Dims: 2})
	require.NoError(t, err)

	require.NoError(t, e.Add([]float32{
		1, 0,
		0.5, 0.5,
		0, 1,
	}))

	t.Run("DescendingScores", func(t *testing.T) {
		scores, labels, err := e.Search([]float32{1, 0}, 3)
		require.NoError(t, err)

		assert.Equal(t, []int64{0, 1, 2}, labels)
		assert.Equal(t, float32(1), scores[0])
		assert.Equal(t, float32(0.5), scores[1])
		assert.Equal(t, float32(0), scores[2])
	})

	t.Run("RangeSearchAboveRadius", func(t *testing.T) {
		_, labels, err := e.RangeSearch([]float32{1, 0}, 0.5)
		require.NoError(t, err)
		assert.Equal(t, []int64{0}, labels)
	})
}

func TestIVFFlat(t *testing.T) {
	p := Params{Dims: 4, Nlist: 2, Nprobe: 2}

	e, err := New(KindIVFFlat, p)
	require.NoError(t, err)

	t.Run("AddBeforeTrain", func(t *testing.T) {
		assert.ErrorIs(t, e.Add(basisVectors()), ErrNotTrained)
	})

	t.Run("SearchBeforeTrain", func(t *testing.T) {
		_, _, err := e.Search([]float32{1, 0, 0, 0}, 1)
		assert.ErrorIs(t, err, ErrNotTrained)
	})

	t.Run("InsufficientTrainingData", func(t *testing.T) {
		err := e.Train([]float32{1, 0, 0, 0})

		var trainErr *ErrInsufficientTraining
		require.ErrorAs(t, err, &trainErr)
		assert.Equal(t, 2, trainErr.Need)
		assert.Equal(t, 1, trainErr.Got)
	})

	require.NoError(t, e.Train(basisVectors()))
	assert.True(t, e.Trained())

	require.NoError(t, e.Add(basisVectors()))
	assert.Equal(t, 4, e.Ntotal())

	t.Run("SearchAllPartitions", func(t *testing.T) {
		scores, labels, err := e.Search([]float32{0, 1, 0, 0}, 1)
		require.NoError(t, err)

		assert.Equal(t, []int64{1}, labels)
		assert.Equal(t, []float32{0}, scores)
	})

	t.Run("RangeSearch", func(t *testing.T) {
		_, labels, err := e.RangeSearch([]float32{0, 1, 0, 0}, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, labels)
	})

	t.Run("ResetKeepsTraining", func(t *testing.T) {
		e.Reset()
		assert.Equal(t, 0, e.Ntotal())
		assert.True(t, e.Trained())

		require.NoError(t, e.Add(basisVectors()))
		assert.Equal(t, 4, e.Ntotal())
	})
}

func TestHNSW(t *testing.T) {
	e, err := New(KindHNSW, Params{Dims: 4, M: 16, EfConstruction: 200, EfSearch: 50})
	require.NoError(t, err)

	t.Run("EmptySearch", func(t *testing.T) {
		_, _, err := e.Search([]float32{1, 0, 0, 0}, 1)
		assert.ErrorIs(t, err, ErrEmptyIndex)
	})

	require.NoError(t, e.Add(basisVectors()))
	assert.Equal(t, 4, e.Ntotal())

	t.Run("Search", func(t *testing.T) {
		scores, labels, err := e.Search([]float32{0, 0, 1, 0}, 1)
		require.NoError(t, err)

		assert.Equal(t, []int64{2}, labels)
		assert.Equal(t, []float32{0}, scores)
	})

	t.Run("KClamped", func(t *testing.T) {
		_, labels, err := e.Search([]float32{1, 0, 0, 0}, 100)
		require.NoError(t, err)
		assert.Len(t, labels, 4)
	})

	t.Run("RangeSearch", func(t *testing.T) {
		_, labels, err := e.RangeSearch([]float32{0, 0, 1, 0}, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{2}, labels)
	})
}

func TestMergeFrom(t *testing.T) {
	t.Run("Flat", func(t *testing.T) {
		dst, err := New(KindFlatL2, Params{Dims: 4})
		require.NoError(t, err)
		require.NoError(t, dst.Add(basisVectors()[:8]))

		src, err := New(KindFlatL2, Params{Dims: 4})
		require.NoError(t, err)
		require.NoError(t, src.Add(basisVectors()[8:]))

		require.NoError(t, dst.MergeFrom(src))
		assert.Equal(t, 4, dst.Ntotal())
		assert.Equal(t, 2, src.Ntotal())

		// Merged vectors get labels after the existing ones.
		_, labels, err := dst.Search([]float32{0, 0, 0, 1}, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{3}, labels)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		dst, err := New(KindFlatL2, Params{Dims: 4})
		require.NoError(t, err)

		src, err := New(KindFlatL2, Params{Dims: 8})
		require.NoError(t, err)

		var dimErr *ErrDimensionMismatch
		require.ErrorAs(t, dst.MergeFrom(src), &dimErr)
		assert.Equal(t, 4, dimErr.Expected)
		assert.Equal(t, 8, dimErr.Actual)
	})

	t.Run("CrossKind", func(t *testing.T) {
		dst, err := New(KindHNSW, Params{Dims: 4, M: 16, EfConstruction: 200, EfSearch: 50})
		require.NoError(t, err)

		src, err := New(KindFlatL2, Params{Dims: 4})
		require.NoError(t, err)
		require.NoError(t, src.Add(basisVectors()))

		require.NoError(t, dst.MergeFrom(src))
		assert.Equal(t, 4, dst.Ntotal())
	})
}

func TestPersistRoundTrip(t *testing.T) {
	kinds := []struct {
		name string
		kind Kind
		p    Params
	}{
		{"FlatL2", KindFlatL2, Params{Dims: 4}},
		{"FlatIP", KindFlatIP, Params{Dims: 4}},
		{"IVFFlat", KindIVFFlat, Params{Dims: 4, Nlist: 2, Nprobe: 2}},
		{"HNSW", KindHNSW, Params{Dims: 4, M: 16, EfConstruction: 200, EfSearch: 50}},
	}

	for _, tc := range kinds {
		t.Run(tc.name, func(t *testing.T) {
			e, err := New(tc.kind, tc.p)
			require.NoError(t, err)

			require.NoError(t, e.Train(basisVectors()))
			require.NoError(t, e.Add(basisVectors()))

			var buf bytes.Buffer
			n, err := e.WriteTo(&buf)
			require.NoError(t, err)
			assert.Equal(t, int64(buf.Len()), n)

			restored, err := Read(&buf)
			require.NoError(t, err)

			assert.Equal(t, tc.kind, restored.Kind())
			assert.Equal(t, e.Dims(), restored.Dims())
			assert.Equal(t, e.Ntotal(), restored.Ntotal())
			assert.True(t, restored.Trained())

			scores, labels, err := restored.Search([]float32{0, 1, 0, 0}, 1)
			require.NoError(t, err)
			assert.Equal(t, []int64{1}, labels)
			assert.Equal(t, []float32{0}, scores)
		})
	}
}

func TestPersistUntrainedIVF(t *testing.T) {
	e, err := New(KindIVFFlat, Params{Dims: 4, Nlist: 2, Nprobe: 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = e.WriteTo(&buf)
	require.NoError(t, err)

	restored, err := Read(&buf)
	require.NoError(t, err)
	assert.False(t, restored.Trained())
	assert.Equal(t, 0, restored.Ntotal())
}

func TestReadRejectsGarbage(t *testing.T) {
	t.Run("BadMagic", func(t *testing.T) {
		_, err := Read(bytes.NewReader([]byte("not an engine frame at all")))
		assert.ErrorIs(t, err, ErrInvalidFrame)
	})

	t.Run("Truncated", func(t *testing.T) {
		e, err := New(KindFlatL2, Params{Dims: 4})
		require.NoError(t, err)
		require.NoError(t, e.Add(basisVectors()))

		var buf bytes.Buffer
		_, err = e.WriteTo(&buf)
		require.NoError(t, err)

		_, err = Read(bytes.NewReader(buf.Bytes()[:buf.Len()-3]))
		assert.ErrorIs(t, err, ErrInvalidFrame)
	})
}

func TestNew(t *testing.T) {
	t.Run("UnknownKind", func(t *testing.T) {
		_, err := New(Kind(99), Params{Dims: 4})

		var kindErr *ErrUnknownKind
		assert.ErrorAs(t, err, &kindErr)
	})

	t.Run("InvalidDimension", func(t *testing.T) {
		_, err := New(KindFlatL2, Params{Dims: 0})

		var dimErr *ErrInvalidDimension
		require.ErrorAs(t, err, &dimErr)
		assert.Equal(t, 0, dimErr.Dimension)
	})
}

func TestKind(t *testing.T) {
	assert.Equal(t, "FLAT_L2", KindFlatL2.String())
	assert.Equal(t, "IVF_FLAT", KindIVFFlat.String())
	assert.True(t, KindHNSW.Valid())
	assert.False(t, Kind(0).Valid())
}

func TestIVFPadsUnprobedPartitions(t *testing.T) {
	e, err := New(KindIVFFlat, Params{Dims: 2, Nlist: 2, Nprobe: 1})
	require.NoError(t, err)

	clusters := []float32{
		0, 0,
		0.1, 0,
		10, 10,
		10.1, 10,
	}

	require.NoError(t, e.Train(clusters))
	require.NoError(t, e.Add(clusters))

	scores, labels, err := e.Search([]float32{0, 0}, 4)
	require.NoError(t, err)
	require.Len(t, labels, 4)
	require.Len(t, scores, 4)

	// The single probed partition holds two vectors; the remaining slots
	// carry the not-found marker.
	assert.ElementsMatch(t, []int64{0, 1}, labels[:2])
	assert.Equal(t, []int64{-1, -1}, labels[2:])
	assert.True(t, math.IsInf(float64(scores[2]), 1))
	assert.True(t, math.IsInf(float64(scores[3]), 1))
}

func TestHNSWPadsUnreachable(t *testing.T) {
	h := newHNSW(Params{Dims: 2, M: 16, EfConstruction: 200, EfSearch: 50})

	// Two nodes without links between them, as a restored graph may contain.
	h.data = []float32{0, 0, 5, 5}
	h.nodes = []*hnswNode{
		{level: 0, friends: make([][]uint32, 1)},
		{level: 0, friends: make([][]uint32, 1)},
	}
	h.entryPoint = 0

	scores, labels, err := h.Search([]float32{0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, labels, 2)

	assert.Equal(t, int64(0), labels[0])
	assert.Equal(t, int64(-1), labels[1])
	assert.True(t, math.IsInf(float64(scores[1]), 1))
}

// craftFrame assembles an engine frame with an arbitrary payload so decode
// validation can be exercised against inputs no writer would produce.
func craftFrame(kind Kind, p Params, payload func(w *frameWriter)) []byte {
	var buf bytes.Buffer
	w := &frameWriter{w: &buf}

	w.writeUint32(frameMagic)
	w.writeUint16(frameVersion)
	w.writeUint8(uint8(kind))
	w.writeInt32(int32(p.Dims))
	w.writeInt32(int32(p.Nlist))
	w.writeInt32(int32(p.Nprobe))
	w.writeInt32(int32(p.M))
	w.writeInt32(int32(p.EfConstruction))
	w.writeInt32(int32(p.EfSearch))

	payload(w)

	return buf.Bytes()
}

func TestReadRejectsMalformedPayloads(t *testing.T) {
	hnswParams := Params{Dims: 2, M: 16, EfConstruction: 200, EfSearch: 50}

	t.Run("HugeNodeCount", func(t *testing.T) {
		frame := craftFrame(KindHNSW, hnswParams, func(w *frameWriter) {
			w.writeInt64(1 << 60)
			w.writeInt32(0) // entry point
			w.writeInt32(0) // top level
		})

		_, err := Read(bytes.NewReader(frame))
		assert.ErrorIs(t, err, ErrInvalidFrame)
	})

	t.Run("NegativeNodeCount", func(t *testing.T) {
		frame := craftFrame(KindHNSW, hnswParams, func(w *frameWriter) {
			w.writeInt64(-1)
			w.writeInt32(-1)
			w.writeInt32(0)
		})

		_, err := Read(bytes.NewReader(frame))
		assert.ErrorIs(t, err, ErrInvalidFrame)
	})

	t.Run("EntryPointOutOfRange", func(t *testing.T) {
		frame := craftFrame(KindHNSW, hnswParams, func(w *frameWriter) {
			w.writeInt64(1)
			w.writeInt32(7)
			w.writeInt32(0)
		})

		_, err := Read(bytes.NewReader(frame))
		assert.ErrorIs(t, err, ErrInvalidFrame)
	})

	t.Run("NeighborOutOfRange", func(t *testing.T) {
		frame := craftFrame(KindHNSW, hnswParams, func(w *frameWriter) {
			w.writeInt64(1)
			w.writeInt32(0) // entry point
			w.writeInt32(0) // top level
			w.writeFloat32s([]float32{0, 0})
			w.writeInt32(0) // node 0 level
			w.writeUint32s([]uint32{5})
		})

		_, err := Read(bytes.NewReader(frame))
		assert.ErrorIs(t, err, ErrInvalidFrame)
	})

	t.Run("TopLevelAboveEntryPoint", func(t *testing.T) {
		frame := craftFrame(KindHNSW, hnswParams, func(w *frameWriter) {
			w.writeInt64(1)
			w.writeInt32(0)
			w.writeInt32(3)
			w.writeFloat32s([]float32{0, 0})
			w.writeInt32(0)
			w.writeUint32s(nil)
		})

		_, err := Read(bytes.NewReader(frame))
		assert.ErrorIs(t, err, ErrInvalidFrame)
	})

	t.Run("FlatNegativeVectorCount", func(t *testing.T) {
		frame := craftFrame(KindFlatL2, Params{Dims: 2}, func(w *frameWriter) {
			w.writeInt64(-1)
		})

		_, err := Read(bytes.NewReader(frame))
		assert.ErrorIs(t, err, ErrInvalidFrame)
	})

	t.Run("IVFListEntryOutOfRange", func(t *testing.T) {
		oversized, err := roaring.BitmapOf(9).ToBytes()
		require.NoError(t, err)

		empty, err := roaring.New().ToBytes()
		require.NoError(t, err)

		frame := craftFrame(KindIVFFlat, Params{Dims: 2, Nlist: 2, Nprobe: 1}, func(w *frameWriter) {
			w.writeUint8(1)                          // trained
			w.writeFloat32s([]float32{0, 0, 10, 10}) // centroids
			w.writeInt64(1)                          // ntotal
			w.writeFloat32s([]float32{0, 0})         // data
			w.writeBytes(oversized)
			w.writeBytes(empty)
		})

		_, err = Read(bytes.NewReader(frame))
		assert.ErrorIs(t, err, ErrInvalidFrame)
	})
}
