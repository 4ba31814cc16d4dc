package vecdex_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/vecdex"
	"github.com/hupe1980/vecdex/codec"
)

// Example_flat demonstrates exact search on a flat index.
func Example_flat() {
	ctx := context.Background()

	ix, err := vecdex.New(vecdex.Config{Dims: 3, Type: vecdex.IndexTypeFlatL2})
	if err != nil {
		log.Fatal(err)
	}
	defer ix.Close()

	// Two vectors, flat row-major layout.
	if _, err := ix.Add([]float32{
		1, 0, 0,
		0, 1, 0,
	}).Wait(ctx); err != nil {
		log.Fatal(err)
	}

	res, err := ix.Search([]float32{0.9, 0.1, 0}, 1).Wait(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Nearest label: %d\n", res.Labels[0])
	// Output: Nearest label: 0
}

// Example_ivf demonstrates training an IVF index before adding vectors.
func Example_ivf() {
	ctx := context.Background()

	ix, err := vecdex.New(vecdex.Config{
		Dims:   2,
		Type:   vecdex.IndexTypeIVFFlat,
		Nlist:  2,
		Nprobe: 2,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer ix.Close()

	training := []float32{
		0, 0,
		0.1, 0,
		10, 10,
		10.1, 10,
	}

	if _, err := ix.Train(training).Wait(ctx); err != nil {
		log.Fatal(err)
	}

	if _, err := ix.Add(training).Wait(ctx); err != nil {
		log.Fatal(err)
	}

	res, err := ix.Search([]float32{9.9, 10}, 1).Wait(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Nearest label: %d\n", res.Labels[0])
	// Output: Nearest label: 2
}

// Example_snapshot demonstrates saving and restoring an index.
func Example_snapshot() {
	ctx := context.Background()
	path := "./example_snapshot.vdx"
	defer os.Remove(path)

	ix, err := vecdex.New(vecdex.Config{Dims: 3, Type: vecdex.IndexTypeHNSW}, vecdex.WithCodec(codec.Zstd{}))
	if err != nil {
		log.Fatal(err)
	}
	defer ix.Close()

	if _, err := ix.Add([]float32{1, 0, 0, 0, 1, 0, 0, 0, 1}).Wait(ctx); err != nil {
		log.Fatal(err)
	}

	if _, err := ix.SaveToFile(path).Wait(ctx); err != nil {
		log.Fatal(err)
	}

	restored, err := vecdex.Load(path)
	if err != nil {
		log.Fatal(err)
	}
	defer restored.Close()

	fmt.Printf("Restored %d vectors\n", restored.Ntotal())
	// Output: Restored 3 vectors
}

// Example_merge demonstrates moving all vectors of one index into another.
func Example_merge() {
	ctx := context.Background()

	dst, _ := vecdex.New(vecdex.Config{Dims: 2, Type: vecdex.IndexTypeFlatIP})
	defer dst.Close()

	src, _ := vecdex.New(vecdex.Config{Dims: 2, Type: vecdex.IndexTypeFlatIP})
	defer src.Close()

	dst.Add([]float32{1, 0}).Wait(ctx)
	src.Add([]float32{0, 1, 1, 1}).Wait(ctx)

	moved, err := dst.MergeFrom(src).Wait(ctx)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Moved %d vectors, source now holds %d\n", moved, src.Ntotal())
	// Output: Moved 2 vectors, source now holds 0
}
