package vecdex

import (
	"fmt"

	"github.com/hupe1980/vecdex/distance"
	"github.com/hupe1980/vecdex/engine"
)

// IndexType selects the engine behind an index.
type IndexType string

// Supported index types.
const (
	// IndexTypeFlatL2 is exact search by squared Euclidean distance.
	IndexTypeFlatL2 IndexType = "FLAT_L2"
	// IndexTypeFlatIP is exact search by inner product.
	IndexTypeFlatIP IndexType = "FLAT_IP"
	// IndexTypeIVFFlat is inverted-file search; requires training.
	IndexTypeIVFFlat IndexType = "IVF_FLAT"
	// IndexTypeHNSW is graph-based approximate search.
	IndexTypeHNSW IndexType = "HNSW"
)

// Valid reports whether t is a known index type.
func (t IndexType) Valid() bool {
	switch t {
	case IndexTypeFlatL2, IndexTypeFlatIP, IndexTypeIVFFlat, IndexTypeHNSW:
		return true
	default:
		return false
	}
}

// Metric returns the comparison metric used by this index type.
func (t IndexType) Metric() distance.Metric {
	return t.engineKind().Metric()
}

func (t IndexType) engineKind() engine.Kind {
	switch t {
	case IndexTypeFlatL2:
		return engine.KindFlatL2
	case IndexTypeFlatIP:
		return engine.KindFlatIP
	case IndexTypeIVFFlat:
		return engine.KindIVFFlat
	case IndexTypeHNSW:
		return engine.KindHNSW
	default:
		return 0
	}
}

func indexTypeFromKind(k engine.Kind) IndexType {
	switch k {
	case engine.KindFlatL2:
		return IndexTypeFlatL2
	case engine.KindFlatIP:
		return IndexTypeFlatIP
	case engine.KindIVFFlat:
		return IndexTypeIVFFlat
	case engine.KindHNSW:
		return IndexTypeHNSW
	default:
		return ""
	}
}

// Tuning defaults applied by Config.withDefaults.
const (
	// DefaultNlist is the default number of IVF partitions.
	DefaultNlist = 100
	// DefaultNprobe is the default number of IVF partitions probed per search.
	DefaultNprobe = 1
	// DefaultM is the default HNSW graph degree.
	DefaultM = 16
	// DefaultEfConstruction is the default HNSW construction beam width.
	DefaultEfConstruction = 200
	// DefaultEfSearch is the default HNSW search beam width.
	DefaultEfSearch = 50
)

// Config describes the index to build. Dims and Type are required; the
// tuning parameters fall back to the package defaults when zero.
type Config struct {
	// Dims is the fixed dimensionality of all vectors in the index.
	Dims int

	// Type selects the engine.
	Type IndexType

	// Nlist is the number of IVF partitions (IVF_FLAT only).
	Nlist int
	// Nprobe is the number of IVF partitions probed per search (IVF_FLAT only).
	Nprobe int

	// M is the HNSW graph degree (HNSW only).
	M int
	// EfConstruction is the HNSW construction beam width (HNSW only).
	EfConstruction int
	// EfSearch is the HNSW search beam width (HNSW only).
	EfSearch int
}

func (c Config) withDefaults() Config {
	if c.Type == "" {
		c.Type = IndexTypeFlatL2
	}

	if c.Nlist == 0 {
		c.Nlist = DefaultNlist
	}

	if c.Nprobe == 0 {
		c.Nprobe = DefaultNprobe
	}

	if c.M == 0 {
		c.M = DefaultM
	}

	if c.EfConstruction == 0 {
		c.EfConstruction = DefaultEfConstruction
	}

	if c.EfSearch == 0 {
		c.EfSearch = DefaultEfSearch
	}

	return c
}

// Validate checks the configuration after defaults have been applied.
func (c Config) Validate() error {
	if c.Dims <= 0 {
		return fmt.Errorf("%w: dims must be positive, got %d", ErrInvalidArgument, c.Dims)
	}

	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown index type %q", ErrInvalidArgument, string(c.Type))
	}

	if c.Nlist <= 0 {
		return fmt.Errorf("%w: nlist must be positive, got %d", ErrInvalidArgument, c.Nlist)
	}

	if c.Nprobe <= 0 {
		return fmt.Errorf("%w: nprobe must be positive, got %d", ErrInvalidArgument, c.Nprobe)
	}

	if c.M < 2 {
		return fmt.Errorf("%w: m must be at least 2, got %d", ErrInvalidArgument, c.M)
	}

	if c.EfConstruction <= 0 {
		return fmt.Errorf("%w: efConstruction must be positive, got %d", ErrInvalidArgument, c.EfConstruction)
	}

	if c.EfSearch <= 0 {
		return fmt.Errorf("%w: efSearch must be positive, got %d", ErrInvalidArgument, c.EfSearch)
	}

	return nil
}

// ParseConfig builds a Config from an untyped record, such as a decoded
// JSON document. Unknown keys are rejected. Numeric values may be any
// integer-valued number; JSON decoding yields float64.
func ParseConfig(raw map[string]any) (Config, error) {
	var c Config

	for key, value := range raw {
		if key == "type" {
			s, ok := value.(string)
			if !ok {
				return Config{}, fmt.Errorf("%w: config key %q must be a string, got %T", ErrInvalidArgument, key, value)
			}

			c.Type = IndexType(s)

			continue
		}

		n, ok := intValue(value)
		if !ok {
			return Config{}, fmt.Errorf("%w: config key %q must be an integer, got %v", ErrInvalidArgument, key, value)
		}

		switch key {
		case "dims":
			c.Dims = n
		case "nlist":
			c.Nlist = n
		case "nprobe":
			c.Nprobe = n
		case "m", "M":
			c.M = n
		case "efConstruction":
			c.EfConstruction = n
		case "efSearch":
			c.EfSearch = n
		default:
			return Config{}, fmt.Errorf("%w: unknown config key %q", ErrInvalidArgument, key)
		}
	}

	return c, nil
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}

		return int(n), true
	default:
		return 0, false
	}
}

func (c Config) engineParams() engine.Params {
	return engine.Params{
		Dims:           c.Dims,
		Nlist:          c.Nlist,
		Nprobe:         c.Nprobe,
		M:              c.M,
		EfConstruction: c.EfConstruction,
		EfSearch:       c.EfSearch,
	}
}

func configFromEngine(e engine.Engine) Config {
	p := e.Params()

	return Config{
		Dims:           p.Dims,
		Type:           indexTypeFromKind(e.Kind()),
		Nlist:          p.Nlist,
		Nprobe:         p.Nprobe,
		M:              p.M,
		EfConstruction: p.EfConstruction,
		EfSearch:       p.EfSearch,
	}.withDefaults()
}
