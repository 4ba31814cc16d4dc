// Package codec centralizes snapshot payload compression.
//
// Codec selection is a compatibility boundary: snapshots record the codec
// name in their header, and a snapshot can only be opened by a build that
// knows the recorded codec.
package codec

// Codec compresses and decompresses snapshot payloads.
// Implementations must be safe for concurrent use.
type Codec interface {
	// Name returns the stable identifier recorded in snapshot headers.
	Name() string

	// Compress returns the encoded form of data.
	Compress(data []byte) ([]byte, error)

	// Decompress reverses Compress.
	Decompress(data []byte) ([]byte, error)
}

// Default is the codec used when none is configured.
var Default Codec = None{}

// ByName returns a built-in codec by its stable name.
//
// Used by the self-describing snapshot format, which stores the codec name
// in its header.
func ByName(name string) (Codec, bool) {
	switch name {
	case "none":
		return None{}, true
	case "lz4":
		return LZ4{}, true
	case "zstd":
		return Zstd{}, true
	default:
		return nil, false
	}
}

// None is the identity codec.
type None struct{}

// Name returns the stable identifier recorded in snapshot headers.
func (None) Name() string { return "none" }

// Compress returns data unchanged.
func (None) Compress(data []byte) ([]byte, error) { return data, nil }

// Decompress returns data unchanged.
func (None) Decompress(data []byte) ([]byte, error) { return data, nil }
