package codec

import (
	"encoding/binary"
	"errors"

	"github.com/pierrec/lz4/v4"
)

// blockHeaderSize is the fixed prefix of every encoded block:
// [UncompressedSize uint32][CompressedSize uint32][Data...].
// CompressedSize == 0 means the data is stored raw.
const blockHeaderSize = 8

var errShortBlock = errors.New("codec: block too small")

// LZ4 is a fast block codec, a good default for snapshots on hot paths.
type LZ4 struct{}

// Name returns the stable identifier recorded in snapshot headers.
func (LZ4) Name() string { return "lz4" }

// Compress encodes data as a single LZ4 block. Incompressible payloads are
// stored raw behind the same header.
func (LZ4) Compress(data []byte) ([]byte, error) {
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))

	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}

	// n == 0 means incompressible; fall back to a raw block.
	if n == 0 || n >= len(data) {
		return rawBlock(data), nil
	}

	result := make([]byte, blockHeaderSize+n)
	binary.LittleEndian.PutUint32(result[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(result[4:], uint32(n))
	copy(result[blockHeaderSize:], compressed[:n])

	return result, nil
}

// Decompress reverses Compress.
func (LZ4) Decompress(data []byte) ([]byte, error) {
	uncompressedSize, block, raw, err := parseBlock(data)
	if err != nil {
		return nil, err
	}

	if raw {
		return block, nil
	}

	result := make([]byte, uncompressedSize)

	n, err := lz4.UncompressBlock(block, result)
	if err != nil {
		return nil, err
	}

	if uint32(n) != uncompressedSize {
		return nil, errors.New("codec: decompressed size mismatch")
	}

	return result, nil
}

func rawBlock(data []byte) []byte {
	result := make([]byte, blockHeaderSize+len(data))
	binary.LittleEndian.PutUint32(result[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(result[4:], 0)
	copy(result[blockHeaderSize:], data)

	return result
}

// parseBlock splits an encoded block into its payload. raw reports whether
// the payload is stored uncompressed.
func parseBlock(data []byte) (uncompressedSize uint32, block []byte, raw bool, err error) {
	if len(data) < blockHeaderSize {
		return 0, nil, false, errShortBlock
	}

	uncompressedSize = binary.LittleEndian.Uint32(data[0:])
	compressedSize := binary.LittleEndian.Uint32(data[4:])

	if compressedSize == 0 {
		if uint32(len(data)) < blockHeaderSize+uncompressedSize {
			return 0, nil, false, errShortBlock
		}

		return uncompressedSize, data[blockHeaderSize : blockHeaderSize+uncompressedSize], true, nil
	}

	if uint32(len(data)) < blockHeaderSize+compressedSize {
		return 0, nil, false, errShortBlock
	}

	return uncompressedSize, data[blockHeaderSize : blockHeaderSize+compressedSize], false, nil
}
