package vecdex

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/vecdex/blobstore"
	"github.com/hupe1980/vecdex/codec"
	"github.com/hupe1980/vecdex/dispatch"
	"github.com/hupe1980/vecdex/engine"
)

// Snapshot container layout, little-endian:
//
//	magic    uint32  "VDX1"
//	version  uint16
//	codec    uint8 length + name bytes
//	length   uint64  compressed payload length
//	checksum uint32  CRC32 (IEEE) of the compressed payload
//	payload  codec-compressed engine frame
//
// The engine frame inside the payload is itself self-describing, so a
// snapshot fully reconstructs the index configuration.
const (
	snapshotMagic   uint32 = 0x56445831 // "VDX1"
	snapshotVersion uint16 = 1
)

// ToBuffer serializes the index into a self-contained snapshot buffer.
func (ix *Index) ToBuffer() *dispatch.Future[[]byte] {
	if err := ix.checkOpen(); err != nil {
		return dispatch.Rejected[[]byte](err)
	}

	return run(ix, func(eng engine.Engine) ([]byte, error) {
		start := time.Now()

		buf, err := encodeSnapshot(eng, ix.opts.codec)

		ix.logger.LogSnapshot(context.Background(), "buffer", len(buf), err)
		ix.opts.metricsCollector.RecordSnapshot(len(buf), time.Since(start), err)

		return buf, err
	})
}

// SaveToFile writes a snapshot to the given path atomically (temp file and
// rename). Writes respect the resource controller's snapshot IO limit.
func (ix *Index) SaveToFile(path string) *dispatch.Future[struct{}] {
	if err := ix.checkOpen(); err != nil {
		return dispatch.Rejected[struct{}](err)
	}

	return run(ix, func(eng engine.Engine) (struct{}, error) {
		start := time.Now()

		buf, err := encodeSnapshot(eng, ix.opts.codec)
		if err == nil {
			err = ix.writeFileAtomic(path, buf)
		}

		ix.logger.LogSnapshot(context.Background(), path, len(buf), err)
		ix.opts.metricsCollector.RecordSnapshot(len(buf), time.Since(start), err)

		return struct{}{}, err
	})
}

// SaveToStore writes a snapshot blob into the given store under name.
func (ix *Index) SaveToStore(ctx context.Context, store blobstore.Store, name string) *dispatch.Future[struct{}] {
	if err := ix.checkOpen(); err != nil {
		return dispatch.Rejected[struct{}](err)
	}

	return run(ix, func(eng engine.Engine) (struct{}, error) {
		start := time.Now()

		buf, err := encodeSnapshot(eng, ix.opts.codec)
		if err == nil {
			if err = ix.opts.controller.AcquireIO(ctx, len(buf)); err == nil {
				if err = store.Put(ctx, name, buf); err != nil {
					err = fmt.Errorf("%w: %w", ErrIO, err)
				}
			}
		}

		ix.logger.LogSnapshot(ctx, name, len(buf), err)
		ix.opts.metricsCollector.RecordSnapshot(len(buf), time.Since(start), err)

		return struct{}{}, err
	})
}

// FromBuffer reconstructs an index from a snapshot buffer. The snapshot's
// recorded codec is used for decompression regardless of WithCodec.
func FromBuffer(data []byte, optFns ...Option) (*Index, error) {
	eng, err := decodeSnapshot(data)
	if err != nil {
		return nil, err
	}

	return newIndex(configFromEngine(eng), eng, applyOptions(optFns)), nil
}

// Load reconstructs an index from a snapshot file.
func Load(path string, optFns ...Option) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	return FromBuffer(data, optFns...)
}

// LoadFromStore reconstructs an index from a snapshot blob in the given
// store. Returns blobstore.ErrNotFound (wrapped in ErrIO) if the blob does
// not exist.
func LoadFromStore(ctx context.Context, store blobstore.Store, name string, optFns ...Option) (*Index, error) {
	data, err := store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	return FromBuffer(data, optFns...)
}

func encodeSnapshot(eng engine.Engine, c codec.Codec) ([]byte, error) {
	var frame bytes.Buffer
	if _, err := eng.WriteTo(&frame); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	payload, err := c.Compress(frame.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: compress: %w", ErrIO, err)
	}

	name := c.Name()

	buf := bytes.NewBuffer(make([]byte, 0, len(payload)+len(name)+21))
	binary.Write(buf, binary.LittleEndian, snapshotMagic)
	binary.Write(buf, binary.LittleEndian, snapshotVersion)
	buf.WriteByte(byte(len(name)))
	buf.WriteString(name)
	binary.Write(buf, binary.LittleEndian, uint64(len(payload)))
	binary.Write(buf, binary.LittleEndian, crc32.ChecksumIEEE(payload))
	buf.Write(payload)

	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (engine.Engine, error) {
	r := bytes.NewReader(data)

	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil || magic != snapshotMagic {
		return nil, fmt.Errorf("%w: not a snapshot (bad magic)", ErrIO)
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil || version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot version", ErrIO)
	}

	nameLen, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated snapshot header", ErrIO)
	}

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, fmt.Errorf("%w: truncated snapshot header", ErrIO)
	}

	c, ok := codec.ByName(string(name))
	if !ok {
		return nil, fmt.Errorf("%w: unknown snapshot codec %q", ErrIO, string(name))
	}

	var length uint64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, fmt.Errorf("%w: truncated snapshot header", ErrIO)
	}

	var checksum uint32
	if err := binary.Read(r, binary.LittleEndian, &checksum); err != nil {
		return nil, fmt.Errorf("%w: truncated snapshot header", ErrIO)
	}

	if uint64(r.Len()) < length {
		return nil, fmt.Errorf("%w: truncated snapshot payload", ErrIO)
	}

	payload := data[len(data)-r.Len():]
	payload = payload[:length]

	if actual := crc32.ChecksumIEEE(payload); actual != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch: expected 0x%08x, got 0x%08x", ErrIO, checksum, actual)
	}

	frame, err := c.Decompress(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %w", ErrIO, err)
	}

	eng, err := engine.Read(bytes.NewReader(frame))
	if err != nil {
		return nil, translateError(err)
	}

	return eng, nil
}

// writeFileAtomic writes data to path via a temp file and rename, throttled
// by the snapshot IO limit.
func (ix *Index) writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	w := ix.opts.controller.ThrottledWriter(context.Background(), tmp)

	if _, err := w.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("%w: %w", ErrIO, err)
	}

	return nil
}
