package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Engine frames are self-describing: a fixed header carries the kind and the
// full construction parameters, the payload that follows is owned by the
// concrete engine. All integers are little-endian.
const (
	frameMagic   uint32 = 0x56445845 // "VDXE"
	frameVersion uint16 = 1

	// maxFrameElems bounds slice allocations driven by untrusted length
	// fields so a corrupt frame cannot exhaust memory.
	maxFrameElems = 1 << 31
)

var (
	// ErrInvalidFrame is returned when engine bytes fail structural validation.
	ErrInvalidFrame = errors.New("invalid engine frame")

	// ErrUnsupportedVersion is returned for frames written by a newer format
	// revision.
	ErrUnsupportedVersion = errors.New("unsupported engine frame version")
)

// framer is the persistence contract every in-package engine implements.
type framer interface {
	Engine
	writePayload(w *frameWriter) error
	readPayload(r *frameReader) error
}

// Read reconstructs an engine from its self-describing byte representation.
func Read(r io.Reader) (Engine, error) {
	fr := &frameReader{r: r}

	if magic := fr.readUint32(); fr.err == nil && magic != frameMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrInvalidFrame, magic)
	}

	if version := fr.readUint16(); fr.err == nil && version != frameVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	kind := Kind(fr.readUint8())

	var p Params
	p.Dims = int(fr.readInt32())
	p.Nlist = int(fr.readInt32())
	p.Nprobe = int(fr.readInt32())
	p.M = int(fr.readInt32())
	p.EfConstruction = int(fr.readInt32())
	p.EfSearch = int(fr.readInt32())

	if fr.err != nil {
		return nil, fr.err
	}

	e, err := New(kind, p)
	if err != nil {
		return nil, err
	}

	f, ok := e.(framer)
	if !ok {
		return nil, &ErrUnknownKind{Kind: kind}
	}

	if err := f.readPayload(fr); err != nil {
		return nil, err
	}

	return e, nil
}

func writeEngine(w io.Writer, f framer) (int64, error) {
	fw := &frameWriter{w: w}

	fw.writeUint32(frameMagic)
	fw.writeUint16(frameVersion)
	fw.writeUint8(uint8(f.Kind()))

	p := f.Params()
	fw.writeInt32(int32(p.Dims))
	fw.writeInt32(int32(p.Nlist))
	fw.writeInt32(int32(p.Nprobe))
	fw.writeInt32(int32(p.M))
	fw.writeInt32(int32(p.EfConstruction))
	fw.writeInt32(int32(p.EfSearch))

	if fw.err != nil {
		return fw.n, fw.err
	}

	if err := f.writePayload(fw); err != nil {
		return fw.n, err
	}

	return fw.n, fw.err
}

// frameWriter accumulates the first write error instead of forcing an error
// check after every field.
type frameWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (fw *frameWriter) write(b []byte) {
	if fw.err != nil {
		return
	}

	n, err := fw.w.Write(b)
	fw.n += int64(n)
	fw.err = err
}

func (fw *frameWriter) writeUint8(v uint8) {
	fw.write([]byte{v})
}

func (fw *frameWriter) writeUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	fw.write(b[:])
}

func (fw *frameWriter) writeUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	fw.write(b[:])
}

func (fw *frameWriter) writeInt32(v int32) {
	fw.writeUint32(uint32(v))
}

func (fw *frameWriter) writeInt64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	fw.write(b[:])
}

func (fw *frameWriter) writeFloat32s(vs []float32) {
	buf := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	fw.write(buf)
}

func (fw *frameWriter) writeUint32s(vs []uint32) {
	fw.writeUint32(uint32(len(vs)))

	buf := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	fw.write(buf)
}

func (fw *frameWriter) writeBytes(b []byte) {
	fw.writeUint32(uint32(len(b)))
	fw.write(b)
}

// frameReader mirrors frameWriter on the decode side.
type frameReader struct {
	r   io.Reader
	err error
}

func (fr *frameReader) read(b []byte) {
	if fr.err != nil {
		return
	}

	if _, err := io.ReadFull(fr.r, b); err != nil {
		fr.err = fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
}

func (fr *frameReader) readUint8() uint8 {
	var b [1]byte
	fr.read(b[:])

	return b[0]
}

func (fr *frameReader) readUint16() uint16 {
	var b [2]byte
	fr.read(b[:])

	return binary.LittleEndian.Uint16(b[:])
}

func (fr *frameReader) readUint32() uint32 {
	var b [4]byte
	fr.read(b[:])

	return binary.LittleEndian.Uint32(b[:])
}

func (fr *frameReader) readInt32() int32 {
	return int32(fr.readUint32())
}

func (fr *frameReader) readInt64() int64 {
	var b [8]byte
	fr.read(b[:])

	return int64(binary.LittleEndian.Uint64(b[:]))
}

func (fr *frameReader) readFloat32s(n int) []float32 {
	if fr.err != nil {
		return nil
	}

	if n < 0 || n > maxFrameElems {
		fr.err = fmt.Errorf("%w: float buffer length %d", ErrInvalidFrame, n)
		return nil
	}

	buf := make([]byte, 4*n)
	fr.read(buf)

	if fr.err != nil {
		return nil
	}

	vs := make([]float32, n)
	for i := range vs {
		vs[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}

	return vs
}

func (fr *frameReader) readUint32s() []uint32 {
	n := int(fr.readUint32())
	if fr.err != nil {
		return nil
	}

	if n > maxFrameElems {
		fr.err = fmt.Errorf("%w: uint32 buffer length %d", ErrInvalidFrame, n)
		return nil
	}

	buf := make([]byte, 4*n)
	fr.read(buf)

	if fr.err != nil {
		return nil
	}

	vs := make([]uint32, n)
	for i := range vs {
		vs[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}

	return vs
}

func (fr *frameReader) readBytes() []byte {
	n := int(fr.readUint32())
	if fr.err != nil {
		return nil
	}

	if n > maxFrameElems {
		fr.err = fmt.Errorf("%w: byte buffer length %d", ErrInvalidFrame, n)
		return nil
	}

	buf := make([]byte, n)
	fr.read(buf)

	if fr.err != nil {
		return nil
	}

	return buf
}
