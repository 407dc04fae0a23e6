package types

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// encoder/decoder implement the node's canonical persisted-record format
// (spec §6): fixed-width little-endian integers, length-prefixed byte
// vectors, length-prefixed sequences. Every record kind round-trips through
// these helpers so each MarshalCanonical method and its UnmarshalX decoder
// stay in lock-step.

type encoder struct {
	buf bytes.Buffer
}

func newEncoder() *encoder { return &encoder{} }

func (e *encoder) bytes() []byte { return e.buf.Bytes() }

func (e *encoder) u8(v uint8)   { e.buf.WriteByte(v) }
func (e *encoder) bool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) raw(b []byte) { e.buf.Write(b) }

// bytesVec writes a length-prefixed byte vector.
func (e *encoder) bytesVec(b []byte) {
	e.u32(uint32(len(b)))
	e.buf.Write(b)
}

type decoder struct {
	b   []byte
	off int
}

func newDecoder(b []byte) *decoder { return &decoder{b: b} }

func (d *decoder) remaining() int { return len(d.b) - d.off }

func (d *decoder) u8() (uint8, error) {
	if d.remaining() < 1 {
		return 0, fmt.Errorf("decode u8: %w", errShortBuffer)
	}
	v := d.b[d.off]
	d.off++
	return v, nil
}

func (d *decoder) boolean() (bool, error) {
	v, err := d.u8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (d *decoder) u32() (uint32, error) {
	if d.remaining() < 4 {
		return 0, fmt.Errorf("decode u32: %w", errShortBuffer)
	}
	v := binary.LittleEndian.Uint32(d.b[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) u64() (uint64, error) {
	if d.remaining() < 8 {
		return 0, fmt.Errorf("decode u64: %w", errShortBuffer)
	}
	v := binary.LittleEndian.Uint64(d.b[d.off:])
	d.off += 8
	return v, nil
}

func (d *decoder) raw(n int) ([]byte, error) {
	if d.remaining() < n {
		return nil, fmt.Errorf("decode raw(%d): %w", n, errShortBuffer)
	}
	v := d.b[d.off : d.off+n]
	d.off += n
	return v, nil
}

func (d *decoder) bytesVec() ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	return d.raw(int(n))
}

var errShortBuffer = fmt.Errorf("unexpected end of buffer")
