// Package codec implements the fixed-width little-endian binary codec
// used throughout the caption index: datums (variable-byte-width unsigned
// integers), time intervals (start + duration pairs with independent byte
// widths), and u32 header fields.
//
// This is a from-scratch Go port of the width-parameterized BinaryFormat
// in the original Python implementation (captions/index.py), following
// the byte-fiddling style of compactindexsized.Header/BucketHeader: fixed
// little-endian widths, no allocation beyond the returned slice.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/rpcpool/caption-index/capidxerrors"
)

// Format holds the byte widths that make up one index's on-disk format.
// All readers of a given index file must use the same Format the index
// was built with; the format is currently a fixed default (see Default),
// not persisted in a header (see SPEC_FULL.md, Open Questions).
type Format struct {
	DatumWidth int // D: width of a datum field, default 3 (24 bits)
	StartWidth int // S: width of a posting's start_ms field, default 4
	EndWidth   int // E: width of a posting's duration field, default 2
}

// Default returns the format used by the reference build: D=3, S=4, E=2.
// This allows up to 16,777,215 tokens, 16,777,215 documents, a 65,535ms
// maximum line duration, and a 4,294,967,295ms maximum document start.
func Default() Format {
	return Format{DatumWidth: 3, StartWidth: 4, EndWidth: 2}
}

// MaxDatum is the largest value encodable in a datum field.
func (f Format) MaxDatum() uint64 {
	return 1<<(8*uint(f.DatumWidth)) - 1
}

// MaxInterval is the largest encodable end-start difference (MAX_INTERVAL
// in spec.md).
func (f Format) MaxInterval() uint64 {
	return 1<<(8*uint(f.EndWidth)) - 1
}

// TimeWidth is the total width of an encoded time interval.
func (f Format) TimeWidth() int {
	return f.StartWidth + f.EndWidth
}

// EncodeDatum writes u into a freshly-allocated DatumWidth-byte buffer.
func (f Format) EncodeDatum(u uint64) ([]byte, error) {
	buf := make([]byte, f.DatumWidth)
	if err := f.PutDatum(buf, u); err != nil {
		return nil, err
	}
	return buf, nil
}

// PutDatum writes u little-endian into buf, which must be exactly
// DatumWidth bytes.
func (f Format) PutDatum(buf []byte, u uint64) error {
	if len(buf) != f.DatumWidth {
		return fmt.Errorf("codec: datum buffer has wrong length %d, want %d", len(buf), f.DatumWidth)
	}
	if u > f.MaxDatum() {
		return fmt.Errorf("%w: datum %d > max %d", capidxerrors.ErrEncodingOverflow, u, f.MaxDatum())
	}
	putUintLE(buf, u)
	return nil
}

// DecodeDatum reads a DatumWidth-byte little-endian unsigned integer.
func (f Format) DecodeDatum(buf []byte) (uint64, error) {
	if len(buf) != f.DatumWidth {
		return 0, fmt.Errorf("codec: datum buffer has wrong length %d, want %d", len(buf), f.DatumWidth)
	}
	return getUintLE(buf), nil
}

// EncodeTime writes (start, end) into a freshly-allocated TimeWidth-byte
// buffer: start in StartWidth bytes, (end-start) in EndWidth bytes.
func (f Format) EncodeTime(start, end uint64) ([]byte, error) {
	buf := make([]byte, f.TimeWidth())
	if err := f.PutTime(buf, start, end); err != nil {
		return nil, err
	}
	return buf, nil
}

// PutTime writes (start, end) into buf, which must be exactly TimeWidth
// bytes.
func (f Format) PutTime(buf []byte, start, end uint64) error {
	if len(buf) != f.TimeWidth() {
		return fmt.Errorf("codec: time buffer has wrong length %d, want %d", len(buf), f.TimeWidth())
	}
	if end < start {
		return fmt.Errorf("%w: end %d < start %d", capidxerrors.ErrEncodingOverflow, end, start)
	}
	diff := end - start
	if diff > f.MaxInterval() {
		return fmt.Errorf("%w: end-start %d > max interval %d", capidxerrors.ErrEncodingOverflow, diff, f.MaxInterval())
	}
	maxStart := uint64(1)<<(8*uint(f.StartWidth)) - 1
	if start > maxStart {
		return fmt.Errorf("%w: start %d > max %d", capidxerrors.ErrEncodingOverflow, start, maxStart)
	}
	putUintLE(buf[:f.StartWidth], start)
	putUintLE(buf[f.StartWidth:], diff)
	return nil
}

// DecodeTime reads (start, end) from a TimeWidth-byte buffer.
func (f Format) DecodeTime(buf []byte) (start, end uint64, err error) {
	if len(buf) != f.TimeWidth() {
		return 0, 0, fmt.Errorf("codec: time buffer has wrong length %d, want %d", len(buf), f.TimeWidth())
	}
	start = getUintLE(buf[:f.StartWidth])
	diff := getUintLE(buf[f.StartWidth:])
	return start, start + diff, nil
}

// U32Width is the fixed width of a u32 header field.
const U32Width = 4

// EncodeU32 writes u into a freshly-allocated 4-byte little-endian buffer.
func EncodeU32(u uint32) []byte {
	buf := make([]byte, U32Width)
	binary.LittleEndian.PutUint32(buf, u)
	return buf
}

// DecodeU32 reads a 4-byte little-endian u32.
func DecodeU32(buf []byte) (uint32, error) {
	if len(buf) != U32Width {
		return 0, fmt.Errorf("codec: u32 buffer has wrong length %d, want %d", len(buf), U32Width)
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// putUintLE writes the little-endian bytes of u into buf, whose length
// determines the width (<= 8).
func putUintLE(buf []byte, u uint64) {
	for i := range buf {
		buf[i] = byte(u >> (8 * uint(i)))
	}
}

// getUintLE reads a little-endian unsigned integer of len(buf) bytes
// (<= 8).
func getUintLE(buf []byte) uint64 {
	var u uint64
	for i, b := range buf {
		u |= uint64(b) << (8 * uint(i))
	}
	return u
}
