package object

import (
	"encoding/binary"
	"fmt"
)

// DecodeVarint decodes the little-endian base-128 integer at buf[pos:] used
// for delta header sizes. It returns the value and the position just past it.
func DecodeVarint(buf []byte, pos int) (uint64, int, error) {
	var (
		value uint64
		shift uint
	)
	for {
		if pos >= len(buf) {
			return 0, pos, fmt.Errorf("varint: %w", ErrTruncatedInput)
		}
		b := buf[pos]
		pos++
		if shift > 63 {
			return 0, pos, fmt.Errorf("varint overflows 64 bits")
		}
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, pos, nil
		}
		shift += 7
	}
}

// DecodeOffsetVarint decodes the big-endian OFS_DELTA base distance. Unlike
// DecodeVarint, every continuation adds one before shifting, so there is a
// single encoding for each distance.
func DecodeOffsetVarint(buf []byte, pos int) (uint64, int, error) {
	if pos >= len(buf) {
		return 0, pos, fmt.Errorf("ofs-delta distance: %w", ErrTruncatedInput)
	}
	c := buf[pos]
	pos++
	value := uint64(c & 0x7f)
	for c&0x80 != 0 {
		if pos >= len(buf) {
			return 0, pos, fmt.Errorf("ofs-delta distance: %w", ErrTruncatedInput)
		}
		if value > (^uint64(0))>>7-1 {
			return 0, pos, fmt.Errorf("ofs-delta distance overflows 64 bits")
		}
		c = buf[pos]
		pos++
		value = ((value + 1) << 7) | uint64(c&0x7f)
	}
	return value, pos, nil
}

// DecodePackEntryHeader decodes the type and inflated size that prefix every
// pack entry: bits 4-6 of the first byte are the type, its low nibble starts
// the size, and 7-bit groups follow while the MSB is set.
func DecodePackEntryHeader(buf []byte, pos int) (PackObjectType, uint64, int, error) {
	if pos >= len(buf) {
		return 0, 0, pos, fmt.Errorf("pack entry header: %w", ErrTruncatedInput)
	}
	b := buf[pos]
	pos++
	objType := PackObjectType((b >> 4) & 0x7)
	size := uint64(b & 0x0f)
	shift := uint(4)
	for b&0x80 != 0 {
		if pos >= len(buf) {
			return 0, 0, pos, fmt.Errorf("pack entry header: %w", ErrTruncatedInput)
		}
		if shift > 57 {
			return 0, 0, pos, fmt.Errorf("pack entry size overflows 64 bits")
		}
		b = buf[pos]
		pos++
		size |= uint64(b&0x7f) << shift
		shift += 7
	}
	return objType, size, pos, nil
}

// Uint32At reads a big-endian uint32 at buf[pos:].
func Uint32At(buf []byte, pos int) (uint32, error) {
	if pos < 0 || pos+4 > len(buf) {
		return 0, fmt.Errorf("uint32 at %d: %w", pos, ErrTruncatedInput)
	}
	return binary.BigEndian.Uint32(buf[pos:]), nil
}

func encodeVarint(v uint64) []byte {
	out := make([]byte, 0, 10)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func encodeOffsetVarint(distance uint64) []byte {
	b := []byte{byte(distance & 0x7f)}
	for distance >>= 7; distance > 0; distance >>= 7 {
		distance--
		b = append([]byte{byte((distance & 0x7f) | 0x80)}, b...)
	}
	return b
}

func encodePackEntryHeader(objType PackObjectType, size uint64) []byte {
	b := byte((objType&0x7)<<4) | byte(size&0x0f)
	size >>= 4
	out := make([]byte, 0, 10)
	for size > 0 {
		out = append(out, b|0x80)
		b = byte(size & 0x7f)
		size >>= 7
	}
	return append(out, b)
}
