package object

import (
	"bytes"
	"fmt"
)

// deltaPreallocLimit caps the buffer reserved from the size a delta declares;
// larger results grow as copies and inserts are applied.
const deltaPreallocLimit = 16 << 20

// ApplyDelta applies a Git copy/insert delta stream to base and returns the
// reconstructed target. The result always has the size declared by the delta.
func ApplyDelta(base, delta []byte) ([]byte, error) {
	baseSize, pos, err := DecodeVarint(delta, 0)
	if err != nil {
		return nil, fmt.Errorf("delta base size: %w", err)
	}
	if baseSize != uint64(len(base)) {
		return nil, fmt.Errorf("%w: base is %d bytes, delta expects %d", ErrDeltaSizeMismatch, len(base), baseSize)
	}
	resultSize, pos, err := DecodeVarint(delta, pos)
	if err != nil {
		return nil, fmt.Errorf("delta result size: %w", err)
	}

	out := make([]byte, 0, min(resultSize, deltaPreallocLimit))
	for pos < len(delta) {
		cmd := delta[pos]
		pos++

		switch {
		case cmd&0x80 != 0:
			var offset, size uint64
			for i := uint(0); i < 4; i++ {
				if cmd&(1<<i) == 0 {
					continue
				}
				if pos >= len(delta) {
					return nil, fmt.Errorf("delta copy offset: %w", ErrTruncatedInput)
				}
				offset |= uint64(delta[pos]) << (8 * i)
				pos++
			}
			for i := uint(0); i < 3; i++ {
				if cmd&(0x10<<i) == 0 {
					continue
				}
				if pos >= len(delta) {
					return nil, fmt.Errorf("delta copy size: %w", ErrTruncatedInput)
				}
				size |= uint64(delta[pos]) << (8 * i)
				pos++
			}
			if size == 0 {
				size = 0x10000
			}
			if offset > uint64(len(base)) || size > uint64(len(base))-offset {
				return nil, fmt.Errorf("%w: copy %d bytes at %d from %d byte base", ErrDeltaCopyOutOfRange, size, offset, len(base))
			}
			out = append(out, base[offset:offset+size]...)

		case cmd != 0:
			n := int(cmd)
			if len(delta)-pos < n {
				return nil, fmt.Errorf("delta insert of %d bytes: %w", n, ErrTruncatedInput)
			}
			out = append(out, delta[pos:pos+n]...)
			pos += n

		default:
			return nil, fmt.Errorf("%w: zero opcode at %d", ErrInvalidDeltaOpcode, pos-1)
		}

		if uint64(len(out)) > resultSize {
			return nil, fmt.Errorf("%w: output exceeds declared %d bytes", ErrDeltaSizeMismatch, resultSize)
		}
	}

	if uint64(len(out)) != resultSize {
		return nil, fmt.Errorf("%w: produced %d bytes, expected %d", ErrDeltaSizeMismatch, len(out), resultSize)
	}
	return out, nil
}

// buildPrefixDelta encodes target as a copy of the longest common prefix with
// base followed by inserts for the remainder.
func buildPrefixDelta(base, target []byte) []byte {
	n := 0
	for n < len(base) && n < len(target) && n < 0xffffff && base[n] == target[n] {
		n++
	}
	var out bytes.Buffer
	out.Write(encodeVarint(uint64(len(base))))
	out.Write(encodeVarint(uint64(len(target))))
	if n > 0 {
		out.WriteByte(0x80 | 0x10 | 0x20 | 0x40)
		out.WriteByte(byte(n))
		out.WriteByte(byte(n >> 8))
		out.WriteByte(byte(n >> 16))
	}
	for pos := n; pos < len(target); {
		chunk := len(target) - pos
		if chunk > 127 {
			chunk = 127
		}
		out.WriteByte(byte(chunk))
		out.Write(target[pos : pos+chunk])
		pos += chunk
	}
	return out.Bytes()
}
