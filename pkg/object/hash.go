package object

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
)

// IDSize is the number of raw bytes in an object id.
const IDSize = sha1.Size

// ID is the SHA-1 name of an object.
type ID [IDSize]byte

// ZeroID is the all-zero id, used as "no object".
var ZeroID ID

// ParseID parses a 40-character hex object id.
func ParseID(s string) (ID, error) {
	var id ID
	if len(s) != hex.EncodedLen(IDSize) {
		return id, fmt.Errorf("parse object id %q: wrong length", s)
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("parse object id %q: %w", s, err)
	}
	return id, nil
}

// MustParseID is ParseID for constants and tests. It panics on bad input.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// IDFromBytes copies a raw 20-byte id.
func IDFromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != IDSize {
		return id, fmt.Errorf("raw object id has %d bytes, want %d", len(b), IDSize)
	}
	copy(id[:], b)
	return id, nil
}

// String returns the lowercase hex form of the id.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 7 hex digits.
func (id ID) Short() string {
	return id.String()[:7]
}

// IsZero reports whether id is ZeroID.
func (id ID) IsZero() bool {
	return id == ZeroID
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// objectHeader returns the "type len\0" prefix hashed in front of every object.
func objectHeader(objType ObjectType, size int) []byte {
	out := make([]byte, 0, len(objType)+1+20+1)
	out = append(out, objType...)
	out = append(out, ' ')
	out = strconv.AppendInt(out, int64(size), 10)
	out = append(out, 0)
	return out
}

// HashObject computes the SHA-1 of the envelope "type len\0content".
func HashObject(objType ObjectType, data []byte) ID {
	h := sha1.New()
	h.Write(objectHeader(objType, len(data)))
	h.Write(data)
	var id ID
	h.Sum(id[:0])
	return id
}

// HashBytes returns the plain SHA-1 of data, as used for pack and index
// trailers.
func HashBytes(data []byte) ID {
	return ID(sha1.Sum(data))
}
