package object

import (
	"errors"
	"testing"
)

func TestPackHeaderRoundTrip(t *testing.T) {
	h := PackHeader{
		Version:    supportedPackVersion,
		NumObjects: 42,
	}

	data := h.Marshal()
	if len(data) != packHeaderSize {
		t.Fatalf("header len = %d, want %d", len(data), packHeaderSize)
	}

	got, err := UnmarshalPackHeader(data)
	if err != nil {
		t.Fatalf("UnmarshalPackHeader: %v", err)
	}
	if got.Version != h.Version || got.NumObjects != h.NumObjects {
		t.Fatalf("round-trip mismatch: got %+v want %+v", got, h)
	}
}

func TestPackHeaderRejectsInvalidMagic(t *testing.T) {
	bad := []byte("JUNK00000000")
	if _, err := UnmarshalPackHeader(bad); err == nil {
		t.Fatal("expected error for invalid magic")
	}
}

func TestPackHeaderRejectsShortInput(t *testing.T) {
	_, err := UnmarshalPackHeader([]byte("PACK"))
	if !errors.Is(err, ErrTruncatedInput) {
		t.Fatalf("UnmarshalPackHeader error = %v, want ErrTruncatedInput", err)
	}
}

func TestPackEntryTypeEncodingRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		objType PackObjectType
		size    uint64
	}{
		{name: "blob-zero", objType: PackBlob, size: 0},
		{name: "commit-small", objType: PackCommit, size: 15},
		{name: "commit-two-bytes", objType: PackCommit, size: 127},
		{name: "tree-mid", objType: PackTree, size: 256},
		{name: "blob-large", objType: PackBlob, size: 1 << 20},
		{name: "ofs-delta", objType: PackOfsDelta, size: 100},
		{name: "ref-delta", objType: PackRefDelta, size: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encodePackEntryHeader(tt.objType, tt.size)
			gotType, gotSize, consumed, err := DecodePackEntryHeader(data, 0)
			if err != nil {
				t.Fatalf("DecodePackEntryHeader: %v", err)
			}
			if gotType != tt.objType || gotSize != tt.size {
				t.Fatalf("decode = (%d,%d), want (%d,%d)", gotType, gotSize, tt.objType, tt.size)
			}
			if consumed != len(data) {
				t.Fatalf("consumed = %d, want %d", consumed, len(data))
			}
		})
	}
}

func TestPackEntryHeaderKnownBytes(t *testing.T) {
	// 0x95 = continuation, type 1 (commit), low nibble 5; 0x0a adds 10<<4.
	gotType, gotSize, next, err := DecodePackEntryHeader([]byte{0x95, 0x0a, 0xff}, 0)
	if err != nil {
		t.Fatalf("DecodePackEntryHeader: %v", err)
	}
	if gotType != PackCommit || gotSize != 165 || next != 2 {
		t.Fatalf("decode = (%d,%d,%d), want (1,165,2)", gotType, gotSize, next)
	}
}

func TestPackObjectTypeMapping(t *testing.T) {
	for _, objType := range []ObjectType{TypeCommit, TypeTree, TypeBlob, TypeTag} {
		packType, err := packTypeFor(objType)
		if err != nil {
			t.Fatalf("packTypeFor(%s): %v", objType, err)
		}
		back, ok := packType.ObjectType()
		if !ok || back != objType {
			t.Fatalf("%d.ObjectType() = (%q,%v), want %q", packType, back, ok, objType)
		}
	}
	if _, ok := PackOfsDelta.ObjectType(); ok {
		t.Fatal("OFS_DELTA should not map to an object type")
	}
}
